// Package history persists build outcomes to a local SQLite database so
// `bookbuilder history` can show what was built, when, and how it went.
package history

import (
	"context"
	"time"
)

// Record is one completed (or failed) target build.
type Record struct {
	ID              int64
	BuildID         string // uuid shared by all targets of one invocation
	Format          string
	Outcome         string // success | warning | failed | canceled
	Revision        string // vcs stamp, empty outside a repository
	Artifact        string
	Chapters        int
	ChaptersRebuilt int
	Blocks          int // executable blocks evaluated
	Error           string
	StartedAt       time.Time
	FinishedAt      time.Time
}

// Duration returns the wall time of the recorded build.
func (r Record) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Store persists and lists build records.
type Store interface {
	// Append records one finished target build.
	Append(ctx context.Context, rec Record) error

	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]Record, error)

	// ByBuildID returns every target record of one invocation, oldest first.
	ByBuildID(ctx context.Context, buildID string) ([]Record, error)

	// Close releases store resources.
	Close() error
}
