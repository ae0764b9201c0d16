package pipeline

import (
	"fmt"
	"time"

	"git.home.luguber.info/inful/bookbuilder/internal/config"
)

// Outcome is the typed enumeration of final build result states.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeWarning  Outcome = "warning"
	OutcomeFailed   Outcome = "failed"
	OutcomeCanceled Outcome = "canceled"
)

// Report captures what one target build did.
type Report struct {
	BuildID string
	Format  config.Format
	Start   time.Time
	End     time.Time

	Chapters int // configured chapters
	Rebuilt  int // chapters whose intermediate was regenerated
	Blocks   int // executable blocks evaluated
	Figures  int
	Tables   int

	Artifact string // final document path
	Compiled bool   // false when the artifact was already fresh
	Revision string // vcs stamp, empty outside a repository

	StageDurations map[string]time.Duration
	Errors         []error // fatal errors aborting the build (at most one today)
	Warnings       []error // non-fatal issues

	Outcome Outcome
}

func newReport(buildID string, format config.Format) *Report {
	return &Report{
		BuildID:        buildID,
		Format:         format,
		Start:          time.Now(),
		StageDurations: make(map[string]time.Duration),
	}
}

func (r *Report) finish() { r.End = time.Now() }

// Duration returns the wall time of the build.
func (r *Report) Duration() time.Duration { return r.End.Sub(r.Start) }

// deriveOutcome sets Outcome based on recorded errors and warnings.
func (r *Report) deriveOutcome() {
	if len(r.Errors) > 0 {
		for _, e := range r.Errors {
			if se, ok := e.(*StageError); ok && se.Kind == StageErrorCanceled {
				r.Outcome = OutcomeCanceled
				return
			}
		}
		r.Outcome = OutcomeFailed
		return
	}
	if len(r.Warnings) > 0 {
		r.Outcome = OutcomeWarning
		return
	}
	r.Outcome = OutcomeSuccess
}

// Err returns the fatal error that aborted the build, or nil.
func (r *Report) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return r.Errors[0]
}

// Summary returns a human-readable single-line summary.
func (r *Report) Summary() string {
	return fmt.Sprintf("target=%s chapters=%d rebuilt=%d blocks=%d duration=%s outcome=%s",
		r.Format, r.Chapters, r.Rebuilt, r.Blocks,
		r.Duration().Truncate(time.Millisecond), r.Outcome)
}
