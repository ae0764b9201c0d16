// Package vcs derives the revision stamp embedded in document metadata when
// the manuscript lives in a git repository.
package vcs

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// ErrNoRepository indicates the manuscript directory is not inside a git
// repository. Builds treat this as "no revision stamp", not a failure.
var ErrNoRepository = errors.New("not a git repository")

// Revision describes the manuscript's HEAD commit.
type Revision struct {
	Hash       string // full commit hash
	Tag        string // exact tag pointing at HEAD, empty otherwise
	CommitTime time.Time
	Dirty      bool // worktree has uncommitted changes
}

// Short returns the abbreviated commit hash.
func (r *Revision) Short() string {
	if len(r.Hash) < 8 {
		return r.Hash
	}
	return r.Hash[:8]
}

// Stamp returns the string embedded as the document's revision: the exact
// tag when HEAD is tagged, otherwise the short hash, with a -dirty suffix
// for modified worktrees.
func (r *Revision) Stamp() string {
	s := r.Tag
	if s == "" {
		s = r.Short()
	}
	if r.Dirty {
		s += "-dirty"
	}
	return s
}

// Describe resolves the revision of the repository containing dir. The
// repository root may be any ancestor of dir.
func Describe(dir string) (*Revision, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, ErrNoRepository
		}
		return nil, fmt.Errorf("open repository: %w", err)
	}

	head, err := repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			// Initialized repository without commits.
			return nil, ErrNoRepository
		}
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}

	rev := &Revision{Hash: head.Hash().String()}

	if commit, err := repo.CommitObject(head.Hash()); err == nil {
		rev.CommitTime = commit.Committer.When
	}
	rev.Tag = exactTag(repo, head.Hash())
	rev.Dirty = worktreeDirty(repo)

	return rev, nil
}

// exactTag returns a tag name pointing at the given commit, preferring the
// lexically greatest when several match (stable for repeated builds).
func exactTag(repo *git.Repository, hash plumbing.Hash) string {
	tags, err := repo.Tags()
	if err != nil {
		return ""
	}
	defer tags.Close()

	best := ""
	_ = tags.ForEach(func(ref *plumbing.Reference) error {
		target := ref.Hash()
		// Annotated tags point at a tag object, not the commit.
		if obj, err := repo.TagObject(ref.Hash()); err == nil {
			target = obj.Target
		}
		if target == hash {
			if name := ref.Name().Short(); name > best {
				best = name
			}
		}
		return nil
	})
	return best
}

func worktreeDirty(repo *git.Repository) bool {
	wt, err := repo.Worktree()
	if err != nil {
		return false
	}
	status, err := wt.Status()
	if err != nil {
		return false
	}
	return !status.IsClean()
}
