package pipeline

import (
	"os"
	"time"
)

// mtime returns the modification time of path, or the zero time when the
// file does not exist (or cannot be stat'd, which a later read surfaces).
func mtime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// staleAgainst reports whether derived needs regenerating relative to its
// inputs: it is stale when missing or when any input is newer. Inputs that
// do not exist are ignored; their absence fails elsewhere with a better
// error than a staleness guess.
func staleAgainst(derived string, inputs ...string) bool {
	dt := mtime(derived)
	if dt.IsZero() {
		return true
	}
	for _, in := range inputs {
		if it := mtime(in); !it.IsZero() && it.After(dt) {
			return true
		}
	}
	return false
}
