package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyBuildID    = "build_id"
	KeyChapter    = "chapter"
	KeyTarget     = "target"
	KeyStage      = "stage"
	KeyBlock      = "block"
	KeyPath       = "path"
	KeyArtifact   = "artifact"
	KeyDurationMS = "duration_ms"
	KeyLine       = "line"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func BuildID(id string) slog.Attr     { return slog.String(KeyBuildID, id) }
func Chapter(id string) slog.Attr     { return slog.String(KeyChapter, id) }
func Target(t string) slog.Attr       { return slog.String(KeyTarget, t) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func Block(label string) slog.Attr    { return slog.String(KeyBlock, label) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Artifact(p string) slog.Attr     { return slog.String(KeyArtifact, p) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Line(n int) slog.Attr            { return slog.Int(KeyLine, n) }
func Error(err error) slog.Attr {
	if err == nil { return slog.String(KeyError, "") }
	return slog.String(KeyError, err.Error())
}
