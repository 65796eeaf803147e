package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID       = "run_id"
	KeyStage       = "stage"
	KeyDurationMS  = "duration_ms"
	KeyNode        = "node"
	KeyRepo        = "repository"
	KeyPath        = "path"
	KeyKey         = "key"
	KeyBucket      = "bucket"
	KeyFingerprint = "fingerprint"
	KeyState       = "state"
	KeyURL         = "url"
	KeySubject     = "subject"
	KeyName        = "name"
	KeyCount       = "count"
	KeyStatus      = "status"
	KeyError       = "error"
	KeyMethod      = "method"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr          { return slog.String(KeyRunID, id) }
func Stage(name string) slog.Attr        { return slog.String(KeyStage, name) }
func DurationMS(ms float64) slog.Attr    { return slog.Float64(KeyDurationMS, ms) }
func Node(key string) slog.Attr          { return slog.String(KeyNode, key) }
func Repository(r string) slog.Attr      { return slog.String(KeyRepo, r) }
func Path(p string) slog.Attr            { return slog.String(KeyPath, p) }
func Key(k string) slog.Attr             { return slog.String(KeyKey, k) }
func Bucket(b string) slog.Attr          { return slog.String(KeyBucket, b) }
func Fingerprint(fp string) slog.Attr    { return slog.String(KeyFingerprint, fp) }
func State(s string) slog.Attr           { return slog.String(KeyState, s) }
func URL(u string) slog.Attr             { return slog.String(KeyURL, u) }
func Subject(s string) slog.Attr         { return slog.String(KeySubject, s) }
func Name(n string) slog.Attr            { return slog.String(KeyName, n) }
func Count(n int) slog.Attr              { return slog.Int(KeyCount, n) }
func Status(code int) slog.Attr          { return slog.Int(KeyStatus, code) }
func Method(m string) slog.Attr          { return slog.String(KeyMethod, m) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
