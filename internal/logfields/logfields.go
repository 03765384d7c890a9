package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyTaskID     = "task_id"
	KeyRound      = "round"
	KeyRepo       = "repository"
	KeyStage      = "stage"
	KeyAttempt    = "attempt"
	KeyOperation  = "operation"
	KeyURL        = "url"
	KeyPath       = "path"
	KeyBranch     = "branch"
	KeyCommit     = "commit"
	KeyDurationMS = "duration_ms"
	KeyMethod     = "method"
	KeyStatus     = "status"
	KeyRemoteAddr = "remote_addr"
	KeyRequestID  = "request_id"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func TaskID(id string) slog.Attr       { return slog.String(KeyTaskID, id) }
func Round(r int) slog.Attr            { return slog.Int(KeyRound, r) }
func Repository(name string) slog.Attr { return slog.String(KeyRepo, name) }
func Stage(name string) slog.Attr      { return slog.String(KeyStage, name) }
func Attempt(n int) slog.Attr          { return slog.Int(KeyAttempt, n) }
func Operation(op string) slog.Attr    { return slog.String(KeyOperation, op) }
func URL(u string) slog.Attr           { return slog.String(KeyURL, u) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func Branch(b string) slog.Attr        { return slog.String(KeyBranch, b) }
func Commit(sha string) slog.Attr      { return slog.String(KeyCommit, sha) }
func DurationMS(d time.Duration) slog.Attr {
	return slog.Float64(KeyDurationMS, float64(d.Milliseconds()))
}
func Method(m string) slog.Attr        { return slog.String(KeyMethod, m) }
func Status(code int) slog.Attr        { return slog.Int(KeyStatus, code) }
func RemoteAddr(a string) slog.Attr    { return slog.String(KeyRemoteAddr, a) }
func RequestID(id string) slog.Attr    { return slog.String(KeyRequestID, id) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
