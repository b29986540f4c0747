package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyRunStatus  = "run_status"
	KeyCheck      = "check"
	KeyStep       = "step"
	KeyCategory   = "category"
	KeyChangeRef  = "change_ref"
	KeyGroup      = "group"
	KeyCommit     = "commit"
	KeyExitCode   = "exit_code"
	KeyDurationMS = "duration_ms"
	KeyRepo       = "repository"
	KeyForge      = "forge"
	KeyEvent      = "event"
	KeyPath       = "path"
	KeyURL        = "url"
	KeyWorker     = "worker"
	KeyCacheKey   = "cache_key"
	KeyMethod     = "method"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr        { return slog.String(KeyRunID, id) }
func RunStatus(s string) slog.Attr     { return slog.String(KeyRunStatus, s) }
func Check(name string) slog.Attr      { return slog.String(KeyCheck, name) }
func Step(name string) slog.Attr       { return slog.String(KeyStep, name) }
func Category(c string) slog.Attr      { return slog.String(KeyCategory, c) }
func ChangeRef(ref string) slog.Attr   { return slog.String(KeyChangeRef, ref) }
func Group(key string) slog.Attr       { return slog.String(KeyGroup, key) }
func Commit(sha string) slog.Attr      { return slog.String(KeyCommit, sha) }
func ExitCode(code int) slog.Attr      { return slog.Int(KeyExitCode, code) }
func Repository(r string) slog.Attr    { return slog.String(KeyRepo, r) }
func Forge(name string) slog.Attr      { return slog.String(KeyForge, name) }
func Event(kind string) slog.Attr      { return slog.String(KeyEvent, kind) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func URL(u string) slog.Attr           { return slog.String(KeyURL, u) }
func Worker(id string) slog.Attr       { return slog.String(KeyWorker, id) }
func CacheKey(key string) slog.Attr    { return slog.String(KeyCacheKey, key) }
func Method(m string) slog.Attr        { return slog.String(KeyMethod, m) }
func Duration(d time.Duration) slog.Attr {
	return slog.Float64(KeyDurationMS, float64(d.Microseconds())/1000)
}

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
