package logfields

import (
	"errors"
	"log/slog"
	"testing"
	"time"
)

// TestHelperKeyNames verifies string-based helper key/value stability.
func TestHelperKeyNames(t *testing.T) {
	cases := []struct {
		name    string
		attrKey string
		attrVal string
		attr    slog.Attr
	}{
		{"RunID", KeyRunID, "r1", RunID("r1")},
		{"RunStatus", KeyRunStatus, "running", RunStatus("running")},
		{"Check", KeyCheck, "docs", Check("docs")},
		{"Step", KeyStep, "install", Step("install")},
		{"ChangeRef", KeyChangeRef, "refs/pull/1/merge", ChangeRef("refs/pull/1/merge")},
		{"Group", KeyGroup, "docs-1", Group("docs-1")},
		{"Repository", KeyRepo, "org/repo", Repository("org/repo")},
		{"Forge", KeyForge, "github", Forge("github")},
		{"Path", KeyPath, "/tmp/x", Path("/tmp/x")},
		{"CacheKey", KeyCacheKey, "linux-python", CacheKey("linux-python")},
	}

	for _, tc := range cases {
		if tc.attr.Key != tc.attrKey {
			// Key drift would break log ingestion schemas.
			t.Fatalf("%s: expected key %s, got %s", tc.name, tc.attrKey, tc.attr.Key)
		}
		if tc.attr.Value.String() != tc.attrVal {
			t.Fatalf("%s: expected value %s, got %s", tc.name, tc.attrVal, tc.attr.Value.String())
		}
	}
}

func TestNumericAndErrorHelpers(t *testing.T) {
	if a := ExitCode(2); a.Value.Int64() != 2 {
		t.Fatalf("exit code = %d", a.Value.Int64())
	}
	if a := Duration(1500 * time.Microsecond); a.Value.Float64() != 1.5 {
		t.Fatalf("duration = %v", a.Value.Float64())
	}
	if a := Error(nil); a.Value.String() != "" {
		t.Fatalf("nil error should be empty, got %q", a.Value.String())
	}
	if a := Error(errors.New("boom")); a.Value.String() != "boom" {
		t.Fatalf("error = %q", a.Value.String())
	}
}
