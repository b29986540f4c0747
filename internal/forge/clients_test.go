package forge

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docgate/internal/config"
	"git.home.luguber.info/inful/docgate/internal/trigger"
)

func sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func tokenAuth() *config.AuthConfig {
	return &config.AuthConfig{Type: config.AuthTypeToken, Token: "tok"}
}

func TestNewForgeClient(t *testing.T) {
	for _, typ := range []config.ForgeType{config.ForgeGitHub, config.ForgeGitLab, config.ForgeForgejo} {
		c, err := NewForgeClient(&Config{Name: string(typ), Type: typ, BaseURL: "https://forge.example.com"})
		require.NoError(t, err)
		assert.Equal(t, typ, c.GetType())
		assert.Equal(t, string(typ), c.GetName())
	}

	_, err := NewForgeClient(&Config{Name: "x", Type: "bitbucket"})
	require.ErrorIs(t, err, ErrForgeUnsupported)

	_, err = NewForgejoClient(&Config{Name: "fj", Type: config.ForgeForgejo})
	require.Error(t, err)
}

func TestManager(t *testing.T) {
	m, err := CreateForgeManager([]*Config{
		{Name: "gh", Type: config.ForgeGitHub},
		{Name: "gl", Type: config.ForgeGitLab},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"gh", "gl"}, m.Names())

	c, cfg, ok := m.GetForge("gl")
	require.True(t, ok)
	assert.Equal(t, TypeGitLab, c.GetType())
	assert.Equal(t, "gl", cfg.Name)

	_, _, ok = m.GetForge("missing")
	assert.False(t, ok)

	require.Error(t, m.Reload([]*Config{{Name: "bad", Type: "bitbucket"}}))
	assert.Equal(t, []string{"gh", "gl"}, m.Names())

	require.NoError(t, m.Reload([]*Config{{Name: "fj", Type: config.ForgeForgejo, BaseURL: "https://fj.example.com"}}))
	assert.Equal(t, []string{"fj"}, m.Names())
}

func TestGitHubWebhook(t *testing.T) {
	c, err := NewGitHubClient(&Config{Name: "gh", Type: config.ForgeGitHub})
	require.NoError(t, err)

	payload := []byte(`{
		"action": "synchronize",
		"number": 42,
		"pull_request": {"head": {"sha": "abc123"}, "base": {"sha": "def456"}},
		"repository": {"full_name": "org/docs", "clone_url": "https://github.com/org/docs.git"}
	}`)

	t.Run("signature", func(t *testing.T) {
		assert.True(t, c.ValidateWebhook(payload, "sha256="+sign("s3cret", payload), "s3cret"))
		assert.False(t, c.ValidateWebhook(payload, "sha256="+sign("other", payload), "s3cret"))
		assert.False(t, c.ValidateWebhook(payload, sign("s3cret", payload), "s3cret"))
		assert.False(t, c.ValidateWebhook(payload, "", "s3cret"))
	})

	t.Run("headers", func(t *testing.T) {
		h := http.Header{}
		h.Set("X-GitHub-Event", "pull_request")
		h.Set("X-Hub-Signature-256", "sha256=x")
		assert.Equal(t, "pull_request", EventType(c, h))
		assert.Equal(t, "sha256=x", Signature(c, h))
	})

	t.Run("pull request", func(t *testing.T) {
		ev, err := c.ParseWebhookEvent(payload, "pull_request")
		require.NoError(t, err)
		assert.Equal(t, trigger.KindPullRequest, ev.Kind)
		assert.Equal(t, "synchronize", ev.Action)
		assert.Equal(t, "gh", ev.Forge)
		assert.Equal(t, "org/docs", ev.Repository)
		assert.Equal(t, 42, ev.Number)
		assert.Equal(t, "refs/pull/42/head", ev.ChangeRef)
		assert.Equal(t, "abc123", ev.HeadSHA)
		assert.Equal(t, "def456", ev.BaseSHA)
		assert.Equal(t, "https://github.com/org/docs.git", ev.CloneURL)
		assert.False(t, ev.ReceivedAt.IsZero())
	})

	t.Run("unsupported event", func(t *testing.T) {
		_, err := c.ParseWebhookEvent(payload, "push")
		require.ErrorIs(t, err, ErrUnsupportedEvent)
	})

	t.Run("invalid payload", func(t *testing.T) {
		_, err := c.ParseWebhookEvent([]byte(`{`), "pull_request")
		require.ErrorIs(t, err, ErrInvalidPayload)
		_, err = c.ParseWebhookEvent([]byte(`{"action":"opened"}`), "pull_request")
		require.ErrorIs(t, err, ErrInvalidPayload)
	})
}

func TestGitHubChangedFilesAndStatus(t *testing.T) {
	var status map[string]string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/org/docs/pulls/7/files", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "100", r.URL.Query().Get("per_page"))
		if r.URL.Query().Get("page") == "1" {
			w.Header().Set("Link", `<next>; rel="next"`)
			_ = json.NewEncoder(w).Encode([]map[string]string{
				{"filename": "docs/index.md"},
				{"filename": "docs/new.md", "previous_filename": "docs/old.md"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode([]map[string]string{{"filename": "README.md"}})
	})
	mux.HandleFunc("POST /repos/org/docs/statuses/abc", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&status))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := NewGitHubClient(&Config{Name: "gh", Type: config.ForgeGitHub, APIURL: srv.URL, Auth: tokenAuth()})
	require.NoError(t, err)

	files, err := c.ListChangedFiles(t.Context(), "org/docs", 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"docs/index.md", "docs/new.md", "docs/old.md", "README.md"}, files)

	err = c.SetCommitStatus(t.Context(), "org/docs", "abc", CommitStatus{
		State:       StatusFailure,
		Context:     "docgate/docs",
		Description: "generation failed",
		TargetURL:   "https://ci.example.com/runs/1/summary",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"state":       "failure",
		"context":     "docgate/docs",
		"description": "generation failed",
		"target_url":  "https://ci.example.com/runs/1/summary",
	}, status)
}

func TestGitLabWebhook(t *testing.T) {
	c, err := NewGitLabClient(&Config{Name: "gl", Type: config.ForgeGitLab})
	require.NoError(t, err)

	payload := []byte(`{
		"object_kind": "merge_request",
		"project": {"path_with_namespace": "group/docs", "git_http_url": "https://gitlab.com/group/docs.git"},
		"object_attributes": {
			"iid": 9,
			"action": "update",
			"last_commit": {"id": "head1"},
			"diff_refs": {"base_sha": "base1", "head_sha": "head0"}
		}
	}`)

	assert.True(t, c.ValidateWebhook(payload, "token", "token"))
	assert.False(t, c.ValidateWebhook(payload, "wrong", "token"))
	assert.False(t, c.ValidateWebhook(payload, "", ""))

	ev, err := c.ParseWebhookEvent(payload, "Merge Request Hook")
	require.NoError(t, err)
	assert.Equal(t, "synchronize", ev.Action)
	assert.Equal(t, "group/docs", ev.Repository)
	assert.Equal(t, "refs/merge-requests/9/head", ev.ChangeRef)
	assert.Equal(t, "head1", ev.HeadSHA)
	assert.Equal(t, "base1", ev.BaseSHA)

	_, err = c.ParseWebhookEvent(payload, "Push Hook")
	require.ErrorIs(t, err, ErrUnsupportedEvent)
}

func TestGitLabChangedFilesAndStatus(t *testing.T) {
	var status map[string]string
	var statusPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			assert.Equal(t, "/api/v4/projects/group%2Fdocs/merge_requests/9/diffs", r.URL.EscapedPath())
			_ = json.NewEncoder(w).Encode([]map[string]string{
				{"old_path": "docs/a.md", "new_path": "docs/a.md"},
				{"old_path": "docs/b.md", "new_path": "guide/b.md"},
			})
		default:
			statusPath = r.URL.EscapedPath()
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&status))
			w.WriteHeader(http.StatusCreated)
		}
	}))
	defer srv.Close()

	c, err := NewGitLabClient(&Config{Name: "gl", Type: config.ForgeGitLab, APIURL: srv.URL + "/api/v4", Auth: tokenAuth()})
	require.NoError(t, err)

	files, err := c.ListChangedFiles(t.Context(), "group/docs", 9)
	require.NoError(t, err)
	assert.Equal(t, []string{"docs/a.md", "guide/b.md", "docs/b.md"}, files)

	require.NoError(t, c.SetCommitStatus(t.Context(), "group/docs", "head1", CommitStatus{
		State: StatusError, Context: "docgate/docs", Description: "dependency install failed",
	}))
	assert.Equal(t, "/api/v4/projects/group%2Fdocs/statuses/head1", statusPath)
	assert.Equal(t, "failed", status["state"])
	assert.Equal(t, "docgate/docs", status["name"])
}

func TestForgejoWebhook(t *testing.T) {
	c, err := NewForgejoClient(&Config{Name: "fj", Type: config.ForgeForgejo, BaseURL: "https://code.example.com"})
	require.NoError(t, err)
	assert.Equal(t, "https://code.example.com/api/v1", c.apiURL)

	payload := []byte(`{
		"action": "synchronized",
		"number": 3,
		"pull_request": {"head": {"sha": "h"}, "base": {"sha": "b"}},
		"repository": {"full_name": "team/docs", "clone_url": "https://code.example.com/team/docs.git"}
	}`)

	assert.True(t, c.ValidateWebhook(payload, sign("k", payload), "k"))
	assert.True(t, c.ValidateWebhook(payload, "sha256="+sign("k", payload), "k"))
	assert.False(t, c.ValidateWebhook(payload, sign("other", payload), "k"))

	h := http.Header{}
	h.Set("X-Gitea-Event", "pull_request")
	assert.Equal(t, "pull_request", EventType(c, h))

	ev, err := c.ParseWebhookEvent(payload, "pull_request")
	require.NoError(t, err)
	assert.Equal(t, "synchronize", ev.Action)
	assert.Equal(t, "refs/pull/3/head", ev.ChangeRef)
	assert.Equal(t, "team/docs", ev.Repository)
}

func TestForgejoChangedFiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token tok", r.Header.Get("Authorization"))
		page := r.URL.Query().Get("page")
		if page == "1" {
			files := make([]map[string]string, forgejoPageSize)
			for i := range files {
				files[i] = map[string]string{"filename": fmt.Sprintf("docs/%d.md", i)}
			}
			_ = json.NewEncoder(w).Encode(files)
			return
		}
		_ = json.NewEncoder(w).Encode([]map[string]string{{"filename": "mkdocs.yml"}})
	}))
	defer srv.Close()

	c, err := NewForgejoClient(&Config{Name: "fj", Type: config.ForgeForgejo, APIURL: srv.URL, Auth: tokenAuth()})
	require.NoError(t, err)

	files, err := c.ListChangedFiles(t.Context(), "team/docs", 3)
	require.NoError(t, err)
	assert.Len(t, files, forgejoPageSize+1)
	assert.Equal(t, "mkdocs.yml", files[len(files)-1])
}

func TestForgejoChangedFilesWithClampedPageSize(t *testing.T) {
	const served = 30
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		page := r.URL.Query().Get("page")
		w.Header().Set("X-HasMore", strconv.FormatBool(page == "1"))
		if page == "1" {
			files := make([]map[string]string, served)
			for i := range files {
				files[i] = map[string]string{"filename": fmt.Sprintf("src/%d.py", i)}
			}
			_ = json.NewEncoder(w).Encode(files)
			return
		}
		_ = json.NewEncoder(w).Encode([]map[string]string{{"filename": "docs/index.md"}})
	}))
	defer srv.Close()

	c, err := NewForgejoClient(&Config{Name: "fj", Type: config.ForgeForgejo, APIURL: srv.URL, Auth: tokenAuth()})
	require.NoError(t, err)

	files, err := c.ListChangedFiles(t.Context(), "team/docs", 4)
	require.NoError(t, err)
	assert.Len(t, files, served+1)
	assert.Contains(t, files, "docs/index.md")
}

func TestTruncateDescription(t *testing.T) {
	long := make([]rune, 200)
	for i := range long {
		long[i] = 'x'
	}
	got := truncateDescription(string(long))
	assert.Len(t, []rune(got), descriptionLimit)
	assert.Equal(t, "short", truncateDescription("short"))
}
