package forge

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docgate/internal/foundation/errors"
)

func TestBaseForge_NewRequest(t *testing.T) {
	tests := []struct {
		name       string
		apiURL     string
		endpoint   string
		body       any
		authPrefix string
		wantPath   string
		wantRaw    string
		wantQuery  string
		wantAuth   string
	}{
		{
			name:       "simple endpoint",
			apiURL:     "https://api.example.com/v1",
			endpoint:   "/repos/o/r/statuses/abc",
			authPrefix: "Bearer ",
			wantPath:   "/v1/repos/o/r/statuses/abc",
			wantAuth:   "Bearer test-token",
		},
		{
			name:       "query string preserved",
			apiURL:     "https://forge.example.com/api/v1",
			endpoint:   "repos/o/r/pulls/3/files?page=2&limit=50",
			authPrefix: "token ",
			wantPath:   "/api/v1/repos/o/r/pulls/3/files",
			wantQuery:  "page=2&limit=50",
			wantAuth:   "token test-token",
		},
		{
			name:       "escaped project path kept",
			apiURL:     "https://gitlab.example.com/api/v4",
			endpoint:   "projects/group%2Fdocs/merge_requests/7/diffs",
			authPrefix: "Bearer ",
			wantPath:   "/api/v4/projects/group/docs/merge_requests/7/diffs",
			wantRaw:    "/api/v4/projects/group%2Fdocs/merge_requests/7/diffs",
			wantAuth:   "Bearer test-token",
		},
		{
			name:       "json body",
			apiURL:     "https://api.example.com",
			endpoint:   "statuses",
			body:       map[string]string{"state": "pending"},
			authPrefix: "Bearer ",
			wantPath:   "/statuses",
			wantAuth:   "Bearer test-token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBaseForge(http.DefaultClient, tt.apiURL, "test-token")
			b.SetAuthHeaderPrefix(tt.authPrefix)
			b.SetCustomHeader("X-Test", "1")

			req, err := b.NewRequest(t.Context(), http.MethodPost, tt.endpoint, tt.body)
			require.NoError(t, err)

			assert.Equal(t, tt.wantPath, req.URL.Path)
			if tt.wantRaw != "" {
				assert.Equal(t, tt.wantRaw, req.URL.EscapedPath())
			}
			assert.Equal(t, tt.wantQuery, req.URL.RawQuery)
			assert.Equal(t, tt.wantAuth, req.Header.Get("Authorization"))
			assert.Equal(t, "docgate/1.0", req.Header.Get("User-Agent"))
			assert.Equal(t, "1", req.Header.Get("X-Test"))
			if tt.body != nil {
				assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
				data, _ := io.ReadAll(req.Body)
				assert.JSONEq(t, `{"state":"pending"}`, string(data))
			}
		})
	}
}

func TestBaseForge_NewRequestWithoutToken(t *testing.T) {
	b := NewBaseForge(http.DefaultClient, "https://api.example.com", "")
	req, err := b.NewRequest(t.Context(), http.MethodGet, "x", nil)
	require.NoError(t, err)
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestBaseForge_DoRequestClassifiesStatus(t *testing.T) {
	tests := []struct {
		status int
		want   errors.ErrorCategory
	}{
		{http.StatusUnauthorized, errors.CategoryAuth},
		{http.StatusForbidden, errors.CategoryAuth},
		{http.StatusNotFound, errors.CategoryNotFound},
		{http.StatusUnprocessableEntity, errors.CategoryValidation},
		{http.StatusInternalServerError, errors.CategoryForge},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			b := NewBaseForge(srv.Client(), srv.URL, "")
			req, err := b.NewRequest(t.Context(), http.MethodGet, "thing", nil)
			require.NoError(t, err)
			err = b.DoRequest(req, nil)
			require.Error(t, err)
			assert.Equal(t, tt.want, errors.GetCategory(err))
		})
	}
}

func TestBaseForge_DoRequestDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-Next-Page", "2")
		_, _ = w.Write([]byte(`{"name":"docs"}`))
	}))
	defer srv.Close()

	b := NewBaseForge(srv.Client(), srv.URL, "")
	req, err := b.NewRequest(t.Context(), http.MethodGet, "repo", nil)
	require.NoError(t, err)

	var out struct {
		Name string `json:"name"`
	}
	h, err := b.DoRequestWithHeaders(req, &out)
	require.NoError(t, err)
	assert.Equal(t, "docs", out.Name)
	assert.Equal(t, "2", h.Get("X-Next-Page"))
}

func TestBaseForge_BreakerOpensOnServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	b := NewBaseForge(srv.Client(), srv.URL, "")
	for range breakerFailures {
		req, err := b.NewRequest(t.Context(), http.MethodGet, "x", nil)
		require.NoError(t, err)
		require.Error(t, b.DoRequest(req, nil))
	}

	req, err := b.NewRequest(t.Context(), http.MethodGet, "x", nil)
	require.NoError(t, err)
	err = b.DoRequest(req, nil)
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(breakerFailures), hits.Load())
}

func TestBaseForge_BreakerIgnoresClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	b := NewBaseForge(srv.Client(), srv.URL, "")
	for range breakerFailures + 2 {
		req, err := b.NewRequest(t.Context(), http.MethodGet, "x", nil)
		require.NoError(t, err)
		err = b.DoRequest(req, nil)
		require.Error(t, err)
		assert.True(t, errors.HasCategory(err, errors.CategoryNotFound))
	}
}

func TestPaginatedFetchHelper(t *testing.T) {
	var seen []string
	got, err := PaginatedFetchHelper(t.Context(), "items?state=open", "page", "limit", 2,
		func(ep string) ([]int, bool, error) {
			seen = append(seen, ep)
			switch len(seen) {
			case 1:
				return []int{1, 2}, true, nil
			default:
				return []int{3}, false, nil
			}
		})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, got)
	assert.Equal(t, []string{"items?state=open&page=1&limit=2", "items?state=open&page=2&limit=2"}, seen)
}

func TestPaginatedFetchHelperFollowsShortPages(t *testing.T) {
	pages := [][]int{{1}, {2}, {3}}
	calls := 0
	got, err := PaginatedFetchHelper(t.Context(), "items", "page", "per_page", 100,
		func(string) ([]int, bool, error) {
			items := pages[calls]
			calls++
			return items, calls < len(pages), nil
		})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, got)
	assert.Equal(t, 3, calls)
}

func TestPaginatedFetchHelperStopsOnEmptyPage(t *testing.T) {
	calls := 0
	got, err := PaginatedFetchHelper(t.Context(), "items", "page", "per_page", 2,
		func(string) ([]int, bool, error) {
			calls++
			if calls == 1 {
				return []int{1, 2}, true, nil
			}
			return nil, true, nil
		})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, got)
	assert.Equal(t, 2, calls)
}

func TestHasNextPage(t *testing.T) {
	header := func(kv ...string) http.Header {
		h := http.Header{}
		for i := 0; i < len(kv); i += 2 {
			h.Set(kv[i], kv[i+1])
		}
		return h
	}
	tests := []struct {
		name  string
		h     http.Header
		items int
		want  bool
	}{
		{"link next on short page", header("Link", `<https://api/x?page=2>; rel="next", <https://api/x?page=5>; rel="last"`), 30, true},
		{"link without next on full page", header("Link", `<https://api/x?page=1>; rel="first"`), 100, false},
		{"has more header", header("X-HasMore", "true"), 30, true},
		{"has more false", header("X-HasMore", "false"), 100, false},
		{"gitlab next page", header("X-Next-Page", "3"), 20, true},
		{"gitlab last page", http.Header{"X-Next-Page": []string{""}}, 100, false},
		{"no headers full page", http.Header{}, 100, true},
		{"no headers short page", http.Header{}, 99, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, hasNextPage(tt.h, tt.items, 100))
		})
	}
}
