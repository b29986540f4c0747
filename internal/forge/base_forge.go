package forge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/sony/gobreaker"

	"git.home.luguber.info/inful/docgate/internal/foundation/errors"
)

const userAgent = "docgate/1.0"

// BaseForge provides common HTTP operations for forge clients: request
// building, auth headers, JSON decoding, classified errors and a circuit
// breaker shared by every call of one client.
type BaseForge struct {
	httpClient *http.Client
	apiURL     string
	token      string
	breaker    *gobreaker.CircuitBreaker

	// Forge-specific customization hooks
	authHeaderPrefix string // "Bearer " for GitHub/GitLab, "token " for Forgejo
	customHeaders    map[string]string
}

// NewBaseForge creates a BaseForge with common forge HTTP client settings.
func NewBaseForge(httpClient *http.Client, apiURL, token string) *BaseForge {
	return &BaseForge{
		httpClient:       httpClient,
		apiURL:           apiURL,
		token:            token,
		breaker:          newBreaker(apiURL),
		authHeaderPrefix: "Bearer ",
		customHeaders:    make(map[string]string),
	}
}

// SetAuthHeaderPrefix customizes the authorization header format (e.g., "token " for Forgejo).
func (b *BaseForge) SetAuthHeaderPrefix(prefix string) {
	b.authHeaderPrefix = prefix
}

// SetCustomHeader sets forge-specific headers (e.g., GitHub API version).
func (b *BaseForge) SetCustomHeader(key, value string) {
	b.customHeaders[key] = value
}

// NewRequest creates an HTTP request relative to the API URL. Query strings
// in endpoint are preserved.
func (b *BaseForge) NewRequest(ctx context.Context, method, endpoint string, body any) (*http.Request, error) {
	cleanEndpoint := strings.TrimPrefix(endpoint, "/")

	var rawQuery string
	if idx := strings.Index(cleanEndpoint, "?"); idx != -1 {
		rawQuery = cleanEndpoint[idx+1:]
		cleanEndpoint = cleanEndpoint[:idx]
	}

	u, err := url.Parse(b.apiURL)
	if err != nil {
		return nil, errors.ForgeError("failed to parse API URL").
			WithCause(err).
			WithContext("api_url", b.apiURL).
			Build()
	}

	// Escaped segments (GitLab project paths) must survive the join.
	basePath := strings.TrimSuffix(u.EscapedPath(), "/")
	joined := path.Join(basePath, cleanEndpoint)
	if unescaped, perr := url.PathUnescape(joined); perr == nil {
		u.Path = unescaped
		u.RawPath = joined
	} else {
		u.Path = joined
	}
	if rawQuery != "" {
		u.RawQuery = rawQuery
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		jsonBody, merr := json.Marshal(body)
		if merr != nil {
			return nil, errors.ForgeError("failed to marshal request body").
				WithCause(merr).
				Build()
		}
		reader = bytes.NewReader(jsonBody)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, errors.ForgeError("failed to create request").
			WithCause(err).
			WithContext("method", method).
			WithContext("url", u.String()).
			Build()
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if b.token != "" {
		req.Header.Set("Authorization", b.authHeaderPrefix+b.token)
	}
	req.Header.Set("User-Agent", userAgent)
	for key, value := range b.customHeaders {
		req.Header.Set(key, value)
	}

	return req, nil
}

// DoRequest executes an HTTP request and decodes the response.
func (b *BaseForge) DoRequest(req *http.Request, result any) error {
	_, err := b.DoRequestWithHeaders(req, result)
	return err
}

// DoRequestWithHeaders is like DoRequest but also returns response headers.
// Useful for pagination that uses Link headers (GitHub).
func (b *BaseForge) DoRequestWithHeaders(req *http.Request, result any) (http.Header, error) {
	out, err := b.breaker.Execute(func() (any, error) {
		return b.do(req, result)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, ErrCircuitOpen.WithContext("url", redactQuery(req.URL))
		}
		return nil, err
	}
	h, _ := out.(http.Header)
	return h, nil
}

func (b *BaseForge) do(req *http.Request, result any) (http.Header, error) {
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, errors.NetworkError("failed to execute forge request").
			WithCause(err).
			WithContext("method", req.Method).
			WithContext("url", redactQuery(req.URL)).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		limitedBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		bodyStr := strings.ReplaceAll(string(limitedBody), "\n", " ")

		category := errors.CategoryForge
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			category = errors.CategoryAuth
		case http.StatusNotFound:
			category = errors.CategoryNotFound
		case http.StatusUnprocessableEntity, http.StatusBadRequest:
			category = errors.CategoryValidation
		}

		return nil, errors.NewError(category, fmt.Sprintf("forge API error: %s", resp.Status)).
			WithContext("status", resp.Status).
			WithContext("code", resp.StatusCode).
			WithContext("url", redactQuery(req.URL)).
			WithContext("response", bodyStr).
			Build()
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil && err != io.EOF {
			return nil, errors.ForgeError("failed to decode response").
				WithCause(err).
				Build()
		}
	}

	return resp.Header, nil
}

func redactQuery(u *url.URL) string {
	cp := *u
	cp.RawQuery = ""
	return cp.String()
}

// hasNextPage reports whether a list response has a following page. Link,
// X-HasMore and X-Next-Page headers win over item counting because servers
// may clamp the requested page size.
func hasNextPage(h http.Header, items, pageSize int) bool {
	if link := h.Get("Link"); link != "" {
		return strings.Contains(link, `rel="next"`)
	}
	if more := h.Get("X-HasMore"); more != "" {
		return more == "true"
	}
	if _, ok := h["X-Next-Page"]; ok {
		return h.Get("X-Next-Page") != ""
	}
	return items >= pageSize
}

// PaginatedFetchHelper performs paginated API requests. fetchPage receives
// the full endpoint for one page and returns its items and whether more
// pages follow; fetching stops only when it reports no more pages or an
// empty page.
func PaginatedFetchHelper[T any](
	ctx context.Context,
	baseEndpoint string,
	pageParam string,
	limitParam string,
	pageSize int,
	fetchPage func(endpoint string) ([]T, bool, error),
) ([]T, error) {
	var allResults []T
	page := 1

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		sep := "?"
		if strings.Contains(baseEndpoint, "?") {
			sep = "&"
		}
		endpoint := fmt.Sprintf("%s%s%s=%d&%s=%d", baseEndpoint, sep, pageParam, page, limitParam, pageSize)

		pageResults, hasMore, err := fetchPage(endpoint)
		if err != nil {
			return nil, err
		}

		allResults = append(allResults, pageResults...)

		if !hasMore || len(pageResults) == 0 {
			break
		}

		page++
	}

	return allResults, nil
}
