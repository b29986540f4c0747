package forge

import (
	"context"
	"crypto/sha1" // #nosec G505 -- legacy webhook signatures
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"git.home.luguber.info/inful/docgate/internal/foundation/errors"
	"git.home.luguber.info/inful/docgate/internal/trigger"
)

const forgejoPageSize = 50

// ForgejoClient implements Client for Forgejo and Gitea.
type ForgejoClient struct {
	config  *Config
	apiURL  string
	baseURL string
	*BaseForge
}

// NewForgejoClient creates a new Forgejo client. Forgejo has no public
// default host, so the base URL is required.
func NewForgejoClient(fg *Config) (*ForgejoClient, error) {
	if fg == nil {
		return nil, errors.ConfigError("forgejo forge config is nil").Build()
	}
	apiURL, baseURL := fg.APIURL, fg.BaseURL
	if apiURL == "" && baseURL != "" {
		apiURL = baseURL + "/api/v1"
	}
	if apiURL == "" {
		return nil, errors.ConfigError("forgejo forge requires api_url or base_url").
			WithContext("forge", fg.Name).
			Build()
	}

	base := NewBaseForge(newHTTPClient30s(), apiURL, tokenFromConfig(fg))
	base.SetAuthHeaderPrefix("token ")

	return &ForgejoClient{
		config:    fg,
		apiURL:    apiURL,
		baseURL:   baseURL,
		BaseForge: base,
	}, nil
}

// GetType returns the forge type.
func (c *ForgejoClient) GetType() Type { return TypeForgejo }

// GetName returns the configured name.
func (c *ForgejoClient) GetName() string { return c.config.Name }

// Headers returns the Forgejo webhook headers, accepting Gitea names too.
func (c *ForgejoClient) Headers() WebhookHeaders {
	return WebhookHeaders{
		Event:     []string{"X-Forgejo-Event", "X-Gitea-Event"},
		Signature: []string{"X-Forgejo-Signature", "X-Gitea-Signature", "X-Hub-Signature-256"},
	}
}

// ValidateWebhook validates the Forgejo webhook signature. Forgejo sends a
// bare sha256 hex digest; prefixed and legacy sha1 forms are accepted too.
func (c *ForgejoClient) ValidateWebhook(payload []byte, signature string, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	if validPrefixedSignature(payload, signature, secret) {
		return true
	}
	switch len(signature) {
	case sha256.Size * 2:
		return validHMAC(sha256.New, payload, secret, signature)
	case sha1.Size * 2:
		return validHMAC(sha1.New, payload, secret, signature)
	default:
		return false
	}
}

type forgejoRepo struct {
	FullName string `json:"full_name"`
	CloneURL string `json:"clone_url"`
}

type forgejoPullRequestEvent struct {
	Action      string `json:"action"`
	Number      int    `json:"number"`
	PullRequest struct {
		Number int `json:"number"`
		Head   struct {
			SHA string `json:"sha"`
		} `json:"head"`
		Base struct {
			SHA string `json:"sha"`
		} `json:"base"`
	} `json:"pull_request"`
	Repository forgejoRepo `json:"repository"`
}

// ParseWebhookEvent parses a Forgejo pull_request webhook.
func (c *ForgejoClient) ParseWebhookEvent(payload []byte, eventType string) (*trigger.Event, error) {
	if eventType != "pull_request" {
		return nil, ErrUnsupportedEvent.WithContext("event", eventType)
	}
	var pr forgejoPullRequestEvent
	if err := json.Unmarshal(payload, &pr); err != nil {
		return nil, errors.WrapError(err, errors.CategoryValidation, ErrInvalidPayload.Message()).
			WithContext("forge", c.config.Name).
			Build()
	}
	number := pr.Number
	if number == 0 {
		number = pr.PullRequest.Number
	}
	if number == 0 || pr.Repository.FullName == "" {
		return nil, ErrInvalidPayload.WithContext("reason", "missing pull request number or repository")
	}
	action := pr.Action
	if action == "synchronized" {
		action = "synchronize"
	}

	return &trigger.Event{
		Kind:       trigger.KindPullRequest,
		Action:     action,
		Forge:      c.config.Name,
		Repository: pr.Repository.FullName,
		Number:     number,
		ChangeRef:  fmt.Sprintf("refs/pull/%d/head", number),
		HeadSHA:    pr.PullRequest.Head.SHA,
		BaseSHA:    pr.PullRequest.Base.SHA,
		CloneURL:   pr.Repository.CloneURL,
		ReceivedAt: time.Now(),
	}, nil
}

type forgejoFile struct {
	Filename         string `json:"filename"`
	PreviousFilename string `json:"previous_filename"`
}

// ListChangedFiles lists the files of a pull request.
func (c *ForgejoClient) ListChangedFiles(ctx context.Context, repo string, number int) ([]string, error) {
	endpoint := fmt.Sprintf("repos/%s/pulls/%d/files", repo, number)
	files, err := PaginatedFetchHelper(ctx, endpoint, "page", "limit", forgejoPageSize,
		func(ep string) ([]forgejoFile, bool, error) {
			req, err := c.NewRequest(ctx, http.MethodGet, ep, nil)
			if err != nil {
				return nil, false, err
			}
			var page []forgejoFile
			h, err := c.DoRequestWithHeaders(req, &page)
			if err != nil {
				return nil, false, err
			}
			return page, hasNextPage(h, len(page), forgejoPageSize), nil
		})
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, f := range files {
		paths = append(paths, f.Filename)
		if f.PreviousFilename != "" {
			paths = append(paths, f.PreviousFilename)
		}
	}
	return paths, nil
}

// SetCommitStatus posts a commit status.
func (c *ForgejoClient) SetCommitStatus(ctx context.Context, repo, sha string, status CommitStatus) error {
	body := map[string]string{
		"state":       string(status.State),
		"context":     status.Context,
		"description": truncateDescription(status.Description),
	}
	if status.TargetURL != "" {
		body["target_url"] = status.TargetURL
	}
	req, err := c.NewRequest(ctx, http.MethodPost, fmt.Sprintf("repos/%s/statuses/%s", repo, sha), body)
	if err != nil {
		return err
	}
	return c.DoRequest(req, nil)
}
