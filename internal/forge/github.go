package forge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"git.home.luguber.info/inful/docgate/internal/foundation/errors"
	"git.home.luguber.info/inful/docgate/internal/trigger"
)

const githubPageSize = 100

// GitHubClient implements Client for GitHub.
type GitHubClient struct {
	config  *Config
	apiURL  string
	baseURL string
	*BaseForge
}

// NewGitHubClient creates a new GitHub client.
func NewGitHubClient(fg *Config) (*GitHubClient, error) {
	if fg == nil {
		return nil, errors.ConfigError("github forge config is nil").Build()
	}
	apiURL, baseURL := withDefaults(fg.APIURL, fg.BaseURL, "https://api.github.com", "https://github.com")

	base := NewBaseForge(newHTTPClient30s(), apiURL, tokenFromConfig(fg))
	base.SetCustomHeader("Accept", "application/vnd.github+json")
	base.SetCustomHeader("X-GitHub-Api-Version", "2022-11-28")

	return &GitHubClient{
		config:    fg,
		apiURL:    apiURL,
		baseURL:   baseURL,
		BaseForge: base,
	}, nil
}

// GetType returns the forge type.
func (c *GitHubClient) GetType() Type { return TypeGitHub }

// GetName returns the configured name.
func (c *GitHubClient) GetName() string { return c.config.Name }

// Headers returns the GitHub webhook headers.
func (c *GitHubClient) Headers() WebhookHeaders {
	return WebhookHeaders{
		Event:     []string{"X-GitHub-Event"},
		Signature: []string{"X-Hub-Signature-256", "X-Hub-Signature"},
	}
}

// ValidateWebhook validates the GitHub webhook signature.
func (c *GitHubClient) ValidateWebhook(payload []byte, signature string, secret string) bool {
	return validPrefixedSignature(payload, signature, secret)
}

type githubRepo struct {
	FullName string `json:"full_name"`
	CloneURL string `json:"clone_url"`
}

type githubPullRequestEvent struct {
	Action      string `json:"action"`
	Number      int    `json:"number"`
	PullRequest struct {
		Number int `json:"number"`
		Head   struct {
			SHA  string     `json:"sha"`
			Ref  string     `json:"ref"`
			Repo githubRepo `json:"repo"`
		} `json:"head"`
		Base struct {
			SHA string `json:"sha"`
			Ref string `json:"ref"`
		} `json:"base"`
	} `json:"pull_request"`
	Repository githubRepo `json:"repository"`
}

// ParseWebhookEvent parses a GitHub pull_request webhook.
func (c *GitHubClient) ParseWebhookEvent(payload []byte, eventType string) (*trigger.Event, error) {
	if eventType != "pull_request" {
		return nil, ErrUnsupportedEvent.WithContext("event", eventType)
	}
	var pr githubPullRequestEvent
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

	return &trigger.Event{
		Kind:       trigger.KindPullRequest,
		Action:     pr.Action,
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

type githubFile struct {
	Filename         string `json:"filename"`
	PreviousFilename string `json:"previous_filename"`
}

// ListChangedFiles lists the files of a pull request. Renames report both
// the old and the new path so moving a file out of a watched tree still
// triggers.
func (c *GitHubClient) ListChangedFiles(ctx context.Context, repo string, number int) ([]string, error) {
	endpoint := fmt.Sprintf("repos/%s/pulls/%d/files", repo, number)
	files, err := PaginatedFetchHelper(ctx, endpoint, "page", "per_page", githubPageSize,
		func(ep string) ([]githubFile, bool, error) {
			req, err := c.NewRequest(ctx, http.MethodGet, ep, nil)
			if err != nil {
				return nil, false, err
			}
			var page []githubFile
			h, err := c.DoRequestWithHeaders(req, &page)
			if err != nil {
				return nil, false, err
			}
			return page, hasNextPage(h, len(page), githubPageSize), nil
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
func (c *GitHubClient) SetCommitStatus(ctx context.Context, repo, sha string, status CommitStatus) error {
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
