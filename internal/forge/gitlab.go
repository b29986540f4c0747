package forge

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"git.home.luguber.info/inful/docgate/internal/foundation/errors"
	"git.home.luguber.info/inful/docgate/internal/trigger"
)

const gitlabPageSize = 100

// GitLabClient implements Client for GitLab.
type GitLabClient struct {
	config  *Config
	apiURL  string
	baseURL string
	*BaseForge
}

// NewGitLabClient creates a new GitLab client.
func NewGitLabClient(fg *Config) (*GitLabClient, error) {
	if fg == nil {
		return nil, errors.ConfigError("gitlab forge config is nil").Build()
	}
	apiURL, baseURL := withDefaults(fg.APIURL, fg.BaseURL, "https://gitlab.com/api/v4", "https://gitlab.com")

	return &GitLabClient{
		config:    fg,
		apiURL:    apiURL,
		baseURL:   baseURL,
		BaseForge: NewBaseForge(newHTTPClient30s(), apiURL, tokenFromConfig(fg)),
	}, nil
}

// GetType returns the forge type.
func (c *GitLabClient) GetType() Type { return TypeGitLab }

// GetName returns the configured name.
func (c *GitLabClient) GetName() string { return c.config.Name }

// Headers returns the GitLab webhook headers.
func (c *GitLabClient) Headers() WebhookHeaders {
	return WebhookHeaders{
		Event:     []string{"X-Gitlab-Event"},
		Signature: []string{"X-Gitlab-Token"},
	}
}

// ValidateWebhook compares the X-Gitlab-Token header with the secret.
func (c *GitLabClient) ValidateWebhook(_ []byte, signature string, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(signature), []byte(secret)) == 1
}

type gitlabMergeRequestEvent struct {
	ObjectKind string `json:"object_kind"`
	Project    struct {
		PathWithNamespace string `json:"path_with_namespace"`
		GitHTTPURL        string `json:"git_http_url"`
	} `json:"project"`
	ObjectAttributes struct {
		IID        int    `json:"iid"`
		Action     string `json:"action"`
		LastCommit struct {
			ID string `json:"id"`
		} `json:"last_commit"`
		DiffRefs struct {
			BaseSHA string `json:"base_sha"`
			HeadSHA string `json:"head_sha"`
		} `json:"diff_refs"`
	} `json:"object_attributes"`
}

// gitlabActions maps merge request actions onto the pull request vocabulary
// trigger rules are written in.
var gitlabActions = map[string]string{
	"open":   "opened",
	"update": "synchronize",
	"reopen": "reopened",
	"close":  "closed",
	"merge":  "merged",
}

// ParseWebhookEvent parses a GitLab "Merge Request Hook" webhook.
func (c *GitLabClient) ParseWebhookEvent(payload []byte, eventType string) (*trigger.Event, error) {
	if eventType != "Merge Request Hook" && eventType != "merge_request" {
		return nil, ErrUnsupportedEvent.WithContext("event", eventType)
	}
	var mr gitlabMergeRequestEvent
	if err := json.Unmarshal(payload, &mr); err != nil {
		return nil, errors.WrapError(err, errors.CategoryValidation, ErrInvalidPayload.Message()).
			WithContext("forge", c.config.Name).
			Build()
	}
	attrs := mr.ObjectAttributes
	if attrs.IID == 0 || mr.Project.PathWithNamespace == "" {
		return nil, ErrInvalidPayload.WithContext("reason", "missing merge request iid or project")
	}

	action := attrs.Action
	if mapped, ok := gitlabActions[action]; ok {
		action = mapped
	}
	head := attrs.LastCommit.ID
	if head == "" {
		head = attrs.DiffRefs.HeadSHA
	}

	return &trigger.Event{
		Kind:       trigger.KindPullRequest,
		Action:     action,
		Forge:      c.config.Name,
		Repository: mr.Project.PathWithNamespace,
		Number:     attrs.IID,
		ChangeRef:  fmt.Sprintf("refs/merge-requests/%d/head", attrs.IID),
		HeadSHA:    head,
		BaseSHA:    attrs.DiffRefs.BaseSHA,
		CloneURL:   mr.Project.GitHTTPURL,
		ReceivedAt: time.Now(),
	}, nil
}

type gitlabDiff struct {
	OldPath string `json:"old_path"`
	NewPath string `json:"new_path"`
}

// ListChangedFiles lists the files of a merge request.
func (c *GitLabClient) ListChangedFiles(ctx context.Context, repo string, number int) ([]string, error) {
	endpoint := fmt.Sprintf("projects/%s/merge_requests/%d/diffs", url.PathEscape(repo), number)
	diffs, err := PaginatedFetchHelper(ctx, endpoint, "page", "per_page", gitlabPageSize,
		func(ep string) ([]gitlabDiff, bool, error) {
			req, err := c.NewRequest(ctx, http.MethodGet, ep, nil)
			if err != nil {
				return nil, false, err
			}
			var page []gitlabDiff
			h, err := c.DoRequestWithHeaders(req, &page)
			if err != nil {
				return nil, false, err
			}
			return page, hasNextPage(h, len(page), gitlabPageSize), nil
		})
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, d := range diffs {
		paths = append(paths, d.NewPath)
		if d.OldPath != "" && d.OldPath != d.NewPath {
			paths = append(paths, d.OldPath)
		}
	}
	return paths, nil
}

func gitlabState(s StatusState) string {
	switch s {
	case StatusFailure, StatusError:
		return "failed"
	default:
		return string(s)
	}
}

// SetCommitStatus posts a commit status.
func (c *GitLabClient) SetCommitStatus(ctx context.Context, repo, sha string, status CommitStatus) error {
	body := map[string]string{
		"state":       gitlabState(status.State),
		"name":        status.Context,
		"description": truncateDescription(status.Description),
	}
	if status.TargetURL != "" {
		body["target_url"] = status.TargetURL
	}
	endpoint := fmt.Sprintf("projects/%s/statuses/%s", url.PathEscape(repo), sha)
	req, err := c.NewRequest(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return err
	}
	return c.DoRequest(req, nil)
}
