package forge

import (
	"context"

	"git.home.luguber.info/inful/docgate/internal/config"
	"git.home.luguber.info/inful/docgate/internal/trigger"
)

// Type re-exports config.ForgeType for convenience within forge package.
type Type = config.ForgeType

const (
	TypeGitHub  Type = config.ForgeGitHub
	TypeGitLab  Type = config.ForgeGitLab
	TypeForgejo Type = config.ForgeForgejo
)

// Config is the forge instance configuration.
type Config = config.ForgeConfig

// StatusState is the state of a commit status.
type StatusState string

const (
	StatusPending StatusState = "pending"
	StatusSuccess StatusState = "success"
	StatusFailure StatusState = "failure"
	StatusError   StatusState = "error"
)

// CommitStatus is posted against the head commit of a change.
type CommitStatus struct {
	State       StatusState
	Context     string
	Description string
	TargetURL   string
}

// WebhookHeaders names the request headers a forge uses for webhooks.
type WebhookHeaders struct {
	Event     []string // event type, first present wins
	Signature []string // signature or token, first present wins
}

// Client is the contract for forge platform clients.
type Client interface {
	// GetType returns the type of this forge.
	GetType() Type

	// GetName returns the configured name of this forge instance.
	GetName() string

	// Headers returns the webhook header names of this forge.
	Headers() WebhookHeaders

	// ValidateWebhook validates a webhook request signature.
	ValidateWebhook(payload []byte, signature string, secret string) bool

	// ParseWebhookEvent turns a pull or merge request webhook into a
	// trigger event. Other event types return ErrUnsupportedEvent.
	ParseWebhookEvent(payload []byte, eventType string) (*trigger.Event, error)

	// ListChangedFiles returns the paths touched by a pull or merge request.
	ListChangedFiles(ctx context.Context, repo string, number int) ([]string, error)

	// SetCommitStatus posts a status on a commit.
	SetCommitStatus(ctx context.Context, repo, sha string, status CommitStatus) error
}

// descriptionLimit is the longest status description all forges accept.
const descriptionLimit = 140

func truncateDescription(s string) string {
	r := []rune(s)
	if len(r) <= descriptionLimit {
		return s
	}
	return string(r[:descriptionLimit-1]) + "…"
}
