package trigger

import "time"

// Event kinds accepted by the trigger rule.
const (
	KindPullRequest = "pull_request"
	KindManual      = "manual"
)

// Event is a proposed-change notification normalised across forges.
type Event struct {
	Kind         string    `json:"kind"`
	Action       string    `json:"action,omitempty"`
	Forge        string    `json:"forge,omitempty"`
	Repository   string    `json:"repository,omitempty"`
	Number       int       `json:"number,omitempty"`
	ChangeRef    string    `json:"change_ref"`
	HeadSHA      string    `json:"head_sha,omitempty"`
	BaseSHA      string    `json:"base_sha,omitempty"`
	CloneURL     string    `json:"clone_url,omitempty"`
	ChangedPaths []string  `json:"changed_paths,omitempty"`
	Force        bool      `json:"force,omitempty"`
	ReceivedAt   time.Time `json:"received_at"`
}

// Scope is the forge-qualified repository of the change, or empty for local
// runs.
func (e Event) Scope() string {
	switch {
	case e.Repository == "":
		return ""
	case e.Forge == "":
		return e.Repository
	default:
		return e.Forge + "/" + e.Repository
	}
}
