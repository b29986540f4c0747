package handlers

import (
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"

	"git.home.luguber.info/inful/docgate/internal/forge"
	"git.home.luguber.info/inful/docgate/internal/foundation/errors"
	"git.home.luguber.info/inful/docgate/internal/logfields"
	"git.home.luguber.info/inful/docgate/internal/queue"
	"git.home.luguber.info/inful/docgate/internal/trigger"
)

// maxWebhookBody bounds webhook payloads; forge payloads are far smaller.
const maxWebhookBody = 10 << 20

// WebhookHandlers turns forge webhooks into run submissions.
type WebhookHandlers struct {
	forges       ForgeLookup
	submitter    Submitter
	errorAdapter *errors.HTTPErrorAdapter
}

// NewWebhookHandlers constructs a new WebhookHandlers.
func NewWebhookHandlers(forges ForgeLookup, submitter Submitter) *WebhookHandlers {
	return &WebhookHandlers{
		forges:       forges,
		submitter:    submitter,
		errorAdapter: errors.NewHTTPErrorAdapter(slog.Default()),
	}
}

// WebhookResponse is returned for every accepted webhook.
type WebhookResponse struct {
	Decision   trigger.Decision `json:"decision"`
	RunID      string           `json:"run_id,omitempty"`
	Group      string           `json:"group,omitempty"`
	Superseded []string         `json:"superseded,omitempty"`
}

func fromSubmission(s queue.Submission) WebhookResponse {
	return WebhookResponse{Decision: s.Decision, RunID: s.RunID, Group: s.Group, Superseded: s.Superseded}
}

// HandleForgeWebhook returns the handler for one configured forge.
func (h *WebhookHandlers) HandleForgeWebhook(forgeName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client, fcfg, ok := h.forges.GetForge(forgeName)
		if !ok {
			h.errorAdapter.WriteErrorResponse(w, r, errors.NotFoundError("unknown forge").
				WithContext("forge", forgeName).
				Build())
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			h.errorAdapter.WriteErrorResponse(w, r, errors.ValidationError("failed to read webhook body").
				WithCause(err).
				Build())
			return
		}

		secret := ""
		if fcfg.Webhook != nil {
			secret = fcfg.Webhook.Secret
		}
		if !client.ValidateWebhook(body, forge.Signature(client, r.Header), secret) {
			h.errorAdapter.WriteErrorResponse(w, r, errors.AuthError("invalid webhook signature").
				WithContext("forge", forgeName).
				Build())
			return
		}

		eventType := forge.EventType(client, r.Header)
		log := slog.With(logfields.Forge(forgeName), logfields.Event(eventType))

		ev, err := client.ParseWebhookEvent(body, eventType)
		if stderrors.Is(err, forge.ErrUnsupportedEvent) {
			log.Debug("Webhook event ignored")
			h.respond(w, r, WebhookResponse{Decision: trigger.Decision{Reason: "event type " + eventType + " ignored"}})
			return
		}
		if err != nil {
			h.errorAdapter.WriteErrorResponse(w, r, err)
			return
		}

		if !fcfg.AllowsRepository(ev.Repository) {
			log.Info("Webhook for repository outside allow-list", logfields.Repository(ev.Repository))
			h.respond(w, r, WebhookResponse{Decision: trigger.Decision{Reason: "repository " + ev.Repository + " not configured"}})
			return
		}

		if len(ev.ChangedPaths) == 0 && ev.Number > 0 {
			paths, lerr := client.ListChangedFiles(r.Context(), ev.Repository, ev.Number)
			if lerr != nil {
				h.errorAdapter.WriteErrorResponse(w, r, errors.WrapError(lerr, errors.CategoryForge, "failed to list changed files").
					WithContext("forge", forgeName).
					WithContext("repository", ev.Repository).
					WithContext("number", ev.Number).
					Build())
				return
			}
			ev.ChangedPaths = paths
		}

		sub, err := h.submitter.Submit(r.Context(), *ev)
		if err != nil {
			h.errorAdapter.WriteErrorResponse(w, r, err)
			return
		}
		log.Info("Webhook processed",
			logfields.Repository(ev.Repository),
			logfields.ChangeRef(ev.ChangeRef),
			logfields.RunID(sub.RunID),
			slog.Bool("run", sub.Decision.Run))
		h.respond(w, r, fromSubmission(sub))
	}
}

func (h *WebhookHandlers) respond(w http.ResponseWriter, r *http.Request, resp WebhookResponse) {
	if err := writeJSONPretty(w, r, http.StatusAccepted, resp); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.WrapError(err, errors.CategoryInternal, "failed to write webhook response").Build())
	}
}
