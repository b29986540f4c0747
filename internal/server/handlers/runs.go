package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"git.home.luguber.info/inful/docgate/internal/check"
	"git.home.luguber.info/inful/docgate/internal/foundation/errors"
	"git.home.luguber.info/inful/docgate/internal/trigger"
)

// RunHandlers serves run history and manual triggers.
type RunHandlers struct {
	runs         RunSource
	submitter    Submitter
	errorAdapter *errors.HTTPErrorAdapter
}

// NewRunHandlers constructs a new RunHandlers.
func NewRunHandlers(runs RunSource, submitter Submitter) *RunHandlers {
	return &RunHandlers{
		runs:         runs,
		submitter:    submitter,
		errorAdapter: errors.NewHTTPErrorAdapter(slog.Default()),
	}
}

// RunList is the response of GET /runs.
type RunList struct {
	Runs  []*check.Report `json:"runs"`
	Total int             `json:"total"`
}

// HandleList serves GET /runs. ?limit=N caps the result.
func (h *RunHandlers) HandleList(w http.ResponseWriter, r *http.Request) {
	runs := h.runs.List()
	total := len(runs)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.errorAdapter.WriteErrorResponse(w, r, errors.ValidationError("invalid limit").
				WithContext("limit", raw).
				Build())
			return
		}
		if n < len(runs) {
			runs = runs[:n]
		}
	}
	h.write(w, r, http.StatusOK, RunList{Runs: runs, Total: total})
}

// HandleGet serves GET /runs/{id}.
func (h *RunHandlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.lookup(w, r)
	if !ok {
		return
	}
	h.write(w, r, http.StatusOK, rep)
}

// HandleSummary serves GET /runs/{id}/summary as HTML, or Markdown when the
// client asks for text/markdown.
func (h *RunHandlers) HandleSummary(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if r.Header.Get("Accept") == "text/markdown" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = io.WriteString(w, rep.Markdown())
		return
	}
	page, err := rep.HTML()
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.WrapError(err, errors.CategoryInternal, "failed to render summary").Build())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

// ManualRunRequest is the body of POST /runs.
type ManualRunRequest struct {
	Ref          string   `json:"ref"`
	Repository   string   `json:"repository,omitempty"`
	HeadSHA      string   `json:"head_sha,omitempty"`
	CloneURL     string   `json:"clone_url,omitempty"`
	ChangedPaths []string `json:"changed_paths,omitempty"`
	Force        bool     `json:"force,omitempty"`
}

// HandleTrigger serves POST /runs.
func (h *RunHandlers) HandleTrigger(w http.ResponseWriter, r *http.Request) {
	var req ManualRunRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.ValidationError("invalid JSON payload").WithCause(err).Build())
		return
	}
	if req.Ref == "" {
		h.errorAdapter.WriteErrorResponse(w, r, errors.ValidationError("ref is required").Build())
		return
	}
	if req.CloneURL == "" {
		h.errorAdapter.WriteErrorResponse(w, r, errors.ValidationError("clone_url is required").Build())
		return
	}

	sub, err := h.submitter.Submit(r.Context(), trigger.Event{
		Kind:         trigger.KindManual,
		Repository:   req.Repository,
		ChangeRef:    req.Ref,
		HeadSHA:      req.HeadSHA,
		CloneURL:     req.CloneURL,
		ChangedPaths: req.ChangedPaths,
		Force:        req.Force,
		ReceivedAt:   time.Now(),
	})
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	h.write(w, r, http.StatusAccepted, fromSubmission(sub))
}

func (h *RunHandlers) lookup(w http.ResponseWriter, r *http.Request) (*check.Report, bool) {
	id := chi.URLParam(r, "id")
	rep, ok := h.runs.Snapshot(id)
	if !ok {
		h.errorAdapter.WriteErrorResponse(w, r, errors.NotFoundError("run not found").
			WithContext("run_id", id).
			Build())
		return nil, false
	}
	return rep, true
}

func (h *RunHandlers) write(w http.ResponseWriter, r *http.Request, status int, v any) {
	if err := writeJSONPretty(w, r, status, v); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.WrapError(err, errors.CategoryInternal, "failed to write response").Build())
	}
}
