package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"git.home.luguber.info/inful/docgate/internal/config"
	derrors "git.home.luguber.info/inful/docgate/internal/foundation/errors"
	"git.home.luguber.info/inful/docgate/internal/logfields"
	handlers "git.home.luguber.info/inful/docgate/internal/server/handlers"
	smw "git.home.luguber.info/inful/docgate/internal/server/middleware"
)

// Server manages the webhook and admin HTTP endpoints.
type Server struct {
	webhookServer *http.Server
	adminServer   *http.Server
	adminAddr     string
	cfg           *config.Config
	opts          Options
	errorAdapter  *derrors.HTTPErrorAdapter

	monitoringHandlers *handlers.MonitoringHandlers
	runHandlers        *handlers.RunHandlers
	webhookHandlers    *handlers.WebhookHandlers

	mchain func(http.Handler) http.Handler
}

// New constructs a new HTTP server wiring instance.
func New(cfg *config.Config, opts Options) *Server {
	if opts.StartTime.IsZero() {
		opts.StartTime = time.Now()
	}
	s := &Server{
		cfg:          cfg,
		opts:         opts,
		errorAdapter: derrors.NewHTTPErrorAdapter(slog.Default()),
	}
	s.monitoringHandlers = handlers.NewMonitoringHandlers(opts.Runs, opts.StartTime)
	s.runHandlers = handlers.NewRunHandlers(opts.Runs, opts.Submitter)
	s.webhookHandlers = handlers.NewWebhookHandlers(opts.Forges, opts.Submitter)
	s.mchain = smw.Chain(slog.Default(), s.errorAdapter)
	return s
}

func normalizeWebhookPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		return "/" + p
	}
	return p
}

func (s *Server) baseRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.mchain)
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		s.errorAdapter.WriteErrorResponse(w, req, derrors.NotFoundError("route not found").
			WithContext("path", req.URL.Path).
			Build())
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		s.errorAdapter.WriteErrorResponse(w, req, derrors.ValidationError("method not allowed").
			WithContext("method", req.Method).
			Build())
	})
	return r
}

// WebhookRouter routes each configured forge's webhook path.
func (s *Server) WebhookRouter() (http.Handler, error) {
	r := s.baseRouter()
	r.Get("/health", s.monitoringHandlers.HandleHealthCheck)

	seen := map[string]string{}
	for _, forgeCfg := range s.cfg.Forges {
		if forgeCfg == nil || forgeCfg.Webhook == nil {
			continue
		}
		path := normalizeWebhookPath(forgeCfg.Webhook.Path)
		if path == "" {
			path = "/webhooks/" + forgeCfg.Name
		}
		if prev, ok := seen[path]; ok {
			return nil, fmt.Errorf("duplicate webhook path %q for forges %q and %q", path, prev, forgeCfg.Name)
		}
		seen[path] = forgeCfg.Name
		r.Post(path, s.webhookHandlers.HandleForgeWebhook(forgeCfg.Name))
	}
	return r, nil
}

// AdminRouter routes run inspection, manual triggers and metrics.
func (s *Server) AdminRouter() http.Handler {
	r := s.baseRouter()
	r.Get("/health", s.monitoringHandlers.HandleHealthCheck)
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", s.runHandlers.HandleList)
		r.With(smw.RequireBearerToken(s.cfg.Daemon.HTTP.AdminToken, s.errorAdapter)).Post("/", s.runHandlers.HandleTrigger)
		r.Get("/{id}", s.runHandlers.HandleGet)
		r.Get("/{id}/summary", s.runHandlers.HandleSummary)
	})
	if s.opts.MetricsHandler != nil && s.cfg.Monitoring.Metrics.Enabled {
		path := s.cfg.Monitoring.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, s.opts.MetricsHandler)
	}
	return r
}

// Start binds both ports before serving so a port conflict fails fast.
func (s *Server) Start(ctx context.Context) error {
	webhook, err := s.WebhookRouter()
	if err != nil {
		return err
	}

	type preBind struct {
		name string
		addr string
		ln   net.Listener
	}
	h := s.cfg.Daemon.HTTP
	binds := []preBind{
		{name: "webhook", addr: net.JoinHostPort(h.WebhookAddress, strconv.Itoa(h.WebhookPort))},
		{name: "admin", addr: net.JoinHostPort(h.AdminAddress, strconv.Itoa(h.AdminPort))},
	}
	var bindErrs []error
	lc := net.ListenConfig{}
	for i := range binds {
		ln, lerr := lc.Listen(ctx, "tcp", binds[i].addr)
		if lerr != nil {
			bindErrs = append(bindErrs, fmt.Errorf("%s listener %s: %w", binds[i].name, binds[i].addr, lerr))
			continue
		}
		binds[i].ln = ln
	}
	if len(bindErrs) > 0 {
		for _, b := range binds {
			if b.ln != nil {
				_ = b.ln.Close()
			}
		}
		return derrors.DaemonError("http startup failed").WithCause(errors.Join(bindErrs...)).Build()
	}

	s.webhookServer = &http.Server{Handler: webhook, ReadHeaderTimeout: 10 * time.Second, ReadTimeout: 30 * time.Second, WriteTimeout: 30 * time.Second, IdleTimeout: 60 * time.Second}
	s.adminServer = &http.Server{Handler: s.AdminRouter(), ReadHeaderTimeout: 10 * time.Second, ReadTimeout: 30 * time.Second, WriteTimeout: 30 * time.Second, IdleTimeout: 120 * time.Second}
	s.adminAddr = binds[1].ln.Addr().String()
	s.serve("webhook", s.webhookServer, binds[0].ln)
	s.serve("admin", s.adminServer, binds[1].ln)

	slog.Info("HTTP servers started",
		slog.String("webhook_addr", binds[0].ln.Addr().String()),
		slog.String("admin_addr", binds[1].ln.Addr().String()))
	return nil
}

// Stop gracefully shuts down both servers.
func (s *Server) Stop(ctx context.Context) error {
	var errs []error
	if s.adminServer != nil {
		if err := s.adminServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("admin server shutdown: %w", err))
		}
	}
	if s.webhookServer != nil {
		if err := s.webhookServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("webhook server shutdown: %w", err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	slog.Info("HTTP servers stopped")
	return nil
}

func (s *Server) serve(kind string, srv *http.Server, ln net.Listener) {
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error(fmt.Sprintf("%s server error", kind), logfields.Error(err))
		}
	}()
}
