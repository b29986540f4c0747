package httpserver

import (
	"net/http"
	"time"

	"git.home.luguber.info/inful/docgate/internal/server/handlers"
)

// Options wires the daemon's components into the HTTP servers.
type Options struct {
	Forges    handlers.ForgeLookup
	Submitter handlers.Submitter
	Runs      handlers.RunSource
	StartTime time.Time

	// MetricsHandler serves Prometheus metrics on the admin server when set.
	MetricsHandler http.Handler
}
