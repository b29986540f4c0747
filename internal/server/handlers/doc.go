// Package handlers contains the HTTP handlers of the docgate daemon.
//
// Webhook handlers turn forge notifications into queue submissions. Run
// handlers expose run history, summaries and manual triggers. Monitoring
// handlers report liveness. Every error is rendered through the
// foundation/errors HTTP adapter.
package handlers
