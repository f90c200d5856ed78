// Package httpapi serves the daemon's local HTTP surface: the OAuth
// redirect pair for the backup provider, the sync status, an on-demand
// backup trigger and Prometheus metrics.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrijs2005/carekeeper/internal/backup"
	"github.com/dmitrijs2005/carekeeper/internal/logging"
	"github.com/dmitrijs2005/carekeeper/internal/models"
)

// Service is the part of the orchestrator the HTTP surface needs.
type Service interface {
	AuthCodeURL() (string, error)
	CompleteAuth(ctx context.Context, state, code string) error
	Status() models.SyncStatus
	Backup(ctx context.Context) (backup.Result, error)
}

// NewRouter mounts:
//
//	GET  /oauth/start     redirect to the provider consent page
//	GET  /oauth/callback  finish the authorization-code flow
//	GET  /status          current SyncStatus as JSON
//	POST /backup          run a full backup and return its Result
//	GET  /metrics         Prometheus exposition (when metrics is non-nil)
func NewRouter(svc Service, metrics http.Handler, logger logging.Logger) http.Handler {
	h := &Handler{svc: svc, logger: logger.With("module", "httpapi")}

	r := chi.NewRouter()
	r.Use(chiMiddleware.Recoverer)
	r.Use(withRequestLogging(h.logger))

	r.Route("/oauth", func(r chi.Router) {
		r.Get("/start", h.StartAuth)
		r.Get("/callback", h.Callback)
	})
	r.Get("/status", h.Status)
	r.Post("/backup", h.Backup)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	return r
}
