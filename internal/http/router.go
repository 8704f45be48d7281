package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/obstacle-panel/backend/internal/http/handlers"
)

// NewRouter builds full HTTP routing tree for backend API and static frontend.
// metricsHandler may be nil.
func NewRouter(api *handlers.API, metricsHandler http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RecoverJSON)
	r.Use(StripIngressPrefix)
	r.Use(RequestLogger(api))

	// Long-lived connection; kept out of the request timeout.
	r.Get("/api/view/stream", api.ViewStream)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(20 * time.Second))

		r.Get("/healthz", api.Health)
		if metricsHandler != nil {
			r.Method(http.MethodGet, "/metrics", metricsHandler)
		}
		r.Route("/api", func(apiRouter chi.Router) {
			apiRouter.Get("/view", api.View)
			apiRouter.Post("/refresh", api.Refresh)

			apiRouter.Get("/snapshot", api.Snapshot)
			apiRouter.Post("/snapshot/reset", api.ResetSnapshot)

			apiRouter.Post("/leds/{index}/toggle", func(w http.ResponseWriter, r *http.Request) {
				api.ToggleLED(w, r, chi.URLParam(r, "index"))
			})
			apiRouter.Put("/leds/{index}", func(w http.ResponseWriter, r *http.Request) {
				api.SetLED(w, r, chi.URLParam(r, "index"))
			})
			apiRouter.Put("/foco", api.SetFoco)
			apiRouter.Post("/sensor/toggle", api.ToggleSensor)
			apiRouter.Post("/counter/reset", api.ResetCounter)
			apiRouter.Get("/busy", api.Busy)

			apiRouter.Post("/export", api.Export)
		})

		r.Get("/*", api.Static)
		r.Get("/", api.Static)
	})
	return r
}

// RunServer starts and gracefully stops HTTP server with context cancellation.
func RunServer(ctx context.Context, server *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil {
			logger.Error("http server failed", "err", err)
			return err
		}
		return nil
	}
}
