package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"gorged/api/router/handlers"
	"gorged/logger"
	"gorged/metrics"
)

// Services are the running components the admin API exposes.
type Services struct {
	Interceptors handlers.InterceptorSource
	Pause        handlers.PauseController
	Metrics      *metrics.Recorder
}

// NewRouter creates the API router. All registered paths are relative to the
// /api base path.
func NewRouter(svc Services) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	handlers.RegisterHealthRoutes(router)
	handlers.RegisterVersionRoutes(router)
	if svc.Interceptors != nil {
		handlers.RegisterInterceptorRoutes(router, svc.Interceptors)
	}
	if svc.Pause != nil {
		handlers.RegisterPauseRoutes(router, svc.Pause)
	}
	handlers.RegisterEventRoutes(router)

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		logger.Error("API SUB-ROUTER CATCH-ALL: Unhandled route relative to /api: %s %s", r.Method, r.URL.Path)
		http.NotFound(w, r)
	})

	return router
}

// NewHandler mounts the API under /api and the prometheus exposition under
// /metrics.
func NewHandler(svc Services) http.Handler {
	mainMux := chi.NewRouter()
	mainMux.Mount("/api", NewRouter(svc))
	if svc.Metrics != nil {
		mainMux.Handle("/metrics", svc.Metrics.Handler())
	}
	return mainMux
}
