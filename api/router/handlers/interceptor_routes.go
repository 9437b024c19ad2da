package handlers

import (
	"github.com/go-chi/chi/v5"

	"gorged/models"
)

// InterceptorSource lists the compiled-in interceptors with their resolved
// enablement. *pipeline.Pipeline satisfies it.
type InterceptorSource interface {
	Interceptors() []models.InterceptorInfo
	Interceptor(id string) (models.InterceptorInfo, bool)
}

func RegisterInterceptorRoutes(r chi.Router, src InterceptorSource) {
	h := &interceptorHandlers{src: src}
	r.Route("/interceptors", func(subRouter chi.Router) {
		subRouter.Get("/", h.list)
		subRouter.Get("/{interceptorID}", h.get)
	})
}
