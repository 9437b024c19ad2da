package handlers

import (
	"github.com/go-chi/chi/v5"
)

func RegisterEventRoutes(r chi.Router) {
	r.Get("/events", GetInterceptEventsHandler)
}
