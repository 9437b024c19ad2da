package handlers

import (
	"github.com/go-chi/chi/v5"
)

// PauseController is the proxy's pause switch.
type PauseController interface {
	Paused() bool
	Set(paused bool) error
}

func RegisterPauseRoutes(r chi.Router, pause PauseController) {
	h := &pauseHandlers{pause: pause}
	r.Get("/pause", h.get)
	r.Put("/pause", h.put)
}
