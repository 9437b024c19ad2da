package handlers

import (
	"encoding/json"
	"net/http"

	"gorged/logger"
	"gorged/models"
)

type pauseHandlers struct {
	pause PauseController
}

// @Summary Get the pause state
// @Tags Pause
// @Produce json
// @Success 200 {object} models.PauseState
// @Router /pause [get]
func (h *pauseHandlers) get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.PauseState{Paused: h.pause.Paused()})
}

// put pauses or resumes rewriting. While paused every response is forwarded
// unchanged.
// @Summary Pause or resume rewriting
// @Tags Pause
// @Accept json
// @Produce json
// @Param state body models.PauseState true "Desired state"
// @Success 200 {object} models.PauseState
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /pause [put]
func (h *pauseHandlers) put(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req struct {
		Paused *bool `json:"paused"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	if req.Paused == nil {
		writeError(w, http.StatusBadRequest, "Field 'paused' is required")
		return
	}

	if err := h.pause.Set(*req.Paused); err != nil {
		logger.Error("SetPause: persisting pause state: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to persist pause state")
		return
	}
	logger.Info("Proxy rewriting paused=%t via API", *req.Paused)
	writeJSON(w, http.StatusOK, models.PauseState{Paused: h.pause.Paused()})
}
