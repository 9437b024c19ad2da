package handlers

import (
	"net/http"
	"strconv"

	"gorged/database"
	"gorged/logger"
	"gorged/models"
)

// GetInterceptEventsHandler lists recent interceptor runs, newest first.
// @Summary List intercept events
// @Tags Events
// @Produce json
// @Param interceptor_id query string false "Filter by interceptor id"
// @Param outcome query string false "applied or failed"
// @Param limit query int false "Maximum number of events (default 100, max 1000)"
// @Success 200 {array} models.InterceptEvent
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /events [get]
func GetInterceptEventsHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filters := models.InterceptEventFilters{
		InterceptorID: query.Get("interceptor_id"),
		Outcome:       query.Get("outcome"),
	}
	switch filters.Outcome {
	case "", models.OutcomeApplied, models.OutcomeFailed:
	default:
		writeError(w, http.StatusBadRequest, "Invalid 'outcome' parameter: "+filters.Outcome)
		return
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, "Invalid 'limit' parameter: "+raw)
			return
		}
		filters.Limit = limit
	}

	events, err := database.GetRecentInterceptEvents(filters)
	if err != nil {
		logger.Error("GetInterceptEventsHandler: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to retrieve intercept events")
		return
	}
	if events == nil {
		events = []models.InterceptEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}
