package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"gorged/logger"
	"gorged/models"
)

type interceptorHandlers struct {
	src InterceptorSource
}

// list returns every interceptor in registration order.
// @Summary List interceptors
// @Tags Interceptors
// @Produce json
// @Param enabled query bool false "Only enabled (true) or disabled (false) interceptors"
// @Param tag query string false "Only interceptors carrying this tag"
// @Success 200 {array} models.InterceptorInfo
// @Failure 400 {object} models.ErrorResponse
// @Router /interceptors [get]
func (h *interceptorHandlers) list(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var enabledFilter *bool
	if raw := query.Get("enabled"); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid 'enabled' parameter: "+raw)
			return
		}
		enabledFilter = &enabled
	}
	tag := strings.TrimSpace(query.Get("tag"))

	result := make([]models.InterceptorInfo, 0)
	for _, info := range h.src.Interceptors() {
		if enabledFilter != nil && info.Enabled != *enabledFilter {
			continue
		}
		if tag != "" && !hasTag(info.Tags, tag) {
			continue
		}
		result = append(result, info)
	}
	logger.Debug("ListInterceptors: returning %d of %d interceptors", len(result), len(h.src.Interceptors()))
	writeJSON(w, http.StatusOK, result)
}

// @Summary Get an interceptor
// @Tags Interceptors
// @Produce json
// @Param interceptorID path string true "Interceptor id"
// @Success 200 {object} models.InterceptorInfo
// @Failure 404 {object} models.ErrorResponse
// @Router /interceptors/{interceptorID} [get]
func (h *interceptorHandlers) get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "interceptorID")
	info, ok := h.src.Interceptor(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Interceptor not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}
