package handlers

import (
	"net/http"
	"runtime"

	"github.com/go-chi/chi/v5"

	"gorged/models"
	"gorged/version"
)

func RegisterVersionRoutes(r chi.Router) {
	r.Get("/version", GetVersionHandler)
}

// GetVersionHandler reports the build version.
// @Summary Get gorged version
// @Tags Version
// @Produce json
// @Success 200 {object} models.VersionInfo
// @Router /version [get]
func GetVersionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.VersionInfo{Version: version.AppVersion, GoVersion: runtime.Version()})
}
