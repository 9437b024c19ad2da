package models

// ErrorResponse is the body of every non-2xx API reply.
type ErrorResponse struct {
	Status  int    `json:"status" example:"404"`
	Message string `json:"message" example:"interceptor \"reddit-remove-feed\" not found"`
}

// VersionInfo is the body of GET /api/version.
type VersionInfo struct {
	Version   string `json:"version" example:"0.1.0"`
	GoVersion string `json:"go_version" example:"go1.24.4"`
}
