package models

// PausedKey is the app_settings key holding the proxy pause switch ("true"/"false").
const PausedKey = "proxy_paused"

// PauseState is the body of GET/PUT /api/pause.
type PauseState struct {
	Paused bool `json:"paused" example:"false"`
}
