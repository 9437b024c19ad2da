package models

import (
	"database/sql"
)

// NullString is a helper function to create a sql.NullString from a string.
// If the input string is empty, it returns a NullString with Valid set to false.
func NullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{String: "", Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

// InterceptorInfo is the read-only view of a registry entry served by the API
// and printed by `interceptors list`.
type InterceptorInfo struct {
	ID             string   `json:"id" yaml:"id" example:"reddit-remove-homepage-feed"`
	Description    string   `json:"description" yaml:"description"`
	URLPattern     string   `json:"url_pattern" yaml:"url_pattern" example:"(?<!old\\.)reddit\\.com"`
	DefaultEnabled bool     `json:"default_enabled" yaml:"default_enabled"`
	Enabled        bool     `json:"enabled" yaml:"enabled"`
	Tags           []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}
