package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"gorged/logger"
	"gorged/models"
)

var errNoDB = errors.New("database is not initialized")

// GetSetting retrieves a specific setting value from the app_settings table.
func GetSetting(key string) (string, error) {
	if DB == nil {
		return "", errNoDB
	}
	var value string
	err := DB.QueryRow("SELECT value FROM app_settings WHERE key = ?", key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil // Return empty string if not found, not an error
		}
		return "", fmt.Errorf("failed to get setting '%s': %w", key, err)
	}
	return value, nil
}

// SetSetting saves or updates a specific setting value in the app_settings table.
func SetSetting(key, value string) error {
	if DB == nil {
		return errNoDB
	}
	stmt, err := DB.Prepare("INSERT OR REPLACE INTO app_settings (key, value) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare set setting statement for key '%s': %w", key, err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(key, value)
	if err != nil {
		return fmt.Errorf("failed to execute set setting for key '%s': %w", key, err)
	}
	return nil
}

// GetPaused reads the persisted proxy pause switch. Unset means running.
func GetPaused() (bool, error) {
	value, err := GetSetting(models.PausedKey)
	if err != nil {
		return false, fmt.Errorf("failed to get pause state: %w", err)
	}
	if value == "" {
		return false, nil
	}
	paused, err := strconv.ParseBool(value)
	if err != nil {
		logger.Error("GetPaused: invalid stored value %q: %v", value, err)
		return false, fmt.Errorf("invalid pause state %q: %w", value, err)
	}
	return paused, nil
}

// SetPaused persists the proxy pause switch.
func SetPaused(paused bool) error {
	if err := SetSetting(models.PausedKey, strconv.FormatBool(paused)); err != nil {
		return fmt.Errorf("failed to save pause state: %w", err)
	}
	return nil
}
