package domain

import "context"

// Settings is the process-wide dashboard-controlled configuration row.
// A single row with ID "default" exists per deployment.
type Settings struct {
	AutoReadMessages bool
	TypingIndicator  bool
}

// ISettingsRepository defines the contract for persisting dynamic settings.
type ISettingsRepository interface {
	Get(ctx context.Context) (Settings, error)
	Set(ctx context.Context, s Settings) error

	// InitSchema creates the necessary tables
	InitSchema(ctx context.Context) error
}
