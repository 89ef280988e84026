package driving

import "github.com/custodia-labs/formsync/internal/core/domain"

// SettingsService manages application settings.
type SettingsService interface {
	// Get retrieves current application settings.
	Get() (*domain.AppSettings, error)

	// Save persists application settings.
	Save(settings *domain.AppSettings) error

	// SetClient updates the relay server URL and bearer token.
	SetClient(serverURL, token string) error

	// SetStorage updates the server's storage backend.
	SetStorage(driver domain.StorageDriver, dsn string) error

	// Validate checks that the current settings are usable.
	Validate() error

	// GetDefaults returns default settings.
	GetDefaults() domain.AppSettings
}
