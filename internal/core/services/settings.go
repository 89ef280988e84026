package services

import (
	"fmt"
	"time"

	"github.com/custodia-labs/formsync/internal/core/domain"
	"github.com/custodia-labs/formsync/internal/core/ports/driven"
	"github.com/custodia-labs/formsync/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyDebounceMS       = "collab.debounce_ms"
	keyFlushIntervalMS  = "collab.flush_interval_ms"
	keyReconnectBaseMS  = "collab.reconnect_base_ms"
	keyReconnectMax     = "collab.reconnect_max_attempts"
	keyPresenceTimeoutS = "collab.presence_timeout_s"
	keyServerURL        = "client.server_url"
	keyClientToken      = "client.token"
	keyServerAddr       = "server.addr"
	keyJWTSecret        = "server.jwt_secret"
	keyRateLimit        = "server.rate_limit"
	keyStorageDriver    = "storage.driver"
	keyStorageDSN       = "storage.dsn"
	keyRedisAddr        = "fanout.redis_addr"
)

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore) *SettingsService {
	return &SettingsService{configStore: configStore}
}

// Get retrieves current application settings. Missing or invalid values fall
// back to defaults.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	defaults := domain.DefaultAppSettings()

	settings := &domain.AppSettings{
		Collab: domain.CollabSettings{
			Debounce:             s.getDuration(keyDebounceMS, time.Millisecond, defaults.Collab.Debounce),
			FlushInterval:        s.getDuration(keyFlushIntervalMS, time.Millisecond, defaults.Collab.FlushInterval),
			ReconnectBase:        s.getDuration(keyReconnectBaseMS, time.Millisecond, defaults.Collab.ReconnectBase),
			MaxReconnectAttempts: s.getInt(keyReconnectMax, defaults.Collab.MaxReconnectAttempts),
			PresenceTimeout:      s.getDuration(keyPresenceTimeoutS, time.Second, defaults.Collab.PresenceTimeout),
		},
		Client: domain.ClientSettings{
			ServerURL: s.getString(keyServerURL, defaults.Client.ServerURL),
			Token:     s.configStore.GetString(keyClientToken),
		},
		Server: domain.ServerSettings{
			Addr:      s.getString(keyServerAddr, defaults.Server.Addr),
			JWTSecret: s.configStore.GetString(keyJWTSecret),
			RateLimit: s.getFloat(keyRateLimit, defaults.Server.RateLimit),
		},
		Storage: domain.StorageSettings{
			Driver: s.getStorageDriver(defaults.Storage.Driver),
			DSN:    s.configStore.GetString(keyStorageDSN),
		},
		Fanout: domain.FanoutSettings{
			RedisAddr: s.configStore.GetString(keyRedisAddr),
		},
	}

	return settings, nil
}

// Save persists application settings.
func (s *SettingsService) Save(settings *domain.AppSettings) error {
	values := []struct {
		key   string
		value any
	}{
		{keyDebounceMS, int(settings.Collab.Debounce / time.Millisecond)},
		{keyFlushIntervalMS, int(settings.Collab.FlushInterval / time.Millisecond)},
		{keyReconnectBaseMS, int(settings.Collab.ReconnectBase / time.Millisecond)},
		{keyReconnectMax, settings.Collab.MaxReconnectAttempts},
		{keyPresenceTimeoutS, int(settings.Collab.PresenceTimeout / time.Second)},
		{keyServerURL, settings.Client.ServerURL},
		{keyServerAddr, settings.Server.Addr},
		{keyRateLimit, settings.Server.RateLimit},
		{keyStorageDriver, settings.Storage.Driver.String()},
		{keyStorageDSN, settings.Storage.DSN},
		{keyRedisAddr, settings.Fanout.RedisAddr},
	}
	for _, v := range values {
		if err := s.configStore.Set(v.key, v.value); err != nil {
			return fmt.Errorf("save %s: %w", v.key, err)
		}
	}

	// Secrets are only written when present so an empty form never wipes them.
	if settings.Client.Token != "" {
		if err := s.configStore.Set(keyClientToken, settings.Client.Token); err != nil {
			return fmt.Errorf("save %s: %w", keyClientToken, err)
		}
	}
	if settings.Server.JWTSecret != "" {
		if err := s.configStore.Set(keyJWTSecret, settings.Server.JWTSecret); err != nil {
			return fmt.Errorf("save %s: %w", keyJWTSecret, err)
		}
	}

	return nil
}

// SetClient updates the relay server URL and bearer token.
func (s *SettingsService) SetClient(serverURL, token string) error {
	if serverURL == "" {
		return fmt.Errorf("%w: server url is required", domain.ErrInvalidInput)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}
	settings.Client.ServerURL = serverURL
	if token != "" {
		settings.Client.Token = token
	}
	return s.Save(settings)
}

// SetStorage updates the server's storage backend.
func (s *SettingsService) SetStorage(driver domain.StorageDriver, dsn string) error {
	if !driver.IsValid() {
		return fmt.Errorf("%w: invalid storage driver: %s", domain.ErrInvalidInput, driver)
	}
	if driver.RequiresDSN() && dsn == "" {
		return fmt.Errorf("%w: %s requires a DSN", domain.ErrInvalidInput, driver.Description())
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}
	settings.Storage.Driver = driver
	settings.Storage.DSN = dsn
	return s.Save(settings)
}

// Validate checks that the current settings are usable.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}

	if !settings.Storage.IsConfigured() {
		return fmt.Errorf("storage %q is not fully configured", settings.Storage.Driver.Description())
	}
	c := settings.Collab
	if c.Debounce <= 0 || c.FlushInterval <= 0 || c.ReconnectBase <= 0 {
		return fmt.Errorf("%w: collab intervals must be positive", domain.ErrInvalidInput)
	}
	if c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("%w: reconnect attempts must not be negative", domain.ErrInvalidInput)
	}
	if settings.Server.RateLimit <= 0 {
		return fmt.Errorf("%w: rate limit must be positive", domain.ErrInvalidInput)
	}
	return nil
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetInt(key)
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	val := s.configStore.GetFloat(key)
	if val <= 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getDuration(key string, unit, defaultVal time.Duration) time.Duration {
	val := s.configStore.GetInt(key)
	if val <= 0 {
		return defaultVal
	}
	return time.Duration(val) * unit
}

func (s *SettingsService) getStorageDriver(defaultVal domain.StorageDriver) domain.StorageDriver {
	driver := domain.StorageDriver(s.configStore.GetString(keyStorageDriver))
	if !driver.IsValid() {
		return defaultVal
	}
	return driver
}
