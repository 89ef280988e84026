package domain

import "time"

const unknownDescription = "Unknown"

// StorageDriver selects the server's document and membership storage.
type StorageDriver string

// Available storage drivers.
const (
	// StorageSQLite stores data in a local SQLite database.
	StorageSQLite StorageDriver = "sqlite"

	// StoragePostgres stores data in PostgreSQL.
	StoragePostgres StorageDriver = "postgres"

	// StorageMemory keeps everything in process memory. Data is lost on exit.
	StorageMemory StorageDriver = "memory"
)

// IsValid returns true if the driver is recognised.
func (d StorageDriver) IsValid() bool {
	switch d {
	case StorageSQLite, StoragePostgres, StorageMemory:
		return true
	default:
		return false
	}
}

// RequiresDSN returns true if this driver needs a connection string.
func (d StorageDriver) RequiresDSN() bool {
	return d == StoragePostgres
}

// String returns the string representation.
func (d StorageDriver) String() string {
	return string(d)
}

// Description returns a human-readable description of the driver.
func (d StorageDriver) Description() string {
	switch d {
	case StorageSQLite:
		return "SQLite (local file)"
	case StoragePostgres:
		return "PostgreSQL"
	case StorageMemory:
		return "In-memory (ephemeral)"
	default:
		return unknownDescription
	}
}

// CollabSettings tunes the client-side synchronisation engine.
type CollabSettings struct {
	// Debounce coalesces keystrokes in one field into one outbound message.
	Debounce time.Duration

	// FlushInterval is the quiescent window before the buffer is persisted.
	FlushInterval time.Duration

	// ReconnectBase is multiplied by the attempt number to get each delay.
	ReconnectBase time.Duration

	// MaxReconnectAttempts caps automatic reconnection.
	MaxReconnectAttempts int

	// PresenceTimeout removes editors with no activity for this long.
	PresenceTimeout time.Duration
}

// ClientSettings holds how the CLI reaches a relay server.
type ClientSettings struct {
	// ServerURL is the relay's base URL (http or https).
	ServerURL string

	// Token is the bearer credential.
	Token string
}

// IsConfigured returns true if the client can reach a server.
func (c ClientSettings) IsConfigured() bool {
	return c.ServerURL != "" && c.Token != ""
}

// ServerSettings holds relay server configuration.
type ServerSettings struct {
	// Addr is the listen address.
	Addr string

	// JWTSecret signs and verifies bearer tokens.
	JWTSecret string

	// RateLimit is the sustained inbound messages per second per connection.
	RateLimit float64
}

// StorageSettings holds the server's persistence configuration.
type StorageSettings struct {
	// Driver selects the backend.
	Driver StorageDriver

	// DSN is the connection string for network databases.
	DSN string
}

// IsConfigured returns true if the storage backend can be opened.
func (s StorageSettings) IsConfigured() bool {
	if !s.Driver.IsValid() {
		return false
	}
	if s.Driver.RequiresDSN() && s.DSN == "" {
		return false
	}
	return true
}

// FanoutSettings configures cross-instance broadcast.
type FanoutSettings struct {
	// RedisAddr enables Redis pub/sub when set. Empty keeps fan-out in process.
	RedisAddr string
}

// AppSettings holds all application configuration.
type AppSettings struct {
	Collab  CollabSettings
	Client  ClientSettings
	Server  ServerSettings
	Storage StorageSettings
	Fanout  FanoutSettings
}

// DefaultCollabSettings returns the synchronisation defaults.
func DefaultCollabSettings() CollabSettings {
	return CollabSettings{
		Debounce:             250 * time.Millisecond,
		FlushInterval:        2500 * time.Millisecond,
		ReconnectBase:        time.Second,
		MaxReconnectAttempts: 3,
		PresenceTimeout:      45 * time.Second,
	}
}

// DefaultAppSettings returns sensible defaults.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Collab: DefaultCollabSettings(),
		Client: ClientSettings{
			ServerURL: "http://localhost:8090",
		},
		Server: ServerSettings{
			Addr:      ":8090",
			RateLimit: 20,
		},
		Storage: StorageSettings{
			Driver: StorageSQLite,
		},
	}
}
