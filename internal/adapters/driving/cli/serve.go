package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/formsync/internal/adapters/driven/auth"
	"github.com/custodia-labs/formsync/internal/adapters/driven/fanout"
	"github.com/custodia-labs/formsync/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/formsync/internal/adapters/driven/storage/postgres"
	"github.com/custodia-labs/formsync/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/formsync/internal/adapters/driving/server"
	"github.com/custodia-labs/formsync/internal/core/domain"
	"github.com/custodia-labs/formsync/internal/core/ports/driven"
	"github.com/custodia-labs/formsync/internal/core/services"
	"github.com/custodia-labs/formsync/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay server",
	Long: `Run the relay: the document API, live editing connections and metrics.

Storage, listen address and the token secret come from settings; flags
override them for this run. Set fanout.redis_addr (or --redis) to share
live traffic between several relay instances.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

// Flags for serve.
var (
	serveAddr    string
	serveStorage string
	serveDSN     string
	serveRedis   string
	serveOrigins []string
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from settings)")
	serveCmd.Flags().StringVar(&serveStorage, "storage", "", "Storage driver: sqlite, postgres or memory")
	serveCmd.Flags().StringVar(&serveDSN, "dsn", "", "Storage DSN (postgres URL or SQLite path)")
	serveCmd.Flags().StringVar(&serveRedis, "redis", "", "Redis address for cross-instance fan-out")
	serveCmd.Flags().StringSliceVar(&serveOrigins, "allowed-origin", nil, "Allowed browser origins for websockets")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	applyServeFlags(settings)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, err := buildRelay(ctx, settings, serveOrigins)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := r.Close(); cerr != nil {
			logger.Warn("shutdown: %v", cerr)
		}
	}()

	go r.relay.Run(ctx)
	if configWatcher != nil {
		go watchConfig(ctx)
	}

	logger.Section("formsync relay")
	logger.Info("storage: %s", settings.Storage.Driver.Description())
	if settings.Fanout.RedisAddr != "" {
		logger.Info("fan-out: redis %s", settings.Fanout.RedisAddr)
	}
	cmd.Printf("formsync relay listening on %s\n", settings.Server.Addr)
	return r.server.Run(ctx, settings.Server.Addr)
}

func applyServeFlags(s *domain.AppSettings) {
	if serveAddr != "" {
		s.Server.Addr = serveAddr
	}
	if serveStorage != "" {
		s.Storage.Driver = domain.StorageDriver(serveStorage)
		s.Storage.DSN = serveDSN
	} else if serveDSN != "" {
		s.Storage.DSN = serveDSN
	}
	if serveRedis != "" {
		s.Fanout.RedisAddr = serveRedis
	}
}

// relay is a wired server with everything it must release on shutdown.
type relay struct {
	server  *server.Server
	relay   *services.RelayService
	closers []func() error
}

// Close releases resources in reverse order of acquisition.
func (r *relay) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// buildRelay wires storage, fan-out, the relay hub and the HTTP server.
func buildRelay(ctx context.Context, s *domain.AppSettings, origins []string) (*relay, error) {
	if s.Server.JWTSecret == "" {
		return nil, errors.New(
			"server.jwt_secret is not set; run 'formsync settings server --generate-secret'")
	}
	authority, err := auth.NewAuthority(s.Server.JWTSecret)
	if err != nil {
		return nil, err
	}

	r := &relay{}

	docs, members, closeStore, err := openStorage(ctx, s.Storage)
	if err != nil {
		return nil, err
	}
	r.closers = append(r.closers, closeStore)

	fan, err := openFanout(ctx, s.Fanout)
	if err != nil {
		r.Close() //nolint:errcheck
		return nil, err
	}
	r.closers = append(r.closers, fan.Close)

	r.relay = services.NewRelayService(members, fan, s.Collab.PresenceTimeout, nil)
	r.closers = append(r.closers, r.relay.Close)

	documents := services.NewDocumentService(docs, members, r.relay)
	r.server, err = server.NewServer(&server.Ports{
		Documents: documents,
		Relay:     r.relay,
		Tokens:    authority,
		Stats:     r.relay.Stats,
	}, server.Options{
		RateLimit:      s.Server.RateLimit,
		AllowedOrigins: origins,
	})
	if err != nil {
		r.Close() //nolint:errcheck
		return nil, err
	}
	return r, nil
}

// openStorage opens the configured document and membership stores.
func openStorage(
	ctx context.Context,
	s domain.StorageSettings,
) (driven.DocumentStore, driven.MembershipStore, func() error, error) {
	switch s.Driver {
	case domain.StorageMemory:
		logger.Warn("memory storage: documents are lost on exit")
		return memory.NewDocumentStore(), memory.NewMembershipStore(), func() error { return nil }, nil

	case domain.StorageSQLite:
		path := s.DSN
		if path == "" {
			dir, err := dataDir()
			if err != nil {
				return nil, nil, nil, err
			}
			path = filepath.Join(dir, "data", "formsync.db")
		}
		store, err := sqlite.NewStore(path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening sqlite: %w", err)
		}
		logger.Debug("sqlite database: %s", store.Path())
		return store.DocumentStore(), store.MembershipStore(), store.Close, nil

	case domain.StoragePostgres:
		store, err := postgres.NewStore(ctx, s.DSN)
		if err != nil {
			return nil, nil, nil, err
		}
		return store.DocumentStore(), store.MembershipStore(), store.Close, nil

	default:
		return nil, nil, nil, fmt.Errorf("%w: storage driver %q", domain.ErrInvalidInput, s.Driver)
	}
}

// openFanout returns Redis pub/sub when configured, otherwise in-process fan-out.
func openFanout(ctx context.Context, s domain.FanoutSettings) (driven.Fanout, error) {
	if s.RedisAddr == "" {
		return fanout.NewMemory(), nil
	}
	return fanout.NewRedis(ctx, s.RedisAddr)
}

// watchConfig logs configuration edits made while the relay runs. Storage and
// listen address changes need a restart.
func watchConfig(ctx context.Context) {
	err := configWatcher.Watch(ctx, func() {
		logger.Info("configuration changed; restart to apply storage or address changes")
		if svc, err := getSettingsService(); err == nil {
			if verr := svc.Validate(); verr != nil {
				logger.Warn("configuration is invalid: %v", verr)
			}
		}
	})
	if err != nil {
		logger.Warn("watching configuration: %v", err)
	}
}
