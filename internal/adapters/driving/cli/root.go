// Package cli implements the formsync command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/formsync/internal/adapters/driven/config/file"
	"github.com/custodia-labs/formsync/internal/core/domain"
	"github.com/custodia-labs/formsync/internal/core/ports/driving"
	"github.com/custodia-labs/formsync/internal/core/services"
	"github.com/custodia-labs/formsync/internal/logger"
)

// version is overridden at build time via SetVersion.
var version = "dev"

// Global flags.
var (
	verbose   bool
	configDir string
)

// settingsService is resolved on first use so commands that need no
// configuration never touch the filesystem.
var settingsService driving.SettingsService

// configWatcher is set when settings come from a file that can be watched.
var configWatcher interface {
	Watch(ctx context.Context, onChange func()) error
}

var rootCmd = &cobra.Command{
	Use:   "formsync",
	Short: "Collaborative editing for structured support content",
	Long: `formsync edits articles, FAQs and how-to guides together in real time.

Run a relay with 'formsync serve', point clients at it with
'formsync settings client', then open a document with 'formsync edit'.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Configuration directory (default ~/.formsync)")
}

// SetVersion sets the version reported by 'formsync version'.
func SetVersion(v string) {
	version = v
}

// SetSettingsService injects the settings service instead of the config file.
func SetSettingsService(s driving.SettingsService) {
	settingsService = s
	configWatcher = nil
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	defer logger.Sync()
	return rootCmd.ExecuteContext(ctx)
}

// getSettingsService returns the injected service or opens the config file.
func getSettingsService() (driving.SettingsService, error) {
	if settingsService != nil {
		return settingsService, nil
	}
	store, err := file.NewConfigStore(configDir)
	if err != nil {
		return nil, fmt.Errorf("opening configuration: %w", err)
	}
	logger.Debug("configuration: %s", store.Path())
	settingsService = services.NewSettingsService(store)
	configWatcher = store
	return settingsService, nil
}

func loadSettings() (*domain.AppSettings, error) {
	svc, err := getSettingsService()
	if err != nil {
		return nil, err
	}
	settings, err := svc.Get()
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	return settings, nil
}

// dataDir is the configuration directory, also home to logs and the default
// SQLite database.
func dataDir() (string, error) {
	if configDir != "" {
		return configDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".formsync"), nil
}

func openLogFile(name string) (*os.File, error) {
	dir, err := dataDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
}
