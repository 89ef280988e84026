package cli

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/formsync/internal/core/domain"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage application settings",
	Long: `View and configure the relay client, server and storage settings.

Use subcommands to configure specific settings.`,
	RunE: runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE:  runSettingsShow,
}

var settingsClientCmd = &cobra.Command{
	Use:   "client",
	Short: "Configure the relay this client talks to",
	Long: `Set the relay server URL and your bearer token.

The token is prompted for without echo when --token is omitted.`,
	Args: cobra.NoArgs,
	RunE: runSettingsClient,
}

var settingsStorageCmd = &cobra.Command{
	Use:   "storage",
	Short: "Configure server storage",
	Long: `Select where the relay keeps documents and memberships.

Available drivers:
  sqlite    - Local SQLite file (default)
  postgres  - PostgreSQL (requires --dsn)
  memory    - In process, lost on exit`,
	Args: cobra.NoArgs,
	RunE: runSettingsStorage,
}

var settingsServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Configure the relay server",
	Args:  cobra.NoArgs,
	RunE:  runSettingsServer,
}

// Flags for settings subcommands.
var (
	clientURL       string
	clientToken     string
	storageDriver   string
	storageDSN      string
	serverAddr      string
	serverSecret    string
	serverGenSecret bool
	serverRateLimit float64
	serverRedis     string
)

// stdin is where interactive prompts read from.
var stdin io.Reader = os.Stdin

func init() {
	settingsClientCmd.Flags().StringVar(&clientURL, "url", "", "Relay server URL")
	settingsClientCmd.Flags().StringVar(&clientToken, "token", "", "Bearer token")

	settingsStorageCmd.Flags().StringVar(&storageDriver, "driver", "", "Storage driver: sqlite, postgres or memory")
	settingsStorageCmd.Flags().StringVar(&storageDSN, "dsn", "", "Connection string or SQLite path")

	settingsServerCmd.Flags().StringVar(&serverAddr, "addr", "", "Listen address")
	settingsServerCmd.Flags().StringVar(&serverSecret, "jwt-secret", "", "Token signing secret (16+ characters)")
	settingsServerCmd.Flags().BoolVar(&serverGenSecret, "generate-secret", false, "Generate a random signing secret")
	settingsServerCmd.Flags().Float64Var(&serverRateLimit, "rate-limit", 0, "Inbound messages per second per connection")
	settingsServerCmd.Flags().StringVar(&serverRedis, "redis", "", "Redis address for cross-instance fan-out (\"-\" to clear)")

	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsClientCmd)
	settingsCmd.AddCommand(settingsStorageCmd)
	settingsCmd.AddCommand(settingsServerCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	svc, err := getSettingsService()
	if err != nil {
		return err
	}

	settings, err := svc.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println("Current Settings")
	cmd.Println("================")
	cmd.Println()

	cmd.Println("[Client]")
	cmd.Printf("  Server URL: %s\n", orNotSet(settings.Client.ServerURL))
	if settings.Client.Token != "" {
		cmd.Printf("  Token: %s\n", maskAPIKey(settings.Client.Token))
	} else {
		cmd.Printf("  Token: (not set)\n")
	}
	cmd.Println()

	cmd.Println("[Server]")
	cmd.Printf("  Address: %s\n", settings.Server.Addr)
	if settings.Server.JWTSecret != "" {
		cmd.Printf("  JWT secret: set\n")
	} else {
		cmd.Printf("  JWT secret: (not set)\n")
	}
	cmd.Printf("  Rate limit: %g msg/s\n", settings.Server.RateLimit)
	cmd.Println()

	cmd.Println("[Storage]")
	cmd.Printf("  Driver: %s\n", settings.Storage.Driver.Description())
	if settings.Storage.DSN != "" {
		cmd.Printf("  DSN: %s\n", settings.Storage.DSN)
	}
	cmd.Println()

	cmd.Println("[Fan-out]")
	if settings.Fanout.RedisAddr != "" {
		cmd.Printf("  Redis: %s\n", settings.Fanout.RedisAddr)
	} else {
		cmd.Printf("  Redis: (in process)\n")
	}
	cmd.Println()

	cmd.Println("[Collab]")
	cmd.Printf("  Debounce: %s\n", settings.Collab.Debounce)
	cmd.Printf("  Flush interval: %s\n", settings.Collab.FlushInterval)
	cmd.Printf("  Reconnect: %d attempts, %s base\n",
		settings.Collab.MaxReconnectAttempts, settings.Collab.ReconnectBase)
	cmd.Printf("  Presence timeout: %s\n", settings.Collab.PresenceTimeout)
	cmd.Println()

	if err := svc.Validate(); err != nil {
		cmd.Printf("Warning: %v\n", err)
		cmd.Println("Run 'formsync settings storage' to fix configuration issues.")
	} else {
		cmd.Println("Configuration is valid.")
	}

	return nil
}

func runSettingsClient(cmd *cobra.Command, _ []string) error {
	svc, err := getSettingsService()
	if err != nil {
		return err
	}
	settings, err := svc.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	url := strings.TrimSpace(clientURL)
	if url == "" {
		url = settings.Client.ServerURL
	}
	token := strings.TrimSpace(clientToken)
	if token == "" {
		cmd.Print("Enter token: ")
		token = readPassword()
		cmd.Println()
	}
	if token == "" {
		return errors.New("a token is required; issue one with 'formsync token issue'")
	}

	if err := svc.SetClient(url, token); err != nil {
		return fmt.Errorf("failed to save client settings: %w", err)
	}

	cmd.Printf("Client configured for %s.\n", url)
	return nil
}

func runSettingsStorage(cmd *cobra.Command, _ []string) error {
	svc, err := getSettingsService()
	if err != nil {
		return err
	}

	driver := domain.StorageDriver(strings.TrimSpace(storageDriver))
	dsn := strings.TrimSpace(storageDSN)

	if driver == "" {
		reader := bufio.NewReader(stdin)
		drivers := []domain.StorageDriver{domain.StorageSQLite, domain.StoragePostgres, domain.StorageMemory}

		cmd.Println("Select Storage Driver")
		for i, d := range drivers {
			cmd.Printf("  %d. %s\n", i+1, d.Description())
		}
		cmd.Print("\nEnter choice [1]: ")
		driver = drivers[parseChoice(readLine(reader), len(drivers), 1)-1]

		if driver.RequiresDSN() && dsn == "" {
			cmd.Print("Enter DSN: ")
			dsn = readLine(reader)
		}
	}

	if err := svc.SetStorage(driver, dsn); err != nil {
		return fmt.Errorf("failed to configure storage: %w", err)
	}

	cmd.Printf("Storage set to: %s\n", driver.Description())
	return nil
}

func runSettingsServer(cmd *cobra.Command, _ []string) error {
	svc, err := getSettingsService()
	if err != nil {
		return err
	}
	settings, err := svc.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	if serverGenSecret && serverSecret != "" {
		return errors.New("use either --jwt-secret or --generate-secret")
	}

	changed := false
	if serverAddr != "" {
		settings.Server.Addr = serverAddr
		changed = true
	}
	if serverSecret != "" {
		settings.Server.JWTSecret = serverSecret
		changed = true
	}
	if serverGenSecret {
		secret, err := generateSecret()
		if err != nil {
			return err
		}
		settings.Server.JWTSecret = secret
		changed = true
	}
	if cmd.Flags().Changed("rate-limit") {
		if serverRateLimit <= 0 {
			return fmt.Errorf("%w: rate limit must be positive", domain.ErrInvalidInput)
		}
		settings.Server.RateLimit = serverRateLimit
		changed = true
	}
	switch serverRedis {
	case "":
	case "-":
		settings.Fanout.RedisAddr = ""
		changed = true
	default:
		settings.Fanout.RedisAddr = serverRedis
		changed = true
	}

	if !changed {
		return cmd.Help()
	}

	if err := svc.Save(settings); err != nil {
		return fmt.Errorf("failed to save server settings: %w", err)
	}

	cmd.Println("Server settings saved.")
	if serverGenSecret {
		cmd.Println("Generated a new JWT secret. Tokens issued with the old secret no longer verify.")
	}
	return nil
}

// generateSecret returns 32 random bytes, hex encoded.
func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func orNotSet(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

// Helper functions.

//nolint:errcheck // CLI helper, error ignored for UX
func readLine(reader *bufio.Reader) string {
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func parseChoice(input string, maxVal, defaultVal int) int {
	if input == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(input)
	if err != nil || val < 1 || val > maxVal {
		return defaultVal
	}
	return val
}

//nolint:errcheck // CLI helper, error ignored for UX
func readPassword() string {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		password, err := term.ReadPassword(int(f.Fd()))
		if err == nil {
			return strings.TrimSpace(string(password))
		}
	}
	reader := bufio.NewReader(stdin)
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
