package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/opsglue/permsync/internal/config"
	"github.com/opsglue/permsync/internal/quay"
	"github.com/opsglue/permsync/internal/repolist"
	"github.com/opsglue/permsync/internal/sync"
	"github.com/opsglue/permsync/internal/zendesk"
	"github.com/spf13/cobra"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string

	// Sync flags
	inputPath  string
	orgCode    string
	removeMode bool
	dryRun     bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "permsync",
	Short: "Reconcile Quay.io team permissions with Zendesk organizations",
	Long: `permsync reconciles container-registry repository permissions between a
Zendesk organization directory and Quay.io teams.

It reads a list of repository names, looks up every organization tagged as an
active customer, resolves each organization's registry team code, and grants
(or removes) the listed repositories on that team.`,
	SilenceUsage: true,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one reconciliation pass",
	Long: `Sync loads the repository list, lists active customer organizations from
Zendesk, and closes the gap between the desired repository set and each team's
current Quay.io permissions.

By default missing repositories are added to each team. With --remove, listed
repositories are removed instead. --dry-run reports intended actions without
issuing any mutating calls.`,
	RunE: runSync,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("permsync %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/permsync/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	// Sync command flags
	syncCmd.Flags().StringVar(&inputPath, "input", "", "path to newline-delimited repository list (required)")
	syncCmd.Flags().StringVar(&orgCode, "org-code", "", "restrict the run to the organization with this 10-character team code")
	syncCmd.Flags().BoolVar(&removeMode, "remove", false, "remove the listed repositories instead of adding them")
	syncCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be done without making changes")
	_ = syncCmd.MarkFlagRequired("input")

	// Add commands
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(versionCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	// Setup logger
	logger := setupLogger()

	if orgCode != "" && !zendesk.ValidTeamID(orgCode) {
		return fmt.Errorf("invalid --org-code %q: must be a 10-character alphanumeric team code", orgCode)
	}

	// Load configuration
	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Load credentials
	creds, err := config.LoadCredentials()
	if err != nil {
		return err
	}

	// Load the desired repository list
	repos, err := repolist.Load(inputPath)
	if err != nil {
		return err
	}
	logger.Info("loaded repository list", "count", len(repos), "path", inputPath)

	// Create dependencies
	directory := zendesk.NewHTTPClient(cfg, creds, logger)
	registry := quay.NewHTTPClient(cfg, creds, logger)

	// Create reconciliation engine
	engine := sync.NewEngine(directory, registry, repos, logger, sync.Options{
		DryRun:    dryRun,
		Remove:    removeMode,
		OrgFilter: orgCode,
	})

	if dryRun {
		logger.Info("dry-run mode enabled, no changes will be applied")
	}

	summary, err := engine.Run(ctx)
	if err != nil {
		logger.Error("reconciliation failed", "error", err)
		return err
	}

	logSummary(logger, summary)
	return nil
}

// logSummary emits the end-of-run totals. Per-organization skips and
// per-repository failures are reported here but do not fail the run.
func logSummary(logger *slog.Logger, summary *sync.Summary) {
	logger.Info("reconciliation complete",
		"organizations", summary.Organizations,
		"skipped", summary.Skipped,
		"granted", summary.Granted,
		"revoked", summary.Revoked,
		"in_sync", summary.InSync,
		"failed", summary.Failed)

	if dryRun {
		logger.Info("dry-run complete, no changes applied")
	}
}

func setupLogger() *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Create handler based on format
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	// An explicitly passed config file must exist; the default path is
	// optional and falls back to built-in defaults.
	if cfgFile != "" {
		logger.Info("loading configuration", "path", cfgFile)
		return config.Load(cfgFile)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}
	configPath := fmt.Sprintf("%s/.config/permsync/config.yaml", home)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		logger.Debug("no config file found, using defaults", "path", configPath)
		return config.Default(), nil
	}

	logger.Info("loading configuration", "path", configPath)
	return config.Load(configPath)
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
