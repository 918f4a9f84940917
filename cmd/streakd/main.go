package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"streakd/internal/config"
	"streakd/internal/contacts"
	"streakd/internal/notify"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// Logger and configuration, initialized before any subcommand runs
	logger *zap.Logger
	cfg    config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "streakd",
	Short: "streakd - automated messaging streak keeper",
	Long: `streakd keeps messaging streaks alive. It drives a real browser session
against the TikTok web messenger, resolves each configured contact in the
conversation list, and sends them the daily streak message.

Use "streakd run" for a one-shot run, "streakd serve" for the scheduled
daemon with its HTTP control API, and "streakd contacts" to manage the
target roster.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// newSink builds the notification sink from the loaded configuration. When
// Telegram is disabled or unconfigured, events are still logged locally.
func newSink() *notify.Sink {
	var transport notify.Transport
	if cfg.Telegram.Enabled && cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		transport = notify.NewTelegramTransport(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	} else if cfg.Telegram.Enabled {
		logger.Warn("telegram enabled but token or chat id missing, notifications are local only")
	}
	return notify.New(logger, transport,
		notify.WithMinSeverity(notify.ParseSeverity(cfg.Telegram.MirrorLevel)),
		notify.WithMinInterval(cfg.Telegram.MinInterval()))
}

func openStore() (*contacts.Store, error) {
	return contacts.NewStore(cfg.ContactsFile, logger)
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the configuration file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(contactsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
