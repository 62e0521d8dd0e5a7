package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"trialrag/internal/app"
	"trialrag/internal/config"
)

var (
	cfgPath  string
	logLevel string
	quiet    bool
)

// NewRootCmd creates the root command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trialrag",
		Short: "Grounded answers over clinical trial records and drug documentation",
		Long: `trialrag answers questions about drugs, doses and adverse events using only
the loaded clinical trial spreadsheet and the narrative drug documentation.

Every answer cites the rows or sections it came from. Requests for medical
advice are refused, and questions the sources cannot answer get an explicit
"unknown" reply instead of a guess.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
		},
	}

	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Path to YAML config (default ./config.yaml, then ~/.config/trialrag/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Only log errors")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewChatCmd())
	cmd.AddCommand(NewMCPCmd())
	cmd.AddCommand(NewAskCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func loadConfig() (*config.AppConfig, error) {
	var (
		cfg *config.AppConfig
		err error
	)
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if quiet {
		cfg.Log.Level = "error"
	}
	return cfg, nil
}

// buildApp loads config, sets up logging on w and assembles the engine.
func buildApp(ctx context.Context, w io.Writer) (*app.App, *config.AppConfig, *slog.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	logger := setupLogging(w, cfg.Log.Level, cfg.Log.Format)
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return a, cfg, logger, nil
}

func setupLogging(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
