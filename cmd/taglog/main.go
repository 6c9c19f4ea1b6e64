package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	clientcmd "github.com/rzbill/taglog/internal/cmd/client"
	serverrun "github.com/rzbill/taglog/internal/cmd/server"
	cfgpkg "github.com/rzbill/taglog/internal/config"
	pebblestore "github.com/rzbill/taglog/internal/storage/pebble"
	logpkg "github.com/rzbill/taglog/pkg/log"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env files are optional; real environment variables win.
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	rootCmd := &cobra.Command{
		Use:           "taglog",
		Short:         "Tagged, time-ordered log storage",
		Long:          "taglog stores log records in tag flows ordered by time. This CLI runs the server and talks to it over HTTP.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})

	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the taglog HTTP server",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			httpAddr, _ := cmd.Flags().GetString("http")
			configPath, _ := cmd.Flags().GetString("config")
			fsyncMode, _ := cmd.Flags().GetString("fsync")
			fsyncIntervalMs, _ := cmd.Flags().GetInt("fsync-interval-ms")
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFormat, _ := cmd.Flags().GetString("log-format")

			mode, err := pebblestore.ParseFsyncMode(fsyncMode)
			if err != nil {
				return err
			}
			cfg, err := cfgpkg.Load(configPath)
			if err != nil {
				return err
			}
			cfgpkg.FromEnv(&cfg)
			if cmd.Flags().Changed("sweep-interval") {
				d, _ := cmd.Flags().GetDuration("sweep-interval")
				cfg.SweepIntervalMs = int(d / time.Millisecond)
			}
			if cmd.Flags().Changed("archive-dir") {
				cfg.ArchiveDir, _ = cmd.Flags().GetString("archive-dir")
			}

			logger, err := logpkg.ApplyConfig(&logpkg.Config{Level: logLevel, Format: logFormat})
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if err := serverrun.Run(ctx, serverrun.Options{
				DataDir:       dataDir,
				HTTPAddr:      httpAddr,
				Fsync:         mode,
				FsyncInterval: time.Duration(fsyncIntervalMs) * time.Millisecond,
				Config:        cfg,
				Logger:        logger,
			}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	flags := serverStartCmd.Flags()
	flags.String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	flags.String("http", envOr("TAGLOG_HTTP_ADDR", ":8080"), "HTTP listen address")
	flags.String("config", os.Getenv("TAGLOG_CONFIG"), "Config file (json|yaml|toml)")
	flags.String("fsync", envOr("TAGLOG_FSYNC", "always"), "Fsync mode: always|interval|never")
	flags.Int("fsync-interval-ms", 5, "When --fsync=interval, group-commit window in ms")
	flags.String("log-level", envOr("TAGLOG_LOG_LEVEL", "info"), "Log level: debug|info|warn|error")
	flags.String("log-format", envOr("TAGLOG_LOG_FORMAT", "text"), "Log format: text|json")
	flags.Duration("sweep-interval", 0, "Sweep expired records this often (0 disables; overrides config)")
	flags.String("archive-dir", "", "Archive swept records as zstd JSONL here (overrides config)")
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	for _, c := range clientcmd.Commands(clientcmd.BaseURLFromEnv) {
		rootCmd.AddCommand(c)
	}

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
