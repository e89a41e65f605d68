package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sockd/sockd/internal/config"
	"github.com/sockd/sockd/internal/router"
	"github.com/sockd/sockd/internal/server"
)

var (
	host       string
	port       int
	queueFile  string
	healthPath string
)

// startCmd represents the start command.
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the sockd server",
	Long: `Start the sockd server: bind the listener, begin draining the queue
file, and serve HTTP and WebSocket traffic.

Run standalone, sockd acts as a broadcast relay: connected WebSocket clients
receive everything other processes append to the queue file, and the health
endpoint (when configured) reports live counters.

Example:
  sockd start
  sockd start --port 7001 --queue-file /var/run/sockd/queue.jsonl`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&host, "host", "", "bind address (default: 0.0.0.0)")
	startCmd.Flags().IntVar(&port, "port", 0, "bind port (default: 6001)")
	startCmd.Flags().StringVar(&queueFile, "queue-file", "", "IPC queue file location")
	startCmd.Flags().StringVar(&healthPath, "health-path", "", "enable the health endpoint at this path")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Override config with flags
	if host != "" {
		cfg.Host = host
	}
	if port != 0 {
		cfg.Port = port
	}
	if queueFile != "" {
		cfg.QueueFile = queueFile
	}
	if healthPath != "" {
		cfg.HealthCheckPath = healthPath
	}

	// Re-validate after overrides
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	setupLogging(cfg)

	log.Info().
		Str("version", version).
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Msg("starting sockd")

	srv := server.New(cfg, router.New())

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run()
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Stop(ctx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	log.Info().Msg("sockd stopped")
	return nil
}

func setupLogging(cfg *config.Config) {
	// Set log level
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if cfg.Debug || verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	// Set output format
	if cfg.Logging.Format == "console" || verbose {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
