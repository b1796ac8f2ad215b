// uwb-bridge keeps a resilient session with an MQTT broker, decodes UWB
// gateway telemetry into typed records and publishes synthetic anchor
// configuration on a schedule.
//
// Usage:
//
//	uwbbridge --config configs/config.yaml
//	uwbbridge --config configs/config.yaml --issue-token operator --token-ttl 12h
//
// The config path may also be set with UWBBRIDGE_CONFIG. --issue-token
// prints a publish-scoped API token signed with api.auth.jwt_secret.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/fnk59456/uwb-bridge/internal/auth"
	"github.com/fnk59456/uwb-bridge/internal/infrastructure/config"
	"github.com/fnk59456/uwb-bridge/internal/infrastructure/logging"
	"github.com/fnk59456/uwb-bridge/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	flags := pflag.NewFlagSet("uwbbridge", pflag.ExitOnError)
	configFlag := flags.StringP("config", "c", "", "path to the YAML configuration file (env UWBBRIDGE_CONFIG)")
	showVersion := flags.Bool("version", false, "print version information and exit")
	issueFor := flags.String("issue-token", "", "print a publish-scoped API token for `subject` and exit")
	tokenTTL := flags.Duration("token-ttl", 24*time.Hour, "lifetime of tokens printed by --issue-token")
	//nolint:errcheck // ExitOnError exits on parse failure
	flags.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("uwbbridge %s (commit %s, built %s)\n", version, commit, date)
		return
	}

	if *issueFor != "" {
		if err := issueToken(os.Stdout, getConfigPath(*configFlag), *issueFor, *tokenTTL); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, getConfigPath(*configFlag)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - configPath: YAML configuration file
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting uwb-bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	defer func() {
		if closeErr := log.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "closing log output: %v\n", closeErr)
		}
	}()
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
		"output", cfg.Logging.Output,
	)

	transport, err := mqtt.NewPahoTransport(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("creating MQTT transport: %w", err)
	}

	b, err := newBridge(cfg, transport, log)
	if err != nil {
		return err
	}
	defer b.close()

	log.Info("initialisation complete, waiting for shutdown signal",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	if err := b.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("uwb-bridge stopped")
	return nil
}

// issueToken signs a publish-scoped token for subject with the configured
// API secret and writes it to w.
func issueToken(w io.Writer, configPath, subject string, ttl time.Duration) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.API.Auth.JWTSecret == "" {
		return errors.New("api.auth.jwt_secret is not set")
	}

	token, err := auth.GenerateToken(subject, cfg.API.Auth.JWTSecret, ttl, auth.ScopePublish)
	if err != nil {
		return fmt.Errorf("issuing token: %w", err)
	}
	_, err = fmt.Fprintln(w, token)
	return err
}

// getConfigPath returns the configuration file path: the --config flag,
// then UWBBRIDGE_CONFIG, then the default.
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv("UWBBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
