// Package main implements the entry point for trsync, a one-shot exporter
// that syncs the full Trade Republic transaction timeline and the account's
// cash position to local JSON or CSV artifacts.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/c360/trsync/auth"
	"github.com/c360/trsync/channel"
	"github.com/c360/trsync/config"
	"github.com/c360/trsync/errors"
	"github.com/c360/trsync/metric"
	"github.com/c360/trsync/normalize"
	"github.com/c360/trsync/profile"
	"github.com/c360/trsync/sink"
	"github.com/c360/trsync/timeline"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "trsync"
)

// codeAttempts bounds interactive 2FA entry before the run gives up
const codeAttempts = 3

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Run failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, logger, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	cfg, err := loadConfig(cliCfg)
	if err != nil {
		return err
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	token, err := resolveToken(ctx, cfg, cliCfg, logger)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.Output.Folder, 0o755); err != nil {
		return fmt.Errorf("create output folder %s: %w", cfg.Output.Folder, err)
	}

	registry := metric.NewRegistry()
	writer := sink.NewWriter(cfg.Output, logger)

	if err := exportTransactions(ctx, cfg, token, registry.Metrics, writer, logger); err != nil {
		return err
	}

	if err := exportProfile(ctx, cfg, token, registry.Metrics, writer, logger); err != nil {
		return err
	}

	logger.Info("run summary", "metrics", registry.Summary())
	return nil
}

// initializeCLI parses flags and sets up logging
func initializeCLI() (*CLIConfig, *slog.Logger, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil, nil, true, nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat).With("run_id", uuid.NewString())
	slog.SetDefault(logger)

	slog.Info("Starting trsync",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	return cliCfg, logger, false, nil
}

// loadConfig loads configuration, layering CLI overrides over the file (or
// the built-in defaults when no file was given)
func loadConfig(cliCfg *CLIConfig) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if cliCfg.ConfigPath != "" {
		cfg, err = config.Load(cliCfg.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = config.Default()
	}

	if cliCfg.OutputFolder != "" {
		cfg.Output.Folder = cliCfg.OutputFolder
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// resolveToken returns the session token for this run: CLI flag first, then
// the config file, then the interactive login flow
func resolveToken(ctx context.Context, cfg *config.Config, cliCfg *CLIConfig, logger *slog.Logger) (string, error) {
	if cliCfg.SessionToken != "" {
		return cliCfg.SessionToken, nil
	}
	if cfg.Credentials.SessionToken != "" {
		return cfg.Credentials.SessionToken, nil
	}

	if cfg.Credentials.PhoneNumber == "" || cfg.Credentials.PIN == "" {
		return "", errors.WrapFatal(
			fmt.Errorf("%w: provide a session token or phone number and PIN", errors.ErrMissingToken),
			"main", "resolveToken", "check credentials")
	}

	return interactiveLogin(ctx, cfg, logger)
}

// interactiveLogin runs the 2FA login flow, prompting on stdin for the code.
// Typing SMS requests the code again over text message.
func interactiveLogin(ctx context.Context, cfg *config.Config, logger *slog.Logger) (string, error) {
	client := auth.NewClient(cfg.API.RestURL, logger)

	process, err := client.Login(ctx, cfg.Credentials.PhoneNumber, cfg.Credentials.PIN)
	if err != nil {
		return "", fmt.Errorf("start login: %w", err)
	}

	reader := bufio.NewReader(os.Stdin)
	for attempt := 1; attempt <= codeAttempts; attempt++ {
		fmt.Printf("Enter the code from your app (or SMS to receive it by text message): ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("read 2FA code: %w", err)
		}

		code := strings.TrimSpace(line)
		if strings.EqualFold(code, "sms") {
			if err := client.ResendCode(ctx, process.ProcessID); err != nil {
				return "", fmt.Errorf("resend code: %w", err)
			}
			attempt--
			continue
		}

		token, err := client.Complete(ctx, process.ProcessID, code)
		if err != nil {
			logger.Warn("device verification failed", "attempt", attempt, "error", err)
			continue
		}
		return token, nil
	}

	return "", errors.WrapFatal(
		fmt.Errorf("%w: device verification failed %d times", errors.ErrLoginFailed, codeAttempts),
		"main", "interactiveLogin", "verify code")
}

// newSession creates a channel session from the run configuration
func newSession(cfg *config.Config, metrics *metric.Metrics, logger *slog.Logger) *channel.Session {
	return channel.NewSession(channel.Config{
		URL:             cfg.API.WebsocketURL,
		ProtocolVersion: cfg.API.ProtocolVersion,
		Client:          cfg.API.Client,
		Retry:           cfg.RetryPolicy(),
		Logger:          logger,
		Metrics:         metrics,
	})
}

// exportTransactions syncs the full transaction timeline over its own
// session and writes the transactions artifact
func exportTransactions(
	ctx context.Context,
	cfg *config.Config,
	token string,
	metrics *metric.Metrics,
	writer *sink.Writer,
	logger *slog.Logger,
) error {
	session := newSession(cfg, metrics, logger)
	if err := session.Connect(ctx); err != nil {
		return fmt.Errorf("connect for timeline sync: %w", err)
	}
	defer func() { _ = session.Close() }()

	syncer := timeline.NewSyncer(session, token, timeline.Options{
		ExtractDetails: cfg.Output.ExtractDetails,
		Logger:         logger,
		Metrics:        metrics,
	})

	items, err := syncer.FetchAll(ctx)
	if err != nil {
		return fmt.Errorf("sync timeline: %w", err)
	}

	table := normalize.DefaultTableOptions()
	path, err := writer.Write(sink.TransactionsBase, items, &table)
	if err != nil {
		return fmt.Errorf("write transactions: %w", err)
	}
	if path != "" {
		logger.Info("transactions exported", "path", path, "items", len(items))
	}
	return nil
}

// exportProfile fetches the cash position over a fresh session and writes
// the profile artifact
func exportProfile(
	ctx context.Context,
	cfg *config.Config,
	token string,
	metrics *metric.Metrics,
	writer *sink.Writer,
	logger *slog.Logger,
) error {
	session := newSession(cfg, metrics, logger)
	if err := session.Connect(ctx); err != nil {
		return fmt.Errorf("connect for profile fetch: %w", err)
	}
	defer func() { _ = session.Close() }()

	fetcher := profile.NewFetcher(session, token, profile.Options{
		Logger:  logger,
		Metrics: metrics,
	})

	records, err := fetcher.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch profile: %w", err)
	}

	path, err := writer.Write(sink.ProfileBase, records, nil)
	if err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	if path != "" {
		logger.Info("profile exported", "path", path, "records", len(records))
	}
	return nil
}
