package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"goon_chat/pkg/ai"
	_ "goon_chat/pkg/ai/providers"
	"goon_chat/pkg/config"
	"goon_chat/pkg/logging"
	"goon_chat/pkg/server"
	"goon_chat/pkg/transport"
	"goon_chat/pkg/version"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

// serverEnv is the process configuration read from the environment. The
// provider settings come from the shared config file.
type serverEnv struct {
	Addr            string        `env:"GOON_ADDR,default=:3000"`
	Env             string        `env:"GOON_ENV,default=production"`
	ConfigPath      string        `env:"GOON_CONFIG"`
	ShutdownTimeout time.Duration `env:"GOON_SHUTDOWN_TIMEOUT,default=10s"`
}

func (e serverEnv) development() bool {
	return e.Env == "development"
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()
	var senv serverEnv
	if _, err := env.UnmarshalFromEnviron(&senv); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if senv.ConfigPath == "" {
		senv.ConfigPath = config.GetConfigPath()
	}

	cfg, err := config.Load(senv.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg, err = config.ApplyEnv(cfg); err != nil {
		return err
	}
	if err := cfg.ValidateProvider(); err != nil {
		return fmt.Errorf("invalid config %s: %w", senv.ConfigPath, err)
	}

	logger := logging.InitWriter(cfg, os.Stderr)

	provider, err := ai.FromConfig(cfg)
	if err != nil {
		return fmt.Errorf("create provider: %w", err)
	}
	settings := transport.SettingsFromConfig(cfg)
	handler := server.NewHandler(provider, server.Options{
		Model:        settings.Model,
		Temperature:  settings.Temperature,
		MaxTokens:    settings.MaxTokens,
		SystemPrompt: settings.SystemPrompt,
		Development:  senv.development(),
		Logger:       logger,
	})

	srv := &http.Server{
		Addr:              senv.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server_listen",
			"addr", senv.Addr,
			"env", senv.Env,
			"provider", cfg.LLMProvider,
			"version", version.Summary(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen on %s: %w", senv.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("server_shutdown", "timeout", senv.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), senv.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("server_stopped")
	return nil
}
