// Package main is the entry point for the bulkpost dispatch service.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bulkpost/bulkpost/internal/config"
	"github.com/bulkpost/bulkpost/internal/dispatch"
	"github.com/bulkpost/bulkpost/internal/provider"
	"github.com/bulkpost/bulkpost/internal/provider/graph"
	"github.com/bulkpost/bulkpost/internal/provider/ses"
	"github.com/bulkpost/bulkpost/internal/provider/stdout"
	webtls "github.com/bulkpost/bulkpost/internal/tls"
	"github.com/bulkpost/bulkpost/internal/web"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file (optional)")
	flag.Parse()

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	setupLogger(cfg.Logging.Level)

	// Optional TLS for the API listener
	tlsConfig, err := loadTLS(cfg)
	if err != nil {
		slog.Error("failed to setup TLS", "error", err)
		os.Exit(1)
	}

	// Select the default email delivery provider
	prov := selectProvider(cfg)

	dispatcher := dispatch.New(dispatch.Config{
		Provider:    prov,
		Concurrency: cfg.Dispatch.Concurrency,
		SendTimeout: cfg.Dispatch.SendTimeout,
	})

	server := web.New(web.ServerConfig{
		ListenAddr:  cfg.HTTP.Listen,
		MaxBodySize: cfg.HTTP.MaxBodySize,
		JWTSecret:   cfg.Auth.JWTSecret,
		TLSConfig:   tlsConfig,
		Dispatcher:  dispatcher,
	})

	slog.Info("starting bulkpost",
		"listen", cfg.HTTP.Listen,
		"provider", prov.Name(),
		"auth_enabled", cfg.AuthEnabled(),
		"concurrency", cfg.Dispatch.Concurrency,
	)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig := <-sigCh
		slog.Info("received signal, initiating shutdown", "signal", sig)
		cancel()
	}()

	// Start the server (blocks until context is cancelled)
	if err := server.ListenAndServe(ctx); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("bulkpost stopped")
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// loadTLS returns a TLS configuration when cert files are configured or a
// self-signed certificate was requested; nil means plain HTTP.
func loadTLS(cfg *config.Config) (*tls.Config, error) {
	if cfg.TLS.CertFile == "" && cfg.TLS.KeyFile == "" && !cfg.TLS.SelfSigned {
		return nil, nil
	}
	return webtls.LoadOrGenerateTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
}

// setupLogger configures the global slog logger with JSON output and the
// specified log level.
func setupLogger(level string) {
	var logLevel slog.Level

	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// selectProvider chooses the default delivery backend based on configuration.
// If the PROVIDER setting is set, it takes precedence.
// Otherwise, it falls back to auto-detection (Graph, then SES, else stdout).
func selectProvider(cfg *config.Config) provider.Provider {
	switch cfg.Provider {
	case "ses":
		if !cfg.SESConfigured() {
			slog.Error("SES provider selected but SES_REGION and SES_SENDER are required")
			os.Exit(1)
		}
		slog.Info("using AWS SES provider",
			"region", cfg.SES.Region,
			"sender", cfg.SES.Sender,
		)
		return mustSES(cfg)

	case "graph":
		if !cfg.GraphConfigured() {
			slog.Error("Graph provider selected but GRAPH_TENANT_ID, GRAPH_CLIENT_ID, GRAPH_CLIENT_SECRET, and GRAPH_SENDER are required")
			os.Exit(1)
		}
		slog.Info("using Microsoft Graph provider",
			"sender", cfg.Graph.Sender,
		)
		return newGraph(cfg)

	case "stdout":
		slog.Info("using stdout provider")
		return stdout.New()

	case "":
		// Auto-detection fallback
		if cfg.GraphConfigured() {
			slog.Info("using Microsoft Graph provider (auto-detected)",
				"sender", cfg.Graph.Sender,
			)
			return newGraph(cfg)
		}
		if cfg.SESConfigured() {
			slog.Info("using AWS SES provider (auto-detected)",
				"region", cfg.SES.Region,
				"sender", cfg.SES.Sender,
			)
			return mustSES(cfg)
		}
		slog.Info("no provider configured, using stdout provider")
		return stdout.New()

	default:
		slog.Error("unknown provider", "provider", cfg.Provider)
		os.Exit(1)
		return nil
	}
}

func newGraph(cfg *config.Config) provider.Provider {
	return graph.New(graph.GraphProviderConfig{
		TenantID:     cfg.Graph.TenantID,
		ClientID:     cfg.Graph.ClientID,
		ClientSecret: cfg.Graph.ClientSecret,
		Sender:       cfg.Graph.Sender,
	})
}

func mustSES(cfg *config.Config) provider.Provider {
	p, err := ses.New(context.Background(), ses.SESProviderConfig{
		Region:          cfg.SES.Region,
		AccessKeyID:     cfg.SES.AccessKeyID,
		SecretAccessKey: cfg.SES.SecretAccessKey,
		Sender:          cfg.SES.Sender,
	})
	if err != nil {
		slog.Error("failed to create SES provider", "error", err)
		os.Exit(1)
	}
	return p
}
