// Command gateway runs the multi-provider model advice server described by
// spec.md: a line-delimited JSON-RPC 2.0 process over stdin/stdout exposing
// the models/advice/idiom tools (§4.6).
//
// # Basic usage
//
//	gateway serve --config gateway.yaml
//
// # Environment variables
//
//   - OPENAI_API_KEY, ANTHROPIC_API_KEY, GOOGLE_API_KEY (or GEMINI_API_KEY),
//     XAI_API_KEY (or GROK_API_KEY): provider credentials (§6)
//   - GATEWAY_STORE_PATH, GATEWAY_LOG_LEVEL, GATEWAY_LOG_FORMAT,
//     GATEWAY_MAX_HISTORY_MESSAGES, GATEWAY_INITIAL_POLL_DELAY_MS,
//     GATEWAY_MAX_POLL_DELAY_MS: gateway settings (§A.3), override any
//     matching value from --config
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelbridge/gateway/internal/asyncengine"
	"github.com/modelbridge/gateway/internal/capability"
	"github.com/modelbridge/gateway/internal/concurrency"
	"github.com/modelbridge/gateway/internal/config"
	"github.com/modelbridge/gateway/internal/modelregistry"
	"github.com/modelbridge/gateway/internal/providerapi"
	"github.com/modelbridge/gateway/internal/rpc"
	"github.com/modelbridge/gateway/internal/store"
	"github.com/modelbridge/gateway/internal/syncengine"
	"github.com/modelbridge/gateway/internal/telemetry"
	"github.com/modelbridge/gateway/internal/toolrouter"
	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "gateway",
		Short:        "Multi-provider model advice gateway",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(buildServeCmd())
	return rootCmd
}

func buildServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the JSON-RPC stdio server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := telemetry.NewLogger(telemetry.LogConfig{Level: cfg.LogLevel, Format: cfg.LogFormat})
	slog.SetDefault(logger)
	logger.Info("starting gateway", "version", version, "commit", commit, "storePath", cfg.StorePath)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.StorePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	bindings := modelregistry.BindingsFromEnv()
	registry := modelregistry.New(bindings)

	liveBindings := make(map[modelregistry.Provider]modelregistry.Binding)
	for _, p := range modelregistry.AllProviders() {
		if b, ok := registry.Binding(p); ok {
			liveBindings[p] = b
		}
	}
	if len(liveBindings) == 0 {
		logger.Warn("no provider API keys configured; every model call will fail until one is set")
	}

	providers, err := providerapi.Build(ctx, liveBindings)
	if err != nil {
		return fmt.Errorf("build provider clients: %w", err)
	}

	concurrencyCfg := concurrency.DefaultConfig()
	for name, capacity := range cfg.Concurrency {
		concurrencyCfg.Capacities[modelregistry.Provider(name)] = capacity
	}
	limiter := concurrency.New(concurrencyCfg)

	sync := syncengine.New(registry, providers, limiter, capability.New())
	async := asyncengine.New(st, registry, providers, limiter)

	router := toolrouter.NewRouter(
		toolrouter.NewModelsTool(registry),
		toolrouter.NewAdviceTool(registry, sync, async),
		toolrouter.NewIdiomTool(sync),
	)

	server := rpc.NewServer(router, logger)
	logger.Info("gateway ready, serving JSON-RPC over stdio")

	if err := server.Serve(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("gateway stopped")
	return nil
}
