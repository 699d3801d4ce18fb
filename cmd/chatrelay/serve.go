package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/spf13/cobra"

	"github.com/pario-ai/chatrelay/pkg/config"
	"github.com/pario-ai/chatrelay/pkg/observability"
	"github.com/pario-ai/chatrelay/pkg/proxy"
	"github.com/pario-ai/chatrelay/pkg/relay"
	"github.com/pario-ai/chatrelay/pkg/tracker"
	"github.com/pario-ai/chatrelay/pkg/upstream"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		envFiles   []string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat relay HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.LoadEnvFiles(envFiles...)
			if err != nil {
				return err
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			observability.SetLogLevel(cfg.LogLevel)
			for _, f := range loaded {
				fiberlog.Infof("loaded environment from %s", f)
			}
			if cfg.OpenAI.APIKey == "" {
				fiberlog.Warn("OPENAI_API_KEY is not set; upstream calls will fail")
			}

			tr, err := tracker.New()
			if err != nil {
				return fmt.Errorf("init tracker: %w", err)
			}
			defer func() { _ = tr.Close() }()

			metrics := observability.NewMetrics(cfg.MetricsNamespace)
			dispatcher := upstream.NewOpenAI(upstream.Options{
				APIKey:  cfg.OpenAI.APIKey,
				BaseURL: cfg.OpenAI.BaseURL,
				Timeout: cfg.OpenAI.Timeout,
			})
			svc, err := relay.NewFromConfig(cfg, dispatcher, relay.Options{Tracker: tr, Metrics: metrics})
			if err != nil {
				return err
			}

			srv := proxy.New(cfg, svc, metrics)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			fiberlog.Infof("model=%s max_history=%d max_tokens=%d cache_limit=%d rate_limit=%d/%s",
				cfg.OpenAI.Model, cfg.Chat.MaxHistory, cfg.Chat.MaxTokens, cfg.Cache.Limit, cfg.RateLimit.Max, config.RateWindow)
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to optional YAML config file")
	cmd.Flags().StringSliceVar(&envFiles, "env-file", []string{".env"}, ".env files to load before reading the environment")
	return cmd
}
