package main

import (
	"context"
	stdErrors "errors"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"AgentFlow/internal/api"
	"AgentFlow/internal/auth"
	"AgentFlow/internal/config"
	"AgentFlow/internal/session"
	"AgentFlow/internal/task"
	"AgentFlow/pkg/logger"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	var address string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the task workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := root.cfg
			if address != "" {
				cfg.Server.Address = address
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&address, "addr", "", "override the configured listen address")
	return cmd
}

// serve 装配全部组件，并在 ctx 取消前运行 API 服务与任务处理器。
func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.Named("agentd")

	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}
	ag := buildAgent(cfg, registry)
	sessions := session.NewStore()

	queue, err := buildQueue(ctx, cfg.Queue)
	if err != nil {
		return err
	}
	store := task.NewMemoryStore()
	service := task.NewService(store, queue)
	defer func() {
		if err := service.Close(); err != nil {
			log.Warn("close task service", slog.Any("error", err))
		}
	}()

	authService, err := auth.NewService(cfg.Auth)
	if err != nil {
		return err
	}

	alerter := buildAlerter(cfg.Alerting)
	processor := task.NewProcessor(ag, store, sessions, queue,
		task.WithWorkerCount(cfg.Queue.Workers),
		task.WithAlertDispatcher(alerter),
	)

	server := api.NewServer(cfg.Server.Address, ag, sessions,
		api.WithTaskService(service),
		api.WithAuth(authService),
		api.WithRateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst),
		api.WithTimeouts(cfg.Server.ReadTimeout.Std(), cfg.Server.WriteTimeout.Std(), cfg.Server.ShutdownTimeout.Std()),
	)

	log.Info("agentd starting",
		slog.String("address", cfg.Server.Address),
		slog.String("queue", cfg.Queue.Driver),
		slog.Int("workers", cfg.Queue.Workers),
		slog.String("auth", string(cfg.Auth.Mode)),
		slog.Any("alert_channels", alerter.Channels()),
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return processor.Start(groupCtx)
	})
	group.Go(func() error {
		return server.Start(groupCtx)
	})

	if err := group.Wait(); err != nil && !stdErrors.Is(err, context.Canceled) {
		return err
	}
	log.Info("agentd stopped")
	return nil
}
