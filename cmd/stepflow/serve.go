package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rendis/stepflow/internal/scheduler"
	"github.com/rendis/stepflow/internal/validation"
	"github.com/rendis/stepflow/pkg/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the MCP tools over stdio and run scheduled workflows",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func runServe(ctx context.Context) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	validator, err := validation.NewWorkflowValidator()
	if err != nil {
		return fmt.Errorf("workflow validator: %w", err)
	}

	srv, err := mcp.NewServer(mcp.ServerDeps{
		Executor:  a.driver,
		Store:     a.store,
		Validator: validator,
		Hub:       a.hub,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	if cfg.Scheduler.Enabled {
		sched := scheduler.NewScheduler(a.store, a.driver, cfg.Scheduler.Interval, logger,
			scheduler.WithMaxConcurrent(cfg.Scheduler.MaxConcurrent))
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer func() {
			if err := sched.Stop(); err != nil {
				logger.Warn("stop scheduler", "error", err)
			}
		}()
	}

	logger.Info("stepflow serving",
		"db_driver", cfg.DB.Driver,
		"scheduler", cfg.Scheduler.Enabled,
		"redis", cfg.Redis.Addr != "",
		"agent_gateway", cfg.Agent.GatewayURL != "",
	)
	if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("stepflow stopped")
	return nil
}
