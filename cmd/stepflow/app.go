package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/rendis/stepflow/internal/config"
	"github.com/rendis/stepflow/internal/dispatch"
	"github.com/rendis/stepflow/internal/engine"
	"github.com/rendis/stepflow/internal/expressions"
	"github.com/rendis/stepflow/internal/steps"
	"github.com/rendis/stepflow/internal/store"
	"github.com/rendis/stepflow/internal/streaming"
	"github.com/rendis/stepflow/internal/telemetry"
)

// app holds the wired runtime shared by every command.
type app struct {
	store  store.Store
	driver *engine.Driver
	hub    streaming.EventHub
	redis  *redis.Client
	meters *telemetry.Provider
}

func newApp(ctx context.Context, c *config.Config) (*app, error) {
	st, err := store.Open(ctx, store.Options{Driver: c.DB.Driver, Path: c.DB.Path, DSN: c.DB.DSN})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a := &app{store: st}

	// stdout carries the MCP stdio transport, so metrics go to stderr.
	a.meters, err = telemetry.New(telemetry.Options{
		Exporter: c.Metrics.Exporter,
		Interval: c.Metrics.Interval,
		Writer:   os.Stderr,
		Version:  version,
	})
	if err != nil {
		a.close()
		return nil, err
	}

	if a.hub, err = a.newHub(ctx, c.Redis); err != nil {
		a.close()
		return nil, err
	}

	deps, err := stepDeps(c)
	if err != nil {
		a.close()
		return nil, err
	}
	reg, err := steps.NewDefaultRegistry(deps)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("register steps: %w", err)
	}

	a.driver, err = engine.NewDriver(st, reg, engine.Config{
		MaxSteps: c.Engine.MaxSteps,
		Logger:   logger,
		Hub:      a.hub,
		Meter:    a.meters.Meter("github.com/rendis/stepflow/internal/engine"),
	})
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// newHub selects the Redis hub when redis.addr is set, else the in-process hub.
func (a *app) newHub(ctx context.Context, rc config.RedisConfig) (streaming.EventHub, error) {
	if rc.Addr == "" {
		return streaming.NewMemoryHub(), nil
	}
	a.redis = redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})
	if err := a.redis.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis %s: %w", rc.Addr, err)
	}
	return streaming.NewRedisHub(a.redis, rc.Channel, logger), nil
}

// stepDeps uses the simulated dispatcher unless agent.gateway_url is set.
func stepDeps(c *config.Config) (steps.Deps, error) {
	conds, err := expressions.NewConditions()
	if err != nil {
		return steps.Deps{}, fmt.Errorf("condition engines: %w", err)
	}
	var d dispatch.Dispatcher = dispatch.Simulated{}
	if c.Agent.GatewayURL != "" {
		d = dispatch.NewBreaker(dispatch.NewHTTPGateway(c.Agent.GatewayURL, c.Agent.Timeout), dispatch.BreakerConfig{
			Threshold: c.Agent.BreakerThreshold,
			Cooldown:  c.Agent.BreakerCooldown,
		})
	}
	return steps.Deps{
		Dispatcher: d,
		Conditions: conds,
		JQ:         expressions.NewGoJQEngine(),
		Webhook: steps.WebhookConfig{
			Client:          &http.Client{},
			DefaultTimeout:  c.Webhook.Timeout,
			MaxResponseBody: c.Webhook.MaxResponseBody,
		},
	}, nil
}

func (a *app) close() {
	if a.meters != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.meters.Shutdown(ctx); err != nil {
			logger.Warn("flush metrics", "error", err)
		}
		cancel()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logger.Warn("close redis", "error", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warn("close store", "error", err)
		}
	}
}
