// Command undockd runs the undock sequencer: it listens for battery
// telemetry, drives the charger and locomotion interfaces, and serves the
// trigger/cancel request interface.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-undock/internal/config"
	"github.com/teslashibe/go-undock/internal/log"
	"github.com/teslashibe/go-undock/internal/redisconn"
	"github.com/teslashibe/go-undock/pkg/battery"
	"github.com/teslashibe/go-undock/pkg/charger"
	"github.com/teslashibe/go-undock/pkg/hub"
	"github.com/teslashibe/go-undock/pkg/motion"
	"github.com/teslashibe/go-undock/pkg/status"
	"github.com/teslashibe/go-undock/pkg/undock"
	"github.com/teslashibe/go-undock/pkg/web"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "undockd: %v\n", err)
		os.Exit(1)
	}
	log.Init(cfg.Log.Level)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info("shutting down", "signal", sig.String())
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		log.Error("undockd exited", "error", err)
		os.Exit(1)
	}
	log.Info("goodbye")
}

func run(ctx context.Context, cfg config.Config) error {
	rdb, err := redisconn.Connect(ctx, cfg.Redis, log.For("redis"))
	if err != nil {
		return err
	}
	defer rdb.Close()

	monitor := battery.NewMonitor()
	subscriber := battery.NewSubscriber(rdb, cfg.Topics.BatteryState, monitor, log.For("battery"))

	trigger := charger.NewHTTPTrigger(cfg.Charger.StopURL, cfg.Charger.Timeout, log.For("charger"))

	limits := motion.Limits{MaxLinear: cfg.Move.MaxLinearVelocity, MaxAngular: motion.DefaultLimits.MaxAngular}
	var commander motion.Commander
	switch cfg.Move.Driver {
	case config.DriverHTTP:
		commander = motion.NewHTTPCommander(cfg.Move.HTTPURL, cfg.Move.Timeout, limits)
	default:
		commander = motion.NewRedisCommander(rdb, cfg.Topics.CmdVel, limits)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	statusHub := hub.New("status", log.For("hub"))
	reporter := status.Multi{
		status.NewRedisReporter(rdb, cfg.Topics.Status),
		status.LogReporter{Logger: log.For("status")},
		status.NewHubReporter(statusHub),
	}

	seq := undock.New(undock.Options{
		Rate:                  cfg.Loop.Rate,
		DischargeTimeoutTicks: cfg.Discharge.TimeoutTicks,
		MaxAttempts:           cfg.Discharge.MaxAttempts,
		MoveCycles:            cfg.Move.Cycles,
		LinearVelocity:        cfg.Move.LinearVelocity,
	}, monitor, trigger, commander, reporter,
		undock.WithMetrics(undock.NewMetrics(reg)),
		undock.WithLogger(log.For("undock")),
	)

	server := web.NewServer(cfg.HTTP.Listen, seq, statusHub, reg, log.For("web"))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return subscriber.Run(ctx) })
	g.Go(func() error { return seq.Run(ctx) })
	g.Go(func() error { return server.Start(ctx) })

	log.Info("undockd running",
		"driver", cfg.Move.Driver,
		"battery_topic", cfg.Topics.BatteryState,
		"status_topic", cfg.Topics.Status,
		"listen", cfg.HTTP.Listen,
	)
	return g.Wait()
}
