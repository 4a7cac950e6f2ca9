package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/swarm/pkg/bus"
	"github.com/cuemby/swarm/pkg/coordinator"
	"github.com/cuemby/swarm/pkg/log"
	"github.com/cuemby/swarm/pkg/metrics"
	"github.com/cuemby/swarm/pkg/registry"
	"github.com/cuemby/swarm/pkg/scheduler"
	"github.com/cuemby/swarm/pkg/swarmconfig"
	"github.com/cuemby/swarm/pkg/worker"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the coordinator, optionally with embedded demo workers",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().String("config", "", "Path to a swarmconfig YAML file (defaults used if omitted)")
	runCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address to serve /metrics, /health, /ready, /live on")
	runCmd.Flags().Bool("memory-bus", true, "Use the in-process memory bus instead of connecting to NATS")
	runCmd.Flags().Int("embedded-workers", 0, "Number of embedded EchoExecutor demo workers to start")
}

func runRun(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	useMemoryBus, _ := cmd.Flags().GetBool("memory-bus")
	embeddedWorkers, _ := cmd.Flags().GetInt("embedded-workers")

	cfg := swarmconfig.Default()
	if configPath != "" {
		loaded, err := swarmconfig.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}

	metrics.SetVersion(Version)
	metrics.RegisterComponent("bus", false, "initializing")
	metrics.RegisterComponent("registry", false, "initializing")
	metrics.RegisterComponent("scheduler", false, "initializing")

	var b bus.Bus
	if useMemoryBus {
		b = bus.NewMemory(bus.WithMaxMessageSize(cfg.Bus.MaxMessageSize))
	} else {
		natsBus, err := bus.NewNATS(bus.NATSConfig{
			URL:                  cfg.Bus.URL,
			ConnectionTimeout:    cfg.Bus.ConnectionTimeout(),
			MaxReconnectAttempts: cfg.Bus.MaxReconnectAttempts,
			ReconnectDelay:       cfg.Bus.ReconnectDelay(),
			MaxMessageSize:       cfg.Bus.MaxMessageSize,
		})
		if err != nil {
			return fmt.Errorf("connecting to bus: %w", err)
		}
		b = natsBus
		defer natsBus.Close()
	}
	metrics.RegisterComponent("bus", true, "connected")

	reg := registry.New(cfg.Coordinator.HeartbeatInterval())
	metrics.RegisterComponent("registry", true, "ready")

	coord := coordinator.New(reg, b, cfg.Coordinator.EvictInterval())
	sched := scheduler.New(reg, b, cfg.Scheduler.TickInterval(), coord.OnDispatch, coord.OnTerminal)
	coord.AttachScheduler(sched)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := coord.Start(ctx); err != nil {
		return fmt.Errorf("starting coordinator: %w", err)
	}
	metrics.RegisterComponent("scheduler", true, "running")

	var runtimes []*worker.Runtime
	for i := 0; i < embeddedWorkers; i++ {
		id := fmt.Sprintf("embedded-%d", i)
		rt := worker.New(id, registry.WorkerTypeGeneralPurpose, registry.Capability{
			Name:               "embedded-demo",
			SupportedKinds:     []string{"custom:echo:1"},
			MaxConcurrentTasks: 4,
		}, b)
		rt.AddExecutor(worker.NewEchoExecutor("echo", "1"))

		if err := coord.RegisterWorker(rt.Record()); err != nil {
			return fmt.Errorf("registering embedded worker %s: %w", id, err)
		}
		if err := rt.Start(ctx); err != nil {
			return fmt.Errorf("starting embedded worker %s: %w", id, err)
		}
		runtimes = append(runtimes, rt)
	}
	if embeddedWorkers > 0 {
		log.Logger.Info().Int("count", embeddedWorkers).Msg("started embedded demo workers")
	}

	http.Handle("/metrics", metrics.Handler())
	http.Handle("/health", metrics.HealthHandler())
	http.Handle("/ready", metrics.ReadyHandler())
	http.Handle("/live", metrics.LivenessHandler())

	server := &http.Server{Addr: metricsAddr}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Logger.Error().Err(err).Msg("metrics server error")
		}
	}()
	log.Logger.Info().Str("addr", metricsAddr).Msg("serving /metrics, /health, /ready, /live")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Logger.Info().Msg("shutdown signal received")

	for _, rt := range runtimes {
		rt.Stop(cfg.Coordinator.CancelGrace())
	}
	if err := coord.Shutdown(cfg.Coordinator.CancelGrace()); err != nil {
		log.Logger.Error().Err(err).Msg("coordinator shutdown error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)

	return nil
}
