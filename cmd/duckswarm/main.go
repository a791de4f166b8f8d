package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/joshp123/duckswarm/internal/blob"
	"github.com/joshp123/duckswarm/internal/bus"
	"github.com/joshp123/duckswarm/internal/choreo"
	"github.com/joshp123/duckswarm/internal/config"
	"github.com/joshp123/duckswarm/internal/logging"
	"github.com/joshp123/duckswarm/internal/server"
	"github.com/joshp123/duckswarm/internal/swarm"
)

var version = "dev"

const (
	connectTimeout  = 30 * time.Second
	fetchTimeout    = 30 * time.Second
	shutdownTimeout = 5 * time.Second
)

func main() {
	var (
		configPath string
		verbose    bool
	)

	root := &cobra.Command{
		Use:           "duckswarm",
		Short:         "Coordinate a swarm of dancing ducks over MQTT",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, configPath, verbose)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to the coordinator config (JSON or YAML)")
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging, including every published message")

	if err := root.ExecuteContext(context.Background()); err != nil {
		log.Fatalf("duckswarm: %v", err)
	}
}

func run(ctx context.Context, configPath string, verbose bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	swarmCfg, err := swarm.ConfigFromFile(cfg)
	if err != nil {
		return err
	}

	if cfg.RoutinesBlob != nil {
		routines, err := fetchRoutines(ctx, cfg.RoutinesBlob, logger)
		if err != nil {
			return err
		}
		swarmCfg.Routines = routines
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	client, err := bus.Connect(connectCtx, bus.Config{
		Host:           cfg.MQTTBroker,
		Port:           cfg.MQTTPort,
		ClientIDPrefix: "duckswarm",
		Logger:         logger.Named("mqtt"),
	})
	cancel()
	if err != nil {
		return err
	}
	defer client.Close()

	coordinator, err := swarm.NewCoordinator(swarmCfg, client, swarm.WithLogger(logger.Named("coordinator")))
	if err != nil {
		return err
	}
	unsubscribe, err := coordinator.Handler().Subscribe(client)
	if err != nil {
		return err
	}
	defer unsubscribe()

	registry, err := server.MetricsRegistry(version, swarm.NewMetricsCollector(coordinator))
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	grpcServer, err := server.NewGRPCServer(cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	health := server.HealthHandler(func() error {
		if !client.Connected() {
			return errors.New("mqtt disconnected")
		}
		return nil
	})
	status := server.StatusHandler(func() any { return coordinator.Status().Report() })
	httpServer := server.NewHTTPServer(cfg.HTTPAddr, server.NewMux(health, status, registry))

	logger.Info("duckswarm starting",
		zap.String("version", version),
		zap.Ints("device_ids", swarmCfg.DeviceIDs),
		zap.Int("routines", len(swarmCfg.Routines)),
		zap.String("broker", fmt.Sprintf("%s:%d", cfg.MQTTBroker, cfg.MQTTPort)),
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("grpc_addr", cfg.GRPCAddr))

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		if err := grpcServer.Serve(); err != nil {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		grpcServer.SetServing(true)
		defer grpcServer.SetServing(false)
		return coordinator.Run(groupCtx)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		grpcServer.Stop()
		return httpServer.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

func fetchRoutines(ctx context.Context, cfg *config.BlobConfig, logger *zap.Logger) ([]choreo.Routine, error) {
	store, err := blob.NewS3Store(cfg)
	if err != nil {
		return nil, err
	}
	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()
	routines, err := blob.LoadRoutines(fetchCtx, store)
	if err != nil {
		return nil, err
	}
	logger.Info("loaded routine catalog", zap.String("location", store.Location()), zap.Int("routines", len(routines)))
	return routines, nil
}
