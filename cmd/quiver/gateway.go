package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quiverdb/quiver/pkg/api"
	"github.com/quiverdb/quiver/pkg/cluster"
	"github.com/quiverdb/quiver/pkg/config"
	"github.com/quiverdb/quiver/pkg/coordinator"
	"github.com/quiverdb/quiver/pkg/events"
	"github.com/quiverdb/quiver/pkg/health"
	"github.com/quiverdb/quiver/pkg/idgen"
	"github.com/quiverdb/quiver/pkg/log"
	"github.com/quiverdb/quiver/pkg/metrics"
	"github.com/quiverdb/quiver/pkg/operator"
	"github.com/quiverdb/quiver/pkg/resharder"
	"github.com/quiverdb/quiver/pkg/router"
	"github.com/quiverdb/quiver/pkg/shardclient"
	"github.com/quiverdb/quiver/pkg/types"
	"github.com/quiverdb/quiver/pkg/workerpool"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the Quiver gateway",
	Long: `Start the gateway process: connect to etcd, load the cluster config,
and serve the HTTP API until interrupted.`,
	RunE: runGateway,
}

func init() {
	gatewayCmd.Flags().StringP("config", "c", "", "path to the YAML config file")
}

func runGateway(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log.Init(cfg.LogConfigValue())
	logger := log.WithComponent("gateway")
	logger.Info().Str("version", Version).Str("listen_addr", cfg.ListenAddr).Msg("starting quiver gateway")

	store, err := cluster.NewStore(cfg.Etcd)
	if err != nil {
		return fmt.Errorf("failed to connect to cluster store: %w", err)
	}
	defer store.Close()

	clients := shardclient.NewPool(shardclient.Options{
		RequestTimeout: cfg.Shard.RequestTimeout.Std(),
		SearchTimeout:  cfg.Shard.SearchTimeout.Std(),
		BinaryResults:  cfg.Shard.BinaryResults,
	})

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	monitor := health.NewMonitor(cfg.Health, clients, func() []types.Shard {
		return store.Snapshot().Config.Shards
	})
	monitor.Events = broker
	monitor.Start()
	defer monitor.Stop()

	replicator := workerpool.New(cfg.Replication.Workers, cfg.Replication.QueueSize)
	replicator.OnDepthChange = func(depth int) {
		metrics.ReplicationQueueDepth.Set(float64(depth))
	}
	defer replicator.Close()

	coord := coordinator.New(
		router.New(store),
		clients,
		monitor,
		idgen.New(),
		replicator,
		coordinator.Options{
			SearchTimeout:  cfg.Shard.SearchTimeout.Std(),
			ReplicaTimeout: cfg.Shard.RequestTimeout.Std(),
		},
	)

	op := operator.New(store, resharder.New(clients, cfg.Resharding), cfg.Resharding.Background)
	op.Events = broker
	defer op.Stop()

	server := api.NewServer(coord, op, store, monitor, broker)
	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		logger.Error().Err(err).Msg("api server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("api shutdown did not complete cleanly")
	}

	logger.Info().Msg("gateway stopped")
	return nil
}
