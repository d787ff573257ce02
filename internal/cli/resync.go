package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/envelope-indexer/internal/control"
	"github.com/vietddude/envelope-indexer/internal/core/config"
	"github.com/vietddude/envelope-indexer/internal/core/domain"
	redisclient "github.com/vietddude/envelope-indexer/internal/infra/redis"
)

var (
	resyncNetwork string
	resyncEnqueue bool
)

var resyncCmd = &cobra.Command{
	Use:   "resync",
	Short: "Reconcile the projection against chain state",
}

var resyncEnvelopeCmd = &cobra.Command{
	Use:   "envelope [envelope_id]",
	Short: "Resync one envelope from its on-chain object",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runResync(domain.ResyncKindEnvelope, args[0])
	},
}

var resyncTxCmd = &cobra.Command{
	Use:   "tx [digest]",
	Short: "Re-apply the envelope events of a transaction",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runResync(domain.ResyncKindTransaction, args[0])
	},
}

var resyncClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every queued resync job of a network",
	Args:  cobra.NoArgs,
	Run:   runResyncClear,
}

func init() {
	resyncCmd.PersistentFlags().StringVar(&resyncNetwork, "network", "", "network name (default is the first enabled network)")
	resyncEnvelopeCmd.Flags().BoolVar(&resyncEnqueue, "enqueue", false, "push the job onto the Redis resync queue instead of running it")
	resyncTxCmd.Flags().BoolVar(&resyncEnqueue, "enqueue", false, "push the job onto the Redis resync queue instead of running it")
	resyncCmd.AddCommand(resyncEnvelopeCmd, resyncTxCmd, resyncClearCmd)
	rootCmd.AddCommand(resyncCmd)
}

// targetNetwork resolves --network, defaulting to the first enabled network.
func targetNetwork(cfg *config.AppConfig) domain.Network {
	if resyncNetwork != "" {
		return domain.Network(resyncNetwork)
	}
	enabled := cfg.EnabledNetworks()
	if len(enabled) == 0 {
		slog.Error("No enabled networks configured")
		os.Exit(1)
	}
	return enabled[0].Name
}

// openRedis connects to the configured Redis server, or returns nil when none
// is configured.
func openRedis(cfg *config.AppConfig) (*redisclient.Client, error) {
	if !cfg.Redis.Enabled() {
		return nil, nil
	}
	return redisclient.NewClient(cfg.Redis)
}

func runResyncClear(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	network := targetNetwork(cfg)

	client, err := openRedis(cfg)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	if client == nil {
		slog.Error("Redis is not configured")
		os.Exit(1)
	}
	defer func() {
		_ = client.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	queue := redisclient.NewResyncQueue(client, network)
	n, err := queue.Count(ctx)
	if err != nil {
		slog.Error("Failed to count resync jobs", "network", network, "error", err)
		os.Exit(1)
	}
	if err := queue.Clear(ctx); err != nil {
		slog.Error("Failed to clear resync queue", "network", network, "error", err)
		os.Exit(1)
	}
	slog.Info("Resync queue cleared", "network", network, "jobs", n)
}

func runResync(kind domain.ResyncKind, target string) {
	cfg := loadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	app, err := control.NewIndexer(ctx, control.FromAppConfig(cfg))
	if err != nil {
		slog.Error("Failed to initialize indexer", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	network := targetNetwork(cfg)

	if resyncEnqueue {
		queue := app.Queue(network)
		if queue == nil {
			slog.Error("Resync queue unavailable; check redis config and network", "network", network)
			os.Exit(1)
		}
		job := &domain.ResyncJob{Network: network, Kind: kind, Target: target, Reason: "manual"}
		if err := queue.Enqueue(ctx, job, 0); err != nil {
			slog.Error("Failed to enqueue resync", "error", err)
			os.Exit(1)
		}
		slog.Info("Resync queued", "network", network, "job", job.ID)
		return
	}

	engine, ok := app.Engine(network)
	if !ok {
		slog.Error("Network not configured or disabled", "network", network)
		os.Exit(1)
	}

	var result any
	switch kind {
	case domain.ResyncKindEnvelope:
		result, err = engine.ResyncEnvelope(ctx, target)
	case domain.ResyncKindTransaction:
		result, err = engine.ResyncTransaction(ctx, target)
	}
	if err != nil {
		slog.Error("Resync failed", "network", network, "kind", kind, "target", target, "error", err)
		os.Exit(1)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		slog.Error("Failed to encode resync result", "network", network, "kind", kind, "target", target, "error", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
