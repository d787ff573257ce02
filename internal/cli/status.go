package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/envelope-indexer/internal/control"
	"github.com/vietddude/envelope-indexer/internal/core/config"
	redisclient "github.com/vietddude/envelope-indexer/internal/infra/redis"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show projection counts and pending resync jobs for every configured network",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx := context.Background()
	store, db, err := control.OpenStore(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to open storage", "error", err)
		os.Exit(1)
	}
	if db != nil {
		defer func() {
			_ = db.Close()
		}()
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "NETWORK\tENABLED\tENVELOPES\tACTIVE\tCLAIMS")

	for _, n := range cfg.Networks {
		total, active, err := store.Envelopes().Count(ctx, n.Name)
		if err != nil {
			slog.Error("Failed to count envelopes", "network", n.Name, "error", err)
			continue
		}
		claims, err := store.Claims().Count(ctx, n.Name)
		if err != nil {
			slog.Error("Failed to count claims", "network", n.Name, "error", err)
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%t\t%d\t%d\t%d\n", n.Name, n.IsEnabled(), total, active, claims)
	}
	_ = w.Flush()

	printPendingJobs(ctx, cfg)
}

func printPendingJobs(ctx context.Context, cfg *config.AppConfig) {
	client, err := openRedis(cfg)
	if err != nil {
		slog.Warn("Failed to connect to Redis, skipping resync queue", "error", err)
		return
	}
	if client == nil {
		return
	}
	defer func() {
		_ = client.Close()
	}()

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "NETWORK\tKIND\tTARGET\tATTEMPTS\tREASON\tLAST ERROR")

	for _, n := range cfg.Networks {
		jobs, err := redisclient.NewResyncQueue(client, n.Name).Pending(ctx)
		if err != nil {
			slog.Error("Failed to list resync jobs", "network", n.Name, "error", err)
			continue
		}
		for _, job := range jobs {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
				n.Name, job.Kind, job.Target, job.Attempts, job.Reason, job.LastErr)
		}
	}
	_ = w.Flush()
}
