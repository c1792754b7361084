package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Flowdeck-Labs/flowdeck-node/internal/database"
	"github.com/Flowdeck-Labs/flowdeck-node/internal/syncer"
	"github.com/Flowdeck-Labs/flowdeck-node/internal/workers"
)

var (
	syncType      string
	syncDeep      bool
	syncBatchSize int
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync pass and exit",
	Long: `Run a single sync pass over all connected providers and print the
result as JSON. Useful for cron-driven setups and debugging.`,
	Run: func(cmd *cobra.Command, args []string) {
		switch syncType {
		case syncer.SyncTypeExecutions, syncer.SyncTypeWorkflows, syncer.SyncTypeBackups, syncer.SyncTypeFull:
		default:
			fmt.Printf("Unknown sync type %q (use executions, workflows, backups or full)\n", syncType)
			os.Exit(1)
		}

		v, err := newVault()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		dbManager, err := database.NewSQLiteManager(config, logger)
		if err != nil {
			fmt.Printf("Failed to initialize database: %v\n", err)
			os.Exit(1)
		}
		defer dbManager.Close()

		ctx := context.Background()
		fetchWorkers := config.GetConfigInt("sync_fetch_workers", 8, 1, 64)
		pool := workers.NewWorkerPool(ctx, fetchWorkers, logger)
		pool.Start()
		defer pool.Stop()

		service := syncer.NewService(dbManager, v, config, logger, pool)

		summary, err := service.SyncAllProviders(ctx, syncer.Options{
			SyncType:  syncType,
			BatchSize: syncBatchSize,
			DeepSync:  syncDeep,
		})
		if err != nil {
			fmt.Printf("Sync failed: %v\n", err)
			os.Exit(1)
		}

		output, _ := json.MarshalIndent(summary, "", "  ")
		fmt.Println(string(output))

		if summary.Failed > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	syncCmd.Flags().StringVarP(&syncType, "type", "t", syncer.SyncTypeExecutions, "sync type: executions, workflows, backups or full")
	syncCmd.Flags().BoolVar(&syncDeep, "deep", false, "re-fetch executions even when a terminal copy is stored")
	syncCmd.Flags().IntVar(&syncBatchSize, "batch-size", 0, "executions per page (0 = configured default)")
	rootCmd.AddCommand(syncCmd)
}
