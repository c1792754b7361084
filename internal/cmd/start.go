package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Flowdeck-Labs/flowdeck-node/internal/api"
	"github.com/Flowdeck-Labs/flowdeck-node/internal/database"
	"github.com/Flowdeck-Labs/flowdeck-node/internal/scheduler"
	"github.com/Flowdeck-Labs/flowdeck-node/internal/syncer"
	"github.com/Flowdeck-Labs/flowdeck-node/internal/utils"
	"github.com/Flowdeck-Labs/flowdeck-node/internal/workers"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the sync node",
	Long: `Start the sync node as a long-running process.

This will:
- Open the local SQLite mirror
- Schedule periodic execution, workflow and backup syncs
- Serve the HTTP API for manual triggers and health`,
	Run: func(cmd *cobra.Command, args []string) {
		logger.Info("Starting Flowdeck sync node...", "cli")

		pidManager, err := utils.NewPIDManager(config)
		if err != nil {
			logger.Error(fmt.Sprintf("Failed to create PID manager: %v", err), "cli")
			os.Exit(1)
		}

		if existingPID, err := pidManager.ReadPID(); err == nil {
			if pidManager.IsProcessRunning(existingPID) {
				fmt.Printf("Another instance is already running with PID: %d\n", existingPID)
				fmt.Println("Use 'flowdeck-node stop' to stop the existing instance first")
				os.Exit(1)
			}
			pidManager.RemovePIDFile()
		}

		if err := pidManager.WritePID(os.Getpid()); err != nil {
			logger.Error(fmt.Sprintf("Failed to write PID file: %v", err), "cli")
			os.Exit(1)
		}
		defer pidManager.RemovePIDFile()

		v, err := newVault()
		if err != nil {
			logger.Error(fmt.Sprintf("Failed to initialize vault: %v", err), "cli")
			fmt.Println(err)
			os.Exit(1)
		}

		dbManager, err := database.NewSQLiteManager(config, logger)
		if err != nil {
			logger.Error(fmt.Sprintf("Failed to initialize database: %v", err), "cli")
			os.Exit(1)
		}
		defer dbManager.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		fetchWorkers := config.GetConfigInt("sync_fetch_workers", 8, 1, 64)
		pool := workers.NewWorkerPool(ctx, fetchWorkers, logger)
		pool.Start()

		service := syncer.NewService(dbManager, v, config, logger, pool)
		sched := scheduler.NewScheduler(ctx, service, config, logger)
		sched.Start()

		apiServer := api.NewAPIServer(config, logger, dbManager, sched, service)
		if err := apiServer.Start(); err != nil {
			logger.Error(fmt.Sprintf("Failed to start API server: %v", err), "cli")
			sched.Stop()
			pool.Stop()
			os.Exit(1)
		}

		// Daily storage upkeep
		go func() {
			ticker := time.NewTicker(24 * time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					dbManager.PerformMaintenance()
				case <-ctx.Done():
					return
				}
			}
		}()

		logger.Info(fmt.Sprintf("Sync node started with PID %d, API on port %s", os.Getpid(), apiServer.Port()), "cli")
		fmt.Println("Flowdeck sync node is running. Press Ctrl+C to stop.")

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutdown signal received, stopping node...", "cli")
		sched.Stop()
		if err := apiServer.Stop(); err != nil {
			logger.Error(fmt.Sprintf("Error stopping API server: %v", err), "cli")
		}
		pool.Stop()
		cancel()

		logger.Info("Flowdeck sync node stopped", "cli")
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
