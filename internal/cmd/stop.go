package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Flowdeck-Labs/flowdeck-node/internal/utils"
)

var stopCmd = &cobra.Command{
	Use:     "stop",
	Aliases: []string{"stop-node"},
	Short:   "Stop the running sync node",
	Long:    "Stop the running sync node by sending a graceful termination signal",
	Args:    cobra.ExactArgs(0),
	Run: func(cmd *cobra.Command, args []string) {
		pidManager, err := utils.NewPIDManager(config)
		if err != nil {
			msg := fmt.Sprintf("Failed to create PID manager: %v", err)
			fmt.Println(msg)
			logger.Error(msg, "stop")
			os.Exit(1)
		}

		pid, err := pidManager.ReadPID()
		if err != nil {
			msg := fmt.Sprintf("Failed to read PID: %v", err)
			fmt.Println(msg)
			logger.Error(msg, "stop")
			os.Exit(1)
		}

		if !pidManager.IsProcessRunning(pid) {
			fmt.Printf("Process with PID %d is not running\n", pid)
			if err := pidManager.RemovePIDFile(); err == nil {
				fmt.Println("Removed stale PID file")
			}
			os.Exit(0)
		}

		fmt.Printf("Stopping sync node (PID: %d)...\n", pid)
		if err := pidManager.StopProcess(pid); err != nil {
			msg := fmt.Sprintf("Failed to stop process: %v", err)
			fmt.Println(msg)
			logger.Error(msg, "stop")
			os.Exit(1)
		}

		if err := pidManager.RemovePIDFile(); err != nil {
			fmt.Printf("Warning: Failed to remove PID file: %v\n", err)
		}

		fmt.Println("Flowdeck sync node stopped successfully")
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
}
