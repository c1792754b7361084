package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Flowdeck-Labs/flowdeck-node/internal/utils"
	"github.com/Flowdeck-Labs/flowdeck-node/internal/vault"
)

var (
	configPath string
	config     *utils.ConfigManager
	logger     *utils.LogsManager
)

var rootCmd = &cobra.Command{
	Use:   "flowdeck-node",
	Short: "Flowdeck sync node",
	Long: `A monitoring node that incrementally mirrors workflow and execution
state from remote n8n instances into a local SQLite database.

The dashboard reads from the local mirror; this node keeps the mirror
fresh through scheduled and manually triggered sync runs.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config = utils.NewConfigManager(configPath)
		logger = utils.NewLogsManager(config)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Close()
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// newVault builds the credential vault from the configured secret. The
// environment variable wins over the config file so the secret can stay
// out of files on disk.
func newVault() (*vault.Vault, error) {
	secret := config.GetConfigWithEnv("encryption_secret", "FLOWDECK_ENCRYPTION_SECRET", "")
	if secret == "" {
		return nil, fmt.Errorf("no encryption secret configured, set FLOWDECK_ENCRYPTION_SECRET or the encryption_secret config key")
	}
	return vault.New(secret)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
}
