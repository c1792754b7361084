package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Flowdeck-Labs/flowdeck-node/internal/database"
	"github.com/Flowdeck-Labs/flowdeck-node/internal/syncer"
	"github.com/Flowdeck-Labs/flowdeck-node/internal/vault"
	"github.com/Flowdeck-Labs/flowdeck-node/internal/workers"
)

var (
	providerName   string
	providerURL    string
	providerAPIKey string
	providerTest   bool
)

var providerCmd = &cobra.Command{
	Use:   "provider",
	Short: "Manage remote n8n providers",
}

var providerAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a remote n8n instance",
	Run: func(cmd *cobra.Command, args []string) {
		if providerName == "" || providerURL == "" || providerAPIKey == "" {
			fmt.Println("--name, --url and --api-key are required")
			os.Exit(1)
		}

		v, dbManager := mustOpenStorage()
		defer dbManager.Close()

		encrypted, err := v.Encrypt(providerAPIKey)
		if err != nil {
			fmt.Printf("Failed to encrypt API key: %v\n", err)
			os.Exit(1)
		}

		provider := &database.Provider{
			Name:            providerName,
			BaseURL:         providerURL,
			APIKeyEncrypted: encrypted,
			IsConnected:     true,
			Status:          database.ProviderStatusUnknown,
		}
		if err := dbManager.Providers.CreateProvider(provider); err != nil {
			fmt.Printf("Failed to create provider: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Provider %d (%s) registered\n", provider.ID, provider.Name)

		if providerTest {
			if err := testProvider(v, dbManager, provider.ID); err != nil {
				fmt.Printf("Connection test failed: %v\n", err)
				os.Exit(1)
			}
			fmt.Println("Connection test passed")
		}
	},
}

var providerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered providers",
	Run: func(cmd *cobra.Command, args []string) {
		dbManager, err := database.NewSQLiteManager(config, logger)
		if err != nil {
			fmt.Printf("Failed to initialize database: %v\n", err)
			os.Exit(1)
		}
		defer dbManager.Close()

		providers, err := dbManager.Providers.GetAllProviders()
		if err != nil {
			fmt.Printf("Failed to list providers: %v\n", err)
			os.Exit(1)
		}

		if len(providers) == 0 {
			fmt.Println("No providers registered")
			return
		}

		for _, p := range providers {
			lastChecked := "never"
			if p.LastCheckedAt != nil {
				lastChecked = p.LastCheckedAt.Format(time.RFC3339)
			}
			fmt.Printf("%d\t%s\t%s\t%s\tconnected=%v\tlast checked %s\n",
				p.ID, p.Name, p.BaseURL, p.Status, p.IsConnected, lastChecked)
		}
	},
}

var providerRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a provider and its mirrored data",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			fmt.Printf("Invalid provider id %q\n", args[0])
			os.Exit(1)
		}

		_, dbManager := mustOpenStorage()
		defer dbManager.Close()

		provider, err := dbManager.Providers.GetProvider(id)
		if err != nil {
			fmt.Printf("Failed to read provider: %v\n", err)
			os.Exit(1)
		}
		if provider == nil {
			fmt.Printf("Provider %d not found\n", id)
			os.Exit(1)
		}

		if err := dbManager.Providers.DeleteProvider(id); err != nil {
			fmt.Printf("Failed to delete provider: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Provider %d (%s) removed\n", id, provider.Name)
	},
}

var providerTestCmd = &cobra.Command{
	Use:   "test <id>",
	Short: "Test a provider's connection and credentials",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			fmt.Printf("Invalid provider id %q\n", args[0])
			os.Exit(1)
		}

		v, dbManager := mustOpenStorage()
		defer dbManager.Close()

		if err := testProvider(v, dbManager, id); err != nil {
			fmt.Printf("Connection test failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Connection test passed")
	},
}

func mustOpenStorage() (*vault.Vault, *database.SQLiteManager) {
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
	return v, dbManager
}

func testProvider(v *vault.Vault, dbManager *database.SQLiteManager, providerID int64) error {
	ctx := context.Background()
	pool := workers.NewWorkerPool(ctx, 1, logger)
	pool.Start()
	defer pool.Stop()

	service := syncer.NewService(dbManager, v, config, logger, pool)

	timeout := config.GetConfigDuration("remote_timeout", 10*time.Second)
	testCtx, cancel := context.WithTimeout(ctx, timeout+time.Second)
	defer cancel()

	return service.TestConnection(testCtx, providerID)
}

func init() {
	providerAddCmd.Flags().StringVar(&providerName, "name", "", "display name")
	providerAddCmd.Flags().StringVar(&providerURL, "url", "", "base URL of the n8n instance")
	providerAddCmd.Flags().StringVar(&providerAPIKey, "api-key", "", "n8n API key (stored encrypted)")
	providerAddCmd.Flags().BoolVar(&providerTest, "test", false, "test the connection after registering")

	providerCmd.AddCommand(providerAddCmd)
	providerCmd.AddCommand(providerListCmd)
	providerCmd.AddCommand(providerRemoveCmd)
	providerCmd.AddCommand(providerTestCmd)
	rootCmd.AddCommand(providerCmd)
}
