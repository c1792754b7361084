package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Flowdeck-Labs/flowdeck-node/internal/database"
	"github.com/Flowdeck-Labs/flowdeck-node/internal/n8n"
	"github.com/Flowdeck-Labs/flowdeck-node/internal/utils"
	"github.com/Flowdeck-Labs/flowdeck-node/internal/vault"
	"github.com/Flowdeck-Labs/flowdeck-node/internal/workers"
)

// Sync types
const (
	SyncTypeExecutions = "executions"
	SyncTypeWorkflows  = "workflows"
	SyncTypeBackups    = "backups"
	SyncTypeFull       = "full"
)

// ErrSyncInProgress is returned when a sync of the same type is already
// running and an overlapping run was refused.
var ErrSyncInProgress = errors.New("syncer: sync already in progress")

// RemoteClient is the remote API surface the sync engine depends on
type RemoteClient interface {
	ListWorkflows(ctx context.Context) ([]n8n.WorkflowSummary, error)
	GetWorkflow(ctx context.Context, remoteID string) (*n8n.Workflow, error)
	ListExecutions(ctx context.Context, limit int, cursor string, includeData bool) (*n8n.ExecutionList, error)
	GetExecution(ctx context.Context, remoteID string) (*n8n.Execution, error)
}

// Options control one sync invocation
type Options struct {
	SyncType  string
	BatchSize int
	DeepSync  bool // re-fetch executions even when a terminal copy is stored
}

// ProviderResult is the outcome of syncing one provider
type ProviderResult struct {
	ProviderID   int64  `json:"provider_id"`
	ProviderName string `json:"provider_name"`
	SyncType     string `json:"sync_type"`
	Processed    int    `json:"processed"`
	Inserted     int    `json:"inserted"`
	Updated      int    `json:"updated"`
	Skipped      int    `json:"skipped"`
	Archived     int64  `json:"archived,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Summary aggregates a fan-out run across providers
type Summary struct {
	SyncType   string            `json:"sync_type"`
	StartedAt  time.Time         `json:"started_at"`
	Duration   time.Duration     `json:"duration"`
	Providers  int               `json:"providers"`
	Successful int               `json:"successful"`
	Failed     int               `json:"failed"`
	Results    []*ProviderResult `json:"results"`
}

// Service is the incremental sync engine. It mirrors remote workflow
// and execution state into local storage, one provider at a time, with
// failures contained per provider.
type Service struct {
	db     *database.SQLiteManager
	vault  *vault.Vault
	cm     *utils.ConfigManager
	logger *utils.LogsManager
	pool   *workers.WorkerPool

	// Seam for tests; production wiring builds real remote clients
	clientFactory func(baseURL, apiKey string) RemoteClient
}

// NewService creates the sync engine
func NewService(db *database.SQLiteManager, v *vault.Vault, cm *utils.ConfigManager, logger *utils.LogsManager, pool *workers.WorkerPool) *Service {
	s := &Service{
		db:     db,
		vault:  v,
		cm:     cm,
		logger: logger,
		pool:   pool,
	}

	s.clientFactory = func(baseURL, apiKey string) RemoteClient {
		client := n8n.NewClient(baseURL, apiKey, logger)
		client.SetTimeout(cm.GetConfigDuration("remote_timeout", 10*time.Second))
		return client
	}

	return s
}

func (s *Service) batchSize(opts Options) int {
	if opts.BatchSize > 0 {
		return opts.BatchSize
	}
	return s.cm.GetConfigInt("sync_batch_size", 50, 1, 250)
}

// SyncAllProviders runs one sync pass over every connected provider in
// parallel. A failing provider never aborts the others.
func (s *Service) SyncAllProviders(ctx context.Context, opts Options) (*Summary, error) {
	providers, err := s.db.Providers.GetConnectedHealthyProviders()
	if err != nil {
		return nil, fmt.Errorf("failed to load providers: %v", err)
	}

	summary := &Summary{
		SyncType:  opts.SyncType,
		StartedAt: time.Now(),
		Providers: len(providers),
	}

	if len(providers) == 0 {
		s.logger.Debug("No connected providers to sync", "syncer")
		summary.Duration = time.Since(summary.StartedAt)
		return summary, nil
	}

	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, provider := range providers {
		wg.Add(1)
		go func(p *database.Provider) {
			defer wg.Done()

			result, err := s.SyncProvider(ctx, p, opts)
			if result == nil {
				result = &ProviderResult{ProviderID: p.ID, ProviderName: p.Name, SyncType: opts.SyncType}
			}
			if err != nil {
				result.Error = err.Error()
			}

			mu.Lock()
			defer mu.Unlock()
			summary.Results = append(summary.Results, result)
			if err != nil {
				summary.Failed++
			} else {
				summary.Successful++
			}
		}(provider)
	}

	wg.Wait()
	summary.Duration = time.Since(summary.StartedAt)

	s.logger.Info(fmt.Sprintf("Sync pass complete (%s): %d providers, %d ok, %d failed in %s",
		opts.SyncType, summary.Providers, summary.Successful, summary.Failed, summary.Duration.Round(time.Millisecond)), "syncer")

	return summary, nil
}

// SyncProvider runs one sync of the given type against one provider,
// recording the run in the sync log and updating provider health.
func (s *Service) SyncProvider(ctx context.Context, provider *database.Provider, opts Options) (*ProviderResult, error) {
	result := &ProviderResult{
		ProviderID:   provider.ID,
		ProviderName: provider.Name,
		SyncType:     opts.SyncType,
	}

	apiKey, err := s.vault.Decrypt(provider.APIKeyEncrypted)
	if err != nil {
		// An undecryptable key will never start working on its own;
		// flag the provider and leave the rest of the fleet alone.
		s.logger.Error(fmt.Sprintf("Cannot decrypt API key for provider %d (%s): %v", provider.ID, provider.Name, err), "syncer")
		if updateErr := s.db.Providers.UpdateProviderHealth(provider.ID, database.ProviderStatusError); updateErr != nil {
			s.logger.Error(fmt.Sprintf("Failed to flag provider %d: %v", provider.ID, updateErr), "syncer")
		}
		return result, fmt.Errorf("provider %d: %w", provider.ID, err)
	}

	client := s.clientFactory(provider.BaseURL, apiKey)

	syncLog, err := s.db.SyncLogs.StartSyncLog(provider.ID, opts.SyncType)
	if err != nil {
		return result, fmt.Errorf("provider %d: failed to start sync log: %v", provider.ID, err)
	}

	syncErr := s.runSync(ctx, client, provider, opts, result, syncLog)

	syncLog.RecordsProcessed = result.Processed
	syncLog.RecordsInserted = result.Inserted
	syncLog.RecordsUpdated = result.Updated
	if syncErr != nil {
		syncLog.Status = database.SyncLogStatusError
		syncLog.ErrorMessage = syncErr.Error()
	} else {
		syncLog.Status = database.SyncLogStatusSuccess
	}
	if err := s.db.SyncLogs.CompleteSyncLog(syncLog); err != nil {
		s.logger.Error(fmt.Sprintf("Failed to complete sync log %d: %v", syncLog.ID, err), "syncer")
	}

	health := database.ProviderStatusHealthy
	if syncErr != nil {
		health = database.ProviderStatusError
	}
	if err := s.db.Providers.UpdateProviderHealth(provider.ID, health); err != nil {
		s.logger.Error(fmt.Sprintf("Failed to update health for provider %d: %v", provider.ID, err), "syncer")
	}

	if syncErr != nil {
		s.logger.Error(fmt.Sprintf("Sync failed for provider %d (%s): %v", provider.ID, provider.Name, syncErr), "syncer")
		return result, fmt.Errorf("provider %d: %w", provider.ID, syncErr)
	}

	s.logger.Info(fmt.Sprintf("Sync %s for provider %d (%s): %d processed, %d inserted, %d updated, %d skipped",
		opts.SyncType, provider.ID, provider.Name, result.Processed, result.Inserted, result.Updated, result.Skipped), "syncer")

	return result, nil
}

func (s *Service) runSync(ctx context.Context, client RemoteClient, provider *database.Provider, opts Options, result *ProviderResult, syncLog *database.SyncLog) error {
	switch opts.SyncType {
	case SyncTypeExecutions:
		return s.syncExecutions(ctx, client, provider, opts, result, syncLog)
	case SyncTypeWorkflows:
		return s.syncWorkflowCatalog(ctx, client, provider, result)
	case SyncTypeBackups:
		return s.syncWorkflowBackups(ctx, client, provider, result)
	case SyncTypeFull:
		if err := s.syncWorkflowCatalog(ctx, client, provider, result); err != nil {
			return err
		}
		return s.syncExecutions(ctx, client, provider, opts, result, syncLog)
	default:
		return fmt.Errorf("unknown sync type %q", opts.SyncType)
	}
}

// TestConnection verifies a provider's credentials with a minimal
// remote call and records the outcome on the provider row.
func (s *Service) TestConnection(ctx context.Context, providerID int64) error {
	provider, err := s.db.Providers.GetProvider(providerID)
	if err != nil {
		return err
	}
	if provider == nil {
		return fmt.Errorf("provider %d not found", providerID)
	}

	apiKey, err := s.vault.Decrypt(provider.APIKeyEncrypted)
	if err != nil {
		s.db.Providers.UpdateProviderHealth(providerID, database.ProviderStatusError)
		return err
	}

	client := s.clientFactory(provider.BaseURL, apiKey)
	_, err = client.ListExecutions(ctx, 1, "", false)
	if err != nil {
		s.db.Providers.UpdateProviderHealth(providerID, database.ProviderStatusError)
		return err
	}

	if err := s.db.Providers.UpdateProviderHealth(providerID, database.ProviderStatusHealthy); err != nil {
		return err
	}
	return s.db.Providers.UpdateProviderConnection(providerID, true)
}
