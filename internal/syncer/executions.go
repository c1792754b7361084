package syncer

import (
	"context"
	"fmt"
	"sync"

	"github.com/Flowdeck-Labs/flowdeck-node/internal/database"
	"github.com/Flowdeck-Labs/flowdeck-node/internal/n8n"
)

// Safety bound on pages walked in one run; the stopping rule normally
// ends a run long before this.
const maxExecutionPages = 500

// syncExecutions mirrors remote execution history incrementally. Pages
// are walked newest first; a page consisting entirely of already-stored
// terminal executions ends the run, because everything older than it
// was mirrored by a previous run.
func (s *Service) syncExecutions(ctx context.Context, client RemoteClient, provider *database.Provider, opts Options, result *ProviderResult, syncLog *database.SyncLog) error {
	// Refresh the workflow catalog first so execution rows link
	// cleanly. Best effort: a failing catalog never blocks execution
	// history from being mirrored.
	if opts.SyncType == SyncTypeExecutions {
		catalogResult := &ProviderResult{ProviderID: provider.ID, SyncType: SyncTypeWorkflows}
		if err := s.syncWorkflowCatalog(ctx, client, provider, catalogResult); err != nil {
			s.logger.Warn(fmt.Sprintf("Pre-sync workflow catalog failed for provider %d: %v", provider.ID, err), "syncer")
		}
	}

	workflowIDs, err := s.loadLocalWorkflowIDs(provider.ID)
	if err != nil {
		return err
	}
	nodeCache := make(map[string][]n8n.Node)

	batch := s.batchSize(opts)
	cursor := ""

	for page := 0; page < maxExecutionPages; page++ {
		pageCursor := cursor

		list, err := client.ListExecutions(ctx, batch, pageCursor, false)
		if err != nil {
			syncLog.LastCursor = pageCursor
			return fmt.Errorf("failed to list executions: %w", err)
		}
		if len(list.Items) == 0 {
			break
		}

		remoteIDs := make([]string, 0, len(list.Items))
		for _, item := range list.Items {
			remoteIDs = append(remoteIDs, item.ID.String())
		}

		stored, err := s.db.Executions.GetExecutionStatuses(provider.ID, remoteIDs)
		if err != nil {
			return err
		}

		var needed []n8n.Execution
		for _, item := range list.Items {
			status, known := stored[item.ID.String()]
			if !opts.DeepSync && known && database.IsTerminalStatus(status) {
				result.Skipped++
				continue
			}
			needed = append(needed, item)
		}

		if len(needed) > 0 {
			full, err := s.fetchExecutionPayloads(ctx, client, batch, pageCursor, list.Items, needed, result)
			if err != nil {
				syncLog.LastCursor = pageCursor
				return err
			}

			s.resolveWorkflowRefs(ctx, client, provider.ID, full, workflowIDs)

			if err := s.writeExecutionPage(provider.ID, full, workflowIDs, nodeCache, result); err != nil {
				syncLog.LastCursor = pageCursor
				return err
			}
		}

		syncLog.LastCursor = list.NextCursor
		cursor = list.NextCursor

		if len(needed) == 0 && !opts.DeepSync {
			s.logger.Debug(fmt.Sprintf("Provider %d: page of %d stored terminal executions, stopping", provider.ID, len(list.Items)), "syncer")
			break
		}
		if cursor == "" {
			break
		}
	}

	if _, err := s.db.Executions.RepairWorkflowLinks(provider.ID); err != nil {
		s.logger.Warn(fmt.Sprintf("Workflow link repair failed for provider %d: %v", provider.ID, err), "syncer")
	}

	return nil
}

// fetchExecutionPayloads obtains the full payload for each needed
// execution. When more than half the page is needed, one re-fetch of
// the same page with payloads included beats a call per item.
func (s *Service) fetchExecutionPayloads(ctx context.Context, client RemoteClient, batch int, pageCursor string, pageItems, needed []n8n.Execution, result *ProviderResult) ([]n8n.Execution, error) {
	if len(needed)*2 > len(pageItems) {
		dataPage, err := client.ListExecutions(ctx, batch, pageCursor, true)
		if err != nil {
			return nil, fmt.Errorf("failed to re-fetch page with payloads: %w", err)
		}

		wanted := make(map[string]bool, len(needed))
		for _, item := range needed {
			wanted[item.ID.String()] = true
		}

		full := make([]n8n.Execution, 0, len(needed))
		for _, item := range dataPage.Items {
			if wanted[item.ID.String()] {
				full = append(full, item)
			}
		}
		return full, nil
	}

	// Sparse page: fetch only the needed items, bounded by the pool.
	// A single failing item is skipped, not fatal.
	var mu sync.Mutex
	var wg sync.WaitGroup
	full := make([]n8n.Execution, 0, len(needed))

	for _, item := range needed {
		remoteID := item.ID.String()
		wg.Add(1)

		task := func() {
			defer wg.Done()
			execution, err := client.GetExecution(ctx, remoteID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logger.Warn(fmt.Sprintf("Failed to fetch execution %s: %v", remoteID, err), "syncer")
				result.Skipped++
				return
			}
			full = append(full, *execution)
		}

		if err := s.pool.Submit(task); err != nil {
			wg.Done()
			return nil, err
		}
	}

	wg.Wait()
	return full, nil
}

// resolveWorkflowRefs makes sure every workflow referenced by the batch
// has a local row before the page transaction opens. A workflow the
// remote no longer serves gets a placeholder so the link never dangles.
func (s *Service) resolveWorkflowRefs(ctx context.Context, client RemoteClient, providerID int64, executions []n8n.Execution, workflowIDs map[string]int64) {
	for _, execution := range executions {
		remoteWorkflowID := execution.WorkflowID.String()
		if remoteWorkflowID == "" {
			continue
		}
		if _, ok := workflowIDs[remoteWorkflowID]; ok {
			continue
		}

		full, err := client.GetWorkflow(ctx, remoteWorkflowID)
		if err == nil {
			row, buildErr := buildWorkflowRow(providerID, full)
			if buildErr == nil {
				if _, upsertErr := s.db.Workflows.UpsertWorkflow(row); upsertErr == nil {
					workflowIDs[remoteWorkflowID] = row.ID
					continue
				}
			}
		}

		placeholder, phErr := s.db.Workflows.CreatePlaceholderWorkflow(providerID, remoteWorkflowID)
		if phErr != nil || placeholder == nil {
			s.logger.Error(fmt.Sprintf("Failed to resolve workflow %s for provider %d: %v", remoteWorkflowID, providerID, phErr), "syncer")
			continue
		}
		workflowIDs[remoteWorkflowID] = placeholder.ID
	}
}

// writeExecutionPage upserts one page of executions inside a single
// transaction; either the whole page lands or none of it does.
func (s *Service) writeExecutionPage(providerID int64, executions []n8n.Execution, workflowIDs map[string]int64, nodeCache map[string][]n8n.Node, result *ProviderResult) error {
	if len(executions) == 0 {
		return nil
	}

	tx, err := s.db.Executions.Begin()
	if err != nil {
		return err
	}

	for _, execution := range executions {
		row, err := s.buildExecutionRow(providerID, execution, workflowIDs, nodeCache)
		if err != nil {
			s.logger.Warn(fmt.Sprintf("Skipping execution %s: %v", execution.ID, err), "syncer")
			result.Skipped++
			continue
		}

		inserted, err := s.db.Executions.UpsertExecutionTx(tx, row)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to upsert execution %s: %v", execution.ID, err)
		}

		result.Processed++
		if inserted {
			result.Inserted++
		} else {
			result.Updated++
		}
	}

	return tx.Commit()
}

func (s *Service) buildExecutionRow(providerID int64, execution n8n.Execution, workflowIDs map[string]int64, nodeCache map[string][]n8n.Node) (*database.Execution, error) {
	remoteWorkflowID := execution.WorkflowID.String()

	row := &database.Execution{
		ProviderID:          providerID,
		ProviderExecutionID: execution.ID.String(),
		ProviderWorkflowID:  remoteWorkflowID,
		Status:              normalizeStatus(execution.Status, execution.Finished),
		Finished:            execution.Finished,
		StartedAt:           execution.StartedAt,
		StoppedAt:           execution.StoppedAt,
		RetryOf:             execution.RetryOf.String(),
		RetrySuccessID:      execution.RetrySuccessID.String(),
	}

	if localID, ok := workflowIDs[remoteWorkflowID]; ok {
		id := localID
		row.WorkflowID = &id
	}

	nodes := s.workflowNodes(providerID, execution, nodeCache)
	row.Mode = InferTriggerMode(nodes, execution.Mode)

	if len(execution.Data) > 0 {
		blob, err := database.MarshalVersionedBlob(execution.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to encode execution data: %v", err)
		}
		row.ExecutionData = blob

		if usage := ExtractUsage(execution.Data, nodes); usage != nil {
			row.TotalTokens = &usage.TotalTokens
			row.InputTokens = &usage.InputTokens
			row.OutputTokens = &usage.OutputTokens
			if usage.Cost > 0 {
				row.AICost = &usage.Cost
			}
			row.AIProvider = usage.Provider
		}
	}

	return row, nil
}

// workflowNodes returns the node list for the execution's workflow,
// preferring the inline copy the remote sometimes sends, then the
// mirrored local definition.
func (s *Service) workflowNodes(providerID int64, execution n8n.Execution, nodeCache map[string][]n8n.Node) []n8n.Node {
	if execution.WorkflowData != nil && len(execution.WorkflowData.Nodes) > 0 {
		return execution.WorkflowData.Nodes
	}

	remoteWorkflowID := execution.WorkflowID.String()
	if remoteWorkflowID == "" {
		return nil
	}
	if nodes, ok := nodeCache[remoteWorkflowID]; ok {
		return nodes
	}

	var nodes []n8n.Node
	workflow, err := s.db.Workflows.GetWorkflowByProviderWorkflowID(providerID, remoteWorkflowID)
	if err == nil && workflow != nil && workflow.WorkflowData != "" {
		var definition n8n.Workflow
		if err := database.UnmarshalVersionedBlob(workflow.WorkflowData, &definition); err == nil {
			nodes = definition.Nodes
		}
	}

	nodeCache[remoteWorkflowID] = nodes
	return nodes
}

func (s *Service) loadLocalWorkflowIDs(providerID int64) (map[string]int64, error) {
	workflows, err := s.db.Workflows.GetWorkflowsByProvider(providerID)
	if err != nil {
		return nil, err
	}

	ids := make(map[string]int64, len(workflows))
	for _, workflow := range workflows {
		ids[workflow.ProviderWorkflowID] = workflow.ID
	}
	return ids, nil
}

// normalizeStatus maps remote status strings onto the stored status
// vocabulary. Older remote versions omit the status and only report the
// finished flag.
func normalizeStatus(remoteStatus string, finished bool) string {
	switch remoteStatus {
	case database.ExecutionStatusSuccess,
		database.ExecutionStatusError,
		database.ExecutionStatusRunning,
		database.ExecutionStatusWaiting,
		database.ExecutionStatusCanceled:
		return remoteStatus
	case "crashed", "failed":
		return database.ExecutionStatusError
	case "new":
		return database.ExecutionStatusWaiting
	case "":
		if finished {
			return database.ExecutionStatusSuccess
		}
		return database.ExecutionStatusRunning
	}
	return database.ExecutionStatusUnknown
}
