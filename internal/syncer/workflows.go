package syncer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Flowdeck-Labs/flowdeck-node/internal/database"
	"github.com/Flowdeck-Labs/flowdeck-node/internal/n8n"
)

// syncWorkflowCatalog mirrors the remote workflow directory. Change
// detection compares remote updatedAt against the stored copy so
// unchanged workflows cost a listing entry, never a full fetch.
func (s *Service) syncWorkflowCatalog(ctx context.Context, client RemoteClient, provider *database.Provider, result *ProviderResult) error {
	summaries, err := client.ListWorkflows(ctx)
	if err != nil {
		return fmt.Errorf("failed to list workflows: %w", err)
	}

	seenRemoteIDs := make([]string, 0, len(summaries))

	for _, summary := range summaries {
		remoteID := summary.ID.String()
		seenRemoteIDs = append(seenRemoteIDs, remoteID)

		local, err := s.db.Workflows.GetWorkflowByProviderWorkflowID(provider.ID, remoteID)
		if err != nil {
			return err
		}

		// Unchanged since last sync: cheap refresh of the active flag.
		// Placeholders carry no remote timestamp and always fall
		// through to the full fetch.
		if local != nil && local.RemoteUpdatedAt != nil &&
			local.RemoteUpdatedAt.Unix() == summary.UpdatedAt.Unix() {
			if err := s.db.Workflows.RefreshWorkflowActive(local.ID, summary.Active); err != nil {
				return err
			}
			result.Skipped++
			continue
		}

		full, err := client.GetWorkflow(ctx, remoteID)
		if err != nil {
			s.logger.Warn(fmt.Sprintf("Failed to fetch workflow %s for provider %d: %v", remoteID, provider.ID, err), "syncer")
			result.Skipped++
			continue
		}

		row, err := buildWorkflowRow(provider.ID, full)
		if err != nil {
			s.logger.Warn(fmt.Sprintf("Failed to encode workflow %s: %v", remoteID, err), "syncer")
			result.Skipped++
			continue
		}

		if local != nil && local.Name != full.Name {
			s.logger.Debug(fmt.Sprintf("Workflow %s renamed: %q -> %q", remoteID, local.Name, full.Name), "syncer")
		}

		inserted, err := s.db.Workflows.UpsertWorkflow(row)
		if err != nil {
			return fmt.Errorf("failed to upsert workflow %s: %v", remoteID, err)
		}

		result.Processed++
		if inserted {
			result.Inserted++
		} else {
			result.Updated++
		}
	}

	archived, err := s.db.Workflows.ArchiveMissingWorkflows(provider.ID, seenRemoteIDs)
	if err != nil {
		return err
	}
	result.Archived += archived

	return nil
}

// buildWorkflowRow converts a full remote definition into its local
// mirror row, extracting schedules and tag names along the way.
func buildWorkflowRow(providerID int64, full *n8n.Workflow) (*database.Workflow, error) {
	dataBlob, err := database.MarshalVersionedBlob(full)
	if err != nil {
		return nil, err
	}

	var tagsBlob string
	if len(full.Tags) > 0 {
		names := make([]string, 0, len(full.Tags))
		for _, tag := range full.Tags {
			names = append(names, tag.Name)
		}
		tagsBlob, err = database.MarshalVersionedBlob(names)
		if err != nil {
			return nil, err
		}
	}

	var schedulesBlob string
	if schedules := ExtractSchedules(full.Nodes); len(schedules) > 0 {
		schedulesBlob, err = database.MarshalVersionedBlob(schedules)
		if err != nil {
			return nil, err
		}
	}

	updatedAt := full.UpdatedAt
	return &database.Workflow{
		ProviderID:         providerID,
		ProviderWorkflowID: full.ID.String(),
		Name:               full.Name,
		IsActive:           full.Active,
		Tags:               tagsBlob,
		NodeCount:          len(full.Nodes),
		WorkflowData:       dataBlob,
		CronSchedules:      schedulesBlob,
		RemoteUpdatedAt:    &updatedAt,
	}, nil
}

// syncWorkflowBackups stores a fresh full copy of every remote workflow
// definition with a backup timestamp. Unlike the catalog sync this
// ignores change detection: a backup run always captures the current
// remote state.
func (s *Service) syncWorkflowBackups(ctx context.Context, client RemoteClient, provider *database.Provider, result *ProviderResult) error {
	summaries, err := client.ListWorkflows(ctx)
	if err != nil {
		return fmt.Errorf("failed to list workflows: %w", err)
	}

	for _, summary := range summaries {
		remoteID := summary.ID.String()

		full, err := client.GetWorkflow(ctx, remoteID)
		if err != nil {
			s.logger.Warn(fmt.Sprintf("Backup fetch failed for workflow %s: %v", remoteID, err), "syncer")
			result.Skipped++
			continue
		}

		dataBlob, err := database.MarshalVersionedBlob(full)
		if err != nil {
			result.Skipped++
			continue
		}

		err = s.db.Workflows.RecordWorkflowBackup(provider.ID, remoteID, dataBlob)
		if errors.Is(err, sql.ErrNoRows) {
			// Not mirrored yet, create the row first
			row, buildErr := buildWorkflowRow(provider.ID, full)
			if buildErr != nil {
				result.Skipped++
				continue
			}
			if _, upsertErr := s.db.Workflows.UpsertWorkflow(row); upsertErr != nil {
				return upsertErr
			}
			err = s.db.Workflows.RecordWorkflowBackup(provider.ID, remoteID, dataBlob)
		}
		if err != nil {
			return fmt.Errorf("failed to record backup for workflow %s: %v", remoteID, err)
		}

		result.Processed++
		result.Updated++
	}

	return nil
}
