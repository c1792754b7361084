package database

import (
	"database/sql"
	"errors"
	"testing"
	"time"
)

func TestUpsertWorkflowInsertThenUpdate(t *testing.T) {
	sqlm := setupTestDB(t)
	p := createProviderRow(t, sqlm, "p", ProviderStatusHealthy, true)

	remoteUpdated := time.Now().Add(-time.Hour).Truncate(time.Second)
	w := &Workflow{
		ProviderID:         p.ID,
		ProviderWorkflowID: "wf-1",
		Name:               "Orders",
		IsActive:           true,
		NodeCount:          4,
		RemoteUpdatedAt:    &remoteUpdated,
	}

	inserted, err := sqlm.Workflows.UpsertWorkflow(w)
	if err != nil {
		t.Fatalf("Failed to insert workflow: %v", err)
	}
	if !inserted {
		t.Error("Expected insert on first upsert")
	}
	if w.ID == 0 {
		t.Fatal("Expected workflow id set")
	}

	w.Name = "Orders v2"
	w.IsActive = false
	inserted, err = sqlm.Workflows.UpsertWorkflow(w)
	if err != nil {
		t.Fatalf("Failed to update workflow: %v", err)
	}
	if inserted {
		t.Error("Expected update on second upsert")
	}

	retrieved, _ := sqlm.Workflows.GetWorkflowByProviderWorkflowID(p.ID, "wf-1")
	if retrieved == nil {
		t.Fatal("Expected workflow, got nil")
	}
	if retrieved.Name != "Orders v2" || retrieved.IsActive {
		t.Errorf("Unexpected workflow after update: %+v", retrieved)
	}
	if retrieved.RemoteUpdatedAt == nil || retrieved.RemoteUpdatedAt.Unix() != remoteUpdated.Unix() {
		t.Errorf("Expected remote timestamp preserved, got %v", retrieved.RemoteUpdatedAt)
	}
}

func TestRefreshWorkflowActiveClearsArchive(t *testing.T) {
	sqlm := setupTestDB(t)
	p := createProviderRow(t, sqlm, "p", ProviderStatusHealthy, true)

	w := &Workflow{ProviderID: p.ID, ProviderWorkflowID: "wf-1", Name: "Orders", IsArchived: true}
	if _, err := sqlm.Workflows.UpsertWorkflow(w); err != nil {
		t.Fatalf("Failed to insert workflow: %v", err)
	}

	if err := sqlm.Workflows.RefreshWorkflowActive(w.ID, true); err != nil {
		t.Fatalf("Failed to refresh: %v", err)
	}

	retrieved, _ := sqlm.Workflows.GetWorkflow(w.ID)
	if !retrieved.IsActive {
		t.Error("Expected workflow active")
	}
	if retrieved.IsArchived {
		t.Error("Expected a reappearing workflow to be unarchived")
	}
}

func TestCreatePlaceholderWorkflow(t *testing.T) {
	sqlm := setupTestDB(t)
	p := createProviderRow(t, sqlm, "p", ProviderStatusHealthy, true)

	placeholder, err := sqlm.Workflows.CreatePlaceholderWorkflow(p.ID, "wf-gone")
	if err != nil {
		t.Fatalf("Failed to create placeholder: %v", err)
	}
	if placeholder.Name != "[missing] wf-gone" {
		t.Errorf("Unexpected placeholder name %q", placeholder.Name)
	}
	if placeholder.IsActive {
		t.Error("Expected placeholder inactive")
	}

	// Second call hits the conflict path and returns the existing row
	again, err := sqlm.Workflows.CreatePlaceholderWorkflow(p.ID, "wf-gone")
	if err != nil {
		t.Fatalf("Failed on repeat placeholder create: %v", err)
	}
	if again.ID != placeholder.ID {
		t.Errorf("Expected same placeholder row, got %d and %d", placeholder.ID, again.ID)
	}
}

func TestArchiveMissingWorkflows(t *testing.T) {
	sqlm := setupTestDB(t)
	p := createProviderRow(t, sqlm, "p", ProviderStatusHealthy, true)

	for _, id := range []string{"wf-1", "wf-2", "wf-3"} {
		w := &Workflow{ProviderID: p.ID, ProviderWorkflowID: id, Name: id, IsActive: true}
		if _, err := sqlm.Workflows.UpsertWorkflow(w); err != nil {
			t.Fatalf("Failed to insert %s: %v", id, err)
		}
	}

	archived, err := sqlm.Workflows.ArchiveMissingWorkflows(p.ID, []string{"wf-1"})
	if err != nil {
		t.Fatalf("Failed to archive: %v", err)
	}
	if archived != 2 {
		t.Errorf("Expected 2 archived, got %d", archived)
	}

	kept, _ := sqlm.Workflows.GetWorkflowByProviderWorkflowID(p.ID, "wf-1")
	if kept.IsArchived || !kept.IsActive {
		t.Errorf("Expected wf-1 untouched, got %+v", kept)
	}

	gone, _ := sqlm.Workflows.GetWorkflowByProviderWorkflowID(p.ID, "wf-2")
	if gone == nil {
		t.Fatal("Expected archived workflow row to survive")
	}
	if !gone.IsArchived || gone.IsActive {
		t.Errorf("Expected wf-2 archived and inactive, got %+v", gone)
	}

	// Repeat run archives nothing new
	archived, err = sqlm.Workflows.ArchiveMissingWorkflows(p.ID, []string{"wf-1"})
	if err != nil {
		t.Fatalf("Failed on repeat archive: %v", err)
	}
	if archived != 0 {
		t.Errorf("Expected idempotent archive, got %d", archived)
	}
}

func TestArchiveMissingWorkflowsEmptySeenList(t *testing.T) {
	sqlm := setupTestDB(t)
	p := createProviderRow(t, sqlm, "p", ProviderStatusHealthy, true)

	w := &Workflow{ProviderID: p.ID, ProviderWorkflowID: "wf-1", Name: "Orders", IsActive: true}
	if _, err := sqlm.Workflows.UpsertWorkflow(w); err != nil {
		t.Fatalf("Failed to insert workflow: %v", err)
	}

	// Empty remote catalog archives everything
	archived, err := sqlm.Workflows.ArchiveMissingWorkflows(p.ID, nil)
	if err != nil {
		t.Fatalf("Failed to archive: %v", err)
	}
	if archived != 1 {
		t.Errorf("Expected 1 archived, got %d", archived)
	}
}

func TestRecordWorkflowBackup(t *testing.T) {
	sqlm := setupTestDB(t)
	p := createProviderRow(t, sqlm, "p", ProviderStatusHealthy, true)

	w := &Workflow{ProviderID: p.ID, ProviderWorkflowID: "wf-1", Name: "Orders"}
	if _, err := sqlm.Workflows.UpsertWorkflow(w); err != nil {
		t.Fatalf("Failed to insert workflow: %v", err)
	}

	if err := sqlm.Workflows.RecordWorkflowBackup(p.ID, "wf-1", `{"schemaVersion":1}`); err != nil {
		t.Fatalf("Failed to record backup: %v", err)
	}

	retrieved, _ := sqlm.Workflows.GetWorkflow(w.ID)
	if retrieved.LastBackupAt == nil {
		t.Error("Expected backup timestamp")
	}
	if retrieved.WorkflowData == "" {
		t.Error("Expected definition stored")
	}

	err := sqlm.Workflows.RecordWorkflowBackup(p.ID, "wf-absent", "{}")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("Expected ErrNoRows for unknown workflow, got %v", err)
	}
}
