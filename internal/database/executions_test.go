package database

import (
	"testing"
	"time"
)

func insertExecution(t *testing.T, sqlm *SQLiteManager, e *Execution) bool {
	t.Helper()

	tx, err := sqlm.Executions.Begin()
	if err != nil {
		t.Fatalf("Failed to begin transaction: %v", err)
	}
	inserted, err := sqlm.Executions.UpsertExecutionTx(tx, e)
	if err != nil {
		tx.Rollback()
		t.Fatalf("Failed to upsert execution: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}
	return inserted
}

func TestIsTerminalStatus(t *testing.T) {
	terminal := []string{ExecutionStatusSuccess, ExecutionStatusError, ExecutionStatusCanceled}
	for _, status := range terminal {
		if !IsTerminalStatus(status) {
			t.Errorf("Expected %s terminal", status)
		}
	}

	live := []string{ExecutionStatusRunning, ExecutionStatusWaiting, ExecutionStatusUnknown, ""}
	for _, status := range live {
		if IsTerminalStatus(status) {
			t.Errorf("Expected %q non-terminal", status)
		}
	}
}

func TestComputeDuration(t *testing.T) {
	started := time.Now().Add(-90 * time.Second)
	stopped := started.Add(90 * time.Second)

	e := &Execution{StartedAt: &started, StoppedAt: &stopped}
	e.ComputeDuration()
	if e.DurationMs == nil || *e.DurationMs != 90000 {
		t.Errorf("Expected 90000ms, got %v", e.DurationMs)
	}

	running := &Execution{StartedAt: &started}
	running.ComputeDuration()
	if running.DurationMs != nil {
		t.Errorf("Expected nil duration for running execution, got %v", running.DurationMs)
	}
}

func TestUpsertExecutionInsertThenUpdate(t *testing.T) {
	sqlm := setupTestDB(t)
	p := createProviderRow(t, sqlm, "p", ProviderStatusHealthy, true)

	started := time.Now().Add(-time.Minute).Truncate(time.Second)
	e := &Execution{
		ProviderID:          p.ID,
		ProviderExecutionID: "e1",
		ProviderWorkflowID:  "wf-1",
		Status:              ExecutionStatusRunning,
		Mode:                "cron",
		StartedAt:           &started,
	}

	if inserted := insertExecution(t, sqlm, e); !inserted {
		t.Error("Expected insert on first upsert")
	}

	stopped := started.Add(30 * time.Second)
	e.Status = ExecutionStatusSuccess
	e.Finished = true
	e.StoppedAt = &stopped
	if inserted := insertExecution(t, sqlm, e); inserted {
		t.Error("Expected update on second upsert")
	}

	retrieved, err := sqlm.Executions.GetExecutionByProviderExecutionID(p.ID, "e1")
	if err != nil {
		t.Fatalf("Failed to read execution: %v", err)
	}
	if retrieved.Status != ExecutionStatusSuccess || !retrieved.Finished {
		t.Errorf("Unexpected execution after update: %+v", retrieved)
	}
	if retrieved.DurationMs == nil || *retrieved.DurationMs != 30000 {
		t.Errorf("Expected computed duration 30000ms, got %v", retrieved.DurationMs)
	}
}

func TestGetExecutionStatuses(t *testing.T) {
	sqlm := setupTestDB(t)
	p := createProviderRow(t, sqlm, "p", ProviderStatusHealthy, true)

	insertExecution(t, sqlm, &Execution{ProviderID: p.ID, ProviderExecutionID: "e1", Status: ExecutionStatusSuccess, Mode: "cron"})
	insertExecution(t, sqlm, &Execution{ProviderID: p.ID, ProviderExecutionID: "e2", Status: ExecutionStatusRunning, Mode: "cron"})

	statuses, err := sqlm.Executions.GetExecutionStatuses(p.ID, []string{"e1", "e2", "e3"})
	if err != nil {
		t.Fatalf("Failed to read statuses: %v", err)
	}

	if len(statuses) != 2 {
		t.Fatalf("Expected 2 stored statuses, got %d", len(statuses))
	}
	if statuses["e1"] != ExecutionStatusSuccess || statuses["e2"] != ExecutionStatusRunning {
		t.Errorf("Unexpected statuses: %v", statuses)
	}
	if _, ok := statuses["e3"]; ok {
		t.Error("Expected e3 absent from the map")
	}

	empty, err := sqlm.Executions.GetExecutionStatuses(p.ID, nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("Expected empty result for empty input, got %v (%v)", empty, err)
	}
}

func TestRepairWorkflowLinks(t *testing.T) {
	sqlm := setupTestDB(t)
	p := createProviderRow(t, sqlm, "p", ProviderStatusHealthy, true)

	// Execution arrives before its workflow row exists
	insertExecution(t, sqlm, &Execution{
		ProviderID:          p.ID,
		ProviderExecutionID: "e1",
		ProviderWorkflowID:  "wf-1",
		Status:              ExecutionStatusSuccess,
		Mode:                "cron",
	})

	w := &Workflow{ProviderID: p.ID, ProviderWorkflowID: "wf-1", Name: "Orders", IsActive: true}
	if _, err := sqlm.Workflows.UpsertWorkflow(w); err != nil {
		t.Fatalf("Failed to insert workflow: %v", err)
	}

	repaired, err := sqlm.Executions.RepairWorkflowLinks(p.ID)
	if err != nil {
		t.Fatalf("Failed to repair links: %v", err)
	}
	if repaired != 1 {
		t.Errorf("Expected 1 repaired link, got %d", repaired)
	}

	retrieved, _ := sqlm.Executions.GetExecutionByProviderExecutionID(p.ID, "e1")
	if retrieved.WorkflowID == nil || *retrieved.WorkflowID != w.ID {
		t.Errorf("Expected execution linked to workflow %d, got %v", w.ID, retrieved.WorkflowID)
	}

	// Nothing left to repair
	repaired, err = sqlm.Executions.RepairWorkflowLinks(p.ID)
	if err != nil {
		t.Fatalf("Failed on repeat repair: %v", err)
	}
	if repaired != 0 {
		t.Errorf("Expected idempotent repair, got %d", repaired)
	}
}

func TestCountExecutionsByStatus(t *testing.T) {
	sqlm := setupTestDB(t)
	p := createProviderRow(t, sqlm, "p", ProviderStatusHealthy, true)

	insertExecution(t, sqlm, &Execution{ProviderID: p.ID, ProviderExecutionID: "e1", Status: ExecutionStatusSuccess, Mode: "cron"})
	insertExecution(t, sqlm, &Execution{ProviderID: p.ID, ProviderExecutionID: "e2", Status: ExecutionStatusSuccess, Mode: "cron"})
	insertExecution(t, sqlm, &Execution{ProviderID: p.ID, ProviderExecutionID: "e3", Status: ExecutionStatusError, Mode: "webhook"})

	counts, err := sqlm.Executions.CountExecutionsByStatus(p.ID)
	if err != nil {
		t.Fatalf("Failed to count: %v", err)
	}
	if counts[ExecutionStatusSuccess] != 2 || counts[ExecutionStatusError] != 1 {
		t.Errorf("Unexpected counts: %v", counts)
	}
}
