package database

import (
	"database/sql"
	"testing"

	"github.com/Flowdeck-Labs/flowdeck-node/internal/utils"
	_ "modernc.org/sqlite"
)

func setupTestDB(t *testing.T) *SQLiteManager {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	// One connection so every session sees the same in-memory database
	db.SetMaxOpenConns(1)

	cm := utils.NewConfigManager("")
	logger := utils.NewLogsManager(cm)
	t.Cleanup(func() { logger.Close() })

	sqlm, err := NewSQLiteManagerFromDB(db, logger)
	if err != nil {
		t.Fatalf("Failed to initialize managers: %v", err)
	}
	t.Cleanup(func() { sqlm.Close() })

	return sqlm
}

func createProviderRow(t *testing.T, sqlm *SQLiteManager, name, status string, connected bool) *Provider {
	t.Helper()

	p := &Provider{
		Name:            name,
		BaseURL:         "http://localhost:5678",
		APIKeyEncrypted: "encrypted-blob",
		IsConnected:     connected,
		Status:          status,
	}
	if err := sqlm.Providers.CreateProvider(p); err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}
	return p
}

func TestCreateAndGetProvider(t *testing.T) {
	sqlm := setupTestDB(t)

	created := createProviderRow(t, sqlm, "prod-n8n", ProviderStatusUnknown, true)
	if created.ID == 0 {
		t.Fatal("Expected a provider id after create")
	}

	retrieved, err := sqlm.Providers.GetProvider(created.ID)
	if err != nil {
		t.Fatalf("Failed to get provider: %v", err)
	}
	if retrieved == nil {
		t.Fatal("Expected provider, got nil")
	}
	if retrieved.Name != "prod-n8n" || retrieved.BaseURL != "http://localhost:5678" {
		t.Errorf("Unexpected provider fields: %+v", retrieved)
	}
	if retrieved.APIKeyEncrypted != "encrypted-blob" {
		t.Error("Expected encrypted key stored as-is")
	}
}

func TestGetProviderNotFound(t *testing.T) {
	sqlm := setupTestDB(t)

	retrieved, err := sqlm.Providers.GetProvider(999)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if retrieved != nil {
		t.Errorf("Expected nil for missing provider, got %+v", retrieved)
	}
}

func TestGetConnectedHealthyProviders(t *testing.T) {
	sqlm := setupTestDB(t)

	healthy := createProviderRow(t, sqlm, "healthy", ProviderStatusHealthy, true)
	unknown := createProviderRow(t, sqlm, "unknown", ProviderStatusUnknown, true)
	createProviderRow(t, sqlm, "errored", ProviderStatusError, true)
	createProviderRow(t, sqlm, "disconnected", ProviderStatusHealthy, false)

	eligible, err := sqlm.Providers.GetConnectedHealthyProviders()
	if err != nil {
		t.Fatalf("Failed to query providers: %v", err)
	}

	if len(eligible) != 2 {
		t.Fatalf("Expected 2 eligible providers, got %d", len(eligible))
	}
	if eligible[0].ID != healthy.ID || eligible[1].ID != unknown.ID {
		t.Errorf("Unexpected eligible set: %+v", eligible)
	}
}

func TestUpdateProviderHealth(t *testing.T) {
	sqlm := setupTestDB(t)
	p := createProviderRow(t, sqlm, "p", ProviderStatusUnknown, true)

	if err := sqlm.Providers.UpdateProviderHealth(p.ID, ProviderStatusHealthy); err != nil {
		t.Fatalf("Failed to update health: %v", err)
	}

	retrieved, _ := sqlm.Providers.GetProvider(p.ID)
	if retrieved.Status != ProviderStatusHealthy {
		t.Errorf("Expected healthy, got %s", retrieved.Status)
	}
	if retrieved.LastCheckedAt == nil {
		t.Error("Expected last_checked_at to be set")
	}
}

func TestUpdateProviderConnection(t *testing.T) {
	sqlm := setupTestDB(t)
	p := createProviderRow(t, sqlm, "p", ProviderStatusHealthy, true)

	if err := sqlm.Providers.UpdateProviderConnection(p.ID, false); err != nil {
		t.Fatalf("Failed to update connection: %v", err)
	}

	retrieved, _ := sqlm.Providers.GetProvider(p.ID)
	if retrieved.IsConnected {
		t.Error("Expected provider disconnected")
	}
}

func TestDeleteProvider(t *testing.T) {
	sqlm := setupTestDB(t)
	p := createProviderRow(t, sqlm, "p", ProviderStatusHealthy, true)

	if err := sqlm.Providers.DeleteProvider(p.ID); err != nil {
		t.Fatalf("Failed to delete provider: %v", err)
	}

	retrieved, _ := sqlm.Providers.GetProvider(p.ID)
	if retrieved != nil {
		t.Error("Expected provider deleted")
	}
}
