package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sync log statuses
const (
	SyncLogStatusRunning = "running"
	SyncLogStatusSuccess = "success"
	SyncLogStatusError   = "error"
)

// SyncLog records one sync job invocation for diagnostics
type SyncLog struct {
	ID               int64      `json:"id"`
	RunID            string     `json:"run_id"`
	ProviderID       int64      `json:"provider_id"`
	SyncType         string     `json:"sync_type"` // executions, workflows, backups, full
	Status           string     `json:"status"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	RecordsProcessed int        `json:"records_processed"`
	RecordsInserted  int        `json:"records_inserted"`
	RecordsUpdated   int        `json:"records_updated"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	Metadata         string     `json:"metadata,omitempty"`
	LastCursor       string     `json:"last_cursor,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// SyncLogsManager handles the sync_logs table
type SyncLogsManager struct {
	db     *sql.DB
	logger Logger
}

func NewSyncLogsManager(db *sql.DB, logger Logger) (*SyncLogsManager, error) {
	sm := &SyncLogsManager{db: db, logger: logger}
	if err := sm.initTable(); err != nil {
		return nil, err
	}
	return sm, nil
}

func (sm *SyncLogsManager) initTable() error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS sync_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		provider_id INTEGER NOT NULL,
		sync_type TEXT CHECK(sync_type IN ('executions', 'workflows', 'backups', 'full')) NOT NULL,
		status TEXT CHECK(status IN ('running', 'success', 'error')) NOT NULL DEFAULT 'running',
		completed_at DATETIME,
		records_processed INTEGER NOT NULL DEFAULT 0,
		records_inserted INTEGER NOT NULL DEFAULT 0,
		records_updated INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		metadata TEXT,
		last_cursor TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (provider_id) REFERENCES providers(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_sync_logs_provider_id ON sync_logs(provider_id);
	CREATE INDEX IF NOT EXISTS idx_sync_logs_sync_type ON sync_logs(sync_type);
	CREATE INDEX IF NOT EXISTS idx_sync_logs_created_at ON sync_logs(created_at);
	`

	_, err := sm.db.Exec(createTableSQL)
	if err != nil {
		sm.logger.Error(fmt.Sprintf("Failed to create sync logs table: %v", err), "database")
		return err
	}

	return nil
}

// StartSyncLog creates a running log entry at job start
func (sm *SyncLogsManager) StartSyncLog(providerID int64, syncType string) (*SyncLog, error) {
	log := &SyncLog{
		RunID:      uuid.NewString(),
		ProviderID: providerID,
		SyncType:   syncType,
		Status:     SyncLogStatusRunning,
	}

	result, err := sm.db.Exec(`
		INSERT INTO sync_logs (run_id, provider_id, sync_type, status)
		VALUES (?, ?, ?, ?)
	`, log.RunID, log.ProviderID, log.SyncType, log.Status)
	if err != nil {
		sm.logger.Error(fmt.Sprintf("Failed to start sync log: %v", err), "database")
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	log.ID = id
	log.CreatedAt = time.Now()
	return log, nil
}

// CompleteSyncLog records terminal status, counts and cursor at job end
func (sm *SyncLogsManager) CompleteSyncLog(log *SyncLog) error {
	_, err := sm.db.Exec(`
		UPDATE sync_logs
		SET status = ?, completed_at = CURRENT_TIMESTAMP,
		    records_processed = ?, records_inserted = ?, records_updated = ?,
		    error_message = ?, last_cursor = ?, metadata = ?
		WHERE id = ?
	`,
		log.Status,
		log.RecordsProcessed,
		log.RecordsInserted,
		log.RecordsUpdated,
		NullableString(log.ErrorMessage),
		NullableString(log.LastCursor),
		NullableString(log.Metadata),
		log.ID,
	)
	if err != nil {
		sm.logger.Error(fmt.Sprintf("Failed to complete sync log: %v", err), "database")
		return err
	}

	return nil
}

const syncLogColumns = `id, run_id, provider_id, sync_type, status, completed_at,
	       records_processed, records_inserted, records_updated, error_message,
	       metadata, last_cursor, created_at`

func scanSyncLogRow(scan func(dest ...interface{}) error) (*SyncLog, error) {
	var l SyncLog
	var completedAt sql.NullTime
	var errorMessage, metadata, lastCursor sql.NullString

	err := scan(
		&l.ID,
		&l.RunID,
		&l.ProviderID,
		&l.SyncType,
		&l.Status,
		&completedAt,
		&l.RecordsProcessed,
		&l.RecordsInserted,
		&l.RecordsUpdated,
		&errorMessage,
		&metadata,
		&lastCursor,
		&l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	l.CompletedAt = ScanNullableTime(completedAt)
	l.ErrorMessage = ScanNullableString(errorMessage)
	l.Metadata = ScanNullableString(metadata)
	l.LastCursor = ScanNullableString(lastCursor)
	return &l, nil
}

// GetRecentSyncLogs returns the latest log entries for a provider
func (sm *SyncLogsManager) GetRecentSyncLogs(providerID int64, limit int) ([]*SyncLog, error) {
	query := fmt.Sprintf(`SELECT %s FROM sync_logs
		WHERE provider_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, syncLogColumns)

	return QueryRows(sm.db, query,
		func(rows *sql.Rows) (*SyncLog, error) {
			return scanSyncLogRow(rows.Scan)
		},
		sm.logger, "database", providerID, limit)
}
