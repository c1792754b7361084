package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Workflow is the local mirror of a remote workflow definition
type Workflow struct {
	ID                 int64      `json:"id"`
	ProviderID         int64      `json:"provider_id"`
	ProviderWorkflowID string     `json:"provider_workflow_id"`
	Name               string     `json:"name"`
	IsActive           bool       `json:"is_active"`
	IsArchived         bool       `json:"is_archived"`
	Tags               string     `json:"tags,omitempty"`          // versioned JSON blob, []string
	NodeCount          int        `json:"node_count"`
	WorkflowData       string     `json:"workflow_data,omitempty"` // versioned JSON blob, full definition
	CronSchedules      string     `json:"cron_schedules,omitempty"`
	RemoteUpdatedAt    *time.Time `json:"remote_updated_at,omitempty"`
	LastBackupAt       *time.Time `json:"last_backup_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// WorkflowsManager handles the workflows mirror table
type WorkflowsManager struct {
	db     *sql.DB
	logger Logger
}

func NewWorkflowsManager(db *sql.DB, logger Logger) (*WorkflowsManager, error) {
	wm := &WorkflowsManager{db: db, logger: logger}
	if err := wm.initTable(); err != nil {
		return nil, err
	}
	return wm, nil
}

func (wm *WorkflowsManager) initTable() error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS workflows (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		provider_id INTEGER NOT NULL,
		provider_workflow_id TEXT NOT NULL,
		name TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 0,
		is_archived INTEGER NOT NULL DEFAULT 0,
		tags TEXT,
		node_count INTEGER NOT NULL DEFAULT 0,
		workflow_data TEXT,
		cron_schedules TEXT,
		remote_updated_at DATETIME,
		last_backup_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (provider_id) REFERENCES providers(id) ON DELETE CASCADE,
		UNIQUE(provider_id, provider_workflow_id)
	);

	CREATE INDEX IF NOT EXISTS idx_workflows_provider_id ON workflows(provider_id);
	CREATE INDEX IF NOT EXISTS idx_workflows_is_active ON workflows(is_active);
	`

	_, err := wm.db.Exec(createTableSQL)
	if err != nil {
		wm.logger.Error(fmt.Sprintf("Failed to create workflows table: %v", err), "database")
		return err
	}

	return nil
}

const workflowColumns = `id, provider_id, provider_workflow_id, name, is_active, is_archived,
	       tags, node_count, workflow_data, cron_schedules, remote_updated_at, last_backup_at,
	       created_at, updated_at`

func scanWorkflowRow(scan func(dest ...interface{}) error) (*Workflow, error) {
	var w Workflow
	var tags, workflowData, cronSchedules sql.NullString
	var remoteUpdatedAt, lastBackupAt sql.NullTime

	err := scan(
		&w.ID,
		&w.ProviderID,
		&w.ProviderWorkflowID,
		&w.Name,
		&w.IsActive,
		&w.IsArchived,
		&tags,
		&w.NodeCount,
		&workflowData,
		&cronSchedules,
		&remoteUpdatedAt,
		&lastBackupAt,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	w.Tags = ScanNullableString(tags)
	w.WorkflowData = ScanNullableString(workflowData)
	w.CronSchedules = ScanNullableString(cronSchedules)
	w.RemoteUpdatedAt = ScanNullableTime(remoteUpdatedAt)
	w.LastBackupAt = ScanNullableTime(lastBackupAt)
	return &w, nil
}

// GetWorkflow retrieves a workflow by local ID, nil if not found
func (wm *WorkflowsManager) GetWorkflow(id int64) (*Workflow, error) {
	query := fmt.Sprintf(`SELECT %s FROM workflows WHERE id = ?`, workflowColumns)

	return QueryRowSingle(wm.db, query,
		func(row *sql.Row) (*Workflow, error) {
			return scanWorkflowRow(row.Scan)
		},
		wm.logger, "database", id)
}

// GetWorkflowByProviderWorkflowID retrieves a workflow by its remote
// identity, nil if not mirrored yet.
func (wm *WorkflowsManager) GetWorkflowByProviderWorkflowID(providerID int64, providerWorkflowID string) (*Workflow, error) {
	query := fmt.Sprintf(`SELECT %s FROM workflows WHERE provider_id = ? AND provider_workflow_id = ?`, workflowColumns)

	return QueryRowSingle(wm.db, query,
		func(row *sql.Row) (*Workflow, error) {
			return scanWorkflowRow(row.Scan)
		},
		wm.logger, "database", providerID, providerWorkflowID)
}

// GetWorkflowsByProvider returns all workflows mirrored for a provider
func (wm *WorkflowsManager) GetWorkflowsByProvider(providerID int64) ([]*Workflow, error) {
	query := fmt.Sprintf(`SELECT %s FROM workflows WHERE provider_id = ? ORDER BY name ASC`, workflowColumns)

	return QueryRows(wm.db, query,
		func(rows *sql.Rows) (*Workflow, error) {
			return scanWorkflowRow(rows.Scan)
		},
		wm.logger, "database", providerID)
}

// UpsertWorkflow inserts the workflow or updates it in place, keyed on
// (provider_id, provider_workflow_id). Returns true when a new row was
// inserted.
func (wm *WorkflowsManager) UpsertWorkflow(w *Workflow) (bool, error) {
	existing, err := wm.GetWorkflowByProviderWorkflowID(w.ProviderID, w.ProviderWorkflowID)
	if err != nil {
		return false, err
	}

	if existing == nil {
		result, err := wm.db.Exec(`
			INSERT INTO workflows (
				provider_id, provider_workflow_id, name, is_active, is_archived,
				tags, node_count, workflow_data, cron_schedules, remote_updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			w.ProviderID,
			w.ProviderWorkflowID,
			w.Name,
			w.IsActive,
			w.IsArchived,
			NullableString(w.Tags),
			w.NodeCount,
			NullableString(w.WorkflowData),
			NullableString(w.CronSchedules),
			NullableTime(w.RemoteUpdatedAt),
		)
		if err != nil {
			wm.logger.Error(fmt.Sprintf("Failed to insert workflow: %v", err), "database")
			return false, err
		}

		id, err := result.LastInsertId()
		if err != nil {
			return false, err
		}
		w.ID = id
		return true, nil
	}

	_, err = wm.db.Exec(`
		UPDATE workflows
		SET name = ?, is_active = ?, is_archived = ?, tags = ?, node_count = ?,
		    workflow_data = ?, cron_schedules = ?, remote_updated_at = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`,
		w.Name,
		w.IsActive,
		w.IsArchived,
		NullableString(w.Tags),
		w.NodeCount,
		NullableString(w.WorkflowData),
		NullableString(w.CronSchedules),
		NullableTime(w.RemoteUpdatedAt),
		existing.ID,
	)
	if err != nil {
		wm.logger.Error(fmt.Sprintf("Failed to update workflow: %v", err), "database")
		return false, err
	}

	w.ID = existing.ID
	return false, nil
}

// RefreshWorkflowActive is the cheap write path when change detection
// decides a full definition fetch is not needed.
func (wm *WorkflowsManager) RefreshWorkflowActive(id int64, active bool) error {
	_, err := wm.db.Exec(`
		UPDATE workflows
		SET is_active = ?, is_archived = 0, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, active, id)

	if err != nil {
		wm.logger.Error(fmt.Sprintf("Failed to refresh workflow active flag: %v", err), "database")
		return err
	}

	return nil
}

// CreatePlaceholderWorkflow inserts a minimal inactive row so execution
// foreign keys never dangle when the remote definition is unavailable.
func (wm *WorkflowsManager) CreatePlaceholderWorkflow(providerID int64, providerWorkflowID string) (*Workflow, error) {
	w := &Workflow{
		ProviderID:         providerID,
		ProviderWorkflowID: providerWorkflowID,
		Name:               fmt.Sprintf("[missing] %s", providerWorkflowID),
		IsActive:           false,
	}

	result, err := wm.db.Exec(`
		INSERT INTO workflows (provider_id, provider_workflow_id, name, is_active)
		VALUES (?, ?, ?, 0)
		ON CONFLICT(provider_id, provider_workflow_id) DO NOTHING
	`, providerID, providerWorkflowID, w.Name)
	if err != nil {
		wm.logger.Error(fmt.Sprintf("Failed to create placeholder workflow: %v", err), "database")
		return nil, err
	}

	if id, err := result.LastInsertId(); err == nil && id > 0 {
		w.ID = id
		wm.logger.Warn(fmt.Sprintf("Created placeholder workflow for provider %d remote id %s", providerID, providerWorkflowID), "database")
		return w, nil
	}

	// Conflict path: another writer got there first, fetch the row
	return wm.GetWorkflowByProviderWorkflowID(providerID, providerWorkflowID)
}

// ArchiveMissingWorkflows soft-archives every stored workflow for the
// provider whose remote id is absent from seenRemoteIDs. Never deletes.
// Returns the number of workflows archived.
func (wm *WorkflowsManager) ArchiveMissingWorkflows(providerID int64, seenRemoteIDs []string) (int64, error) {
	query := `
		UPDATE workflows
		SET is_active = 0, is_archived = 1, updated_at = CURRENT_TIMESTAMP
		WHERE provider_id = ? AND is_archived = 0`

	args := []interface{}{providerID}
	if len(seenRemoteIDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(seenRemoteIDs)), ",")
		query += fmt.Sprintf(" AND provider_workflow_id NOT IN (%s)", placeholders)
		for _, id := range seenRemoteIDs {
			args = append(args, id)
		}
	}

	result, err := wm.db.Exec(query, args...)
	if err != nil {
		wm.logger.Error(fmt.Sprintf("Failed to archive missing workflows: %v", err), "database")
		return 0, err
	}

	archived, _ := result.RowsAffected()
	if archived > 0 {
		wm.logger.Info(fmt.Sprintf("Archived %d workflows no longer present on provider %d", archived, providerID), "database")
	}
	return archived, nil
}

// RecordWorkflowBackup stores a freshly fetched full definition with a
// backup timestamp, independent of the change-detection path.
func (wm *WorkflowsManager) RecordWorkflowBackup(providerID int64, providerWorkflowID string, workflowData string) error {
	result, err := wm.db.Exec(`
		UPDATE workflows
		SET workflow_data = ?, last_backup_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE provider_id = ? AND provider_workflow_id = ?
	`, NullableString(workflowData), providerID, providerWorkflowID)
	if err != nil {
		wm.logger.Error(fmt.Sprintf("Failed to record workflow backup: %v", err), "database")
		return err
	}

	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
