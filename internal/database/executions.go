package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Execution statuses. Terminal statuses never change remotely again.
const (
	ExecutionStatusSuccess  = "success"
	ExecutionStatusError    = "error"
	ExecutionStatusRunning  = "running"
	ExecutionStatusWaiting  = "waiting"
	ExecutionStatusCanceled = "canceled"
	ExecutionStatusUnknown  = "unknown"
)

// IsTerminalStatus reports whether the remote side can still change
// this execution.
func IsTerminalStatus(status string) bool {
	switch status {
	case ExecutionStatusSuccess, ExecutionStatusError, ExecutionStatusCanceled:
		return true
	}
	return false
}

// Execution is the local mirror of one run of a remote workflow
type Execution struct {
	ID                  int64      `json:"id"`
	ProviderID          int64      `json:"provider_id"`
	WorkflowID          *int64     `json:"workflow_id,omitempty"` // local FK, repairable
	ProviderExecutionID string     `json:"provider_execution_id"`
	ProviderWorkflowID  string     `json:"provider_workflow_id"` // kept redundantly for relationship repair
	Status              string     `json:"status"`
	Mode                string     `json:"mode"` // manual, webhook, cron, error, unknown
	StartedAt           *time.Time `json:"started_at,omitempty"`
	StoppedAt           *time.Time `json:"stopped_at,omitempty"`
	DurationMs          *int64     `json:"duration,omitempty"`
	Finished            bool       `json:"finished"`
	RetryOf             string     `json:"retry_of,omitempty"`
	RetrySuccessID      string     `json:"retry_success_id,omitempty"`
	ExecutionData       string     `json:"execution_data,omitempty"` // versioned JSON blob
	TotalTokens         *int64     `json:"total_tokens,omitempty"`
	InputTokens         *int64     `json:"input_tokens,omitempty"`
	OutputTokens        *int64     `json:"output_tokens,omitempty"`
	AICost              *float64   `json:"ai_cost,omitempty"`
	AIProvider          string     `json:"ai_provider,omitempty"`
	Metadata            string     `json:"metadata,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// ComputeDuration fills DurationMs from the timestamps when both ends
// are known; a running execution keeps a null duration.
func (e *Execution) ComputeDuration() {
	if e.StartedAt != nil && e.StoppedAt != nil {
		ms := e.StoppedAt.Sub(*e.StartedAt).Milliseconds()
		e.DurationMs = &ms
	} else {
		e.DurationMs = nil
	}
}

// ExecutionsManager handles the executions mirror table
type ExecutionsManager struct {
	db     *sql.DB
	logger Logger
}

func NewExecutionsManager(db *sql.DB, logger Logger) (*ExecutionsManager, error) {
	em := &ExecutionsManager{db: db, logger: logger}
	if err := em.initTable(); err != nil {
		return nil, err
	}
	return em, nil
}

func (em *ExecutionsManager) initTable() error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS executions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		provider_id INTEGER NOT NULL,
		workflow_id INTEGER,
		provider_execution_id TEXT NOT NULL,
		provider_workflow_id TEXT,
		status TEXT CHECK(status IN ('success', 'error', 'running', 'waiting', 'canceled', 'unknown')) NOT NULL DEFAULT 'unknown',
		mode TEXT CHECK(mode IN ('manual', 'webhook', 'cron', 'error', 'unknown')) NOT NULL DEFAULT 'unknown',
		started_at DATETIME,
		stopped_at DATETIME,
		duration INTEGER,
		finished INTEGER NOT NULL DEFAULT 0,
		retry_of TEXT,
		retry_success_id TEXT,
		execution_data TEXT,
		total_tokens INTEGER,
		input_tokens INTEGER,
		output_tokens INTEGER,
		ai_cost REAL,
		ai_provider TEXT,
		metadata TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (provider_id) REFERENCES providers(id) ON DELETE CASCADE,
		UNIQUE(provider_id, provider_execution_id)
	);

	CREATE INDEX IF NOT EXISTS idx_executions_provider_id ON executions(provider_id);
	CREATE INDEX IF NOT EXISTS idx_executions_workflow_id ON executions(workflow_id);
	CREATE INDEX IF NOT EXISTS idx_executions_status ON executions(status);
	CREATE INDEX IF NOT EXISTS idx_executions_started_at ON executions(started_at);
	CREATE INDEX IF NOT EXISTS idx_executions_provider_workflow_id ON executions(provider_workflow_id);
	`

	_, err := em.db.Exec(createTableSQL)
	if err != nil {
		em.logger.Error(fmt.Sprintf("Failed to create executions table: %v", err), "database")
		return err
	}

	return nil
}

// Begin opens a transaction for page-scoped batch writes
func (em *ExecutionsManager) Begin() (*sql.Tx, error) {
	return em.db.Begin()
}

// GetExecutionStatuses returns remote id -> stored status for the given
// remote execution ids. Ids with no stored row are absent from the map.
func (em *ExecutionsManager) GetExecutionStatuses(providerID int64, remoteIDs []string) (map[string]string, error) {
	statuses := make(map[string]string, len(remoteIDs))
	if len(remoteIDs) == 0 {
		return statuses, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(remoteIDs)), ",")
	query := fmt.Sprintf(`
		SELECT provider_execution_id, status
		FROM executions
		WHERE provider_id = ? AND provider_execution_id IN (%s)
	`, placeholders)

	args := make([]interface{}, 0, len(remoteIDs)+1)
	args = append(args, providerID)
	for _, id := range remoteIDs {
		args = append(args, id)
	}

	rows, err := em.db.Query(query, args...)
	if err != nil {
		em.logger.Error(fmt.Sprintf("Failed to query execution statuses: %v", err), "database")
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var remoteID, status string
		if err := rows.Scan(&remoteID, &status); err != nil {
			em.logger.Error(fmt.Sprintf("Failed to scan execution status: %v", err), "database")
			continue
		}
		statuses[remoteID] = status
	}

	return statuses, rows.Err()
}

// UpsertExecutionTx inserts or updates an execution inside the caller's
// page transaction, keyed on (provider_id, provider_execution_id).
// Returns true when a new row was inserted.
func (em *ExecutionsManager) UpsertExecutionTx(tx *sql.Tx, e *Execution) (bool, error) {
	e.ComputeDuration()

	var existingID int64
	err := tx.QueryRow(`
		SELECT id FROM executions WHERE provider_id = ? AND provider_execution_id = ?
	`, e.ProviderID, e.ProviderExecutionID).Scan(&existingID)

	if err == sql.ErrNoRows {
		result, err := tx.Exec(`
			INSERT INTO executions (
				provider_id, workflow_id, provider_execution_id, provider_workflow_id,
				status, mode, started_at, stopped_at, duration, finished,
				retry_of, retry_success_id, execution_data,
				total_tokens, input_tokens, output_tokens, ai_cost, ai_provider, metadata
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			e.ProviderID,
			e.WorkflowID,
			e.ProviderExecutionID,
			NullableString(e.ProviderWorkflowID),
			e.Status,
			e.Mode,
			NullableTime(e.StartedAt),
			NullableTime(e.StoppedAt),
			e.DurationMs,
			e.Finished,
			NullableString(e.RetryOf),
			NullableString(e.RetrySuccessID),
			NullableString(e.ExecutionData),
			e.TotalTokens,
			e.InputTokens,
			e.OutputTokens,
			e.AICost,
			NullableString(e.AIProvider),
			NullableString(e.Metadata),
		)
		if err != nil {
			return false, err
		}

		id, err := result.LastInsertId()
		if err != nil {
			return false, err
		}
		e.ID = id
		return true, nil
	}
	if err != nil {
		return false, err
	}

	_, err = tx.Exec(`
		UPDATE executions
		SET workflow_id = ?, provider_workflow_id = ?, status = ?, mode = ?,
		    started_at = ?, stopped_at = ?, duration = ?, finished = ?,
		    retry_of = ?, retry_success_id = ?, execution_data = ?,
		    total_tokens = ?, input_tokens = ?, output_tokens = ?,
		    ai_cost = ?, ai_provider = ?, metadata = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`,
		e.WorkflowID,
		NullableString(e.ProviderWorkflowID),
		e.Status,
		e.Mode,
		NullableTime(e.StartedAt),
		NullableTime(e.StoppedAt),
		e.DurationMs,
		e.Finished,
		NullableString(e.RetryOf),
		NullableString(e.RetrySuccessID),
		NullableString(e.ExecutionData),
		e.TotalTokens,
		e.InputTokens,
		e.OutputTokens,
		e.AICost,
		NullableString(e.AIProvider),
		NullableString(e.Metadata),
		existingID,
	)
	if err != nil {
		return false, err
	}

	e.ID = existingID
	return false, nil
}

const executionColumns = `id, provider_id, workflow_id, provider_execution_id, provider_workflow_id,
	       status, mode, started_at, stopped_at, duration, finished, retry_of, retry_success_id,
	       execution_data, total_tokens, input_tokens, output_tokens, ai_cost, ai_provider,
	       metadata, created_at, updated_at`

func scanExecutionRow(scan func(dest ...interface{}) error) (*Execution, error) {
	var e Execution
	var workflowID, duration, totalTokens, inputTokens, outputTokens sql.NullInt64
	var startedAt, stoppedAt sql.NullTime
	var retryOf, retrySuccessID, executionData, aiProvider, metadata, providerWorkflowID sql.NullString
	var aiCost sql.NullFloat64

	err := scan(
		&e.ID,
		&e.ProviderID,
		&workflowID,
		&e.ProviderExecutionID,
		&providerWorkflowID,
		&e.Status,
		&e.Mode,
		&startedAt,
		&stoppedAt,
		&duration,
		&e.Finished,
		&retryOf,
		&retrySuccessID,
		&executionData,
		&totalTokens,
		&inputTokens,
		&outputTokens,
		&aiCost,
		&aiProvider,
		&metadata,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.WorkflowID = ScanNullableInt64(workflowID)
	e.ProviderWorkflowID = ScanNullableString(providerWorkflowID)
	e.StartedAt = ScanNullableTime(startedAt)
	e.StoppedAt = ScanNullableTime(stoppedAt)
	e.DurationMs = ScanNullableInt64(duration)
	e.RetryOf = ScanNullableString(retryOf)
	e.RetrySuccessID = ScanNullableString(retrySuccessID)
	e.ExecutionData = ScanNullableString(executionData)
	e.TotalTokens = ScanNullableInt64(totalTokens)
	e.InputTokens = ScanNullableInt64(inputTokens)
	e.OutputTokens = ScanNullableInt64(outputTokens)
	e.AICost = ScanNullableFloat64(aiCost)
	e.AIProvider = ScanNullableString(aiProvider)
	e.Metadata = ScanNullableString(metadata)
	return &e, nil
}

// GetExecutionByProviderExecutionID retrieves one mirrored execution,
// nil if not stored.
func (em *ExecutionsManager) GetExecutionByProviderExecutionID(providerID int64, providerExecutionID string) (*Execution, error) {
	query := fmt.Sprintf(`SELECT %s FROM executions WHERE provider_id = ? AND provider_execution_id = ?`, executionColumns)

	return QueryRowSingle(em.db, query,
		func(row *sql.Row) (*Execution, error) {
			return scanExecutionRow(row.Scan)
		},
		em.logger, "database", providerID, providerExecutionID)
}

// GetExecutionsByProvider returns recent executions for a provider
func (em *ExecutionsManager) GetExecutionsByProvider(providerID int64, limit int) ([]*Execution, error) {
	query := fmt.Sprintf(`SELECT %s FROM executions
		WHERE provider_id = ?
		ORDER BY started_at DESC
		LIMIT ?`, executionColumns)

	return QueryRows(em.db, query,
		func(rows *sql.Rows) (*Execution, error) {
			return scanExecutionRow(rows.Scan)
		},
		em.logger, "database", providerID, limit)
}

// RepairWorkflowLinks corrects, in bulk, every execution whose
// workflow_id does not point at the workflow row matching its
// (provider_id, provider_workflow_id). Heals races where an execution
// was written before its workflow row existed.
func (em *ExecutionsManager) RepairWorkflowLinks(providerID int64) (int64, error) {
	result, err := em.db.Exec(`
		UPDATE executions
		SET workflow_id = (
			SELECT w.id FROM workflows w
			WHERE w.provider_id = executions.provider_id
			  AND w.provider_workflow_id = executions.provider_workflow_id
		),
		updated_at = CURRENT_TIMESTAMP
		WHERE provider_id = ?
		  AND provider_workflow_id IS NOT NULL
		  AND (
			workflow_id IS NULL
			OR workflow_id NOT IN (
				SELECT w.id FROM workflows w
				WHERE w.provider_id = executions.provider_id
				  AND w.provider_workflow_id = executions.provider_workflow_id
			)
		  )
		  AND EXISTS (
			SELECT 1 FROM workflows w
			WHERE w.provider_id = executions.provider_id
			  AND w.provider_workflow_id = executions.provider_workflow_id
		  )
	`, providerID)
	if err != nil {
		em.logger.Error(fmt.Sprintf("Failed to repair execution workflow links: %v", err), "database")
		return 0, err
	}

	repaired, _ := result.RowsAffected()
	if repaired > 0 {
		em.logger.Info(fmt.Sprintf("Repaired workflow links on %d executions for provider %d", repaired, providerID), "database")
	}
	return repaired, nil
}

// CountExecutionsByStatus returns status -> count for a provider,
// used by the dashboard health endpoint.
func (em *ExecutionsManager) CountExecutionsByStatus(providerID int64) (map[string]int64, error) {
	rows, err := em.db.Query(`
		SELECT status, COUNT(*) FROM executions WHERE provider_id = ? GROUP BY status
	`, providerID)
	if err != nil {
		em.logger.Error(fmt.Sprintf("Failed to count executions: %v", err), "database")
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			continue
		}
		counts[status] = count
	}

	return counts, rows.Err()
}
