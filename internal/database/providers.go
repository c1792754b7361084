package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Provider health statuses
const (
	ProviderStatusHealthy = "healthy"
	ProviderStatusWarning = "warning"
	ProviderStatusError   = "error"
	ProviderStatusUnknown = "unknown"
)

// Provider represents a configured remote n8n instance
type Provider struct {
	ID              int64      `json:"id"`
	UserID          string     `json:"user_id"`
	Name            string     `json:"name"`
	BaseURL         string     `json:"base_url"`
	APIKeyEncrypted string     `json:"-"`
	IsConnected     bool       `json:"is_connected"`
	Status          string     `json:"status"` // healthy, warning, error, unknown
	LastCheckedAt   *time.Time `json:"last_checked_at,omitempty"`
	Metadata        string     `json:"metadata,omitempty"` // versioned JSON blob
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ProvidersManager handles the provider directory table
type ProvidersManager struct {
	db     *sql.DB
	logger Logger
}

func NewProvidersManager(db *sql.DB, logger Logger) (*ProvidersManager, error) {
	pm := &ProvidersManager{db: db, logger: logger}
	if err := pm.initTable(); err != nil {
		return nil, err
	}
	return pm, nil
}

func (pm *ProvidersManager) initTable() error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS providers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		base_url TEXT NOT NULL,
		api_key_encrypted TEXT NOT NULL,
		is_connected INTEGER NOT NULL DEFAULT 1,
		status TEXT CHECK(status IN ('healthy', 'warning', 'error', 'unknown')) NOT NULL DEFAULT 'unknown',
		last_checked_at DATETIME,
		metadata TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_providers_status ON providers(status);
	CREATE INDEX IF NOT EXISTS idx_providers_user_id ON providers(user_id);
	`

	_, err := pm.db.Exec(createTableSQL)
	if err != nil {
		pm.logger.Error(fmt.Sprintf("Failed to create providers table: %v", err), "database")
		return err
	}

	return nil
}

// CreateProvider inserts a new provider record
func (pm *ProvidersManager) CreateProvider(p *Provider) error {
	result, err := pm.db.Exec(`
		INSERT INTO providers (user_id, name, base_url, api_key_encrypted, is_connected, status, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		p.UserID,
		p.Name,
		p.BaseURL,
		p.APIKeyEncrypted,
		p.IsConnected,
		p.Status,
		NullableString(p.Metadata),
	)
	if err != nil {
		pm.logger.Error(fmt.Sprintf("Failed to create provider: %v", err), "database")
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}

	p.ID = id
	p.CreatedAt = time.Now()
	p.UpdatedAt = time.Now()

	pm.logger.Info(fmt.Sprintf("Provider created: ID %d (%s)", id, p.Name), "database")
	return nil
}

func scanProviderRow(scan func(dest ...interface{}) error) (*Provider, error) {
	var p Provider
	var lastChecked sql.NullTime
	var metadata sql.NullString

	err := scan(
		&p.ID,
		&p.UserID,
		&p.Name,
		&p.BaseURL,
		&p.APIKeyEncrypted,
		&p.IsConnected,
		&p.Status,
		&lastChecked,
		&metadata,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.LastCheckedAt = ScanNullableTime(lastChecked)
	p.Metadata = ScanNullableString(metadata)
	return &p, nil
}

const providerColumns = `id, user_id, name, base_url, api_key_encrypted, is_connected, status,
	       last_checked_at, metadata, created_at, updated_at`

// GetProvider retrieves a provider by ID, nil if not found
func (pm *ProvidersManager) GetProvider(id int64) (*Provider, error) {
	query := fmt.Sprintf(`SELECT %s FROM providers WHERE id = ?`, providerColumns)

	return QueryRowSingle(pm.db, query,
		func(row *sql.Row) (*Provider, error) {
			return scanProviderRow(row.Scan)
		},
		pm.logger, "database", id)
}

// GetConnectedHealthyProviders returns the providers eligible for sync runs.
func (pm *ProvidersManager) GetConnectedHealthyProviders() ([]*Provider, error) {
	query := fmt.Sprintf(`SELECT %s FROM providers
		WHERE is_connected = 1 AND status IN ('healthy', 'unknown')
		ORDER BY id ASC`, providerColumns)

	return QueryRows(pm.db, query,
		func(rows *sql.Rows) (*Provider, error) {
			return scanProviderRow(rows.Scan)
		},
		pm.logger, "database")
}

// GetAllProviders returns every provider record
func (pm *ProvidersManager) GetAllProviders() ([]*Provider, error) {
	query := fmt.Sprintf(`SELECT %s FROM providers ORDER BY id ASC`, providerColumns)

	return QueryRows(pm.db, query,
		func(rows *sql.Rows) (*Provider, error) {
			return scanProviderRow(rows.Scan)
		},
		pm.logger, "database")
}

// UpdateProviderHealth records the outcome of a connection test or a
// sync run for the provider.
func (pm *ProvidersManager) UpdateProviderHealth(id int64, status string) error {
	_, err := pm.db.Exec(`
		UPDATE providers
		SET status = ?, last_checked_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, status, id)

	if err != nil {
		pm.logger.Error(fmt.Sprintf("Failed to update provider health: %v", err), "database")
		return err
	}

	pm.logger.Debug(fmt.Sprintf("Provider %d health updated: %s", id, status), "database")
	return nil
}

// UpdateProviderConnection flips the connectivity flag
func (pm *ProvidersManager) UpdateProviderConnection(id int64, connected bool) error {
	_, err := pm.db.Exec(`
		UPDATE providers
		SET is_connected = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, connected, id)

	if err != nil {
		pm.logger.Error(fmt.Sprintf("Failed to update provider connection: %v", err), "database")
		return err
	}

	return nil
}

// DeleteProvider removes a provider; workflows and executions cascade.
// Only invoked from explicit user action, never by the sync engine.
func (pm *ProvidersManager) DeleteProvider(id int64) error {
	_, err := pm.db.Exec(`DELETE FROM providers WHERE id = ?`, id)
	if err != nil {
		pm.logger.Error(fmt.Sprintf("Failed to delete provider: %v", err), "database")
		return err
	}

	pm.logger.Info(fmt.Sprintf("Provider %d deleted", id), "database")
	return nil
}
