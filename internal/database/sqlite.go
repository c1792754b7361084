package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/Flowdeck-Labs/flowdeck-node/internal/utils"
	_ "modernc.org/sqlite"
)

// SQLiteManager owns the database connection and the per-table managers.
// It is constructed once at startup and passed to every component that
// needs storage; nothing here is lazily created.
type SQLiteManager struct {
	dir    string
	cm     *utils.ConfigManager
	db     *sql.DB
	logger *utils.LogsManager

	// Specialized managers
	Providers  *ProvidersManager
	Workflows  *WorkflowsManager
	Executions *ExecutionsManager
	SyncLogs   *SyncLogsManager
}

// NewSQLiteManager creates the SQLite manager, opens the connection and
// initializes all tables.
func NewSQLiteManager(cm *utils.ConfigManager, logger *utils.LogsManager) (*SQLiteManager, error) {
	paths := utils.GetAppPaths("")
	sqlm := &SQLiteManager{
		dir:    paths.DataDir,
		cm:     cm,
		logger: logger,
	}

	db, err := sqlm.CreateConnection()
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %v", err)
	}
	sqlm.db = db

	if err := sqlm.initializeManagers(); err != nil {
		return nil, fmt.Errorf("failed to initialize database managers: %v", err)
	}

	return sqlm, nil
}

// NewSQLiteManagerFromDB wires the table managers over an existing
// connection. Used by tests and one-off tools that bring their own
// database, typically in-memory.
func NewSQLiteManagerFromDB(db *sql.DB, logger *utils.LogsManager) (*SQLiteManager, error) {
	sqlm := &SQLiteManager{db: db, logger: logger}
	if err := sqlm.initializeManagers(); err != nil {
		return nil, err
	}
	return sqlm, nil
}

// CreateConnection creates and configures the database connection
func (sqlm *SQLiteManager) CreateConnection() (*sql.DB, error) {
	// Make sure we have os specific path separator since we are adding this path to host's path
	dbFileName := sqlm.cm.GetConfigWithDefault("database_file", "./flowdeck.db")
	switch runtime.GOOS {
	case "linux", "darwin":
		dbFileName = filepath.ToSlash(dbFileName)
	case "windows":
		dbFileName = filepath.FromSlash(dbFileName)
	default:
		err := fmt.Errorf("unsupported OS type `%s`", runtime.GOOS)
		return nil, err
	}

	path := filepath.Join(sqlm.dir, dbFileName)

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		sqlm.logger.Info(fmt.Sprintf("Creating new database at %s", path), "database")
	}

	// WAL + busy_timeout so dashboard readers and sync writers do not
	// block each other indefinitely
	db, err := sql.Open("sqlite",
		fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=1&_synchronous=NORMAL", path))
	if err != nil {
		message := fmt.Sprintf("Can not create database connection. (%s)", err.Error())
		sqlm.logger.Error(message, "database")
		return nil, err
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(0) // Connections never expire (SQLite handles this)

	// Explicitly enable foreign key enforcement
	_, err = db.Exec("PRAGMA foreign_keys = ON;")
	if err != nil {
		message := fmt.Sprintf("Failed to enable foreign keys: %s", err.Error())
		sqlm.logger.Error(message, "database")
		return nil, err
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL;")
	if err != nil {
		message := fmt.Sprintf("Failed to enable WAL mode: %s", err.Error())
		sqlm.logger.Warn(message, "database")
	}

	return db, nil
}

// initializeManagers sets up specialized table managers; each one
// creates its own tables and indexes.
func (sqlm *SQLiteManager) initializeManagers() error {
	var err error

	sqlm.Providers, err = NewProvidersManager(sqlm.db, sqlm.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize providers manager: %v", err)
	}

	sqlm.Workflows, err = NewWorkflowsManager(sqlm.db, sqlm.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize workflows manager: %v", err)
	}

	sqlm.Executions, err = NewExecutionsManager(sqlm.db, sqlm.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize executions manager: %v", err)
	}

	sqlm.SyncLogs, err = NewSyncLogsManager(sqlm.db, sqlm.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize sync logs manager: %v", err)
	}

	sqlm.logger.Info("Database managers initialized successfully", "database")
	return nil
}

// GetDB returns the database connection for direct access if needed
func (sqlm *SQLiteManager) GetDB() *sql.DB {
	return sqlm.db
}

// Close closes the database connection
func (sqlm *SQLiteManager) Close() error {
	if sqlm.db != nil {
		return sqlm.db.Close()
	}
	return nil
}

// GetStats returns database connection statistics
func (sqlm *SQLiteManager) GetStats() map[string]interface{} {
	stats := make(map[string]interface{})

	dbStats := sqlm.db.Stats()
	stats["connection_stats"] = map[string]interface{}{
		"max_open_connections": dbStats.MaxOpenConnections,
		"open_connections":     dbStats.OpenConnections,
		"in_use":               dbStats.InUse,
		"idle":                 dbStats.Idle,
	}

	return stats
}

// PerformMaintenance runs database maintenance tasks
func (sqlm *SQLiteManager) PerformMaintenance() error {
	_, err := sqlm.db.Exec("PRAGMA optimize;")
	if err != nil {
		sqlm.logger.Warn(fmt.Sprintf("Failed to optimize database: %v", err), "database")
	}

	_, err = sqlm.db.Exec("PRAGMA incremental_vacuum(100);")
	if err != nil {
		sqlm.logger.Warn(fmt.Sprintf("Failed to vacuum database: %v", err), "database")
	}

	return nil
}
