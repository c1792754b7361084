package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Logger interface for query helpers - compatible with utils.LogsManager
type Logger interface {
	Error(msg, category string)
	Info(msg, category string)
	Warn(msg, category string)
	Debug(msg, category string)
}

// QueryRowSingle executes a single-row query with consistent error handling.
// Returns nil if no rows found (sql.ErrNoRows), logs and returns error for other failures.
func QueryRowSingle[T any](
	db *sql.DB,
	query string,
	scanFunc func(*sql.Row) (*T, error),
	logger Logger,
	logContext string,
	args ...interface{},
) (*T, error) {
	row := db.QueryRow(query, args...)
	result, err := scanFunc(row)

	if err != nil {
		if err == sql.ErrNoRows {
			// No rows found is not an error condition - return nil
			return nil, nil
		}
		logger.Error(fmt.Sprintf("Failed to query row: %v", err), logContext)
		return nil, err
	}

	return result, nil
}

// QueryRows executes a multi-row query with consistent error handling.
// Returns empty slice if no rows found, logs and returns error for failures.
func QueryRows[T any](
	db *sql.DB,
	query string,
	scanFunc func(*sql.Rows) (*T, error),
	logger Logger,
	logContext string,
	args ...interface{},
) ([]*T, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		logger.Error(fmt.Sprintf("Failed to query rows: %v", err), logContext)
		return nil, err
	}
	defer rows.Close()

	var results []*T
	for rows.Next() {
		result, err := scanFunc(rows)
		if err != nil {
			logger.Error(fmt.Sprintf("Failed to scan row: %v", err), logContext)
			// Continue processing other rows instead of failing completely
			continue
		}
		results = append(results, result)
	}

	if err := rows.Err(); err != nil {
		logger.Error(fmt.Sprintf("Error iterating rows: %v", err), logContext)
		return nil, err
	}

	return results, nil
}

// ScanNullableString converts sql.NullString to string.
// Returns empty string if null.
func ScanNullableString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// ScanNullableInt64 converts sql.NullInt64 to *int64.
// Returns nil if null, otherwise returns pointer to value.
func ScanNullableInt64(ni sql.NullInt64) *int64 {
	if ni.Valid {
		return &ni.Int64
	}
	return nil
}

// ScanNullableFloat64 converts sql.NullFloat64 to *float64.
func ScanNullableFloat64(nf sql.NullFloat64) *float64 {
	if nf.Valid {
		return &nf.Float64
	}
	return nil
}

// ScanNullableTime converts sql.NullTime to *time.Time.
func ScanNullableTime(nt sql.NullTime) *time.Time {
	if nt.Valid {
		t := nt.Time
		return &t
	}
	return nil
}

// NullableTime converts *time.Time to a driver-friendly value.
func NullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

// NullableString converts an optional string to a driver-friendly value,
// treating the empty string as NULL.
func NullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

const blobSchemaVersion = 1

// VersionedBlob is the envelope for every JSON column (workflow
// definitions, execution payloads, cron schedules, metadata). Readers
// check SchemaVersion instead of probing for key presence.
type VersionedBlob struct {
	SchemaVersion int             `json:"schemaVersion"`
	Data          json.RawMessage `json:"data"`
}

// MarshalVersionedBlob wraps v in the current-version envelope and
// returns it serialized. A nil value yields the empty string.
func MarshalVersionedBlob(v interface{}) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	blob, err := json.Marshal(VersionedBlob{SchemaVersion: blobSchemaVersion, Data: data})
	if err != nil {
		return "", err
	}
	return string(blob), nil
}

// UnmarshalVersionedBlob decodes an envelope written by
// MarshalVersionedBlob into out. Empty input leaves out untouched.
func UnmarshalVersionedBlob(blob string, out interface{}) error {
	if blob == "" {
		return nil
	}
	var envelope VersionedBlob
	if err := json.Unmarshal([]byte(blob), &envelope); err != nil {
		return err
	}
	if envelope.SchemaVersion > blobSchemaVersion {
		return fmt.Errorf("unsupported blob schema version %d", envelope.SchemaVersion)
	}
	if len(envelope.Data) == 0 {
		return nil
	}
	return json.Unmarshal(envelope.Data, out)
}
