// Package ledger persists a per-file event history in DuckDB. It is the
// explicit completion manifest for the pipeline: a completion event is only
// written after the corresponding artifact is atomically in place, so the
// manifest never claims work that a crash left half-done. File presence on
// disk is still re-verified by callers before skipping, which covers the
// case of a manifest row whose artifact was deleted out of band.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb" // driver
)

// Event types.
const (
	EventDiscovered    = "discovered"
	EventDownloadStart = "download_start"
	EventDownloadEnd   = "download_end"
	EventExpandStart   = "expand_start"
	EventExpandEnd     = "expand_end"
	EventExtractStart  = "extract_start"
	EventExtractEnd    = "extract_end"
	EventSkipDownload  = "skip_download"
	EventSkipExpand    = "skip_expand"
	EventSkipExtract   = "skip_extract"
	EventError         = "error"
)

// File types.
const (
	FileTypeArchive = "archive" // downloaded .zip
	FileTypeRaster  = "raster"  // expanded .bil grid
	FileTypeCsv     = "csv"     // extraction output
)

const schemaSequenceSQL = `CREATE SEQUENCE IF NOT EXISTS event_log_id_seq;`
const schemaTableSQL = `
CREATE TABLE IF NOT EXISTS prism_event_log (
    log_id          BIGINT PRIMARY KEY DEFAULT nextval('event_log_id_seq'),
    filename        VARCHAR NOT NULL,      -- archive name, raster path or CSV base name
    filetype        VARCHAR NOT NULL,      -- 'archive', 'raster', 'csv'
    event           VARCHAR NOT NULL,
    event_timestamp TIMESTAMP NOT NULL,
    source_url      VARCHAR,
    output_path     VARCHAR,
    message         VARCHAR,
    duration_ms     BIGINT
);
CREATE INDEX IF NOT EXISTS idx_prism_event_log_file ON prism_event_log (filename, filetype);
CREATE INDEX IF NOT EXISTS idx_prism_event_log_event_time ON prism_event_log (event, event_timestamp);
`

// Open opens (or creates) the manifest database and initializes the schema.
func Open(path string) (*sql.DB, error) {
	conn, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb database (%s): %w", path, err)
	}
	if err := InitializeSchema(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// InitializeSchema creates the sequence and tables in the correct order.
func InitializeSchema(db *sql.DB) error {
	_, err := db.Exec(schemaSequenceSQL)
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return fmt.Errorf("failed to execute sequence setup: %w", err)
	}
	_, err = db.Exec(schemaTableSQL)
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return fmt.Errorf("failed to execute table/index setup: %w", err)
	}
	return nil
}

// LogFileEvent inserts a new event record into the log.
func LogFileEvent(ctx context.Context, db *sql.DB, filename, filetype, event, sourceURL, outputPath, message string, duration *time.Duration) error {
	query := `
        INSERT INTO prism_event_log (filename, filetype, event, event_timestamp, source_url, output_path, message, duration_ms)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?);
    `
	var durationMs sql.NullInt64
	if duration != nil {
		durationMs = sql.NullInt64{Int64: duration.Milliseconds(), Valid: true}
	}

	_, err := db.ExecContext(ctx, query,
		filename,
		filetype,
		event,
		time.Now().UTC(),
		sql.NullString{String: sourceURL, Valid: sourceURL != ""},
		sql.NullString{String: outputPath, Valid: outputPath != ""},
		sql.NullString{String: message, Valid: message != ""},
		durationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to log event '%s' for '%s': %w", event, filename, err)
	}
	return nil
}

// HasEventOccurred checks if a specific event has ever happened for a file.
func HasEventOccurred(ctx context.Context, db *sql.DB, filename, filetype, event string) (bool, error) {
	query := `SELECT 1 FROM prism_event_log WHERE filename = ? AND filetype = ? AND event = ? LIMIT 1;`
	var exists int
	row := db.QueryRowContext(ctx, query, filename, filetype, event)
	err := row.Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed check event '%s' for '%s' (%s): %w", event, filename, filetype, err)
	}
	return true, nil
}

// GetCompletionStatusBatch checks a list of files for a specific completion
// event using a temporary table approach compatible with DuckDB.
// Returns a map keyed by filename, present if the completion event exists.
func GetCompletionStatusBatch(ctx context.Context, db *sql.DB, filenames []string, filetype string, completionEvent string) (map[string]bool, error) {
	completedFiles := make(map[string]bool)
	if len(filenames) == 0 {
		return completedFiles, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction for batch check: %w", err)
	}
	defer tx.Rollback() // safe even after commit

	tempTableName := fmt.Sprintf("temp_files_to_check_%d", time.Now().UnixNano())
	createTempTableSQL := fmt.Sprintf(`CREATE TEMP TABLE %s (filename TEXT PRIMARY KEY);`, tempTableName)
	if _, err = tx.ExecContext(ctx, createTempTableSQL); err != nil {
		return nil, fmt.Errorf("failed to create temp table %s: %w", tempTableName, err)
	}

	insertSQL := fmt.Sprintf(`INSERT INTO %s (filename) VALUES (?)`, tempTableName)
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare insert statement for temp table %s: %w", tempTableName, err)
	}
	for _, fn := range filenames {
		select {
		case <-ctx.Done():
			stmt.Close()
			return nil, ctx.Err()
		default:
			if _, err := stmt.ExecContext(ctx, fn); err != nil {
				stmt.Close()
				return nil, fmt.Errorf("failed to insert filename '%s' into temp table %s: %w", fn, tempTableName, err)
			}
		}
	}
	if err = stmt.Close(); err != nil {
		return nil, fmt.Errorf("failed to close insert statement for %s: %w", tempTableName, err)
	}

	query := fmt.Sprintf(`
        SELECT DISTINCT el.filename
        FROM prism_event_log el
        JOIN %s tfc ON el.filename = tfc.filename
        WHERE el.filetype = ?
          AND el.event = ?;
    `, tempTableName)
	rows, err := tx.QueryContext(ctx, query, filetype, completionEvent)
	if err != nil {
		return nil, fmt.Errorf("failed batch query status joining temp table %s (event=%s, type=%s): %w", tempTableName, completionEvent, filetype, err)
	}

	for rows.Next() {
		var filename string
		if err := rows.Scan(&filename); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed scanning batch status row: %w", err)
		}
		completedFiles[filename] = true
	}
	if err = rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating batch status results: %w", err)
	}
	rows.Close()

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction for batch check: %w", err)
	}

	return completedFiles, nil
}

// DisplayHistory queries and prints the event log for files.
func DisplayHistory(ctx context.Context, db *sql.DB, filetypeFilter, eventFilter string, limit int) error {
	query := `
        SELECT filename, filetype, event, event_timestamp, message, duration_ms, source_url, output_path
        FROM prism_event_log
    `
	conditions := []string{}
	args := []any{}
	argCounter := 1

	if filetypeFilter != "" {
		conditions = append(conditions, fmt.Sprintf("filetype = $%d", argCounter))
		args = append(args, filetypeFilter)
		argCounter++
	}
	if eventFilter != "" {
		conditions = append(conditions, fmt.Sprintf("event = $%d", argCounter))
		args = append(args, eventFilter)
		argCounter++
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += fmt.Sprintf(" ORDER BY event_timestamp DESC, log_id DESC LIMIT $%d", argCounter)
	args = append(args, limit)

	fmt.Printf("--- Event Log History (Limit %d) ---\n", limit)
	fmt.Printf("%-55s | %-8s | %-15s | %-25s | %-10s | %s\n", "Filename", "Type", "Event", "Timestamp (UTC)", "DurationMS", "Message/Details")
	fmt.Println(strings.Repeat("-", 150))

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query event log: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var filename, filetype, event string
		var timestamp time.Time
		var message, sourceURL, outputPath sql.NullString
		var durationMs sql.NullInt64
		if err := rows.Scan(&filename, &filetype, &event, &timestamp, &message, &durationMs, &sourceURL, &outputPath); err != nil {
			return fmt.Errorf("failed to scan event log row: %w", err)
		}

		durationStr := ""
		if durationMs.Valid {
			durationStr = fmt.Sprintf("%d", durationMs.Int64)
		}

		details := message.String
		if sourceURL.Valid && sourceURL.String != "" {
			details += fmt.Sprintf(" (source: %s)", sourceURL.String)
		}
		if outputPath.Valid && outputPath.String != "" {
			details += fmt.Sprintf(" (output: %s)", outputPath.String)
		}

		fmt.Printf("%-55s | %-8s | %-15s | %-25s | %-10s | %s\n",
			filename, filetype, event, timestamp.Format(time.RFC3339), durationStr, details)
		count++
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("error iterating event log rows: %w", err)
	}
	fmt.Printf("Displayed %d records.\n", count)
	return nil
}
