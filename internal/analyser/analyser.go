// Package analyser summarizes extraction output with DuckDB. The output
// CSVs are queried in place through read_csv_auto; nothing is imported or
// copied into the manifest database.
package analyser

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/dohdata/prismzonal/internal/config"
)

// ZoneSummary is one row of the per-zone report.
type ZoneSummary struct {
	Zone      string
	Days      int64
	Observed  int64 // days with a non-missing mean
	AvgMean   sql.NullFloat64
	MinMean   sql.NullFloat64
	MaxMean   sql.NullFloat64
	FirstDate sql.NullString
	LastDate  sql.NullString
}

// RunAnalysis aggregates every output CSV for the configured year into a
// per-zone summary and writes a formatted report to out. The CSV missing
// marker is mapped to SQL NULL so averages only cover observed days.
func RunAnalysis(ctx context.Context, cfg config.Config, out io.Writer) error {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return fmt.Errorf("open duckdb for analysis: %w", err)
	}
	defer db.Close()

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get connection from pool: %w", err)
	}
	defer conn.Close()

	// DuckDB wants forward slashes regardless of platform.
	csvGlob := strings.ReplaceAll(cfg.OutputDir(), `\`, `/`) + "/*.csv"
	createViewSQL := fmt.Sprintf(`
    CREATE OR REPLACE VIEW zonal AS
    SELECT GEOID10 AS zone, date, TRY_CAST(mean AS DOUBLE) AS mean
    FROM read_csv_auto('%s', header=true, nullstr='NA', types={'GEOID10': 'VARCHAR'});`, csvGlob)
	if _, err := conn.ExecContext(ctx, createViewSQL); err != nil {
		return fmt.Errorf("create zonal view over %s: %w", csvGlob, err)
	}

	var totalRows, distinctDates int64
	if err := conn.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT date) FROM zonal;`).Scan(&totalRows, &distinctDates); err != nil {
		return fmt.Errorf("count zonal rows: %w", err)
	}
	fmt.Fprintf(out, "Zonal output: %d rows across %d dates (%s)\n\n", totalRows, distinctDates, csvGlob)
	if totalRows == 0 {
		fmt.Fprintln(out, "No output found. Run the pipeline first.")
		return nil
	}

	summaries, err := querySummaries(ctx, conn)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%-15s | %6s | %8s | %10s | %10s | %10s | %-10s | %-10s\n",
		"Zone", "Days", "Observed", "Avg Mean", "Min Mean", "Max Mean", "First", "Last")
	fmt.Fprintln(out, strings.Repeat("-", 100))
	printFloat := func(f sql.NullFloat64) string {
		if f.Valid {
			return fmt.Sprintf("%.4f", f.Float64)
		}
		return "NULL"
	}
	for _, s := range summaries {
		fmt.Fprintf(out, "%-15s | %6d | %8d | %10s | %10s | %10s | %-10s | %-10s\n",
			s.Zone, s.Days, s.Observed,
			printFloat(s.AvgMean), printFloat(s.MinMean), printFloat(s.MaxMean),
			s.FirstDate.String, s.LastDate.String)
	}
	return nil
}

func querySummaries(ctx context.Context, conn *sql.Conn) ([]ZoneSummary, error) {
	aggregateSQL := `
    SELECT zone,
        COUNT(*) AS days,
        COUNT(mean) AS observed,
        AVG(mean) AS avg_mean,
        MIN(mean) AS min_mean,
        MAX(mean) AS max_mean,
        CAST(MIN(date) AS VARCHAR) AS first_date,
        CAST(MAX(date) AS VARCHAR) AS last_date
    FROM zonal
    GROUP BY zone
    ORDER BY zone;`
	rows, err := conn.QueryContext(ctx, aggregateSQL)
	if err != nil {
		return nil, fmt.Errorf("aggregate zonal summary: %w", err)
	}
	defer rows.Close()

	var out []ZoneSummary
	var scanErrs error
	for rows.Next() {
		var s ZoneSummary
		if err := rows.Scan(&s.Zone, &s.Days, &s.Observed, &s.AvgMean, &s.MinMean, &s.MaxMean, &s.FirstDate, &s.LastDate); err != nil {
			scanErrs = errors.Join(scanErrs, fmt.Errorf("scan summary row: %w", err))
			continue
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		scanErrs = errors.Join(scanErrs, fmt.Errorf("iterate summary rows: %w", err))
	}
	if scanErrs != nil {
		return nil, scanErrs
	}
	return out, nil
}
