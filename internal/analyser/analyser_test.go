package analyser

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dohdata/prismzonal/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Config{
		DataDir:        t.TempDir(),
		ZonesPath:      "unused.geojson",
		ZoneIDProperty: "GEOID10",
		Variable:       "tmax",
		Year:           2011,
		NumWorkers:     1,
	}
	require.NoError(t, cfg.EnsureDirs())
	return cfg
}

func TestRunAnalysis(t *testing.T) {
	cfg := testConfig(t)
	day1 := "GEOID10,date,mean\n53033000100,2011-01-21,10\n53033000200,2011-01-21,NA\n"
	day2 := "GEOID10,date,mean\n53033000100,2011-01-22,20\n53033000200,2011-01-22,4\n"
	require.NoError(t, os.WriteFile(filepath.Join(cfg.OutputDir(), "day1.csv"), []byte(day1), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.OutputDir(), "day2.csv"), []byte(day2), 0o644))

	var buf bytes.Buffer
	require.NoError(t, RunAnalysis(context.Background(), cfg, &buf))
	report := buf.String()

	assert.Contains(t, report, "4 rows across 2 dates")
	// First zone: two observed days averaging 15.
	assert.Contains(t, report, "53033000100")
	assert.Contains(t, report, "15.0000")
	// Second zone: the NA day is excluded from the average.
	assert.Contains(t, report, "53033000200")
	assert.Contains(t, report, "4.0000")
	assert.Contains(t, report, "2011-01-21")
	assert.Contains(t, report, "2011-01-22")
}

func TestRunAnalysis_NoOutput(t *testing.T) {
	cfg := testConfig(t)

	var buf bytes.Buffer
	err := RunAnalysis(context.Background(), cfg, &buf)
	// DuckDB errors on a glob matching nothing; either way the caller
	// learns there is nothing to report.
	if err == nil {
		assert.Contains(t, buf.String(), "No output found")
	}
}
