package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planforge/sql/plan"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestExplainFixture(t *testing.T) {
	out, err := execute(t, "explain", "--fixture", "fixture/testdata/company.yaml", "--query", "staff-by-department")
	require.NoError(t, err)
	assert.Contains(t, out, "-- staff-by-department")
	assert.Contains(t, out, "SELECT plan")
	assert.Contains(t, out, "HashJoin")
}

func TestRunFixture(t *testing.T) {
	out, err := execute(t, "run", "--config", "config/planforge.yaml", "--fixture", "fixture/testdata/company.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME\tDNAME\nann\teng\nbob\tops\ndan\teng\n")
	assert.Contains(t, out, "-- top-paid\nNAME\ndan\nbob\n")
	assert.Contains(t, out, "-- hire\nROWCOUNT\n1\n")
	assert.Contains(t, out, "-- unassigned\nNAME\ncy\n")
}

func TestRunFixtureFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tables:
  - name: t
    columns:
      - {name: a, type: INTEGER}
queries:
  - name: missing-column
    select: [b]
    from: [{table: t}]
`), 0o644))
	out, err := execute(t, "run", "--fixture", path)
	require.Error(t, err)
	assert.Contains(t, out, "ERROR:")
}

func TestConfig(t *testing.T) {
	cfg := LoadConfig("config/planforge.yaml")
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 16, cfg.Plan.BulkFetchSize)
	opts, err := cfg.CompilerOptions()
	require.NoError(t, err)
	assert.Equal(t, plan.ReadCommitted, opts.Plan.Isolation)
	assert.Equal(t, 6, opts.Optimizer.TimeoutTables)
	assert.True(t, opts.Optimizer.HashJoin)
	assert.Equal(t, 1012, opts.Binder.MaxColumnsInTable)
	assert.Nil(t, opts.Registerer)

	assert.Equal(t, DefaultConfig(), LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")))

	cfg.Plan.Isolation = "chaos"
	_, err = cfg.CompilerOptions()
	require.Error(t, err)
}
