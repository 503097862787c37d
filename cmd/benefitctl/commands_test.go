package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestPeriod_Text(t *testing.T) {
	out, err := execute(t, "period", "-f", "quarterly", "--date", "2024-05-15", "--lang", "en")
	require.NoError(t, err)
	assert.Equal(t, "Quarterly\t6/30/2024\nThis Quarter (Q2)\n", out)
}

func TestPeriod_JSON(t *testing.T) {
	out, err := execute(t, "--json", "cycle", "-f", "ONE_TIME", "--end-month", "12", "--end-day", "31", "--date", "2024-03-01")
	require.NoError(t, err)

	var res periodResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "2024/12/31", res.PeriodEnd)
	assert.Equal(t, "一次性", res.CycleLabel)
	assert.Empty(t, res.CurrentCycleLabel)
	assert.Equal(t, 1, res.Quarter)
}

func TestPeriod_BadInput(t *testing.T) {
	_, err := execute(t, "period", "-f", "WEEKLY")
	assert.ErrorContains(t, err, "unknown frequency")

	_, err = execute(t, "period", "-f", "MONTHLY", "--date", "2024/05/15")
	assert.ErrorContains(t, err, "--date")
}

func TestSeed_CustomCatalog(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ENV", "development")
	catalogPath := filepath.Join(dir, "cards.yaml")
	require.NoError(t, os.WriteFile(catalogPath, []byte(`
cards:
  - id: c1
    name: 測試卡
    benefits:
      - id: b1
        title: 每月回饋
        amount: "100"
        frequency: MONTHLY
`), 0o644))

	out, err := execute(t, "seed", "--db", filepath.Join(dir, "test.db"), "--catalog", catalogPath)
	require.NoError(t, err)
	assert.Equal(t, "SEEDED 1 cards, 1 benefits\n", out)

	_, err = execute(t, "seed", "--db", filepath.Join(dir, "test.db"), "--catalog", filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
