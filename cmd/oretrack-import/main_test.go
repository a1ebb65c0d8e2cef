package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/oretrack/internal/logging"
	"github.com/BrandonDHaskell/oretrack/internal/oretrack/store/memory"
	"github.com/BrandonDHaskell/oretrack/internal/oretrack/types"
)

const goodYAML = `
- {id: 1, contractor: Acme Earthworks, date: "2024-05-01", shift: DAY, stock_id: BB.D.5348, status: BUILDING}
- {id: 2, contractor: Acme Earthworks, date: "2024-05-01", shift: night, stock_id: BB.D.5349, status: complete}
`

const mixedYAML = `
- {id: 3, contractor: Northfield Haulage, date: "2024-05-02", shift: DAY, stock_id: "5348", status: BUILDING}
- {id: 4, contractor: Northfield Haulage, date: "not a date", shift: DAY, stock_id: "5348.A", status: BUILDING}
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestImportFiles_UpsertsGoodRows(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.yaml", goodYAML)
	mixed := writeFile(t, dir, "mixed.yml", mixedYAML)

	st := memory.New()
	var out bytes.Buffer
	n, err := importFiles(context.Background(), &out, st, []string{good, mixed}, options{}, logging.Discard())
	require.NoError(t, err)
	require.Equal(t, 3, n)

	rec, err := st.Get(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, types.ShiftNight, rec.Shift)
	require.Equal(t, types.StatusComplete, rec.Status)

	_, err = st.Get(context.Background(), 4)
	require.ErrorIs(t, err, types.ErrNotFound)

	require.Contains(t, out.String(), "good.yaml: 2 imported, 0 rejected")
	require.Contains(t, out.String(), "mixed.yml: 1 imported, 1 rejected")
	require.Contains(t, out.String(), "row 2")
}

func TestImportFiles_Strict(t *testing.T) {
	dir := t.TempDir()
	mixed := writeFile(t, dir, "mixed.yaml", mixedYAML)

	st := memory.New()
	var out bytes.Buffer
	n, err := importFiles(context.Background(), &out, st, []string{mixed}, options{strict: true}, logging.Discard())
	require.Error(t, err)
	require.Zero(t, n)

	page, err := st.List(context.Background(), types.Page{Limit: types.DefaultPageLimit})
	require.NoError(t, err)
	require.Empty(t, page.Records)
}

func TestImportFiles_DryRunWritesNothing(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.yaml", goodYAML)

	var out bytes.Buffer
	n, err := importFiles(context.Background(), &out, nil, []string{good}, options{dryRun: true}, logging.Discard())
	require.NoError(t, err)
	require.Zero(t, n)
	require.Contains(t, out.String(), "2 valid, 0 rejected (dry run)")
}

func TestImportFiles_UnreadableFileDoesNotStopOthers(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.yaml", goodYAML)
	csv := writeFile(t, dir, "piles.csv", "ID\n1\n")

	st := memory.New()
	var out bytes.Buffer
	n, err := importFiles(context.Background(), &out, st, []string{csv, filepath.Join(dir, "missing.yaml"), good}, options{}, logging.Discard())
	require.Error(t, err)
	require.Equal(t, 2, n)
	require.True(t, strings.Contains(err.Error(), "piles.csv"))
	require.True(t, strings.Contains(err.Error(), "missing.yaml"))
}

func TestRootCmd_DryRunFromArgs(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.yaml", goodYAML)
	t.Setenv("ORETRACK_LOG_LEVEL", "error")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--dry-run", good})
	require.NoError(t, cmd.Execute())
	require.Contains(t, out.String(), "2 valid")
}

func TestRootCmd_WritesToSQLite(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.yaml", goodYAML)
	t.Setenv("ORETRACK_ENV", "prod")
	t.Setenv("ORETRACK_LOG_LEVEL", "error")
	t.Setenv("ORETRACK_DB_DRIVER", "sqlite")
	t.Setenv("ORETRACK_DB_PATH", filepath.Join(dir, "oretrack.db"))

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{good})
	require.NoError(t, cmd.Execute())
	require.Contains(t, out.String(), "good.yaml: 2 imported")
}
