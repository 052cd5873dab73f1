package loader_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"sand/internal/loader"
	"sand/internal/store"
	_ "sand/internal/store/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*store.Store, int64) {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, store.Config{Kind: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(ctx))
	p, err := st.CreateProject(ctx, store.Project{Name: "Default"})
	require.NoError(t, err)
	return st, p.ID
}

func write(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestLoadFile_StoresAndSkipsDuplicate(t *testing.T) {
	st, pid := setup(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "mountains.csv")
	write(t, path, "name,height\nFansipan,3143\nPutaleng,3049\n")

	l := loader.New(st, loader.Options{}, nil)
	first, err := l.LoadFile(ctx, pid, path)
	require.NoError(t, err)
	assert.False(t, first.Skipped)
	assert.Equal(t, "mountains", first.Table.Name)
	assert.Equal(t, 2, first.Table.Size)

	rows, err := st.Rows(ctx, first.Table.ID, 0, -1)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []any{"Putaleng", "3049"}, rows[1].Cells)

	second, err := l.LoadFile(ctx, pid, path)
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Equal(t, first.Table.ID, second.Table.ID)

	tables, err := st.ListTables(ctx, pid)
	require.NoError(t, err)
	assert.Len(t, tables, 1)
}

func TestLoadGlob_RecursiveAndPartialFailure(t *testing.T) {
	st, pid := setup(t)
	dir := t.TempDir()
	write(t, filepath.Join(dir, "a.csv"), "x\n1\n")
	write(t, filepath.Join(dir, "nested", "deeper", "b.csv"), "y\n2\n")
	write(t, filepath.Join(dir, "nested", "empty.csv"), "")
	write(t, filepath.Join(dir, "notes.txt"), "ignored")

	l := loader.New(st, loader.Options{}, nil)
	outs, err := l.LoadGlob(context.Background(), pid, filepath.Join(dir, "**", "*.csv"))
	require.Error(t, err)
	assert.ErrorIs(t, err, loader.ErrNoHeader)

	var names []string
	for _, o := range outs {
		names = append(names, o.Table.Name)
	}
	assert.ElementsMatch(t, []string{"a", "b"}, names)
}

func TestLoadGlob_NoMatches(t *testing.T) {
	st, pid := setup(t)
	_, err := loader.New(st, loader.Options{}, nil).LoadGlob(context.Background(), pid, filepath.Join(t.TempDir(), "*.csv"))
	assert.ErrorContains(t, err, "no files matched")
}
