package batch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaceshipgen/comparator/internal/domain"
	"github.com/spaceshipgen/comparator/internal/store"
	"github.com/spaceshipgen/comparator/internal/structure/structuretest"
	"github.com/spaceshipgen/comparator/internal/workflow"
)

func newEngine(t *testing.T) *workflow.Engine {
	t.Helper()
	db, err := store.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return workflow.NewEngine(db, structuretest.NewReconstructor(), workflow.EngineConfig{})
}

func writeSession(t *testing.T, root, id string, files map[string]string) {
	t.Helper()
	dir := filepath.Join(root, id)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
}

func TestImporter_Run(t *testing.T) {
	root := t.TempDir()
	writeSession(t, root, "alice", map[string]string{
		"ship_42_exp1.txt": "A",
		"ship_42_exp2.txt": "AB",
		"ship_42_exp3.txt": "ABC",
		RanksFile:          `{"1": 3, "2": 1, "3": 2}`,
	})
	writeSession(t, root, "bob", map[string]string{
		"ship_7_exp1.txt": "A",
		"notes.md":        "ignored",
	})
	writeSession(t, root, "carol", map[string]string{
		"ship_1_exp1.txt": "A",
		"ship_2_exp2.txt": "A",
	})
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray.txt"), nil, 0o644))

	eng := newEngine(t)
	im := &Importer{Engine: eng, Concurrency: 3}
	report, err := im.Run(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, report.Items, 3)

	alice, bob, carol := report.Items[0], report.Items[1], report.Items[2]
	assert.Equal(t, "alice", alice.SessionID)
	assert.NoError(t, alice.Err)
	assert.Equal(t, 3, alice.Files)
	assert.Equal(t, "042_res.json", alice.Exported)

	assert.NoError(t, bob.Err)
	assert.Equal(t, 1, bob.Files)
	assert.Equal(t, []domain.Slot{1}, bob.Applied)
	assert.Empty(t, bob.Exported)

	assert.ErrorIs(t, carol.Err, domain.ErrSeedMismatch)
	assert.Equal(t, 1, report.Failed())

	rec, err := eng.Record(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExported, rec.Status)
}

func TestImporter_Rerun(t *testing.T) {
	root := t.TempDir()
	writeSession(t, root, "s", map[string]string{
		"ship_5_exp1.txt": "A",
		RanksFile:         `{"1": 1, "2": 2, "3": 3}`,
	})
	eng := newEngine(t)
	im := &Importer{Engine: eng}

	_, err := im.Run(context.Background(), root)
	require.NoError(t, err)

	// The session is exported now, so its upload is refused on the second run.
	report, err := im.Run(context.Background(), root)
	require.NoError(t, err)
	assert.ErrorIs(t, report.Items[0].Err, domain.ErrSessionExported)
}

func TestImporter_BadRanksFile(t *testing.T) {
	root := t.TempDir()
	writeSession(t, root, "s", map[string]string{
		"ship_5_exp1.txt": "A",
		RanksFile:         `[1, 2, 3]`,
	})
	report, err := (&Importer{Engine: newEngine(t)}).Run(context.Background(), root)
	require.NoError(t, err)
	assert.ErrorIs(t, report.Items[0].Err, domain.ErrRanksInvalid)
}

func TestImporter_MissingRoot(t *testing.T) {
	_, err := (&Importer{Engine: newEngine(t)}).Run(context.Background(), filepath.Join(t.TempDir(), "none"))
	assert.Error(t, err)
}

func TestImporter_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeSession(t, root, "a", map[string]string{"ship_1_exp1.txt": "A"})
	writeSession(t, root, "b", map[string]string{"ship_2_exp1.txt": "A"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (&Importer{Engine: newEngine(t)}).Run(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
}
