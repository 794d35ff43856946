package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaceshipgen/comparator/internal/domain"
	"github.com/spaceshipgen/comparator/internal/session"
	"github.com/spaceshipgen/comparator/internal/shuffle"
)

func seeded(seed domain.Seed) session.Session {
	s := session.New("sess")
	s.Seed = seed
	return s
}

func TestExport_DeAnonymizes(t *testing.T) {
	// Seed 42 shows Preference Matrix, Random, Contextual Bandit in slots 1..3.
	rec, err := Export(seeded("42"), domain.Ranks{1: 3, 2: 1, 3: 2}, shuffle.DefaultLabels)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{
		"Random":            1,
		"Preference Matrix": 3,
		"Contextual Bandit": 2,
	}, rec.Ranks)
	assert.Equal(t, "042_res.json", rec.Filename())
}

func TestExport_RecomputesFromSeed(t *testing.T) {
	ranks := domain.Ranks{1: 1, 2: 2, 3: 3}
	for _, seed := range []domain.Seed{"0", "7", "123", "340282366920938463463374607431768211455"} {
		a, err := shuffle.DeriveAssignment(seed, shuffle.DefaultLabels)
		require.NoError(t, err)

		rec, err := Export(seeded(seed), ranks, shuffle.DefaultLabels)
		require.NoError(t, err)
		for _, label := range shuffle.DefaultLabels {
			slot, _ := a.Slot(label)
			assert.Equal(t, int(slot), rec.Ranks[label], "seed %s label %s", seed, label)
		}
	}
}

func TestExport_IncompleteSession(t *testing.T) {
	t.Run("seed unset with all ranks", func(t *testing.T) {
		_, err := Export(session.New("s"), domain.Ranks{1: 1, 2: 2, 3: 3}, shuffle.DefaultLabels)
		assert.ErrorIs(t, err, domain.ErrIncompleteSession)
	})
	t.Run("missing rank", func(t *testing.T) {
		_, err := Export(seeded("7"), domain.Ranks{1: 1, 3: 3}, shuffle.DefaultLabels)
		require.ErrorIs(t, err, domain.ErrIncompleteSession)
		assert.Contains(t, err.Error(), "slot 2")
	})
}

func TestExport_LabelCountMustMatchSlots(t *testing.T) {
	_, err := Export(seeded("7"), domain.Ranks{1: 1, 2: 2, 3: 3}, []string{"A", "B"})
	assert.ErrorIs(t, err, domain.ErrLabelsInvalid)
}

func TestExport_DuplicateRanksPassThrough(t *testing.T) {
	rec, err := Export(seeded("1"), domain.Ranks{1: 1, 2: 1, 3: 1}, shuffle.DefaultLabels)
	require.NoError(t, err)
	for _, label := range shuffle.DefaultLabels {
		assert.Equal(t, 1, rec.Ranks[label])
	}
}

func TestFilename(t *testing.T) {
	tests := []struct {
		seed domain.Seed
		want string
	}{
		{"7", "007_res.json"},
		{"0", "000_res.json"},
		{"42", "042_res.json"},
		{"1234", "1234_res.json"},
	}
	for _, tt := range tests {
		if got := Filename(tt.seed); got != tt.want {
			t.Errorf("Filename(%s) = %q, want %q", tt.seed, got, tt.want)
		}
	}
}

func TestSeedFromFilename(t *testing.T) {
	seed, err := SeedFromFilename("/data/exports/007_res.json")
	require.NoError(t, err)
	assert.Equal(t, domain.Seed("7"), seed)

	_, err = SeedFromFilename("notes.txt")
	assert.ErrorIs(t, err, domain.ErrFormat)
}

func TestRecord_MarshalJSONKeepsLabelOrder(t *testing.T) {
	rec := Record{
		Seed:   "7",
		Labels: shuffle.DefaultLabels,
		Ranks:  map[string]int{"Contextual Bandit": 1, "Random": 2, "Preference Matrix": 3},
	}
	data, err := rec.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"Random": 2, "Preference Matrix": 3, "Contextual Bandit": 1}`, string(data))

	compact, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Equal(t, `{"Random":2,"Preference Matrix":3,"Contextual Bandit":1}`, string(compact))
}

func TestRecord_UnmarshalJSON(t *testing.T) {
	var rec Record
	require.NoError(t, json.Unmarshal([]byte(`{"B": 2, "A": 1}`), &rec))
	assert.Equal(t, []string{"B", "A"}, rec.Labels)
	assert.Equal(t, map[string]int{"A": 1, "B": 2}, rec.Ranks)

	assert.Error(t, json.Unmarshal([]byte(`[1, 2]`), &rec))
	assert.Error(t, json.Unmarshal([]byte(`{"A": "first"}`), &rec))
}

func TestWriteAndReadFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	rec, err := Export(seeded("9"), domain.Ranks{1: 2, 2: 3, 3: 1}, shuffle.DefaultLabels)
	require.NoError(t, err)

	path, err := WriteFile(dir, rec)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "009_res.json"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, json.Valid(raw))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, rec.Seed, got.Seed)
	assert.Equal(t, rec.Labels, got.Labels)
	assert.Equal(t, rec.Ranks, got.Ranks)
}

func TestReadFile_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "003_res.json")
	require.NoError(t, os.WriteFile(path, []byte("{nope"), 0o644))
	_, err := ReadFile(path)
	assert.ErrorIs(t, err, domain.ErrFormat)
}
