package render

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaceshipgen/comparator/internal/domain"
	"github.com/spaceshipgen/comparator/internal/review"
	"github.com/spaceshipgen/comparator/internal/session"
	"github.com/spaceshipgen/comparator/internal/structure/structuretest"
)

func uploaded(t *testing.T) session.Session {
	t.Helper()
	s, errs, err := session.ApplyUpload(context.Background(), session.New("demo"), []domain.Payload{
		{Filename: "ship_42_exp1.txt", Seed: "42", Slot: 1, Derivation: "AB/C"},
		{Filename: "ship_42_exp3.txt", Seed: "42", Slot: 3, Derivation: "AAA"},
	}, structuretest.NewReconstructor())
	require.NoError(t, err)
	require.Empty(t, errs)
	return s
}

func TestTopCells(t *testing.T) {
	s := uploaded(t)
	got := TopCells(s.Slots[0].Artifact.Structure, 0)
	want := [][]string{{"C", "B"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("TopCells mismatch (-want +got):\n%s", diff)
	}

	cut := TopCells(s.Slots[2].Artifact.Structure, 2)
	if diff := cmp.Diff([][]string{{"A", "A"}}, cut); diff != "" {
		t.Errorf("truncated TopCells mismatch (-want +got):\n%s", diff)
	}
}

func TestSession_Plain(t *testing.T) {
	r, err := New(150, "")
	require.NoError(t, err)
	assert.Nil(t, r.Markdown)

	out, err := r.Session(uploaded(t), domain.StatusCollecting)
	require.NoError(t, err)
	for _, want := range []string{
		"Session demo",
		"status collecting, seed 42",
		"### Spaceship from Experiment 1",
		"**Number of blocks**: 3",
		"_No spaceship uploaded._",
		"### Spaceship from Experiment 3",
	} {
		assert.Contains(t, out, want)
	}
}

func TestSession_Styled(t *testing.T) {
	r, err := New(150, "notty")
	require.NoError(t, err)
	require.NotNil(t, r.Markdown)

	out, err := r.Session(uploaded(t), domain.StatusCollecting)
	require.NoError(t, err)
	assert.Contains(t, out, "Spaceship from Experiment 1")
	assert.Contains(t, out, "Number of blocks")
}

func TestSession_UnknownSeed(t *testing.T) {
	r, err := New(0, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultWidth, r.Width)

	out, err := r.Session(session.New("empty"), domain.StatusCollecting)
	require.NoError(t, err)
	assert.Contains(t, out, "seed unknown")
}

func TestNew_BadStyle(t *testing.T) {
	_, err := New(80, "/does/not/exist.json")
	assert.Error(t, err)
}

func TestTally(t *testing.T) {
	out := Tally(&review.Summary{
		Sessions: 2,
		Standings: []review.LabelStanding{
			{Label: "Preference Matrix", MeanRank: 1, FirstPlaces: 2, Sessions: 2},
			{Label: "Random", MeanRank: 2.5, Sessions: 2},
			{Label: "Idle"},
		},
	})
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], "Mean rank")
	assert.Contains(t, lines[1], "Preference Matrix")
	assert.Contains(t, lines[1], "1.000")
	assert.Contains(t, lines[2], "2.500")
	assert.Contains(t, lines[3], "-")
	assert.Contains(t, lines[4], "2 exported sessions")
}
