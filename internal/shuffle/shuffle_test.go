package shuffle

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaceshipgen/comparator/internal/domain"
)

// Reference outputs were produced by CPython 3.11:
// random.seed(s); [random.getrandbits(32) for _ in range(n)].
func TestSource_MatchesCPython(t *testing.T) {
	tests := []struct {
		seed domain.Seed
		want []uint32
	}{
		{"0", []uint32{3626764237, 1654615998, 3255389356}},
		{"42", []uint32{2746317213, 478163327, 107420369}},
		{"18446744073709551619", []uint32{3921169615, 2134766284}},
	}
	for _, tt := range tests {
		src := NewSource(tt.seed.Words())
		for i, want := range tt.want {
			assert.Equal(t, want, src.Uint32(), "seed %s output %d", tt.seed, i)
		}
	}
}

// Reference permutations: random.seed(s); l = labels.copy(); random.shuffle(l).
func TestDeriveAssignment_MatchesCPython(t *testing.T) {
	tests := []struct {
		seed domain.Seed
		want []string
	}{
		{"0", []string{"Random", "Contextual Bandit", "Preference Matrix"}},
		{"1", []string{"Preference Matrix", "Contextual Bandit", "Random"}},
		{"7", []string{"Contextual Bandit", "Random", "Preference Matrix"}},
		{"42", []string{"Preference Matrix", "Random", "Contextual Bandit"}},
		{"123", []string{"Contextual Bandit", "Preference Matrix", "Random"}},
		{"999", []string{"Preference Matrix", "Random", "Contextual Bandit"}},
		{"1099511627781", []string{"Random", "Preference Matrix", "Contextual Bandit"}},
		{"340282366920938463463374607431768211455", []string{"Contextual Bandit", "Preference Matrix", "Random"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.seed), func(t *testing.T) {
			a, err := DeriveAssignment(tt.seed, DefaultLabels)
			require.NoError(t, err)
			assert.Equal(t, tt.want, a.Order)
		})
	}
}

func TestDeriveAssignment_Deterministic(t *testing.T) {
	for s := uint64(0); s < 200; s++ {
		seed := domain.SeedFromUint64(s)
		a, err := DeriveAssignment(seed, DefaultLabels)
		require.NoError(t, err)
		b, err := DeriveAssignment(seed, DefaultLabels)
		require.NoError(t, err)
		assert.Equal(t, a.Map(), b.Map(), "seed %d", s)
	}
}

func TestDeriveAssignment_DoesNotMutateLabels(t *testing.T) {
	labels := []string{"a", "b", "c", "d"}
	_, err := DeriveAssignment("5", labels)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, labels)
}

func TestDeriveAssignment_IsBijection(t *testing.T) {
	labels := []string{"a", "b", "c", "d", "e"}
	for s := uint64(0); s < 50; s++ {
		a, err := DeriveAssignment(domain.SeedFromUint64(s), labels)
		require.NoError(t, err)
		m := a.Map()
		require.Len(t, m, len(labels))
		seen := map[int]bool{}
		for _, l := range labels {
			r, ok := m[l]
			require.True(t, ok, "label %s missing", l)
			require.False(t, seen[r], "rank %d assigned twice", r)
			seen[r] = true
			slot, ok := a.Slot(l)
			require.True(t, ok)
			assert.Equal(t, l, a.Label(slot))
		}
	}
}

// Over seeds 0..5999 every permutation of three labels appears between 973
// and 1068 times under CPython; allow a margin around the expected 1000.
func TestDeriveAssignment_ApproximatelyUniform(t *testing.T) {
	const seeds = 6000
	counts := map[string]int{}
	for s := uint64(0); s < seeds; s++ {
		a, err := DeriveAssignment(domain.SeedFromUint64(s), DefaultLabels)
		require.NoError(t, err)
		counts[strings.Join(a.Order, "|")]++
	}
	require.Len(t, counts, 6, "all 3! permutations should occur")
	for perm, n := range counts {
		assert.InDelta(t, seeds/6, n, 100, "permutation %s", perm)
	}
}

func TestDeriveAssignment_Errors(t *testing.T) {
	_, err := DeriveAssignment("", DefaultLabels)
	assert.ErrorIs(t, err, domain.ErrIncompleteSession)

	_, err = DeriveAssignment("1", nil)
	assert.ErrorIs(t, err, domain.ErrLabelsInvalid)

	_, err = DeriveAssignment("1", []string{"a", "a"})
	assert.ErrorIs(t, err, domain.ErrLabelsInvalid)

	_, err = DeriveAssignment("1", []string{"a", ""})
	assert.ErrorIs(t, err, domain.ErrLabelsInvalid)
}

func TestBelow_InRange(t *testing.T) {
	src := NewSource([]uint32{99})
	for n := uint32(1); n < 40; n++ {
		for i := 0; i < 20; i++ {
			v := src.Below(n)
			if v >= n {
				t.Fatalf("Below(%d) = %d", n, v)
			}
		}
	}
}

func TestAssignment_LabelOutOfRange(t *testing.T) {
	a := Assignment{Order: []string{"x"}}
	assert.Equal(t, "", a.Label(2))
	assert.Equal(t, "", a.Label(0))
	_, ok := a.Slot("y")
	assert.False(t, ok)
}
