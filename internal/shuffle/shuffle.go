package shuffle

import (
	"fmt"

	"github.com/spaceshipgen/comparator/internal/domain"
)

// DefaultLabels is the ordered list of generation strategies compared by the
// experiment.
var DefaultLabels = []string{"Random", "Preference Matrix", "Contextual Bandit"}

// Shuffle permutes n elements in place through swap, walking from the last
// index down and drawing each partner with Below.
func Shuffle(src *Source, n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		j := int(src.Below(uint32(i + 1)))
		swap(i, j)
	}
}

// Assignment maps each strategy label to the slot that displayed it.
type Assignment struct {
	Seed  domain.Seed
	Order []string // Order[i] is the label shown in slot i+1
}

// DeriveAssignment seeds a fresh Source with seed and shuffles a copy of
// labels. The same seed and labels always yield the same assignment.
func DeriveAssignment(seed domain.Seed, labels []string) (Assignment, error) {
	if !seed.IsSet() {
		return Assignment{}, domain.ErrIncompleteSession
	}
	if err := ValidateLabels(labels); err != nil {
		return Assignment{}, err
	}

	order := make([]string, len(labels))
	copy(order, labels)

	src := NewSource(seed.Words())
	Shuffle(src, len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})
	return Assignment{Seed: seed, Order: order}, nil
}

// ValidateLabels checks that labels is non-empty and free of duplicates.
func ValidateLabels(labels []string) error {
	if len(labels) == 0 {
		return domain.NewEngineError(domain.ErrLabelsInvalid.Code, domain.ErrLabelsInvalid.Message+": no labels")
	}
	seen := make(map[string]bool, len(labels))
	for _, l := range labels {
		if l == "" {
			return domain.NewEngineError(domain.ErrLabelsInvalid.Code, domain.ErrLabelsInvalid.Message+": empty label")
		}
		if seen[l] {
			return domain.NewEngineError(domain.ErrLabelsInvalid.Code, fmt.Sprintf("%s: duplicate label %q", domain.ErrLabelsInvalid.Message, l))
		}
		seen[l] = true
	}
	return nil
}

// Slot returns the slot that displayed label.
func (a Assignment) Slot(label string) (domain.Slot, bool) {
	for i, l := range a.Order {
		if l == label {
			return domain.Slot(i + 1), true
		}
	}
	return 0, false
}

// Label returns the label displayed in slot.
func (a Assignment) Label(slot domain.Slot) string {
	i := slot.Index()
	if i < 0 || i >= len(a.Order) {
		return ""
	}
	return a.Order[i]
}

// Map returns the bijection label -> slot rank.
func (a Assignment) Map() map[string]int {
	m := make(map[string]int, len(a.Order))
	for i, l := range a.Order {
		m[l] = i + 1
	}
	return m
}
