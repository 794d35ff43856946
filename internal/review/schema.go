package review

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spaceshipgen/comparator/internal/domain"
)

// RankValidator validates the ranks a user assigned to the slots. Ranks must
// address valid slots and lie within 1..NumSlots. In strict mode they must
// also form a permutation: every slot ranked, no rank repeated.
type RankValidator struct {
	Strict bool
}

// Validate returns an error listing every violation found.
func (v *RankValidator) Validate(ranks domain.Ranks) error {
	var violations []string

	slots := make([]domain.Slot, 0, len(ranks))
	for slot := range ranks {
		slots = append(slots, slot)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })

	for _, slot := range slots {
		rank := ranks[slot]
		if !slot.Valid() {
			violations = append(violations, fmt.Sprintf("slot %d out of range [1, %d]", slot, domain.NumSlots))
			continue
		}
		if rank < 1 || rank > domain.NumSlots {
			violations = append(violations, fmt.Sprintf("slot %d rank %d out of range [1, %d]", slot, rank, domain.NumSlots))
		}
	}

	if v.Strict {
		for _, slot := range domain.AllSlots() {
			if _, ok := ranks[slot]; !ok {
				violations = append(violations, fmt.Sprintf("slot %d has no rank", slot))
			}
		}
		holders := make(map[int][]string)
		for _, slot := range slots {
			holders[ranks[slot]] = append(holders[ranks[slot]], fmt.Sprintf("%d", slot))
		}
		for rank := 1; rank <= domain.NumSlots; rank++ {
			if len(holders[rank]) > 1 {
				violations = append(violations, fmt.Sprintf("rank %d given to slots %s", rank, strings.Join(holders[rank], ", ")))
			}
		}
	}

	if len(violations) > 0 {
		msg := domain.ErrRanksInvalid.Message + ": " + strings.Join(violations, "; ")
		return domain.NewEngineError(domain.ErrRanksInvalid.Code, msg)
	}
	return nil
}
