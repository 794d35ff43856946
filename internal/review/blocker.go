package review

import (
	"fmt"

	"github.com/spaceshipgen/comparator/internal/domain"
	"github.com/spaceshipgen/comparator/internal/session"
)

// BlockerChecker inspects a session and its ranks for conditions that must
// be resolved before the session can be exported.
type BlockerChecker struct {
	// RequireAllSlots blocks export while any slot is still empty.
	RequireAllSlots bool
	Validator       *RankValidator
}

// Check returns whether export is blocked and the list of reasons.
func (c *BlockerChecker) Check(s session.Session, ranks domain.Ranks) (blocking bool, reasons []string) {
	if !s.Seed.IsSet() {
		reasons = append(reasons, "no spaceship uploaded yet, session seed unknown")
	}
	if c.RequireAllSlots {
		for _, slot := range s.EmptySlots() {
			reasons = append(reasons, fmt.Sprintf("slot %d has no spaceship", slot))
		}
	}
	for _, slot := range domain.AllSlots() {
		if _, ok := ranks[slot]; !ok {
			reasons = append(reasons, fmt.Sprintf("slot %d has no rank", slot))
		}
	}
	if c.Validator != nil {
		if err := c.Validator.Validate(ranks); err != nil {
			reasons = append(reasons, err.Error())
		}
	}
	return len(reasons) > 0, reasons
}
