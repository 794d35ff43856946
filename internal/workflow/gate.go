// Package workflow runs comparison sessions through collection and export.
package workflow

import (
	"github.com/spaceshipgen/comparator/internal/domain"
	"github.com/spaceshipgen/comparator/internal/review"
	"github.com/spaceshipgen/comparator/internal/session"
)

// ExportGate evaluates whether a session can be exported with the given
// ranks.
type ExportGate struct {
	Checker *review.BlockerChecker
}

// NewExportGate creates the gate. Strict mode requires every slot to hold a
// spaceship and the ranks to be a permutation.
func NewExportGate(strict bool) *ExportGate {
	return &ExportGate{
		Checker: &review.BlockerChecker{
			RequireAllSlots: strict,
			Validator:       &review.RankValidator{Strict: strict},
		},
	}
}

// Name returns the gate name.
func (g *ExportGate) Name() string {
	if g.Checker.RequireAllSlots {
		return "export-strict"
	}
	return "export"
}

// Evaluate checks the session and ranks against the export preconditions.
func (g *ExportGate) Evaluate(s session.Session, ranks domain.Ranks) domain.GateDecision {
	blocking, reasons := g.Checker.Check(s, ranks)
	return domain.GateDecision{Allow: !blocking, Blockers: reasons}
}
