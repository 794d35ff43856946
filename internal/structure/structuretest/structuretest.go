// Package structuretest provides an in-process solver for tests.
package structuretest

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/spaceshipgen/comparator/internal/domain"
	"github.com/spaceshipgen/comparator/internal/structure"
)

// LineBuilder lays one block per rune along x, typed by the rune. A '/'
// starts the next row (y+1), a '.' leaves the cell empty and a '!' makes the
// derivation invalid.
var LineBuilder = structure.BuilderFunc(func(_ context.Context, derivation string) (*structure.Structure, error) {
	var s structure.Structure
	x, y := 0, 0
	for _, r := range derivation {
		switch r {
		case '!':
			return nil, domain.NewEngineError(domain.ErrStructure.Code,
				fmt.Sprintf("%s: unexpected '!' at column %d", domain.ErrStructure.Message, x))
		case '/':
			x, y = 0, y+1
			continue
		case '.':
		default:
			s.Blocks = append(s.Blocks, structure.Block{Type: string(r), X: x, Y: y})
		}
		x++
	}
	return &s, nil
})

// Counting wraps a Reconstructor and counts calls.
type Counting struct {
	Inner structure.Reconstructor
	calls atomic.Int64
}

// NewReconstructor returns a counting Reconstructor over LineBuilder with
// the default descriptors.
func NewReconstructor() *Counting {
	return &Counting{Inner: structure.NewAssembler(LineBuilder, nil)}
}

// Reconstruct implements structure.Reconstructor.
func (c *Counting) Reconstruct(ctx context.Context, derivation string) (*structure.Result, error) {
	c.calls.Add(1)
	return c.Inner.Reconstruct(ctx, derivation)
}

// Calls returns the number of Reconstruct calls.
func (c *Counting) Calls() int64 {
	return c.calls.Load()
}
