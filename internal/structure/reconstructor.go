package structure

import (
	"context"
	"errors"
	"strings"

	"github.com/spaceshipgen/comparator/internal/domain"
)

// Result is a reconstructed artifact. Results are shared between slots and
// caches and must be treated as read-only.
type Result struct {
	Derivation string          `json:"derivation"`
	Structure  *Structure      `json:"structure"`
	BlockCount int             `json:"block_count"`
	Metrics    []domain.Metric `json:"metrics"`
}

// Reconstructor turns a derivation string into a Result. Implementations must
// be deterministic and report domain.ErrStructure for invalid input.
type Reconstructor interface {
	Reconstruct(ctx context.Context, derivation string) (*Result, error)
}

// Builder is the external solver: it expands a derivation string into a
// block structure.
type Builder interface {
	Build(ctx context.Context, derivation string) (*Structure, error)
}

// BuilderFunc adapts a function into a Builder.
type BuilderFunc func(ctx context.Context, derivation string) (*Structure, error)

// Build calls f.
func (f BuilderFunc) Build(ctx context.Context, derivation string) (*Structure, error) {
	return f(ctx, derivation)
}

// Assembler is the Reconstructor backed by a Builder and a descriptor list.
type Assembler struct {
	Builder     Builder
	Descriptors []Descriptor
}

// NewAssembler creates an Assembler. A nil descriptor list selects the
// default descriptors.
func NewAssembler(b Builder, descriptors []Descriptor) *Assembler {
	if descriptors == nil {
		descriptors = DefaultDescriptors()
	}
	return &Assembler{Builder: b, Descriptors: descriptors}
}

// Reconstruct builds, canonicalizes and measures the structure for derivation.
func (a *Assembler) Reconstruct(ctx context.Context, derivation string) (*Result, error) {
	if strings.TrimSpace(derivation) == "" {
		return nil, structureError("empty derivation")
	}

	raw, err := a.Builder.Build(ctx, derivation)
	if err != nil {
		var engErr *domain.EngineError
		if errors.As(err, &engErr) {
			return nil, err
		}
		return nil, domain.WrapEngineError(domain.ErrBuilderFailed.Code, domain.ErrBuilderFailed.Message, err)
	}

	st, err := raw.Canonical()
	if err != nil {
		return nil, err
	}

	metrics := make([]domain.Metric, len(a.Descriptors))
	for i, d := range a.Descriptors {
		metrics[i] = d.Measure(st)
	}
	return &Result{
		Derivation: derivation,
		Structure:  st,
		BlockCount: st.BlockCount(),
		Metrics:    metrics,
	}, nil
}
