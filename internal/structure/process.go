package structure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spaceshipgen/comparator/internal/domain"
)

// builderOutput is the single JSON document a solver process writes to
// stdout. A solver that rejects the derivation sets Error instead of Blocks.
type builderOutput struct {
	Blocks []Block `json:"blocks"`
	Error  string  `json:"error"`
}

// ProcessBuilder runs an external solver once per derivation. The derivation
// is written to the process's stdin; the structure is read from stdout.
type ProcessBuilder struct {
	Spec BuilderSpec
}

// NewProcessBuilder creates a ProcessBuilder for spec.
func NewProcessBuilder(spec BuilderSpec) *ProcessBuilder {
	return &ProcessBuilder{Spec: spec}
}

// Build implements Builder.
func (p *ProcessBuilder) Build(ctx context.Context, derivation string) (*Structure, error) {
	if p.Spec.Command == "" {
		return nil, domain.ErrBuilderUnavailable
	}
	cmd := exec.CommandContext(ctx, p.Spec.Command, p.Spec.Args...)

	// Merge builder env over the parent environment.
	cmd.Env = os.Environ()
	for k, v := range p.Spec.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdin = strings.NewReader(derivation)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	var out builderOutput
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &out); err != nil {
		if runErr != nil {
			return nil, domain.WrapEngineError(domain.ErrBuilderFailed.Code,
				fmt.Sprintf("builder %s: %s", p.Spec.Name, strings.TrimSpace(stderr.String())), runErr)
		}
		return nil, domain.WrapEngineError(domain.ErrBuilderFailed.Code,
			fmt.Sprintf("builder %s returned invalid JSON", p.Spec.Name), err)
	}
	if out.Error != "" {
		return nil, structureError("%s", out.Error)
	}
	if runErr != nil {
		return nil, domain.WrapEngineError(domain.ErrBuilderFailed.Code,
			fmt.Sprintf("builder %s", p.Spec.Name), runErr)
	}
	return &Structure{Blocks: out.Blocks}, nil
}
