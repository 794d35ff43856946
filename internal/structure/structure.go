// Package structure adapts the external grammar solver into deterministic
// reconstructions with ordered descriptive metrics.
package structure

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spaceshipgen/comparator/internal/domain"
)

// Block is one placed block of a structure, in grid coordinates.
type Block struct {
	Type string `json:"type"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
	Z    int    `json:"z"`
}

// Structure is the block grid produced by expanding a derivation string.
type Structure struct {
	Blocks []Block `json:"blocks"`
}

// Canonical returns a copy translated so the minimum coordinate on every axis
// is zero, with blocks sorted by (x, y, z). Two blocks on the same cell or a
// structure without blocks are rejected.
func (s *Structure) Canonical() (*Structure, error) {
	if s == nil || len(s.Blocks) == 0 {
		return nil, structureError("structure has no blocks")
	}
	minX, minY, minZ := s.Blocks[0].X, s.Blocks[0].Y, s.Blocks[0].Z
	for _, b := range s.Blocks[1:] {
		minX = min(minX, b.X)
		minY = min(minY, b.Y)
		minZ = min(minZ, b.Z)
	}

	out := make([]Block, len(s.Blocks))
	for i, b := range s.Blocks {
		if strings.TrimSpace(b.Type) == "" {
			return nil, structureError("block at (%d,%d,%d) has no type", b.X, b.Y, b.Z)
		}
		out[i] = Block{Type: b.Type, X: b.X - minX, Y: b.Y - minY, Z: b.Z - minZ}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].X != out[j].X {
			return out[i].X < out[j].X
		}
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		return out[i].Z < out[j].Z
	})
	for i := 1; i < len(out); i++ {
		a, b := out[i-1], out[i]
		if a.X == b.X && a.Y == b.Y && a.Z == b.Z {
			return nil, structureError("two blocks occupy cell (%d,%d,%d)", a.X, a.Y, a.Z)
		}
	}
	return &Structure{Blocks: out}, nil
}

// Dims returns the grid extent along x, y and z.
func (s *Structure) Dims() [3]int {
	if s == nil || len(s.Blocks) == 0 {
		return [3]int{}
	}
	lo := [3]int{s.Blocks[0].X, s.Blocks[0].Y, s.Blocks[0].Z}
	hi := lo
	for _, b := range s.Blocks[1:] {
		p := [3]int{b.X, b.Y, b.Z}
		for i := range p {
			lo[i] = min(lo[i], p[i])
			hi[i] = max(hi[i], p[i])
		}
	}
	return [3]int{hi[0] - lo[0] + 1, hi[1] - lo[1] + 1, hi[2] - lo[2] + 1}
}

// BlockCount returns the number of placed blocks.
func (s *Structure) BlockCount() int {
	if s == nil {
		return 0
	}
	return len(s.Blocks)
}

// BlockTypes returns the distinct block types in sorted order.
func (s *Structure) BlockTypes() []string {
	seen := make(map[string]bool)
	var types []string
	for _, b := range s.Blocks {
		if !seen[b.Type] {
			seen[b.Type] = true
			types = append(types, b.Type)
		}
	}
	sort.Strings(types)
	return types
}

// Checksum returns the hex SHA-256 of the structure's JSON encoding. Callers
// should checksum canonical structures only.
func (s *Structure) Checksum() string {
	data, _ := json.Marshal(s)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// CleanLabel strips the game's object-builder prefix from a block type, so
// "MyObjectBuilder_CubeBlock_LargeBlockArmorBlock" becomes
// "LargeBlockArmorBlock".
func CleanLabel(blockType string) string {
	const prefix = "MyObjectBuilder_"
	if !strings.HasPrefix(blockType, prefix) {
		return blockType
	}
	rest := strings.TrimPrefix(blockType, prefix)
	if i := strings.Index(rest, "_"); i >= 0 {
		return rest[i+1:]
	}
	return rest
}

func structureError(format string, args ...any) error {
	return domain.NewEngineError(domain.ErrStructure.Code, domain.ErrStructure.Message+": "+fmt.Sprintf(format, args...))
}
