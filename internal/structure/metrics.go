package structure

import (
	"fmt"
	"sort"

	"github.com/spaceshipgen/comparator/internal/domain"
)

// Descriptor is a named behaviour characterization computed from a canonical
// structure, with the bounds it is plotted against.
type Descriptor struct {
	Key  string
	Name string
	Min  float64
	Max  float64
	Func func(s *Structure) float64
}

// Measure evaluates the descriptor on s.
func (d Descriptor) Measure(s *Structure) domain.Metric {
	return domain.Metric{Name: d.Name, Value: d.Func(s), Min: d.Min, Max: d.Max}
}

var knownDescriptors = map[string]Descriptor{
	"mame": {
		Key: "mame", Name: "Major axis / Medium axis", Min: 0, Max: 10,
		Func: MajorMedium,
	},
	"mami": {
		Key: "mami", Name: "Major axis / Smallest axis", Min: 0, Max: 20,
		Func: MajorMinimum,
	},
	"avg_ma": {
		Key: "avg_ma", Name: "Average Proportions", Min: 0, Max: 20,
		Func: AverageProportions,
	},
	"symmetry": {
		Key: "symmetry", Name: "Symmetry", Min: 0, Max: 1,
		Func: Symmetry,
	},
}

// DefaultDescriptorKeys lists the descriptors shown by the comparator.
var DefaultDescriptorKeys = []string{"mame", "mami", "symmetry"}

// Descriptors resolves descriptor keys in the given order.
func Descriptors(keys []string) ([]Descriptor, error) {
	out := make([]Descriptor, 0, len(keys))
	for _, k := range keys {
		d, ok := knownDescriptors[k]
		if !ok {
			return nil, fmt.Errorf("unknown descriptor %q (known: %v)", k, KnownDescriptorKeys())
		}
		out = append(out, d)
	}
	return out, nil
}

// DefaultDescriptors returns the comparator's descriptor set.
func DefaultDescriptors() []Descriptor {
	d, _ := Descriptors(DefaultDescriptorKeys)
	return d
}

// KnownDescriptorKeys returns every registered key in sorted order.
func KnownDescriptorKeys() []string {
	keys := make([]string, 0, len(knownDescriptors))
	for k := range knownDescriptors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedAxes(s *Structure) (largest, medium, smallest float64) {
	d := s.Dims()
	axes := []int{d[0], d[1], d[2]}
	sort.Sort(sort.Reverse(sort.IntSlice(axes)))
	return float64(axes[0]), float64(axes[1]), float64(axes[2])
}

// MajorMedium is the ratio of the largest grid extent to the middle one.
func MajorMedium(s *Structure) float64 {
	largest, medium, _ := sortedAxes(s)
	if medium == 0 {
		return 0
	}
	return largest / medium
}

// MajorMinimum is the ratio of the largest grid extent to the smallest one.
func MajorMinimum(s *Structure) float64 {
	largest, _, smallest := sortedAxes(s)
	if smallest == 0 {
		return 0
	}
	return largest / smallest
}

// AverageProportions is the mean of MajorMedium and MajorMinimum.
func AverageProportions(s *Structure) float64 {
	return (MajorMedium(s) + MajorMinimum(s)) / 2
}

// Symmetry is the best mirror symmetry over the axes the structure extends
// along: the fraction of blocks whose reflection across the structure's
// mid-plane holds a block of the same type. A single block is symmetric.
func Symmetry(s *Structure) float64 {
	if s.BlockCount() == 0 {
		return 0
	}
	type cell struct{ x, y, z int }
	grid := make(map[cell]string, len(s.Blocks))
	lo := [3]int{s.Blocks[0].X, s.Blocks[0].Y, s.Blocks[0].Z}
	hi := lo
	for _, b := range s.Blocks {
		grid[cell{b.X, b.Y, b.Z}] = b.Type
		p := [3]int{b.X, b.Y, b.Z}
		for i := range p {
			lo[i] = min(lo[i], p[i])
			hi[i] = max(hi[i], p[i])
		}
	}

	if lo == hi {
		return 1
	}
	best := 0.0
	for axis := 0; axis < 3; axis++ {
		if lo[axis] == hi[axis] {
			continue
		}
		matched := 0
		for _, b := range s.Blocks {
			m := cell{b.X, b.Y, b.Z}
			switch axis {
			case 0:
				m.x = lo[0] + hi[0] - b.X
			case 1:
				m.y = lo[1] + hi[1] - b.Y
			case 2:
				m.z = lo[2] + hi[2] - b.Z
			}
			if grid[m] == b.Type {
				matched++
			}
		}
		best = max(best, float64(matched)/float64(len(s.Blocks)))
	}
	return best
}
