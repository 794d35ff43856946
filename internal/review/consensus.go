package review

import (
	"sort"

	"github.com/spaceshipgen/comparator/internal/domain"
	"github.com/spaceshipgen/comparator/internal/export"
)

// LabelStanding is one strategy's aggregate over many sessions.
type LabelStanding struct {
	Label       string  `json:"label"`
	MeanRank    float64 `json:"mean_rank"`
	FirstPlaces int     `json:"first_places"`
	Sessions    int     `json:"sessions"`
}

// Summary aggregates export records. Standings are ordered best first:
// lowest mean rank, then most first places, then label order.
type Summary struct {
	Sessions  int             `json:"sessions"`
	Standings []LabelStanding `json:"standings"`
}

// Tallier aggregates export records across sessions.
type Tallier struct {
	Labels []string
}

// NewTallier creates a Tallier reporting on labels. Labels seen in records
// but missing here are appended in first-seen order.
func NewTallier(labels []string) *Tallier {
	return &Tallier{Labels: append([]string(nil), labels...)}
}

// Evaluate computes per-label mean rank and first-place counts.
func (t *Tallier) Evaluate(records []export.Record) (*Summary, error) {
	if len(records) == 0 {
		return nil, domain.ErrNoRecords
	}

	order := append([]string(nil), t.Labels...)
	known := make(map[string]bool, len(order))
	for _, l := range order {
		known[l] = true
	}
	sums := make(map[string]int)
	counts := make(map[string]int)
	firsts := make(map[string]int)

	for _, rec := range records {
		for _, label := range rec.Labels {
			rank, ok := rec.Ranks[label]
			if !ok {
				continue
			}
			if !known[label] {
				known[label] = true
				order = append(order, label)
			}
			sums[label] += rank
			counts[label]++
			if rank == 1 {
				firsts[label]++
			}
		}
	}

	position := make(map[string]int, len(order))
	standings := make([]LabelStanding, 0, len(order))
	for i, label := range order {
		position[label] = i
		s := LabelStanding{Label: label, FirstPlaces: firsts[label], Sessions: counts[label]}
		if counts[label] > 0 {
			s.MeanRank = float64(sums[label]) / float64(counts[label])
		}
		standings = append(standings, s)
	}
	sort.SliceStable(standings, func(i, j int) bool {
		a, b := standings[i], standings[j]
		// Unranked labels sink to the bottom.
		if (a.Sessions == 0) != (b.Sessions == 0) {
			return b.Sessions == 0
		}
		if a.MeanRank != b.MeanRank {
			return a.MeanRank < b.MeanRank
		}
		if a.FirstPlaces != b.FirstPlaces {
			return a.FirstPlaces > b.FirstPlaces
		}
		return position[a.Label] < position[b.Label]
	})

	return &Summary{Sessions: len(records), Standings: standings}, nil
}
