package session

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/spaceshipgen/comparator/internal/domain"
	"github.com/spaceshipgen/comparator/internal/structure"
)

// UnknownBlockColour is used for block types missing from the palette.
const UnknownBlockColour = "#ff0000"

var blockColours = map[string]string{
	"LargeBlockArmorCorner":    "#778899",
	"LargeBlockArmorSlope":     "#778899",
	"LargeBlockArmorCornerInv": "#778899",
	"LargeBlockArmorBlock":     "#778899",
	"LargeBlockGyro":           "#2f4f4f",
	"LargeBlockSmallGenerator": "#ffa07a",
	"LargeBlockSmallContainer": "#008b8b",
	"OpenCockpitLarge":         "#32cd32",
	"LargeBlockSmallThrust":    "#ff8c00",
	"SmallLight":               "#fffaf0",
	"Window1x1Slope":           "#fffff0",
	"Window1x1Flat":            "#fffff0",
	"LargeBlockLight_1corner":  "#fffaf0",
}

// BlockColour returns the display colour for a block label.
func BlockColour(label string) string {
	if c, ok := blockColours[label]; ok {
		return c
	}
	return UnknownBlockColour
}

// Property is one labelled line of the slot's property panel.
type Property struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// LegendEntry maps a block label to its display colour.
type LegendEntry struct {
	Label  string `json:"label"`
	Colour string `json:"colour"`
}

// SlotView is the renderable model of one slot.
type SlotView struct {
	Title      string        `json:"title"`
	Properties []Property    `json:"properties,omitempty"`
	Legend     []LegendEntry `json:"legend,omitempty"`
}

func slotTitle(slot domain.Slot) string {
	return fmt.Sprintf("Spaceship from Experiment %d", slot)
}

// NewSlotView builds the view model for a reconstructed artifact: grid size,
// block count, each metric rounded to four decimals, and the colour legend.
func NewSlotView(slot domain.Slot, r *structure.Result) SlotView {
	v := SlotView{Title: slotTitle(slot)}
	if r == nil {
		return v
	}
	d := r.Structure.Dims()
	v.Properties = append(v.Properties,
		Property{Name: "Size", Value: fmt.Sprintf("(%d, %d, %d)", d[0], d[1], d[2])},
		Property{Name: "Number of blocks", Value: strconv.Itoa(r.BlockCount)},
	)
	for _, m := range r.Metrics {
		v.Properties = append(v.Properties, Property{Name: m.Name, Value: FormatMetric(m.Value)})
	}

	seen := make(map[string]bool)
	for _, t := range r.Structure.BlockTypes() {
		label := structure.CleanLabel(t)
		if seen[label] {
			continue
		}
		seen[label] = true
		v.Legend = append(v.Legend, LegendEntry{Label: label, Colour: BlockColour(label)})
	}
	sort.Slice(v.Legend, func(i, j int) bool { return v.Legend[i].Label < v.Legend[j].Label })
	return v
}

// FormatMetric rounds v to four decimals and drops trailing zeros.
func FormatMetric(v float64) string {
	return strconv.FormatFloat(math.Round(v*1e4)/1e4, 'f', -1, 64)
}

// Markdown renders the property panel as markdown lines.
func (v SlotView) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "### %s\n\n", v.Title)
	if len(v.Properties) == 0 {
		b.WriteString("_No spaceship uploaded._\n")
		return b.String()
	}
	for _, p := range v.Properties {
		fmt.Fprintf(&b, "**%s**: %s\n\n", p.Name, p.Value)
	}
	return b.String()
}

func (v SlotView) clone() SlotView {
	out := v
	if v.Properties != nil {
		out.Properties = append([]Property(nil), v.Properties...)
	}
	if v.Legend != nil {
		out.Legend = append([]LegendEntry(nil), v.Legend...)
	}
	return out
}
