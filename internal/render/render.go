// Package render draws sessions and tallies for the terminal.
package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/spaceshipgen/comparator/internal/domain"
	"github.com/spaceshipgen/comparator/internal/review"
	"github.com/spaceshipgen/comparator/internal/session"
	"github.com/spaceshipgen/comparator/internal/structure"
)

// DefaultWidth is the terminal width assumed when none is known.
const DefaultWidth = 120

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Faint(true)
	columnStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// Renderer draws sessions side by side. A nil Markdown renderer prints the
// slot panels as plain markdown.
type Renderer struct {
	Width    int
	Markdown *glamour.TermRenderer
}

// New creates a Renderer for the given width. style is a glamour style name
// such as "dark", "light", "notty" or "auto"; empty disables markdown
// styling.
func New(width int, style string) (*Renderer, error) {
	if width <= 0 {
		width = DefaultWidth
	}
	r := &Renderer{Width: width}
	if style == "" {
		return r, nil
	}
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(r.columnWidth() - 8)}
	if style == "auto" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStylePath(style))
	}
	md, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return nil, fmt.Errorf("markdown renderer: %w", err)
	}
	r.Markdown = md
	return r, nil
}

func (r *Renderer) columnWidth() int {
	w := r.Width / domain.NumSlots
	if w < 20 {
		w = 20
	}
	return w
}

// Session renders the three slots as columns under a one-line header.
func (r *Renderer) Session(s session.Session, status domain.SessionStatus) (string, error) {
	header := headerStyle.Render(fmt.Sprintf("Session %s", s.ID))
	meta := mutedStyle.Render(fmt.Sprintf("status %s, seed %s", status, seedText(s.Seed)))

	cols := make([]string, 0, len(s.Slots))
	for _, st := range s.Slots {
		col, err := r.Slot(st)
		if err != nil {
			return "", err
		}
		cols = append(cols, col)
	}
	body := lipgloss.JoinHorizontal(lipgloss.Top, cols...)
	return lipgloss.JoinVertical(lipgloss.Left, header+"  "+meta, body), nil
}

// Slot renders one slot panel: its properties, a top-down view of the
// structure and the block legend.
func (r *Renderer) Slot(st session.SlotState) (string, error) {
	inner := r.columnWidth() - 4

	text, err := r.markdown(st.View.Markdown())
	if err != nil {
		return "", err
	}
	parts := []string{text}
	if st.Artifact != nil && st.Artifact.Structure != nil {
		parts = append(parts, topView(st.Artifact.Structure, inner))
	}
	if len(st.View.Legend) > 0 {
		parts = append(parts, legend(st.View.Legend))
	}
	return columnStyle.Width(r.columnWidth() - 2).Render(strings.Join(parts, "\n")), nil
}

func (r *Renderer) markdown(md string) (string, error) {
	if r.Markdown == nil {
		return md, nil
	}
	out, err := r.Markdown.Render(md)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	lines := strings.Split(strings.Trim(out, "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " ")
	}
	return strings.Join(lines, "\n"), nil
}

func seedText(seed domain.Seed) string {
	if !seed.IsSet() {
		return "unknown"
	}
	return seed.String()
}

func legend(entries []session.LegendEntry) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		swatch := lipgloss.NewStyle().Foreground(lipgloss.Color(e.Colour)).Render("■")
		lines = append(lines, swatch+" "+e.Label)
	}
	return strings.Join(lines, "\n")
}

// TopCells projects a structure onto the x/z plane. Each cell holds the
// clean label of the highest block above it, or "" when the column is
// empty. The structure must be canonical; cells beyond maxWidth on x are
// cut off.
func TopCells(st *structure.Structure, maxWidth int) [][]string {
	dims := st.Dims()
	w, d := dims[0], dims[2]
	if maxWidth > 0 && w > maxWidth {
		w = maxWidth
	}
	cells := make([][]string, d)
	top := make([][]int, d)
	for z := range cells {
		cells[z] = make([]string, w)
		top[z] = make([]int, w)
		for x := range top[z] {
			top[z][x] = -1
		}
	}
	for _, b := range st.Blocks {
		if b.X < 0 || b.X >= w || b.Z < 0 || b.Z >= d {
			continue
		}
		if b.Y > top[b.Z][b.X] {
			top[b.Z][b.X] = b.Y
			cells[b.Z][b.X] = structure.CleanLabel(b.Type)
		}
	}
	return cells
}

func topView(st *structure.Structure, maxWidth int) string {
	cells := TopCells(st, maxWidth)
	var sb strings.Builder
	for z := len(cells) - 1; z >= 0; z-- {
		for _, label := range cells[z] {
			if label == "" {
				sb.WriteString(" ")
				continue
			}
			sb.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(session.BlockColour(label))).Render("█"))
		}
		if z > 0 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// Tally renders aggregated standings as an aligned table.
func Tally(s *review.Summary) string {
	labelWidth := len("Strategy")
	for _, st := range s.Standings {
		if n := lipgloss.Width(st.Label); n > labelWidth {
			labelWidth = n
		}
	}
	row := func(cells ...string) string {
		return fmt.Sprintf("%-*s  %9s  %12s  %8s", labelWidth, cells[0], cells[1], cells[2], cells[3])
	}

	lines := []string{
		headerStyle.Render(row("Strategy", "Mean rank", "First places", "Sessions")),
	}
	for _, st := range s.Standings {
		mean := "-"
		if st.Sessions > 0 {
			mean = fmt.Sprintf("%.3f", st.MeanRank)
		}
		lines = append(lines, row(st.Label, mean, fmt.Sprint(st.FirstPlaces), fmt.Sprint(st.Sessions)))
	}
	lines = append(lines, mutedStyle.Render(fmt.Sprintf("%d exported sessions", s.Sessions)))
	return strings.Join(lines, "\n")
}
