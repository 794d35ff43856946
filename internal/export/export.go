// Package export de-anonymizes a session's slot ranks into the per-strategy
// experiment record.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spaceshipgen/comparator/internal/domain"
	"github.com/spaceshipgen/comparator/internal/session"
	"github.com/spaceshipgen/comparator/internal/shuffle"
)

// FilenameSuffix ends every export file name.
const FilenameSuffix = "_res.json"

// Record maps each strategy label to the rank the user gave its slot.
// Labels keeps the configured label order used for encoding.
type Record struct {
	Seed   domain.Seed
	Labels []string
	Ranks  map[string]int
}

// Export recomputes the label to slot assignment from the session seed and
// reads, for each label, the rank supplied for its slot. It fails with
// ErrIncompleteSession when the seed is unset or a slot has no rank.
func Export(s session.Session, ranks domain.Ranks, labels []string) (Record, error) {
	if !s.Seed.IsSet() {
		return Record{}, domain.NewEngineError(domain.ErrIncompleteSession.Code,
			domain.ErrIncompleteSession.Message+": no spaceship uploaded, seed unknown")
	}
	var missing []string
	for _, slot := range domain.AllSlots() {
		if _, ok := ranks[slot]; !ok {
			missing = append(missing, fmt.Sprintf("%d", slot))
		}
	}
	if len(missing) > 0 {
		return Record{}, domain.NewEngineError(domain.ErrIncompleteSession.Code,
			fmt.Sprintf("%s: no rank for slot %s", domain.ErrIncompleteSession.Message, strings.Join(missing, ", ")))
	}

	a, err := shuffle.DeriveAssignment(s.Seed, labels)
	if err != nil {
		return Record{}, err
	}
	if len(a.Order) != domain.NumSlots {
		return Record{}, domain.NewEngineError(domain.ErrLabelsInvalid.Code,
			fmt.Sprintf("%s: %d labels for %d slots", domain.ErrLabelsInvalid.Message, len(a.Order), domain.NumSlots))
	}

	rec := Record{
		Seed:   s.Seed,
		Labels: append([]string(nil), labels...),
		Ranks:  make(map[string]int, len(labels)),
	}
	for _, label := range labels {
		slot, _ := a.Slot(label)
		rec.Ranks[label] = ranks[slot]
	}
	return rec, nil
}

// Filename is the seed zero-padded to three digits plus FilenameSuffix.
func Filename(seed domain.Seed) string {
	return seed.Padded(3) + FilenameSuffix
}

// Filename returns the export file name for the record.
func (r Record) Filename() string {
	return Filename(r.Seed)
}

// SeedFromFilename recovers the seed from an export file name.
func SeedFromFilename(name string) (domain.Seed, error) {
	base := filepath.Base(name)
	if !strings.HasSuffix(base, FilenameSuffix) {
		return "", domain.NewEngineError(domain.ErrFormat.Code,
			fmt.Sprintf("%s: %s is not an export file", domain.ErrFormat.Message, base))
	}
	return domain.ParseSeed(strings.TrimSuffix(base, FilenameSuffix))
}

// MarshalJSON encodes {"<label>": rank} with labels in configured order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, label := range r.Labels {
		if i > 0 {
			buf.WriteString(", ")
		}
		key, err := json.Marshal(label)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		fmt.Fprintf(&buf, ": %d", r.Ranks[label])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an export body, keeping the key order as Labels.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("export record: expected object, got %v", tok)
	}
	r.Labels = nil
	r.Ranks = make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		label, _ := tok.(string)
		var rank int
		if err := dec.Decode(&rank); err != nil {
			return fmt.Errorf("export record: rank for %q: %w", label, err)
		}
		if _, dup := r.Ranks[label]; !dup {
			r.Labels = append(r.Labels, label)
		}
		r.Ranks[label] = rank
	}
	_, err = dec.Token()
	return err
}

// WriteFile writes the record into dir under its export file name and
// returns the path.
func WriteFile(dir string, r Record) (string, error) {
	data, err := r.MarshalJSON()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(dir, r.Filename())
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return path, nil
}

// ReadFile loads an export file, taking the seed from its name.
func ReadFile(path string) (Record, error) {
	seed, err := SeedFromFilename(path)
	if err != nil {
		return Record{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, fmt.Errorf("read export: %w", err)
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, domain.WrapEngineError(domain.ErrFormat.Code, domain.ErrFormat.Message+": "+filepath.Base(path), err)
	}
	r.Seed = seed
	return r, nil
}
