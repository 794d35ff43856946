// Package domain defines the core types for the spaceship comparator engine.
package domain

import (
	"fmt"
	"math/big"
	"strings"
)

// Slot is one of the three parallel display positions, numbered from 1.
type Slot int

// NumSlots is the number of slots in a comparison session.
const NumSlots = 3

// Valid reports whether the slot index is within 1..NumSlots.
func (s Slot) Valid() bool {
	return s >= 1 && s <= NumSlots
}

// Index returns the zero-based array position of the slot.
func (s Slot) Index() int {
	return int(s) - 1
}

// AllSlots returns the slots in display order.
func AllSlots() []Slot {
	slots := make([]Slot, NumSlots)
	for i := range slots {
		slots[i] = Slot(i + 1)
	}
	return slots
}

// Seed is a non-negative integer of arbitrary size kept in canonical decimal
// form. The zero value means the seed has not been observed yet.
type Seed string

// ParseSeed canonicalizes a decimal seed ("007" becomes "7").
func ParseSeed(s string) (Seed, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrInvalidSeed
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", NewEngineError(ErrInvalidSeed.Code, fmt.Sprintf("%s: %q", ErrInvalidSeed.Message, s))
		}
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return "", NewEngineError(ErrInvalidSeed.Code, fmt.Sprintf("%s: %q", ErrInvalidSeed.Message, s))
	}
	return Seed(n.String()), nil
}

// SeedFromUint64 builds a Seed from a machine integer.
func SeedFromUint64(v uint64) Seed {
	return Seed(new(big.Int).SetUint64(v).String())
}

// IsSet reports whether the seed has been observed.
func (s Seed) IsSet() bool {
	return s != ""
}

// String returns the decimal form of the seed.
func (s Seed) String() string {
	return string(s)
}

// Padded returns the decimal form left-padded with zeros to width digits.
func (s Seed) Padded(width int) string {
	if len(s) >= width {
		return string(s)
	}
	return strings.Repeat("0", width-len(s)) + string(s)
}

// Words returns the seed as 32-bit words, least significant first.
// Zero yields a single zero word.
func (s Seed) Words() []uint32 {
	n, ok := new(big.Int).SetString(string(s), 10)
	if !ok || n.Sign() == 0 {
		return []uint32{0}
	}
	var words []uint32
	mask := big.NewInt(0xffffffff)
	word := new(big.Int)
	for n.Sign() > 0 {
		word.And(n, mask)
		words = append(words, uint32(word.Uint64()))
		n.Rsh(n, 32)
	}
	return words
}

// UploadFile is one (filename, content) pair of an upload event.
type UploadFile struct {
	Name     string `json:"filename"`
	Contents string `json:"contents"`
}

// Payload is the decoded form of an uploaded artifact.
type Payload struct {
	Filename   string
	Seed       Seed
	Slot       Slot
	Derivation string
}

// Metric is one named descriptor value with its declared bounds.
type Metric struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// SessionStatus represents the lifecycle status of an experiment session.
type SessionStatus string

const (
	StatusCollecting SessionStatus = "collecting"
	StatusReady      SessionStatus = "ready"
	StatusExported   SessionStatus = "exported"
)

// SessionRecord is the persisted header of an experiment session.
type SessionRecord struct {
	SessionID     string
	Seed          Seed
	Status        SessionStatus
	StateVersion  int64
	LastEventSeq  int64
	CreatedAtUnix int64
	UpdatedAtUnix int64
}

// UploadEvent represents an entry in the session event log.
type UploadEvent struct {
	ID          int64
	SessionID   string
	SeqNo       int64
	EventType   string
	PayloadJSON string
	CreatedAt   int64
}

// SlotSnapshot captures a slot's reconstructed artifact at replacement time.
type SlotSnapshot struct {
	ID           int64
	SessionID    string
	Slot         Slot
	Filename     string
	Derivation   string
	SnapshotJSON string
	Checksum     string
	CreatedAt    int64
}

// ExportRow is a persisted export record.
type ExportRow struct {
	SessionID  string
	Seed       Seed
	Filename   string
	RecordJSON string
	CreatedAt  int64
}

// AuditRecord logs notable engine decisions.
type AuditRecord struct {
	ID           string
	SessionID    string
	Category     string
	Actor        string
	Action       string
	RequestJSON  string
	DecisionJSON string
	Severity     string
	CreatedAt    int64
}

// GateDecision is the result of evaluating export preconditions.
type GateDecision struct {
	Allow    bool
	Blockers []string
}

// Ranks holds the user-assigned rank for each slot.
type Ranks map[Slot]int
