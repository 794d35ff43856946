// Package session holds the per-slot state of one comparison session and the
// pure transitions that advance it.
package session

import (
	"context"
	"fmt"

	"github.com/spaceshipgen/comparator/internal/domain"
	"github.com/spaceshipgen/comparator/internal/structure"
)

// SlotState is the reconstructed artifact shown in one slot. An empty slot
// has a nil Artifact. Slot states are replaced wholesale, never edited.
type SlotState struct {
	Slot     domain.Slot       `json:"slot"`
	Filename string            `json:"filename,omitempty"`
	Artifact *structure.Result `json:"artifact,omitempty"`
	View     SlotView          `json:"view"`
}

// Empty reports whether the slot has not received an artifact yet.
func (s SlotState) Empty() bool {
	return s.Artifact == nil
}

// Session is the value handed into and returned from every transition.
type Session struct {
	ID      string                     `json:"session_id"`
	Seed    domain.Seed                `json:"seed,omitempty"`
	Slots   [domain.NumSlots]SlotState `json:"slots"`
	Version int64                      `json:"version"`
}

// New returns a session with no seed and three empty slots.
func New(id string) Session {
	s := Session{ID: id}
	for _, slot := range domain.AllSlots() {
		s.Slots[slot.Index()] = emptySlot(slot)
	}
	return s
}

func emptySlot(slot domain.Slot) SlotState {
	return SlotState{Slot: slot, View: SlotView{Title: slotTitle(slot)}}
}

// Slot returns the state of the given slot.
func (s Session) Slot(slot domain.Slot) (SlotState, bool) {
	if !slot.Valid() {
		return SlotState{}, false
	}
	return s.Slots[slot.Index()], true
}

// Complete reports whether every slot holds an artifact.
func (s Session) Complete() bool {
	for _, st := range s.Slots {
		if st.Empty() {
			return false
		}
	}
	return true
}

// EmptySlots lists the slots still waiting for an artifact.
func (s Session) EmptySlots() []domain.Slot {
	var out []domain.Slot
	for _, st := range s.Slots {
		if st.Empty() {
			out = append(out, st.Slot)
		}
	}
	return out
}

// View returns a copy of the session that shares no mutable state with s.
// Artifacts are read-only and shared.
func (s Session) View() Session {
	out := s
	for i := range out.Slots {
		out.Slots[i].View = s.Slots[i].View.clone()
	}
	return out
}

// Merge replaces slots of base by key. Updates are applied in order, so a
// later update for the same slot wins. Slots not named by any update keep
// their state. Updates with an out-of-range slot are ignored.
func Merge(base Session, updates []SlotState) Session {
	out := base.View()
	for _, u := range updates {
		if !u.Slot.Valid() {
			continue
		}
		out.Slots[u.Slot.Index()] = u
	}
	return out
}

// ApplyUpload is the transition for one upload event. The session seed is
// taken from the first payload when unset; a payload carrying any other seed
// fails the whole batch with ErrSeedMismatch and prev is returned unchanged.
// Each payload is then reconstructed on its own. A failed reconstruction is
// reported as an ItemError and leaves its slot as it was; every successful
// one replaces its slot. Version advances when the session changed.
func ApplyUpload(ctx context.Context, prev Session, payloads []domain.Payload, r structure.Reconstructor) (Session, []*domain.ItemError, error) {
	if len(payloads) == 0 {
		return prev.View(), nil, nil
	}

	seed := prev.Seed
	if !seed.IsSet() {
		seed = payloads[0].Seed
	}
	for _, p := range payloads {
		if p.Seed != seed {
			return prev.View(), nil, domain.NewEngineError(domain.ErrSeedMismatch.Code,
				fmt.Sprintf("%s: %s carries seed %s, session seed is %s",
					domain.ErrSeedMismatch.Message, p.Filename, p.Seed, seed))
		}
	}

	var (
		updates []SlotState
		errs    []*domain.ItemError
	)
	for _, p := range payloads {
		if !p.Slot.Valid() {
			errs = append(errs, &domain.ItemError{Filename: p.Filename, Slot: p.Slot, Err: domain.ErrInvalidSlot})
			continue
		}
		res, err := r.Reconstruct(ctx, p.Derivation)
		if err != nil {
			errs = append(errs, &domain.ItemError{Filename: p.Filename, Slot: p.Slot, Err: err})
			continue
		}
		updates = append(updates, SlotState{
			Slot:     p.Slot,
			Filename: p.Filename,
			Artifact: res,
			View:     NewSlotView(p.Slot, res),
		})
	}

	next := Merge(prev, updates)
	next.Seed = seed
	if len(updates) > 0 || seed != prev.Seed {
		next.Version = prev.Version + 1
	}
	return next, errs, nil
}
