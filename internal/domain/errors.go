package domain

import "fmt"

// EngineError is the unified error type for the comparator engine.
// Each error has a numeric code and human-readable message.
type EngineError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	return fmt.Sprintf("engine error %d: %s", e.Code, e.Message)
}

// Is reports whether target is an EngineError with the same code, so that
// errors built with NewEngineError match their sentinel under errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewEngineError creates a new EngineError.
func NewEngineError(code int, msg string) *EngineError {
	return &EngineError{Code: code, Message: msg}
}

// WrapEngineError creates an EngineError that includes a cause.
func WrapEngineError(code int, msg string, cause error) *EngineError {
	if cause == nil {
		return &EngineError{Code: code, Message: msg}
	}
	return &EngineError{Code: code, Message: fmt.Sprintf("%s: %v", msg, cause)}
}

// ItemError reports a failure scoped to one uploaded file or one slot.
// The batch it belongs to keeps going.
type ItemError struct {
	Filename string
	Slot     Slot
	Err      error
}

// Error implements the error interface.
func (e *ItemError) Error() string {
	switch {
	case e.Filename != "" && e.Slot != 0:
		return fmt.Sprintf("%s (slot %d): %v", e.Filename, e.Slot, e.Err)
	case e.Filename != "":
		return fmt.Sprintf("%s: %v", e.Filename, e.Err)
	case e.Slot != 0:
		return fmt.Sprintf("slot %d: %v", e.Slot, e.Err)
	default:
		return e.Err.Error()
	}
}

// Unwrap returns the underlying error.
func (e *ItemError) Unwrap() error {
	return e.Err
}

// ---- Upload / decode errors (-32010 to -32039) ----

var (
	ErrFormat       = &EngineError{Code: -32010, Message: "malformed upload"}
	ErrStructure    = &EngineError{Code: -32011, Message: "derivation rejected by reconstructor"}
	ErrSeedMismatch = &EngineError{Code: -32012, Message: "upload batch mixes session seeds"}
	ErrEmptyBatch   = &EngineError{Code: -32013, Message: "upload batch is empty"}
	ErrInvalidSlot  = &EngineError{Code: -32014, Message: "slot index out of range"}
	ErrInvalidSeed  = &EngineError{Code: -32015, Message: "seed must be a non-negative integer"}
)

// ---- Session / lifecycle errors (-32040 to -32069) ----

var (
	ErrSessionNotFound   = &EngineError{Code: -32040, Message: "session not found"}
	ErrDuplicateSession  = &EngineError{Code: -32041, Message: "session already exists"}
	ErrOptimisticLock    = &EngineError{Code: -32042, Message: "optimistic lock conflict: session was modified concurrently"}
	ErrInvalidTransition = &EngineError{Code: -32043, Message: "invalid session status transition"}
	ErrSessionExported   = &EngineError{Code: -32044, Message: "session already exported"}
	ErrExportGateFailed  = &EngineError{Code: -32045, Message: "export gate evaluation failed"}
)

// ---- Export / ranking errors (-32070 to -32099) ----

var (
	ErrIncompleteSession = &EngineError{Code: -32070, Message: "session is incomplete"}
	ErrRanksInvalid      = &EngineError{Code: -32071, Message: "rank validation failed"}
	ErrNoRecords         = &EngineError{Code: -32072, Message: "tally requires at least one export record"}
	ErrLabelsInvalid     = &EngineError{Code: -32073, Message: "strategy label list is invalid"}
)

// ---- Builder / reconstructor errors (-32100 to -32129) ----

var (
	ErrBuilderUnavailable = &EngineError{Code: -32100, Message: "structure builder unavailable"}
	ErrBuilderFailed      = &EngineError{Code: -32101, Message: "structure builder failed"}
	ErrRateLimitExceeded  = &EngineError{Code: -32102, Message: "upload rate limit exceeded"}
)

// ---- Store / config errors (-32130 to -32159) ----

var (
	ErrStoreInit       = &EngineError{Code: -32130, Message: "failed to initialize store"}
	ErrStoreQuery      = &EngineError{Code: -32131, Message: "store query failed"}
	ErrStoreWrite      = &EngineError{Code: -32132, Message: "store write failed"}
	ErrSnapshotCorrupt = &EngineError{Code: -32134, Message: "snapshot checksum mismatch"}
	ErrConfigInvalid   = &EngineError{Code: -32136, Message: "invalid configuration"}
)
