package lifecycle

import "reviewline/internal/domain"

// Class groups states that compete for authority within one system.
type Class string

const (
	// PreAuthoritative allows at most one document across DRAFT, SUBMITTED and APPROVED.
	PreAuthoritative Class = "pre-authoritative"
	// Authoritative allows at most one ACTIVE document.
	Authoritative Class = "authoritative"
)

var classStates = map[Class][]domain.DocumentState{
	PreAuthoritative: {domain.StateDraft, domain.StateSubmitted, domain.StateApproved},
	Authoritative:    {domain.StateActive},
}

// ClassOf returns the exclusivity class of state. ok is false for OUTDATED.
func ClassOf(state domain.DocumentState) (Class, bool) {
	for c, states := range classStates {
		for _, s := range states {
			if s == state {
				return c, true
			}
		}
	}
	return "", false
}

// ConflictSet returns the states that may hold at most one document per system.
func ConflictSet(c Class) []domain.DocumentState {
	return append([]domain.DocumentState(nil), classStates[c]...)
}

// IsExclusive reports whether state belongs to any exclusivity class.
func IsExclusive(state domain.DocumentState) bool {
	_, ok := ClassOf(state)
	return ok
}
