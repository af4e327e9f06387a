// Package lifecycle holds the review document state machine. It performs no I/O.
package lifecycle

import (
	"fmt"
	"strings"

	"reviewline/internal/domain"
)

// Operation is a named lifecycle edge.
type Operation string

const (
	Submit           Operation = "SUBMIT"
	RemoveSubmission Operation = "REMOVE_SUBMISSION"
	Approve          Operation = "APPROVE"
	Activate         Operation = "ACTIVATE"
	Unapprove        Operation = "UNAPPROVE"
	MarkOutdated     Operation = "MARK_OUTDATED"
)

type edge struct {
	from domain.DocumentState
	to   domain.DocumentState
}

// Operations lists every operation in table order.
var Operations = []Operation{Submit, RemoveSubmission, Approve, Activate, Unapprove, MarkOutdated}

// States lists every document state in lifecycle order.
var States = []domain.DocumentState{
	domain.StateDraft,
	domain.StateSubmitted,
	domain.StateApproved,
	domain.StateActive,
	domain.StateOutdated,
}

var edges = map[Operation]edge{
	Submit:           {from: domain.StateDraft, to: domain.StateSubmitted},
	RemoveSubmission: {from: domain.StateSubmitted, to: domain.StateDraft},
	Approve:          {from: domain.StateSubmitted, to: domain.StateApproved},
	Activate:         {from: domain.StateApproved, to: domain.StateActive},
	Unapprove:        {from: domain.StateActive, to: domain.StateApproved},
	MarkOutdated:     {from: domain.StateActive, to: domain.StateOutdated},
}

// ParseOperation resolves a case-insensitive operation name.
func ParseOperation(name string) (Operation, error) {
	op := Operation(strings.ToUpper(strings.TrimSpace(name)))
	if _, ok := edges[op]; !ok {
		return "", fmt.Errorf("%w: invalid operation '%s'; valid operations are: %s", domain.ErrInvalidArgument, name, joinOps(Operations))
	}
	return op, nil
}

// ParseState resolves a case-insensitive state name.
func ParseState(name string) (domain.DocumentState, error) {
	s := domain.DocumentState(strings.ToUpper(strings.TrimSpace(name)))
	for _, known := range States {
		if s == known {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: invalid document state '%s'", domain.ErrInvalidArgument, name)
}

// RequiredState is the state an operation must start from.
func RequiredState(op Operation) domain.DocumentState {
	return edges[op].from
}

// TargetState is the state an operation lands in.
func TargetState(op Operation) domain.DocumentState {
	return edges[op].to
}

// CanExecute reports whether op is legal from state.
func CanExecute(state domain.DocumentState, op Operation) bool {
	e, ok := edges[op]
	return ok && e.from == state
}

// AvailableOperations lists the operations legal from state, in table order.
func AvailableOperations(state domain.DocumentState) []Operation {
	var res []Operation
	for _, op := range Operations {
		if edges[op].from == state {
			res = append(res, op)
		}
	}
	return res
}

// ValidTransitions lists the states reachable in one step from state.
func ValidTransitions(state domain.DocumentState) []domain.DocumentState {
	var res []domain.DocumentState
	for _, op := range AvailableOperations(state) {
		res = append(res, edges[op].to)
	}
	return res
}

// ValidateTransition returns a TransitionError unless target is reachable in
// one step from state.
func ValidateTransition(state, target domain.DocumentState) error {
	valid := ValidTransitions(state)
	if state != target {
		for _, s := range valid {
			if s == target {
				return nil
			}
		}
	}
	names := make([]string, 0, len(valid))
	for _, s := range valid {
		names = append(names, string(s))
	}
	return &domain.TransitionError{Current: state, Target: target, Available: names}
}

// Check returns a TransitionError when op is not legal for the document.
func Check(doc domain.ReviewDocument, op Operation) error {
	if CanExecute(doc.State, op) {
		return nil
	}
	return &domain.TransitionError{
		DocumentID: doc.ID,
		Operation:  string(op),
		Current:    doc.State,
		Required:   RequiredState(op),
		Available:  Names(AvailableOperations(doc.State)),
	}
}

// Names converts operations to their wire names.
func Names(ops []Operation) []string {
	res := make([]string, 0, len(ops))
	for _, op := range ops {
		res = append(res, string(op))
	}
	return res
}

// IsTerminal reports whether no operation leaves state.
func IsTerminal(state domain.DocumentState) bool {
	return len(AvailableOperations(state)) == 0
}

func joinOps(ops []Operation) string {
	return "[" + strings.Join(Names(ops), ", ") + "]"
}
