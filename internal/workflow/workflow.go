// Package workflow decides the starting state of new objects and checks moves
// between states against each state's successor list.
package workflow

import (
	"schemaline/internal/domain"
)

// InitialState returns the first state flagged initial, in the order given.
// Callers pass states sorted by (order_index, id). A workflow with no initial
// state yields ok=false, which is not an error.
func InitialState(states []domain.WorkflowState) (domain.WorkflowState, bool) {
	for _, s := range states {
		if s.IsInitial {
			return s, true
		}
	}
	return domain.WorkflowState{}, false
}

// EnsureTransition checks that the object may move from the current state to
// target. From no state only an initial state is reachable.
func EnsureTransition(states []domain.WorkflowState, current *string, target string) error {
	from := ""
	if current != nil {
		from = *current
	}
	if from == target {
		return nil
	}
	to, ok := find(states, target)
	if !ok {
		return domain.InvalidTransition(from, target)
	}
	if from == "" {
		if to.IsInitial {
			return nil
		}
		return domain.InvalidTransition(from, target)
	}
	cur, ok := find(states, from)
	if !ok {
		return domain.InvalidTransition(from, target)
	}
	for _, id := range cur.SuccessorStateIDs {
		if id == target {
			return nil
		}
	}
	return domain.InvalidTransition(from, target)
}

// Successors lists the states reachable in one step from current.
func Successors(states []domain.WorkflowState, current *string) []domain.WorkflowState {
	var res []domain.WorkflowState
	if current == nil {
		for _, s := range states {
			if s.IsInitial {
				res = append(res, s)
			}
		}
		return res
	}
	cur, ok := find(states, *current)
	if !ok {
		return nil
	}
	for _, id := range cur.SuccessorStateIDs {
		if s, ok := find(states, id); ok {
			res = append(res, s)
		}
	}
	return res
}

func find(states []domain.WorkflowState, id string) (domain.WorkflowState, bool) {
	for _, s := range states {
		if s.ID == id {
			return s, true
		}
	}
	return domain.WorkflowState{}, false
}
