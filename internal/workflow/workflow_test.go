package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemaline/internal/domain"
)

func reviewFlow() []domain.WorkflowState {
	return []domain.WorkflowState{
		{ID: "new", Name: "New", IsInitial: true, OrderIndex: 0, SuccessorStateIDs: []string{"approved"}},
		{ID: "approved", Name: "Approved", OrderIndex: 1, SuccessorStateIDs: []string{"closed"}},
		{ID: "closed", Name: "Closed", OrderIndex: 2},
	}
}

func TestInitialState(t *testing.T) {
	s, ok := InitialState(reviewFlow())
	require.True(t, ok)
	assert.Equal(t, "new", s.ID)

	_, ok = InitialState([]domain.WorkflowState{{ID: "x"}})
	assert.False(t, ok)

	twoInitial := []domain.WorkflowState{{ID: "a", IsInitial: true}, {ID: "b", IsInitial: true}}
	s, ok = InitialState(twoInitial)
	require.True(t, ok)
	assert.Equal(t, "a", s.ID)
}

func TestEnsureTransition(t *testing.T) {
	states := reviewFlow()
	newID, approved := "new", "approved"

	assert.NoError(t, EnsureTransition(states, &newID, "approved"))
	assert.NoError(t, EnsureTransition(states, &approved, "closed"))
	assert.NoError(t, EnsureTransition(states, &newID, "new"))
	assert.NoError(t, EnsureTransition(states, nil, "new"))

	err := EnsureTransition(states, &newID, "closed")
	require.Error(t, err)
	assert.Equal(t, domain.KindInvalidTransition, domain.KindOf(err))
	var de *domain.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "new", de.From)
	assert.Equal(t, "closed", de.To)

	assert.Error(t, EnsureTransition(states, nil, "approved"))
	assert.Error(t, EnsureTransition(states, &newID, "elsewhere"))
}

func TestSuccessors(t *testing.T) {
	states := reviewFlow()
	approved := "approved"
	next := Successors(states, &approved)
	require.Len(t, next, 1)
	assert.Equal(t, "closed", next[0].ID)
	assert.Len(t, Successors(states, nil), 1)
}
