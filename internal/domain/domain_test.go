package domain

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrailHeadPushPop(t *testing.T) {
	h := TrailHead{ID: "SYS-1"}
	assert.True(t, h.IsEmpty())

	h.PushHead(TrailNode{ID: "n1"}, "t1")
	require.NotNil(t, h.Head)
	require.NotNil(t, h.Tail)
	assert.Equal(t, "n1", *h.Head)
	assert.Equal(t, "n1", *h.Tail)
	assert.True(t, h.HasOnlyOneVersion())
	assert.False(t, h.IsEmpty())

	prev := "n1"
	h.PushHead(TrailNode{ID: "n2", Next: &prev}, "t2")
	assert.Equal(t, "n2", *h.Head)
	assert.Equal(t, "n1", *h.Tail)
	assert.Equal(t, 2, h.NodeCount)
	assert.Equal(t, "t2", h.LastModified)

	h.PopHead("n1", "t3")
	assert.Equal(t, "n1", *h.Head)
	assert.Equal(t, "n1", *h.Tail)
	assert.Equal(t, 1, h.NodeCount)
	assert.Equal(t, "t3", h.LastModified)
}

func TestTrailNodeIsTail(t *testing.T) {
	next := "n0"
	assert.True(t, TrailNode{ID: "n1"}.IsTail())
	assert.False(t, TrailNode{ID: "n2", Next: &next}.IsTail())
}

func TestErrorKind(t *testing.T) {
	cases := []struct {
		err  error
		kind string
	}{
		{fmt.Errorf("doc: %w", ErrNotFound), KindNotFound},
		{fmt.Errorf("%w: bad op", ErrInvalidArgument), KindInvalidArgument},
		{fmt.Errorf("save: %w", ErrConflict), KindConflict},
		{&TransitionError{DocumentID: "d1"}, KindTransition},
		{fmt.Errorf("wrapped: %w", &ExclusivityError{SystemCode: "SYS-1"}), KindExclusivity},
		{&InvalidStateError{Reason: "No previous version to revert to"}, KindInvalidState},
		{sql.ErrConnDone, KindStorage},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.kind, ErrorKind(tc.err), tc.err.Error())
	}
}

func TestStorageWrapsOnlyUnclassifiedErrors(t *testing.T) {
	assert.NoError(t, Storage("op", nil))

	te := &TransitionError{DocumentID: "d1"}
	assert.Same(t, te, Storage("op", te))
	assert.ErrorIs(t, Storage("op", fmt.Errorf("x: %w", ErrNotFound)), ErrNotFound)

	err := Storage("save document", sql.ErrConnDone)
	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "save document", se.Op)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.Same(t, err, Storage("commit", err))
}

func TestTransitionErrorMessage(t *testing.T) {
	err := &TransitionError{
		DocumentID: "d1",
		Operation:  "SUBMIT",
		Current:    StateSubmitted,
		Required:   StateDraft,
		Available:  []string{"REMOVE_SUBMISSION", "APPROVE"},
	}
	assert.Equal(t, "cannot execute operation 'SUBMIT' on document 'd1': document is in state 'SUBMITTED' but operation requires state 'DRAFT'; available operations: [REMOVE_SUBMISSION, APPROVE]", err.Error())
}
