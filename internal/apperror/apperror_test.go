package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesOnKind(t *testing.T) {
	err := Conflict("listing %s is booked", "l1")
	assert.ErrorIs(t, err, ErrConflict)
	assert.NotErrorIs(t, err, ErrNotFound)

	wrapped := fmt.Errorf("approve: %w", err)
	assert.ErrorIs(t, wrapped, ErrConflict)
	assert.Equal(t, KindConflict, KindOf(wrapped))

	// a specific error is not a sentinel for another specific error
	assert.False(t, errors.Is(err, Conflict("other")))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindPersistence, KindOf(errors.New("plain")))
	assert.Equal(t, KindStorage, KindOf(Storage(errors.New("disk full"), "stage slip")))
}

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap(nil, "noop"))

	v := Validation("bad date")
	assert.Same(t, v, Wrap(v, "create booking"))

	cause := errors.New("connection reset")
	err := Wrap(cause, "insert booking")
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "PERSISTENCE_ERROR: insert booking: connection reset", err.Error())
}
