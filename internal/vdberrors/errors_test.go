package vdberrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	e := New(CollectionNotFound, "collection \"docs\" not found", nil)
	assert.Equal(t, "[collection_not_found] collection \"docs\" not found", e.Error())
}

func TestDimensionMismatchMessage(t *testing.T) {
	e := NewDimensionMismatch(8, 3)
	assert.Contains(t, e.Error(), "expected 8, got 3")
	assert.Equal(t, 8, e.Expected)
	assert.Equal(t, 3, e.Actual)
}

func TestIsMatchesByCode(t *testing.T) {
	e1 := New(CollectionExists, "first", nil)
	e2 := New(CollectionExists, "second, different message and cause", errors.New("boom"))
	assert.True(t, errors.Is(e1, e2))

	other := New(VectorNotFound, "first", nil)
	assert.False(t, errors.Is(e1, other))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	e := Wrap(Io, cause)
	assert.Equal(t, cause, errors.Unwrap(e))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(Io, "x", nil)))
	assert.True(t, IsRetryable(New(Persistence, "x", nil)))
	assert.False(t, IsRetryable(New(InvalidVector, "x", nil)))
	assert.False(t, IsRetryable(errors.New("plain error")))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CollectionExists, CodeOf(New(CollectionExists, "x", nil)))
	assert.Equal(t, Code(""), CodeOf(errors.New("plain")))
}

func TestAssertRelease(t *testing.T) {
	assert.NoError(t, Assert(true, "unreachable"))
	err := Assert(false, "id map points to a missing row")
	assert.Error(t, err)
	assert.Equal(t, Internal, CodeOf(err))
}
