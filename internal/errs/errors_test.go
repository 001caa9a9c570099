package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsBothVisible(t *testing.T) {
	underlying := errors.New("disk full")
	err := Wrap(ErrPersistence, underlying)

	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, underlying)
}

func TestWrapNil(t *testing.T) {
	assert.ErrorIs(t, Wrap(ErrExtraction, nil), ErrExtraction)
}

func TestWrapf(t *testing.T) {
	err := Wrapf(ErrEmbedding, "chunk %d", 7)
	assert.ErrorIs(t, err, ErrEmbedding)
	assert.Contains(t, err.Error(), "chunk 7")
}

func TestIsTransient(t *testing.T) {
	plain := errors.New("rate limited")
	assert.False(t, IsTransient(plain))
	assert.True(t, IsTransient(Transient(plain)))

	// The mark survives further wrapping.
	wrapped := fmt.Errorf("embed call: %w", Transient(plain))
	assert.True(t, IsTransient(wrapped))

	assert.Nil(t, Transient(nil))
	assert.False(t, IsTransient(nil))
}
