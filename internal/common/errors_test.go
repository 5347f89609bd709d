package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKind_Retriable(t *testing.T) {
	assert.True(t, KindTransport.Retriable())
	assert.True(t, KindTimeout.Retriable())

	for _, k := range []ErrorKind{
		KindNoContent, KindUnexpectedShape, KindMalformedContent, KindValidation, KindCancelled,
	} {
		assert.False(t, k.Retriable(), "kind %s must be terminal", k)
	}
}

func TestExtractionError_Message(t *testing.T) {
	err := NewExtractionError(KindValidation, StageBuild, "row 3 is bad", nil)
	assert.Equal(t, `VALIDATION_ERROR [build]: row 3 is bad`, err.Error())

	cause := errors.New("boom")
	wrapped := NewExtractionError(KindTransport, StageDispatch, "request failed", cause)
	assert.Contains(t, wrapped.Error(), "boom")
	assert.ErrorIs(t, wrapped, cause)
}

func TestKindOf(t *testing.T) {
	err := NewExtractionError(KindTimeout, StageDispatch, "slow", nil)
	assert.Equal(t, KindTimeout, KindOf(err))

	// Classified errors survive wrapping.
	assert.Equal(t, KindTimeout, KindOf(fmt.Errorf("outer: %w", err)))

	// Unclassified errors fall back to the retriable transport class.
	assert.Equal(t, KindTransport, KindOf(errors.New("mystery")))
}

func TestRetriable(t *testing.T) {
	require.True(t, Retriable(NewExtractionError(KindTransport, StageDispatch, "x", nil)))
	require.False(t, Retriable(NewExtractionError(KindMalformedContent, StageNormalize, "x", nil)))
}
