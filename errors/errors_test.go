package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClass_String(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
	assert.Equal(t, "unknown", ErrorClass(42).String())
}

func TestWrap_Format(t *testing.T) {
	base := errors.New("boom")
	err := Wrap(base, "Session", "Subscribe", "send frame")

	require.Error(t, err)
	assert.Equal(t, "Session.Subscribe: send frame failed: boom", err.Error())
	assert.True(t, errors.Is(err, base))
}

func TestWrap_NilPassthrough(t *testing.T) {
	assert.NoError(t, Wrap(nil, "Session", "Subscribe", "send frame"))
	assert.NoError(t, WrapTransient(nil, "Session", "Subscribe", "send frame"))
	assert.NoError(t, WrapInvalid(nil, "Session", "Subscribe", "send frame"))
	assert.NoError(t, WrapFatal(nil, "Session", "Subscribe", "send frame"))
}

func TestClassifiedWrappers(t *testing.T) {
	base := errors.New("boom")

	transient := WrapTransient(base, "Session", "Connect", "dial")
	assert.True(t, IsTransient(transient))
	assert.False(t, IsFatal(transient))
	assert.Equal(t, ErrorTransient, Classify(transient))

	invalid := WrapInvalid(base, "Config", "Validate", "format check")
	assert.True(t, IsInvalid(invalid))
	assert.False(t, IsTransient(invalid))

	fatal := WrapFatal(base, "Session", "Connect", "handshake")
	assert.True(t, IsFatal(fatal))
	assert.Equal(t, ErrorFatal, Classify(fatal))
}

func TestClassification_PreservedThroughChain(t *testing.T) {
	inner := WrapTransient(ErrConnectionLost, "Session", "Subscribe", "await response")
	outer := fmt.Errorf("fetch page 3: %w", inner)

	assert.True(t, IsTransient(outer))

	var ce *ClassifiedError
	require.True(t, errors.As(outer, &ce))
	assert.Equal(t, "Session", ce.Component)
	assert.Equal(t, "Subscribe", ce.Operation)
}

func TestIsTransient_StandardErrors(t *testing.T) {
	assert.True(t, IsTransient(ErrConnectionTimeout))
	assert.True(t, IsTransient(ErrConnectionLost))
	assert.True(t, IsTransient(ErrNoConnection))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.True(t, IsTransient(errors.New("dial tcp: i/o timeout")))
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(errors.New("boom")))
}

func TestIsFatal_StandardErrors(t *testing.T) {
	assert.True(t, IsFatal(ErrInvalidConfig))
	assert.True(t, IsFatal(ErrUnknownFormat))
	assert.True(t, IsFatal(ErrMissingToken))
	assert.False(t, IsFatal(ErrParsingFailed))
	assert.False(t, IsFatal(nil))
}

func TestIsInvalid_StandardErrors(t *testing.T) {
	assert.True(t, IsInvalid(ErrInvalidData))
	assert.True(t, IsInvalid(ErrParsingFailed))
	assert.False(t, IsInvalid(ErrConnectionLost))
}
