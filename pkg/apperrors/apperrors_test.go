package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorfPreservesKindForErrorsIs(t *testing.T) {
	err := Errorf(ErrExecutionTimeout, "no response for %s after %s", "exec1", "30s")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrExecutionTimeout))
	require.False(t, errors.Is(err, ErrProtocol))
	require.Contains(t, err.Error(), "exec1")
}

func TestDistinctKindsAreDistinguishable(t *testing.T) {
	timeoutErr := Errorf(ErrExecutionTimeout, "boom")
	paymentErr := Errorf(ErrPayment, "boom")
	require.False(t, errors.Is(timeoutErr, ErrPayment))
	require.False(t, errors.Is(paymentErr, ErrExecutionTimeout))
}

func TestDoubleWrapPreservesKind(t *testing.T) {
	inner := Errorf(ErrRelay, "dial failed")
	outer := fmt.Errorf("publish request: %w", inner)
	require.True(t, errors.Is(outer, ErrRelay))
}
