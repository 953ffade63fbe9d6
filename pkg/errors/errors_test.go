package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndError(t *testing.T) {
	err := New(ErrorTypeConnection, "request failed")
	assert.Equal(t, "connection: request failed", err.Error())
	assert.NotEmpty(t, err.Stack)
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")
	err := Wrap(cause, ErrorTypeConnection, "search call failed")

	assert.Equal(t, "connection: search call failed: dial tcp: connection refused", err.Error())
	assert.True(t, stderrors.Is(err, cause))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeInternal, "ignored"))
}

func TestWrapPromotesToExtraction(t *testing.T) {
	// the retry loop promotes a transient error once the budget is spent
	transient := New(ErrorTypeConnection, "unexpected status 502")
	err := Wrap(transient, ErrorTypeExtraction, "request failed after 3 retries")

	assert.True(t, IsType(err, ErrorTypeExtraction))
	assert.False(t, IsRetryable(err))

	// the transient cause is still reachable
	var inner *Error
	require.True(t, stderrors.As(err.Cause, &inner))
	assert.Equal(t, ErrorTypeConnection, inner.Type)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		errType   ErrorType
		retryable bool
	}{
		{ErrorTypeConnection, true},
		{ErrorTypeTimeout, true},
		{ErrorTypeRateLimit, true},
		{ErrorTypeValidation, false},
		{ErrorTypeNotFound, false},
		{ErrorTypeExtraction, false},
		{ErrorTypeSink, false},
		{ErrorTypeConfig, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.errType), func(t *testing.T) {
			assert.Equal(t, tt.retryable, IsRetryable(New(tt.errType, "x")))
		})
	}

	assert.False(t, IsRetryable(fmt.Errorf("plain error")))
	assert.False(t, IsRetryable(nil))
}

func TestIsType(t *testing.T) {
	err := New(ErrorTypeNotFound, "office 999 not present in tenant config")
	assert.True(t, IsType(err, ErrorTypeNotFound))
	assert.False(t, IsType(err, ErrorTypeConfig))
	assert.False(t, IsType(fmt.Errorf("plain"), ErrorTypeNotFound))

	// wrapped errors match on the outermost type
	wrapped := Wrap(err, ErrorTypeConfig, "loading tenants")
	assert.True(t, IsType(wrapped, ErrorTypeConfig))
}

func TestWithDetail(t *testing.T) {
	err := New(ErrorTypeSink, "insert failed").
		WithDetail("table", "RAW.FIELDROUTES.PAYMENT").
		WithDetail("rows", 500)

	assert.Equal(t, "RAW.FIELDROUTES.PAYMENT", err.Details["table"])
	assert.Equal(t, 500, err.Details["rows"])
}
