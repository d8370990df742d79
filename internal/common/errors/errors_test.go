package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	assert.Nil(t, Normalize(nil))

	storeErr := NewDocumentStoreError("deals", stderrors.New("connection reset"))
	assert.Same(t, storeErr, Normalize(fmt.Errorf("wrapped: %w", storeErr)))

	timeout := Normalize(fmt.Errorf("fetch: %w", context.DeadlineExceeded))
	assert.Equal(t, ErrCodeTimeout, timeout.Code)
	assert.True(t, timeout.Retryable)
	assert.ErrorIs(t, timeout, context.DeadlineExceeded)

	internal := Normalize(stderrors.New("boom"))
	assert.Equal(t, ErrCodeInternalError, internal.Code)
	assert.False(t, internal.Retryable)
	assert.Equal(t, "boom", internal.Details)
}

func TestConvertToBPMNError(t *testing.T) {
	tests := []struct {
		name    string
		err     *StandardError
		retries int
	}{
		{"store error retries", NewDocumentStoreError("crm_contacts", stderrors.New("down")), 3},
		{"broker error retries", NewBrokerError("complete job", stderrors.New("unavailable")), 3},
		{"timeout retries twice", NewTimeoutError("build deal context", context.DeadlineExceeded), 2},
		{"invalid input is terminal", NewInvalidInputError("tenantId: required"), 0},
		{"missing deal is terminal", NewDealNotFoundError("d1"), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bpmn := ConvertToBPMNError(tt.err)
			assert.Equal(t, string(tt.err.Code), bpmn.Code)
			assert.Equal(t, tt.retries, bpmn.Retries)

			vars := bpmn.ToErrorVariables()
			assert.Equal(t, string(tt.err.Code), vars["errorCode"])
			assert.Equal(t, string(tt.err.Code), vars["originalErrorCode"])
			assert.Contains(t, vars, "timestamp")
		})
	}
}

func TestConvertToBPMNError_NonRetryableOverride(t *testing.T) {
	e := NewBrokerError("complete job", stderrors.New("job not found"))
	e.Retryable = false
	assert.Zero(t, ConvertToBPMNError(e).Retries)
}

func TestStandardError_Format(t *testing.T) {
	e := NewDealNotFoundError("d42").WithMetadata("tenantId", "acme")
	assert.Equal(t, "DEAL_NOT_FOUND: Deal not found: d42", e.Error())
	assert.Equal(t, "acme", e.Metadata["tenantId"])

	wrapped := NewDocumentStoreError("deals", context.Canceled)
	require.ErrorIs(t, wrapped, context.Canceled)
	assert.Equal(t, "deals", wrapped.Metadata["collection"])
}

func TestGetErrorCategory(t *testing.T) {
	cases := map[ErrorCode]string{
		ErrCodeDocumentStoreError: "STORE",
		ErrCodeDealNotFound:       "STORE",
		ErrCodeBrokerError:        "BROKER",
		ErrCodeContextBuildFailed: "AGGREGATION",
		ErrCodeInvalidInput:       "VALIDATION",
		ErrCodeConfigError:        "VALIDATION",
		ErrCodeTimeout:            "TIMEOUT",
		ErrCodeInternalError:      "OTHER",
	}
	for code, want := range cases {
		assert.Equal(t, want, GetErrorCategory(code), code)
	}
	assert.True(t, IsRetryableErrorCode(ErrCodeBrokerError))
	assert.False(t, IsRetryableErrorCode(ErrCodeDealNotFound))
}
