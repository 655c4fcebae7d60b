package ap2

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumup/ap2/store"
)

func TestErrorPayload(t *testing.T) {
	t.Parallel()

	err := NewValidationError("line_items[0].quantity must be greater than 0", WithOffendingParam("line_items[0].quantity"))
	raw, mErr := json.Marshal(err)
	require.NoError(t, mErr)
	assert.JSONEq(t, `{
		"status": "error",
		"type": "validation_error",
		"message": "line_items[0].quantity must be greater than 0",
		"param": "line_items[0].quantity"
	}`, string(raw))
	assert.Equal(t, http.StatusBadRequest, err.HTTPStatus())
}

func TestErrorStatusCodes(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		err  *Error
		want int
	}{
		"not found":          {err: NewNotFoundError("x"), want: http.StatusNotFound},
		"unavailable":        {err: NewUnavailableError("x"), want: http.StatusConflict},
		"duplicate":          {err: NewDuplicateMandateError("x"), want: http.StatusConflict},
		"invalid transition": {err: NewInvalidTransitionError("x"), want: http.StatusConflict},
		"unauthorized":       {err: NewUnauthorizedError("x"), want: http.StatusUnauthorized},
		"processing":         {err: NewProcessingError("x"), want: http.StatusInternalServerError},
		"override":           {err: NewProcessingError("x", WithStatusCode(http.StatusBadGateway)), want: http.StatusBadGateway},
		"nil":                {err: nil, want: http.StatusInternalServerError},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.HTTPStatus())
		})
	}
}

func TestStoreError(t *testing.T) {
	t.Parallel()

	assert.NoError(t, storeError("mandate", "md_1", nil))

	err := storeError("Mandate", "md_1", fmt.Errorf("%w: md_1", store.ErrNotFound))
	var apErr *Error
	require.ErrorAs(t, err, &apErr)
	assert.Equal(t, NotFound, apErr.Type)
	assert.Equal(t, "Mandate md_1 not found", apErr.Message)

	assert.True(t, IsErrorType(storeError("mandate", "md_1", store.ErrDuplicate), DuplicateMandate))
	assert.True(t, IsErrorType(storeError("mandate", "md_1", errors.New("disk on fire")), ProcessingError))

	original := NewInvalidTransitionError("nope")
	assert.Same(t, original, storeError("mandate", "md_1", original))
	assert.False(t, IsErrorType(errors.New("plain"), NotFound))
}
