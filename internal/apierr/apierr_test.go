package apierr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind_StatusMapping(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:       http.StatusBadRequest,
		KindStoreUnavailable: http.StatusServiceUnavailable,
		KindNotFound:         http.StatusNotFound,
		KindInternal:         http.StatusInternalServerError,
		KindTimeout:          http.StatusGatewayTimeout,
		KindRateLimited:      http.StatusTooManyRequests,
	}
	for kind, status := range cases {
		assert.Equal(t, status, kind.Status(), "kind %s", kind)
	}
}

func TestAs_FindsDirectErrorButNotFlattenedMessage(t *testing.T) {
	base := StoreUnavailable(errors.New("connection refused"))
	wrapped := errors.New("context: " + base.Error())

	e, ok := As(base)
	assert.True(t, ok)
	assert.Equal(t, KindStoreUnavailable, e.Kind)

	_, ok = As(wrapped)
	assert.False(t, ok, "a plain errors.New chain never contains an *Error")
}

func TestWithDetails(t *testing.T) {
	e := Validation("days_back out of range").WithDetails(map[string]interface{}{"days_back": 31})
	assert.Equal(t, 31, e.Details["days_back"])
	assert.Equal(t, "VALIDATION_ERROR", string(e.Kind))
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	e := Timeout(cause)
	assert.ErrorIs(t, e, cause)
}
