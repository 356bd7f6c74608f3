package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsInnermostCode(t *testing.T) {
	inner := New(CodeRemoteNotFound, "droplet 7 not found")
	outer := Wrap(fmt.Errorf("loading: %w", inner), CodeInternal, "load failed")

	assert.Equal(t, CodeRemoteNotFound, GetCode(outer))
	assert.True(t, Is(outer, CodeRemoteNotFound))
	assert.Equal(t, "droplet 7 not found", Message(outer))
}

func TestWrapPlainError(t *testing.T) {
	err := Wrap(errors.New("boom"), CodeInternal, "saving droplet")

	assert.Equal(t, CodeInternal, GetCode(err))
	assert.Equal(t, "saving droplet", Message(err))
	assert.Nil(t, Wrap(nil, CodeInternal, "x"))
}

func TestMessageHidesUncodedErrors(t *testing.T) {
	assert.Equal(t, "internal server error", Message(errors.New("sql: connection refused")))
	assert.Equal(t, CodeInternal, GetCode(errors.New("x")))
}

func TestSuggestionIsAppended(t *testing.T) {
	err := New(CodeCredentialMissing, "no DigitalOcean token configured").
		WithSuggestion("Configure one under settings")
	assert.Equal(t, "no DigitalOcean token configured. Configure one under settings", Message(err))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeCredentialMissing:   http.StatusServiceUnavailable,
		CodeCredentialInvalid:   http.StatusBadGateway,
		CodeRemoteNotFound:      http.StatusNotFound,
		CodeRemoteRateLimited:   http.StatusServiceUnavailable,
		CodeRemoteServerError:   http.StatusBadGateway,
		CodePermissionDenied:    http.StatusForbidden,
		CodeInsufficientBalance: http.StatusBadRequest,
		CodeValidation:          http.StatusBadRequest,
		CodeInternal:            http.StatusInternalServerError,
	}
	for code, status := range cases {
		assert.Equal(t, status, code.HTTPStatus(), code.String())
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, CodeRemoteRateLimited.Retryable())
	assert.True(t, CodeRemoteServerError.Retryable())
	assert.True(t, CodeRemoteNetworkError.Retryable())
	assert.False(t, CodeCredentialInvalid.Retryable())
	assert.False(t, CodeRemoteNotFound.Retryable())
	assert.False(t, CodeRemoteUnclassified.Retryable())
}
