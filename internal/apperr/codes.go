package apperr

import "net/http"

type Code string

const (
	CodeInternal            Code = "INTERNAL_ERROR"
	CodeValidation          Code = "VALIDATION_ERROR"
	CodeNotFound            Code = "NOT_FOUND"
	CodeConflict            Code = "CONFLICT"
	CodeUnauthenticated     Code = "UNAUTHENTICATED"
	CodePermissionDenied    Code = "PERMISSION_DENIED"
	CodeInsufficientBalance Code = "INSUFFICIENT_BALANCE"
	CodeQuotaExceeded       Code = "QUOTA_EXCEEDED"

	// Provider-side failures.
	CodeCredentialMissing  Code = "CREDENTIAL_MISSING"
	CodeCredentialInvalid  Code = "CREDENTIAL_INVALID"
	CodeRemoteNotFound     Code = "REMOTE_NOT_FOUND"
	CodeRemoteRateLimited  Code = "REMOTE_RATE_LIMITED"
	CodeRemoteServerError  Code = "REMOTE_SERVER_ERROR"
	CodeRemoteNetworkError Code = "REMOTE_NETWORK_ERROR"
	CodeRemoteUnclassified Code = "REMOTE_ERROR"
)

func (c Code) String() string {
	return string(c)
}

// Retryable reports whether the provider client may retry a failure with this code.
func (c Code) Retryable() bool {
	switch c {
	case CodeRemoteRateLimited, CodeRemoteServerError, CodeRemoteNetworkError:
		return true
	}
	return false
}

// HTTPStatus maps a code to the status returned by the JSON API.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeValidation, CodeInsufficientBalance, CodeQuotaExceeded:
		return http.StatusBadRequest
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodePermissionDenied:
		return http.StatusForbidden
	case CodeNotFound, CodeRemoteNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeCredentialMissing, CodeRemoteRateLimited:
		return http.StatusServiceUnavailable
	case CodeCredentialInvalid, CodeRemoteServerError, CodeRemoteNetworkError, CodeRemoteUnclassified:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
