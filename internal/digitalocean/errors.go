package digitalocean

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"droplet_console/internal/apperr"
)

// errorBody is the provider's error envelope.
type errorBody struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// classify turns a non-2xx response into an AppError whose code decides
// whether Call retries it.
func classify(status int, body []byte) error {
	detail := http.StatusText(status)
	var eb errorBody
	if json.Unmarshal(body, &eb) == nil && eb.Message != "" {
		detail = eb.Message
	}

	switch {
	case status == http.StatusUnauthorized:
		return apperr.Newf(apperr.CodeCredentialInvalid,
			"DigitalOcean API error: unauthorized, token is invalid or expired (%s)", detail)
	case status == http.StatusNotFound:
		return apperr.Newf(apperr.CodeRemoteNotFound, "DigitalOcean API error: resource not found (%s)", detail)
	case status == http.StatusTooManyRequests:
		return apperr.Newf(apperr.CodeRemoteRateLimited, "DigitalOcean API error: rate limit exceeded (%s)", detail)
	case status >= 500 && status <= 599:
		return apperr.Newf(apperr.CodeRemoteServerError, "DigitalOcean API server error: %d %s", status, detail)
	default:
		return apperr.Newf(apperr.CodeRemoteUnclassified, "DigitalOcean API error: %d %s", status, detail)
	}
}

func networkError(err error) error {
	return apperr.Wrap(err, apperr.CodeRemoteNetworkError, "DigitalOcean API network error")
}

func decodeError(endpoint string, err error) error {
	return apperr.Wrap(err, apperr.CodeRemoteUnclassified,
		fmt.Sprintf("unexpected response from DigitalOcean for %s", strings.SplitN(endpoint, "?", 2)[0]))
}
