package digitalocean

import (
	"context"

	"droplet_console/internal/apperr"
)

type TokenCheck struct {
	IsValid bool   `json:"isValid"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	// Code classifies a failed check; empty for valid or blank tokens.
	Code apperr.Code `json:"code,omitempty"`
}

// TestToken checks token against the account endpoint with a single attempt.
// It never fails; the outcome is described by the result.
func (c *Client) TestToken(ctx context.Context, token string) TokenCheck {
	if token == "" {
		return TokenCheck{Message: "Token is required"}
	}

	acct, err := c.GetAccount(ctx, WithToken(token), WithMaxRetries(1))
	if err == nil {
		return TokenCheck{IsValid: true, Message: "Token is valid", Details: acct}
	}

	msg := "Token is invalid"
	code := apperr.GetCode(err)
	switch code {
	case apperr.CodeCredentialInvalid:
		msg = "Token is invalid or has been revoked"
	case apperr.CodeRemoteNetworkError:
		msg = "Could not connect to DigitalOcean API. Please check your internet connection"
	case apperr.CodeRemoteRateLimited:
		msg = "Rate limit exceeded. Please try again later"
	}
	return TokenCheck{IsValid: false, Message: msg, Details: err.Error(), Code: code}
}
