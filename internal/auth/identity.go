// Package auth turns request credentials into an Identity: a signed JWT
// for API clients and admins, or Telegram WebApp initData for the mini app.
package auth

import (
	"errors"
	"net/http"
)

var (
	// ErrNoCredential means the request carries nothing this
	// authenticator understands.
	ErrNoCredential = errors.New("auth: no credential")
	// ErrInvalid means a credential was present but failed verification.
	ErrInvalid = errors.New("auth: invalid credential")
)

// Identity is the authenticated caller.
type Identity struct {
	UserID     string `json:"user_id"`
	ExternalID int64  `json:"tg_id"`
	Role       string `json:"role"`
}

// Authenticator extracts an Identity from a request.
type Authenticator interface {
	Authenticate(r *http.Request) (*Identity, error)
}

// Chain tries each authenticator in order and returns the first identity.
type Chain []Authenticator

func (c Chain) Authenticate(r *http.Request) (*Identity, error) {
	lastErr := ErrNoCredential
	for _, a := range c {
		id, err := a.Authenticate(r)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, ErrNoCredential) {
			lastErr = err
		}
	}
	return nil, lastErr
}
