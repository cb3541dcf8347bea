package models

import (
	"errors"
	"fmt"
)

var (
	ErrAuthFailed          = errors.New("auth failed")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrProtocolDecode      = errors.New("protocol decode error")
	ErrUnknownSubscription = errors.New("unknown subscription")
	ErrNotFound            = errors.New("not found")
	ErrInvalidRequest      = errors.New("invalid request")
)

// ReauthRequiredError tells the caller to send the user through the
// authorization URL before retrying.
type ReauthRequiredError struct {
	AuthURL string
	Err     error
}

func (e *ReauthRequiredError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("reauthorization required: %v", e.Err)
	}
	return "reauthorization required"
}

func (e *ReauthRequiredError) Unwrap() error { return e.Err }
