// Package domain holds the webhook protocol types: the normalized event
// envelope, the canonical event-type table and the delivery error taxonomy.
package domain

import "errors"

var (
	ErrRateLimited      = errors.New("rate limited")
	ErrMissingChallenge = errors.New("missing verification challenge")
	ErrMissingSignature = errors.New("missing signature header")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrMissingAuth      = errors.New("missing authorization header")
	ErrInvalidToken     = errors.New("invalid token")
	ErrEmptyResourceIDs = errors.New("empty ids array in payload")
	ErrUnknownEventType = errors.New("unknown event type")
	ErrMalformedPayload = errors.New("malformed notification payload")
)
