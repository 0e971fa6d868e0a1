package domain

import (
	"encoding/json"
	"net/http"
	"time"
)

// CloudEvents binary-mode headers carried by notifications.
const (
	HeaderEventType = "ce-type"
	HeaderEventTime = "ce-time"
	HeaderSubject   = "ce-subject"
)

// Envelope is the normalized internal form of one notification, whatever
// mode it arrived in.
type Envelope struct {
	EventType   string    `json:"event_type"`
	OccurredAt  time.Time `json:"occurred_at"`
	Subject     string    `json:"subject"`
	ResourceIDs []int64   `json:"resource_ids"`
}

type payloadData struct {
	IDs []int64 `json:"ids"`
}

type structuredPayload struct {
	ID          string      `json:"id"`
	Source      string      `json:"source"`
	SpecVersion string      `json:"specversion"`
	Type        string      `json:"type"`
	Subject     string      `json:"subject"`
	Time        string      `json:"time"`
	Data        payloadData `json:"data"`
}

type binaryPayload struct {
	Data payloadData `json:"data"`
}

// Normalize builds the envelope from a notification request. Binary mode
// (ce-* headers present) wins; otherwise the body must be a structured
// CloudEvents document. The returned envelope always carries a canonical
// event type (see ResolveEventType) and a non-empty id list.
func Normalize(header http.Header, body []byte, now time.Time) (*Envelope, error) {
	var envelope *Envelope
	var err error
	if header.Get(HeaderEventType) != "" {
		envelope, err = fromBinary(header, body)
	} else {
		envelope, err = fromStructured(body)
	}
	if err != nil {
		return nil, err
	}

	if _, err := ResolveEventType(envelope.EventType); err != nil {
		return nil, err
	}
	if len(envelope.ResourceIDs) == 0 {
		return nil, ErrEmptyResourceIDs
	}
	if envelope.OccurredAt.IsZero() {
		envelope.OccurredAt = now
	}
	return envelope, nil
}

func fromBinary(header http.Header, body []byte) (*Envelope, error) {
	var payload binaryPayload
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, ErrMalformedPayload
		}
	}

	envelope := &Envelope{
		EventType:   header.Get(HeaderEventType),
		Subject:     header.Get(HeaderSubject),
		ResourceIDs: payload.Data.IDs,
	}
	if raw := header.Get(HeaderEventTime); raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			envelope.OccurredAt = parsed
		}
	}
	return envelope, nil
}

func fromStructured(body []byte) (*Envelope, error) {
	var payload structuredPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, ErrMalformedPayload
	}
	if payload.Type == "" {
		return nil, ErrMalformedPayload
	}

	envelope := &Envelope{
		EventType:   payload.Type,
		Subject:     payload.Subject,
		ResourceIDs: payload.Data.IDs,
	}
	if payload.Time != "" {
		if parsed, err := time.Parse(time.RFC3339, payload.Time); err == nil {
			envelope.OccurredAt = parsed
		}
	}
	return envelope, nil
}
