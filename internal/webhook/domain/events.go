package domain

import (
	"strings"

	resourcedomain "github.com/smallbiznis/invosync/internal/resource/domain"
)

type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// EventKey is the canonical (resource, action) pair a notification maps to.
type EventKey struct {
	Resource resourcedomain.Type
	Action   Action
}

// dispatch maps the trailing `<resource>.<action>` of a dotted event type
// to its canonical key. Built once; unrecognized suffixes are a distinct
// error, never guessed from substrings.
var dispatch = map[string]EventKey{
	"clients.create":   {resourcedomain.TypeClient, ActionCreate},
	"clients.update":   {resourcedomain.TypeClient, ActionUpdate},
	"clients.delete":   {resourcedomain.TypeClient, ActionDelete},
	"suppliers.create": {resourcedomain.TypeSupplier, ActionCreate},
	"suppliers.update": {resourcedomain.TypeSupplier, ActionUpdate},
	"suppliers.delete": {resourcedomain.TypeSupplier, ActionDelete},
	"invoices.create":  {resourcedomain.TypeInvoice, ActionCreate},
	"invoices.update":  {resourcedomain.TypeInvoice, ActionUpdate},
	"invoices.delete":  {resourcedomain.TypeInvoice, ActionDelete},
	"quotes.create":    {resourcedomain.TypeQuote, ActionCreate},
	"quotes.update":    {resourcedomain.TypeQuote, ActionUpdate},
	"quotes.delete":    {resourcedomain.TypeQuote, ActionDelete},
}

// ResolveEventType maps a full dotted event type, for example
// `it.fattureincloud.webhooks.entities.clients.create`, to its canonical
// key using the last two segments.
func ResolveEventType(eventType string) (EventKey, error) {
	segments := strings.Split(eventType, ".")
	if len(segments) < 2 {
		return EventKey{}, ErrUnknownEventType
	}
	suffix := segments[len(segments)-2] + "." + segments[len(segments)-1]
	key, ok := dispatch[suffix]
	if !ok {
		return EventKey{}, ErrUnknownEventType
	}
	return key, nil
}
