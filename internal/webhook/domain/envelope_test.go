package domain

import (
	"net/http"
	"testing"
	"time"

	resourcedomain "github.com/smallbiznis/invosync/internal/resource/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeBinaryMode(t *testing.T) {
	header := http.Header{}
	header.Set(HeaderEventType, "it.fattureincloud.webhooks.entities.clients.create")
	header.Set(HeaderEventTime, "2024-03-01T10:30:00Z")
	header.Set(HeaderSubject, "company:12345")
	body := []byte(`{"data":{"ids":[123,456]}}`)

	envelope, err := Normalize(header, body, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "it.fattureincloud.webhooks.entities.clients.create", envelope.EventType)
	assert.Equal(t, "company:12345", envelope.Subject)
	assert.Equal(t, []int64{123, 456}, envelope.ResourceIDs)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC), envelope.OccurredAt.UTC())
}

func TestNormalizeStructuredMode(t *testing.T) {
	body := []byte(`{
		"id": "evt-1",
		"source": "fattureincloud",
		"specversion": "1.0",
		"type": "it.fattureincloud.webhooks.issued_documents.quotes.update",
		"subject": "company:12345",
		"time": "2024-03-01T10:30:00Z",
		"data": {"ids": [77]}
	}`)

	envelope, err := Normalize(http.Header{}, body, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "it.fattureincloud.webhooks.issued_documents.quotes.update", envelope.EventType)
	assert.Equal(t, []int64{77}, envelope.ResourceIDs)
}

func TestNormalizeEmptyIDs(t *testing.T) {
	header := http.Header{}
	header.Set(HeaderEventType, "it.fattureincloud.webhooks.entities.clients.create")

	_, err := Normalize(header, []byte(`{"data":{"ids":[]}}`), time.Now())
	assert.ErrorIs(t, err, ErrEmptyResourceIDs)
}

func TestNormalizeUnknownEventType(t *testing.T) {
	header := http.Header{}
	header.Set(HeaderEventType, "it.fattureincloud.webhooks.entities.receipts.create")

	_, err := Normalize(header, []byte(`{"data":{"ids":[1]}}`), time.Now())
	assert.ErrorIs(t, err, ErrUnknownEventType)
}

func TestNormalizeMalformedBody(t *testing.T) {
	_, err := Normalize(http.Header{}, []byte(`not json`), time.Now())
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestNormalizeMissingTimeUsesNow(t *testing.T) {
	header := http.Header{}
	header.Set(HeaderEventType, "it.fattureincloud.webhooks.entities.suppliers.delete")
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	envelope, err := Normalize(header, []byte(`{"data":{"ids":[5]}}`), now)
	require.NoError(t, err)
	assert.Equal(t, now, envelope.OccurredAt)
}

func TestResolveEventType(t *testing.T) {
	key, err := ResolveEventType("it.fattureincloud.webhooks.entities.clients.create")
	require.NoError(t, err)
	assert.Equal(t, resourcedomain.TypeClient, key.Resource)
	assert.Equal(t, ActionCreate, key.Action)

	key, err = ResolveEventType("it.fattureincloud.webhooks.issued_documents.invoices.delete")
	require.NoError(t, err)
	assert.Equal(t, resourcedomain.TypeInvoice, key.Resource)
	assert.Equal(t, ActionDelete, key.Action)

	// No substring guessing: a type merely containing "clients" is not
	// resolved unless the trailing segments match exactly.
	_, err = ResolveEventType("entity.clients")
	assert.ErrorIs(t, err, ErrUnknownEventType)

	_, err = ResolveEventType("create")
	assert.ErrorIs(t, err, ErrUnknownEventType)
}
