package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	eventdomain "github.com/smallbiznis/invosync/internal/event/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) (*gorm.DB, *snowflake.Node) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&eventdomain.Event{}))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return conn, node
}

func insertEvent(t *testing.T, conn *gorm.DB, node *snowflake.Node, accountID snowflake.ID, externalID int64, status eventdomain.Status) {
	t.Helper()
	require.NoError(t, Provide().Insert(context.Background(), conn, &eventdomain.Event{
		ID:                 node.Generate(),
		AccountID:          accountID,
		EventType:          "it.fattureincloud.webhooks.entities.clients.create",
		ResourceType:       "client",
		ExternalResourceID: externalID,
		OccurredAt:         time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		Status:             status,
		CreatedAt:          time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}))
}

func TestMarkStatusFlipsPendingOnce(t *testing.T) {
	conn, node := newTestDB(t)
	accountID := node.Generate()
	eventType := "it.fattureincloud.webhooks.entities.clients.create"
	insertEvent(t, conn, node, accountID, 123, eventdomain.StatusPending)

	flipped, err := Provide().MarkStatus(context.Background(), conn, accountID, eventType, 123,
		eventdomain.StatusPending, eventdomain.StatusProcessed)
	require.NoError(t, err)
	assert.True(t, flipped)

	events, err := Provide().ListByAccount(context.Background(), conn, accountID, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, eventdomain.StatusProcessed, events[0].Status)

	// Already flipped, nothing left to update.
	flipped, err = Provide().MarkStatus(context.Background(), conn, accountID, eventType, 123,
		eventdomain.StatusPending, eventdomain.StatusProcessed)
	require.NoError(t, err)
	assert.False(t, flipped)
}

func TestMarkStatusLeavesOtherRowsAlone(t *testing.T) {
	conn, node := newTestDB(t)
	accountID := node.Generate()
	eventType := "it.fattureincloud.webhooks.entities.clients.create"
	insertEvent(t, conn, node, accountID, 1, eventdomain.StatusPending)
	insertEvent(t, conn, node, accountID, 2, eventdomain.StatusPending)

	flipped, err := Provide().MarkStatus(context.Background(), conn, accountID, eventType, 1,
		eventdomain.StatusPending, eventdomain.StatusFailed)
	require.NoError(t, err)
	assert.True(t, flipped)

	events, err := Provide().ListByAccount(context.Background(), conn, accountID, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	byID := map[int64]eventdomain.Status{}
	for _, ev := range events {
		byID[ev.ExternalResourceID] = ev.Status
	}
	assert.Equal(t, eventdomain.StatusFailed, byID[1])
	assert.Equal(t, eventdomain.StatusPending, byID[2])
}
