package syncengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	accountdomain "github.com/smallbiznis/invosync/internal/account/domain"
	accountrepository "github.com/smallbiznis/invosync/internal/account/repository"
	"github.com/smallbiznis/invosync/internal/clock"
	"github.com/smallbiznis/invosync/internal/config"
	eventdomain "github.com/smallbiznis/invosync/internal/event/domain"
	eventrepository "github.com/smallbiznis/invosync/internal/event/repository"
	"github.com/smallbiznis/invosync/internal/fatture"
	jobdomain "github.com/smallbiznis/invosync/internal/jobqueue/domain"
	obsmetrics "github.com/smallbiznis/invosync/internal/observability/metrics"
	resourcedomain "github.com/smallbiznis/invosync/internal/resource/domain"
	resourcerepository "github.com/smallbiznis/invosync/internal/resource/repository"
	webhookdomain "github.com/smallbiznis/invosync/internal/webhook/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeAccountSvc struct {
	token string
	err   error
}

func (f *fakeAccountSvc) HandleOAuthCallback(context.Context, string, *int64) (*accountdomain.Account, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAccountSvc) FreshAccessToken(context.Context, *accountdomain.Account) (string, error) {
	return f.token, f.err
}

func (f *fakeAccountSvc) Get(context.Context, snowflake.ID) (*accountdomain.Account, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAccountSvc) List(context.Context) ([]accountdomain.Account, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAccountSvc) Disconnect(context.Context, snowflake.ID) error {
	return errors.New("not implemented")
}

type fakePlatform struct {
	fatture.Client

	resources map[int64]*fatture.Resource
	failIDs   map[int64]error
	fetches   int
}

func (f *fakePlatform) FetchResource(ctx context.Context, token string, companyID int64, typ resourcedomain.Type, id int64) (*fatture.Resource, error) {
	f.fetches++
	if err, ok := f.failIDs[id]; ok {
		return nil, err
	}
	if res, ok := f.resources[id]; ok {
		return res, nil
	}
	return nil, fatture.ErrNotFound
}

type recordingPublisher struct {
	channels []string
	events   []string
	payloads []any
	err      error
}

func (p *recordingPublisher) Publish(ctx context.Context, channel, eventName string, payload any) error {
	p.channels = append(p.channels, channel)
	p.events = append(p.events, eventName)
	p.payloads = append(p.payloads, payload)
	return p.err
}

type engineFixture struct {
	engine    *Engine
	db        *gorm.DB
	node      *snowflake.Node
	account   *accountdomain.Account
	platform  *fakePlatform
	publisher *recordingPublisher
	clk       *clock.FakeClock
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	obsmetrics.ResetMetricsForTest()

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&accountdomain.Account{},
		&resourcedomain.Client{},
		&resourcedomain.Supplier{},
		&resourcedomain.Invoice{},
		&resourcedomain.Quote{},
		&eventdomain.Event{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))

	account := &accountdomain.Account{
		ID:                node.Generate(),
		ExternalCompanyID: 12345,
		AccessToken:       "tok",
		RefreshToken:      "ref",
		Status:            accountdomain.StatusActive,
		WebhookEnabled:    true,
		CreatedAt:         clk.Now(),
		UpdatedAt:         clk.Now(),
	}
	require.NoError(t, accountrepository.Provide().Insert(context.Background(), conn, account))

	platform := &fakePlatform{
		resources: map[int64]*fatture.Resource{},
		failIDs:   map[int64]error{},
	}
	publisher := &recordingPublisher{}

	engine := New(Params{
		Cfg:        config.Config{Fatture: config.FattureConfig{BroadcastChannelPrefix: "invosync"}},
		DB:         conn,
		Log:        zap.NewNop(),
		Node:       node,
		Clock:      clk,
		Accounts:   accountrepository.Provide(),
		AccountSvc: &fakeAccountSvc{token: "tok"},
		Resources:  resourcerepository.Provide(),
		Events:     eventrepository.Provide(),
		Platform:   platform,
		Broadcast:  publisher,
	})
	return &engineFixture{
		engine:    engine,
		db:        conn,
		node:      node,
		account:   account,
		platform:  platform,
		publisher: publisher,
		clk:       clk,
	}
}

func (f *engineFixture) job(t *testing.T, eventType string, ids []int64) *jobdomain.SyncJob {
	t.Helper()
	envelope, err := json.Marshal(webhookdomain.Envelope{
		EventType:   eventType,
		OccurredAt:  f.clk.Now(),
		Subject:     "company:12345",
		ResourceIDs: ids,
	})
	require.NoError(t, err)
	return &jobdomain.SyncJob{
		ID:         "job-1",
		AccountID:  f.account.ID,
		EventGroup: "entity",
		Envelope:   envelope,
		Status:     jobdomain.StatusRunning,
		RunAt:      f.clk.Now(),
	}
}

func countRows(t *testing.T, conn *gorm.DB, model any) int64 {
	t.Helper()
	var count int64
	require.NoError(t, conn.Model(model).Count(&count).Error)
	return count
}

func TestHandleClientCreateIsIdempotent(t *testing.T) {
	f := newEngineFixture(t)
	f.platform.resources[123] = &fatture.Resource{ID: 123, Name: "Studio Rossi", Code: "C-123", VatNumber: "IT123", Raw: json.RawMessage(`{"id":123}`)}
	f.platform.resources[456] = &fatture.Resource{ID: 456, Name: "Bianchi SRL", Code: "C-456", VatNumber: "IT456", Raw: json.RawMessage(`{"id":456}`)}

	job := f.job(t, "it.fattureincloud.webhooks.entities.clients.create", []int64{123, 456})
	require.NoError(t, f.engine.Handle(context.Background(), job))
	assert.Equal(t, int64(2), countRows(t, f.db, &resourcedomain.Client{}))

	// Replaying the same envelope must not duplicate rows.
	require.NoError(t, f.engine.Handle(context.Background(), job))
	assert.Equal(t, int64(2), countRows(t, f.db, &resourcedomain.Client{}))

	var row resourcedomain.Client
	require.NoError(t, f.db.Where("account_id = ? AND external_id = ?", f.account.ID, 123).First(&row).Error)
	assert.Equal(t, "Studio Rossi", row.Name)

	assert.Contains(t, f.publisher.channels, fmt.Sprintf("invosync.account.%d", f.account.ID))
	assert.Contains(t, f.publisher.events, "resource.synced")

	// The notification carries the normalized fields, not just the id.
	require.NotEmpty(t, f.publisher.payloads)
	payload, ok := f.publisher.payloads[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(123), payload["external_id"])
	assert.Equal(t, int64(f.account.ID), payload["account_id"])
	data, ok := payload["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Studio Rossi", data["name"])
	assert.Equal(t, "IT123", data["vat_number"])
}

func TestHandleUpdateRefreshesExistingRow(t *testing.T) {
	f := newEngineFixture(t)
	f.platform.resources[77] = &fatture.Resource{ID: 77, Number: "2024/01", Status: "draft", Total: 100}

	job := f.job(t, "it.fattureincloud.webhooks.issued_documents.invoices.create", []int64{77})
	require.NoError(t, f.engine.Handle(context.Background(), job))

	f.platform.resources[77] = &fatture.Resource{ID: 77, Number: "2024/01", Status: "paid", Total: 100}
	job = f.job(t, "it.fattureincloud.webhooks.issued_documents.invoices.update", []int64{77})
	require.NoError(t, f.engine.Handle(context.Background(), job))

	assert.Equal(t, int64(1), countRows(t, f.db, &resourcedomain.Invoice{}))
	var row resourcedomain.Invoice
	require.NoError(t, f.db.Where("external_id = ?", 77).First(&row).Error)
	assert.Equal(t, "paid", row.Status)
}

func TestHandlePartialFailureKeepsGoodIDs(t *testing.T) {
	f := newEngineFixture(t)
	f.platform.resources[1] = &fatture.Resource{ID: 1, Name: "Good"}
	f.platform.failIDs[2] = fatture.ErrRemote

	job := f.job(t, "it.fattureincloud.webhooks.entities.clients.create", []int64{1, 2})
	require.NoError(t, f.engine.Handle(context.Background(), job))

	assert.Equal(t, int64(1), countRows(t, f.db, &resourcedomain.Client{}))

	events, err := eventrepository.Provide().ListByAccount(context.Background(), f.db, f.account.ID, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	byID := map[int64]eventdomain.Status{}
	for _, ev := range events {
		byID[ev.ExternalResourceID] = ev.Status
	}
	assert.Equal(t, eventdomain.StatusProcessed, byID[1])
	assert.Equal(t, eventdomain.StatusFailed, byID[2])
}

func TestHandleAllIDsFailedFailsJob(t *testing.T) {
	f := newEngineFixture(t)
	f.platform.failIDs[1] = fatture.ErrRemote
	f.platform.failIDs[2] = fatture.ErrRemote

	job := f.job(t, "it.fattureincloud.webhooks.entities.clients.create", []int64{1, 2})
	err := f.engine.Handle(context.Background(), job)
	require.Error(t, err)
	assert.Equal(t, int64(0), countRows(t, f.db, &resourcedomain.Client{}))
}

func TestHandleDelete(t *testing.T) {
	f := newEngineFixture(t)
	f.platform.resources[5] = &fatture.Resource{ID: 5, Name: "To remove"}

	create := f.job(t, "it.fattureincloud.webhooks.entities.suppliers.create", []int64{5})
	require.NoError(t, f.engine.Handle(context.Background(), create))
	assert.Equal(t, int64(1), countRows(t, f.db, &resourcedomain.Supplier{}))

	f.platform.fetches = 0
	del := f.job(t, "it.fattureincloud.webhooks.entities.suppliers.delete", []int64{5})
	require.NoError(t, f.engine.Handle(context.Background(), del))
	assert.Equal(t, int64(0), countRows(t, f.db, &resourcedomain.Supplier{}))

	// Deletes never hit the platform API and broadcast without data.
	assert.Equal(t, 0, f.platform.fetches)
	payload, ok := f.publisher.payloads[len(f.publisher.payloads)-1].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "delete", payload["action"])
	assert.Nil(t, payload["data"])

	// Deleting an already-absent resource is not a failure.
	require.NoError(t, f.engine.Handle(context.Background(), del))
}

func TestHandleBroadcastFailureDoesNotFailSync(t *testing.T) {
	f := newEngineFixture(t)
	f.publisher.err = errors.New("redis down")
	f.platform.resources[9] = &fatture.Resource{ID: 9, Name: "Still synced"}

	job := f.job(t, "it.fattureincloud.webhooks.entities.clients.create", []int64{9})
	require.NoError(t, f.engine.Handle(context.Background(), job))

	assert.Equal(t, int64(1), countRows(t, f.db, &resourcedomain.Client{}))
	events, err := eventrepository.Provide().ListByAccount(context.Background(), f.db, f.account.ID, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, eventdomain.StatusProcessed, events[0].Status)
}

func TestHandleFlipsPendingEvent(t *testing.T) {
	f := newEngineFixture(t)
	f.platform.resources[31] = &fatture.Resource{ID: 31, Name: "Queued earlier"}

	eventType := "it.fattureincloud.webhooks.entities.clients.create"
	require.NoError(t, eventrepository.Provide().Insert(context.Background(), f.db, &eventdomain.Event{
		ID:                 f.node.Generate(),
		AccountID:          f.account.ID,
		EventType:          eventType,
		ResourceType:       "client",
		ExternalResourceID: 31,
		OccurredAt:         f.clk.Now(),
		Status:             eventdomain.StatusPending,
		CreatedAt:          f.clk.Now(),
	}))

	job := f.job(t, eventType, []int64{31})
	require.NoError(t, f.engine.Handle(context.Background(), job))

	// The pending row is flipped in place, not duplicated.
	events, err := eventrepository.Provide().ListByAccount(context.Background(), f.db, f.account.ID, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, eventdomain.StatusProcessed, events[0].Status)
}

func TestHandleUnknownEventTypeFails(t *testing.T) {
	f := newEngineFixture(t)
	job := f.job(t, "it.fattureincloud.webhooks.entities.receipts.create", []int64{1})
	err := f.engine.Handle(context.Background(), job)
	assert.ErrorIs(t, err, webhookdomain.ErrUnknownEventType)
}
