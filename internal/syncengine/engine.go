// Package syncengine executes sync jobs: it fetches the current state of
// each referenced resource from the platform and idempotently mirrors it
// into local storage.
package syncengine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/invosync/internal/account/domain"
	"github.com/smallbiznis/invosync/internal/broadcast"
	"github.com/smallbiznis/invosync/internal/clock"
	"github.com/smallbiznis/invosync/internal/config"
	eventdomain "github.com/smallbiznis/invosync/internal/event/domain"
	"github.com/smallbiznis/invosync/internal/fatture"
	jobdomain "github.com/smallbiznis/invosync/internal/jobqueue/domain"
	obsmetrics "github.com/smallbiznis/invosync/internal/observability/metrics"
	resourcedomain "github.com/smallbiznis/invosync/internal/resource/domain"
	webhookdomain "github.com/smallbiznis/invosync/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Cfg        config.Config
	DB         *gorm.DB
	Log        *zap.Logger
	Node       *snowflake.Node
	Clock      clock.Clock
	Accounts   accountdomain.Repository
	AccountSvc accountdomain.Service
	Resources  resourcedomain.Repository
	Events     eventdomain.Repository
	Platform   fatture.Client
	Broadcast  broadcast.Publisher
}

// Engine is the jobdomain.Handler that drives resource synchronization.
type Engine struct {
	cfg        config.Config
	db         *gorm.DB
	log        *zap.Logger
	node       *snowflake.Node
	clock      clock.Clock
	accounts   accountdomain.Repository
	accountSvc accountdomain.Service
	resources  resourcedomain.Repository
	events     eventdomain.Repository
	platform   fatture.Client
	broadcast  broadcast.Publisher
}

func New(p Params) *Engine {
	return &Engine{
		cfg:        p.Cfg,
		db:         p.DB,
		log:        p.Log.Named("syncengine"),
		node:       p.Node,
		clock:      p.Clock,
		accounts:   p.Accounts,
		accountSvc: p.AccountSvc,
		resources:  p.Resources,
		events:     p.Events,
		platform:   p.Platform,
		broadcast:  p.Broadcast,
	}
}

// Handle processes one claimed job. Per-id failures are logged and skipped;
// the job only fails as a whole when nothing could be processed, so
// retrying it cannot lose the ids that already succeeded (upserts are
// idempotent).
func (e *Engine) Handle(ctx context.Context, job *jobdomain.SyncJob) error {
	var envelope webhookdomain.Envelope
	if err := json.Unmarshal(job.Envelope, &envelope); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}

	key, err := webhookdomain.ResolveEventType(envelope.EventType)
	if err != nil {
		return fmt.Errorf("%w: %s", err, envelope.EventType)
	}

	account, err := e.accounts.FindByID(ctx, e.db, job.AccountID)
	if err != nil {
		return fmt.Errorf("resolve account %d: %w", job.AccountID, err)
	}

	token := ""
	if key.Action != webhookdomain.ActionDelete {
		token, err = e.accountSvc.FreshAccessToken(ctx, account)
		if err != nil {
			return fmt.Errorf("access token for account %d: %w", account.ID, err)
		}
	}

	log := e.log.With(
		zap.String("job_id", job.ID),
		zap.Int64("account_id", int64(account.ID)),
		zap.String("event_type", envelope.EventType),
	)

	workerMetrics := obsmetrics.Worker()
	succeeded := 0
	for _, externalID := range envelope.ResourceIDs {
		var data map[string]any
		var idErr error
		if key.Action == webhookdomain.ActionDelete {
			idErr = e.deleteResource(ctx, log, key.Resource, account.ID, externalID)
		} else {
			data, idErr = e.syncResource(ctx, account, token, key.Resource, externalID)
		}
		if idErr != nil {
			workerMetrics.IncSyncError(string(key.Resource))
			log.Error("resource sync failed",
				zap.String("resource_type", string(key.Resource)),
				zap.Int64("external_id", externalID),
				zap.Error(idErr),
			)
			e.recordEvent(ctx, account.ID, &envelope, key.Resource, externalID, eventdomain.StatusFailed)
			continue
		}

		workerMetrics.IncSynced(string(key.Resource), string(key.Action))
		e.recordEvent(ctx, account.ID, &envelope, key.Resource, externalID, eventdomain.StatusProcessed)
		e.announce(ctx, log, account.ID, key, externalID, data)
		succeeded++
	}

	if succeeded == 0 && len(envelope.ResourceIDs) > 0 {
		return fmt.Errorf("all %d resource ids failed", len(envelope.ResourceIDs))
	}
	return nil
}

// syncResource upserts the local mirror and returns the normalized fields
// for the broadcast payload.
func (e *Engine) syncResource(ctx context.Context, account *accountdomain.Account, token string, typ resourcedomain.Type, externalID int64) (map[string]any, error) {
	remote, err := e.platform.FetchResource(ctx, token, account.ExternalCompanyID, typ, externalID)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	now := e.clock.Now()
	switch typ {
	case resourcedomain.TypeClient:
		err = e.resources.UpsertClient(ctx, e.db, &resourcedomain.Client{
			ID:         e.node.Generate(),
			AccountID:  account.ID,
			ExternalID: externalID,
			Name:       remote.Name,
			Code:       remote.Code,
			VatNumber:  remote.VatNumber,
			Raw:        datatypes.JSON(remote.Raw),
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	case resourcedomain.TypeSupplier:
		err = e.resources.UpsertSupplier(ctx, e.db, &resourcedomain.Supplier{
			ID:         e.node.Generate(),
			AccountID:  account.ID,
			ExternalID: externalID,
			Name:       remote.Name,
			Code:       remote.Code,
			VatNumber:  remote.VatNumber,
			Raw:        datatypes.JSON(remote.Raw),
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	case resourcedomain.TypeInvoice:
		err = e.resources.UpsertInvoice(ctx, e.db, &resourcedomain.Invoice{
			ID:         e.node.Generate(),
			AccountID:  account.ID,
			ExternalID: externalID,
			Number:     remote.Number,
			Status:     remote.Status,
			Total:      remote.Total,
			IssuedOn:   remote.Date,
			Raw:        datatypes.JSON(remote.Raw),
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	case resourcedomain.TypeQuote:
		err = e.resources.UpsertQuote(ctx, e.db, &resourcedomain.Quote{
			ID:         e.node.Generate(),
			AccountID:  account.ID,
			ExternalID: externalID,
			Number:     remote.Number,
			Status:     remote.Status,
			Total:      remote.Total,
			IssuedOn:   remote.Date,
			Raw:        datatypes.JSON(remote.Raw),
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	default:
		return nil, fmt.Errorf("unknown resource type %q", typ)
	}
	if err != nil {
		return nil, err
	}
	return normalizedFields(typ, remote), nil
}

func normalizedFields(typ resourcedomain.Type, remote *fatture.Resource) map[string]any {
	switch typ {
	case resourcedomain.TypeClient, resourcedomain.TypeSupplier:
		return map[string]any{
			"name":       remote.Name,
			"code":       remote.Code,
			"vat_number": remote.VatNumber,
		}
	default:
		return map[string]any{
			"number": remote.Number,
			"status": remote.Status,
			"total":  remote.Total,
			"date":   remote.Date,
		}
	}
}

// deleteResource removes the local mirror. Deleting something already
// absent is a warning, not a failure.
func (e *Engine) deleteResource(ctx context.Context, log *zap.Logger, typ resourcedomain.Type, accountID snowflake.ID, externalID int64) error {
	deleted, err := e.resources.Delete(ctx, e.db, typ, accountID, externalID)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if !deleted {
		log.Warn("delete for absent resource",
			zap.String("resource_type", string(typ)),
			zap.Int64("external_id", externalID),
		)
	}
	return nil
}

// recordEvent flips the pending audit row written at ingest. Jobs replayed
// after the flip, or enqueued without one, get a fresh row instead.
func (e *Engine) recordEvent(ctx context.Context, accountID snowflake.ID, envelope *webhookdomain.Envelope, typ resourcedomain.Type, externalID int64, status eventdomain.Status) {
	flipped, err := e.events.MarkStatus(ctx, e.db, accountID, envelope.EventType, externalID, eventdomain.StatusPending, status)
	if err != nil {
		e.log.Warn("mark event status", zap.Int64("account_id", int64(accountID)), zap.Error(err))
	}
	if flipped {
		return
	}

	payload, _ := json.Marshal(envelope)
	row := &eventdomain.Event{
		ID:                 e.node.Generate(),
		AccountID:          accountID,
		EventType:          envelope.EventType,
		ResourceType:       string(typ),
		ExternalResourceID: externalID,
		OccurredAt:         envelope.OccurredAt,
		Payload:            datatypes.JSON(payload),
		Status:             status,
		CreatedAt:          e.clock.Now(),
	}
	if err := e.events.Insert(ctx, e.db, row); err != nil {
		e.log.Warn("record event", zap.Int64("account_id", int64(accountID)), zap.Error(err))
	}
}

// announce emits the synchronized-resource notification. Broadcast
// failures are logged and swallowed; they never fail a sync. Deletes
// carry no data.
func (e *Engine) announce(ctx context.Context, log *zap.Logger, accountID snowflake.ID, key webhookdomain.EventKey, externalID int64, data map[string]any) {
	channel := fmt.Sprintf("%s.account.%d", e.cfg.Fatture.BroadcastChannelPrefix, accountID)
	payload := map[string]any{
		"resource_type": string(key.Resource),
		"external_id":   externalID,
		"account_id":    int64(accountID),
		"action":        string(key.Action),
		"data":          data,
	}
	if err := e.broadcast.Publish(ctx, channel, "resource.synced", payload); err != nil {
		log.Warn("broadcast failed", zap.Error(err))
	}
}
