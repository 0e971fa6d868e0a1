// Package service implements the webhook protocol: the GET verification
// handshake and the POST notification pipeline (subscription lookup,
// authentication, envelope normalization, enqueue).
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/invosync/internal/account/domain"
	"github.com/smallbiznis/invosync/internal/clock"
	"github.com/smallbiznis/invosync/internal/config"
	eventdomain "github.com/smallbiznis/invosync/internal/event/domain"
	jobdomain "github.com/smallbiznis/invosync/internal/jobqueue/domain"
	jobservice "github.com/smallbiznis/invosync/internal/jobqueue/service"
	obsmetrics "github.com/smallbiznis/invosync/internal/observability/metrics"
	subscriptiondomain "github.com/smallbiznis/invosync/internal/subscription/domain"
	webhookdomain "github.com/smallbiznis/invosync/internal/webhook/domain"
	"github.com/smallbiznis/invosync/internal/webhook/verifier"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Service is the webhook endpoint's decision core. Handlers translate its
// errors to wire responses; it never touches gin itself.
type Service interface {
	// Handshake echoes the verification challenge for an active
	// subscription.
	Handshake(ctx context.Context, accountID snowflake.ID, eventGroup, challenge string) (string, error)

	// Accept runs the notification pipeline and enqueues one job per
	// envelope. It returns before any external API call is made.
	Accept(ctx context.Context, accountID snowflake.ID, eventGroup string, header http.Header, body []byte) (*jobdomain.SyncJob, error)
}

type Params struct {
	fx.In

	Cfg      config.Config
	DB       *gorm.DB
	Log      *zap.Logger
	Node     *snowflake.Node
	Clock    clock.Clock
	Subs     subscriptiondomain.Service
	Accounts accountdomain.Repository
	Events   eventdomain.Repository
	Queue    jobservice.Enqueuer
}

type webhookService struct {
	cfg      config.WebhookConfig
	db       *gorm.DB
	log      *zap.Logger
	node     *snowflake.Node
	clock    clock.Clock
	subs     subscriptiondomain.Service
	accounts accountdomain.Repository
	events   eventdomain.Repository
	queue    jobservice.Enqueuer
	jwt      *verifier.JWTVerifier
}

func New(p Params) (Service, error) {
	svc := &webhookService{
		cfg:      p.Cfg.Webhook,
		db:       p.DB,
		log:      p.Log.Named("webhook"),
		node:     p.Node,
		clock:    p.Clock,
		subs:     p.Subs,
		accounts: p.Accounts,
		events:   p.Events,
		queue:    p.Queue,
	}
	if p.Cfg.Webhook.AuthMode == config.AuthModeJWT {
		jwtVerifier, err := verifier.NewJWTVerifier(
			p.Cfg.Webhook.JWTPublicKeyPEM,
			p.Cfg.Webhook.JWTIssuer,
			p.Cfg.Webhook.JWTAudience,
		)
		if err != nil {
			return nil, fmt.Errorf("webhook auth mode jwt: %w", err)
		}
		svc.jwt = jwtVerifier
	}
	return svc, nil
}

func (s *webhookService) Handshake(ctx context.Context, accountID snowflake.ID, eventGroup, challenge string) (string, error) {
	sub, _, err := s.subs.ActiveWithSecret(ctx, accountID, eventGroup)
	if err != nil {
		return "", err
	}
	if challenge == "" {
		return "", webhookdomain.ErrMissingChallenge
	}

	// The sender decides verification from the echoed body; extending
	// expiry here is best-effort bookkeeping.
	if err := s.subs.TouchDelivery(ctx, sub); err != nil {
		s.log.Warn("extend subscription expiry", zap.Error(err))
	}
	return challenge, nil
}

func (s *webhookService) Accept(ctx context.Context, accountID snowflake.ID, eventGroup string, header http.Header, body []byte) (*jobdomain.SyncJob, error) {
	webhookMetrics := obsmetrics.Webhook()

	sub, secret, err := s.subs.ActiveWithSecret(ctx, accountID, eventGroup)
	if err != nil {
		return nil, err
	}

	if err := s.authenticate(ctx, accountID, header, body, secret); err != nil {
		webhookMetrics.IncAuthFailure(err.Error())
		return nil, err
	}

	envelope, err := webhookdomain.Normalize(header, body, s.clock.Now())
	if err != nil {
		return nil, err
	}

	s.recordPending(ctx, accountID, envelope)

	job, err := s.queue.Enqueue(ctx, accountID, eventGroup, envelope)
	if err != nil {
		return nil, err
	}
	webhookMetrics.IncEnqueued()

	if err := s.subs.TouchDelivery(ctx, sub); err != nil {
		s.log.Warn("extend subscription expiry", zap.Error(err))
	}
	return job, nil
}

// recordPending writes one pending audit row per resource id. The worker
// flips them to processed or failed. Failures here are logged only; the
// worker inserts the row itself when no pending one exists.
func (s *webhookService) recordPending(ctx context.Context, accountID snowflake.ID, envelope *webhookdomain.Envelope) {
	key, err := webhookdomain.ResolveEventType(envelope.EventType)
	if err != nil {
		return
	}
	payload, _ := json.Marshal(envelope)
	for _, externalID := range envelope.ResourceIDs {
		row := &eventdomain.Event{
			ID:                 s.node.Generate(),
			AccountID:          accountID,
			EventType:          envelope.EventType,
			ResourceType:       string(key.Resource),
			ExternalResourceID: externalID,
			OccurredAt:         envelope.OccurredAt,
			Payload:            datatypes.JSON(payload),
			Status:             eventdomain.StatusPending,
			CreatedAt:          s.clock.Now(),
		}
		if err := s.events.Insert(ctx, s.db, row); err != nil {
			s.log.Warn("record pending event",
				zap.Int64("external_id", externalID), zap.Error(err))
		}
	}
}

func (s *webhookService) authenticate(ctx context.Context, accountID snowflake.ID, header http.Header, body []byte, secret string) error {
	switch s.cfg.AuthMode {
	case config.AuthModeJWT:
		account, err := s.accounts.FindByID(ctx, s.db, accountID)
		if err != nil {
			return webhookdomain.ErrInvalidToken
		}
		subject := fmt.Sprintf("company:%d", account.ExternalCompanyID)
		return s.jwt.Verify(header.Get("Authorization"), subject)
	default:
		return verifier.VerifyHMAC(secret, body, header.Get(verifier.SignatureHeader))
	}
}
