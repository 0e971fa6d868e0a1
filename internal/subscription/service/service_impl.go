package service

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/invosync/internal/account/domain"
	"github.com/smallbiznis/invosync/internal/clock"
	"github.com/smallbiznis/invosync/internal/config"
	"github.com/smallbiznis/invosync/internal/fatture"
	subscriptiondomain "github.com/smallbiznis/invosync/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// deliveryExtension is how far expires_at moves forward on each verified
// delivery. The platform expires idle subscriptions; traffic keeps ours
// alive.
const deliveryExtension = 30 * 24 * time.Hour

type Params struct {
	fx.In

	Cfg        config.Config
	DB         *gorm.DB
	Log        *zap.Logger
	Node       *snowflake.Node
	Clock      clock.Clock
	Repo       subscriptiondomain.Repository
	Accounts   accountdomain.Repository
	AccountSvc accountdomain.Service
	Platform   fatture.Client
}

type subscriptionService struct {
	db         *gorm.DB
	log        *zap.Logger
	node       *snowflake.Node
	clock      clock.Clock
	repo       subscriptiondomain.Repository
	accounts   accountdomain.Repository
	accountSvc accountdomain.Service
	platform   fatture.Client
	encKey     []byte
}

func New(p Params) subscriptiondomain.Service {
	var key []byte
	if secret := strings.TrimSpace(p.Cfg.Webhook.SecretEncryptionKey); secret != "" {
		sum := sha256.Sum256([]byte(secret))
		key = sum[:]
	}
	return &subscriptionService{
		db:         p.DB,
		log:        p.Log.Named("subscription"),
		node:       p.Node,
		clock:      p.Clock,
		repo:       p.Repo,
		accounts:   p.Accounts,
		accountSvc: p.AccountSvc,
		platform:   p.Platform,
		encKey:     key,
	}
}

// Register creates the subscription on the platform for the given event
// group and stores the returned secret encrypted at rest.
func (s *subscriptionService) Register(ctx context.Context, accountID snowflake.ID, eventGroup, sink string) (*subscriptiondomain.Subscription, error) {
	types, err := subscriptiondomain.EventTypesForGroup(eventGroup)
	if err != nil {
		return nil, err
	}

	account, err := s.accounts.FindByID(ctx, s.db, accountID)
	if err != nil {
		return nil, err
	}
	token, err := s.accountSvc.FreshAccessToken(ctx, account)
	if err != nil {
		return nil, err
	}

	remote, err := s.platform.CreateSubscription(ctx, token, account.ExternalCompanyID, types, sink)
	if err != nil {
		return nil, fmt.Errorf("create remote subscription: %w", err)
	}

	encrypted, err := s.encryptSecret(remote.Secret)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	sub := &subscriptiondomain.Subscription{
		ID:                     s.node.Generate(),
		AccountID:              account.ID,
		ExternalSubscriptionID: remote.ID,
		EventGroup:             eventGroup,
		WebhookSecret:          encrypted,
		ExpiresAt:              remote.ExpiresAt,
		IsActive:               true,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := s.repo.Insert(ctx, s.db, sub); err != nil {
		return nil, err
	}

	s.log.Info("subscription registered",
		zap.Int64("account_id", int64(account.ID)),
		zap.String("event_group", eventGroup),
		zap.String("external_id", remote.ID),
	)
	return sub, nil
}

// Deactivate removes the remote subscription and flips is_active off. A
// remote 404 means it is already gone; the local flag still flips.
func (s *subscriptionService) Deactivate(ctx context.Context, id snowflake.ID) error {
	sub, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return err
	}

	account, err := s.accounts.FindByID(ctx, s.db, sub.AccountID)
	if err == nil {
		if token, terr := s.accountSvc.FreshAccessToken(ctx, account); terr == nil {
			derr := s.platform.DeleteSubscription(ctx, token, account.ExternalCompanyID, sub.ExternalSubscriptionID)
			if derr != nil && derr != fatture.ErrNotFound {
				return fmt.Errorf("delete remote subscription: %w", derr)
			}
		} else {
			s.log.Warn("deactivating without remote delete", zap.Error(terr))
		}
	}

	sub.IsActive = false
	sub.UpdatedAt = s.clock.Now()
	return s.repo.Update(ctx, s.db, sub)
}

func (s *subscriptionService) List(ctx context.Context, accountID snowflake.ID) ([]subscriptiondomain.Subscription, error) {
	return s.repo.ListByAccount(ctx, s.db, accountID)
}

func (s *subscriptionService) ActiveWithSecret(ctx context.Context, accountID snowflake.ID, eventGroup string) (*subscriptiondomain.Subscription, string, error) {
	sub, err := s.repo.FindActive(ctx, s.db, accountID, eventGroup)
	if err != nil {
		return nil, "", err
	}
	secret, err := s.decryptSecret(sub.WebhookSecret)
	if err != nil {
		return nil, "", err
	}
	return sub, secret, nil
}

func (s *subscriptionService) TouchDelivery(ctx context.Context, sub *subscriptiondomain.Subscription) error {
	now := s.clock.Now()
	extended := now.Add(deliveryExtension)
	sub.ExpiresAt = &extended
	sub.UpdatedAt = now
	return s.repo.Update(ctx, s.db, sub)
}
