package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/invosync/internal/account/domain"
	"github.com/smallbiznis/invosync/internal/clock"
	"github.com/smallbiznis/invosync/internal/fatture"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Node     *snowflake.Node
	Clock    clock.Clock
	Repo     accountdomain.Repository
	Platform fatture.Client
}

type accountService struct {
	db       *gorm.DB
	log      *zap.Logger
	node     *snowflake.Node
	clock    clock.Clock
	repo     accountdomain.Repository
	platform fatture.Client
}

func New(p Params) accountdomain.Service {
	return &accountService{
		db:       p.DB,
		log:      p.Log.Named("account"),
		node:     p.Node,
		clock:    p.Clock,
		repo:     p.Repo,
		platform: p.Platform,
	}
}

// HandleOAuthCallback completes the OAuth flow: exchange the code, list the
// companies the grant covers, pick one and persist the binding. A team that
// already has an account reconnects to the same company or fails hard.
func (s *accountService) HandleOAuthCallback(ctx context.Context, code string, teamID *int64) (*accountdomain.Account, error) {
	tokens, err := s.platform.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}

	remote, err := s.platform.ListCompanies(ctx, tokens.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	companies := make([]accountdomain.Company, 0, len(remote))
	for _, c := range remote {
		companies = append(companies, accountdomain.Company{ID: c.ID, Name: c.Name})
	}

	existing, err := s.existingForTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}

	company, err := accountdomain.SelectCompany(companies, existing)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	expiresAt := tokenExpiry(now, tokens.ExpiresIn)

	if existing != nil {
		if !existing.CanTransition(accountdomain.StatusActive, true) {
			return nil, accountdomain.ErrInvalidTransition
		}
		existing.AccessToken = tokens.AccessToken
		existing.RefreshToken = tokens.RefreshToken
		existing.TokenExpiresAt = expiresAt
		existing.Status = accountdomain.StatusActive
		existing.UpdatedAt = now
		if err := s.repo.Update(ctx, s.db, existing); err != nil {
			return nil, err
		}
		s.log.Info("account reconnected",
			zap.Int64("account_id", int64(existing.ID)),
			zap.Int64("company_id", existing.ExternalCompanyID),
		)
		return existing, nil
	}

	// A company already bound to another team cannot be claimed again.
	if other, err := s.repo.FindByExternalCompanyID(ctx, s.db, company.ID); err == nil && other != nil {
		return nil, &accountdomain.CompanyMismatchError{
			Expected:  company.ID,
			Available: companyIDs(companies),
		}
	} else if err != nil && err != accountdomain.ErrAccountNotFound {
		return nil, err
	}

	account := &accountdomain.Account{
		ID:                s.node.Generate(),
		TeamID:            teamID,
		ExternalCompanyID: company.ID,
		AccessToken:       tokens.AccessToken,
		RefreshToken:      tokens.RefreshToken,
		TokenExpiresAt:    expiresAt,
		Status:            accountdomain.StatusActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.Insert(ctx, s.db, account); err != nil {
		return nil, err
	}

	s.log.Info("account connected",
		zap.Int64("account_id", int64(account.ID)),
		zap.Int64("company_id", account.ExternalCompanyID),
		zap.String("company_name", company.Name),
	)
	return account, nil
}

// FreshAccessToken hands back the stored token while it is valid and
// transparently refreshes it otherwise. A failed refresh parks the account
// in needs_refresh so operators can see it without digging through logs.
func (s *accountService) FreshAccessToken(ctx context.Context, account *accountdomain.Account) (string, error) {
	now := s.clock.Now()
	if account.TokenValid(now) {
		return account.AccessToken, nil
	}
	if account.Status != accountdomain.StatusActive && account.Status != accountdomain.StatusNeedsRefresh {
		return "", fmt.Errorf("%w: account %d is %s", fatture.ErrUnauthorized, account.ID, account.Status)
	}

	tokens, err := s.platform.RefreshToken(ctx, account.RefreshToken)
	if err != nil {
		if account.CanTransition(accountdomain.StatusNeedsRefresh, false) {
			account.Status = accountdomain.StatusNeedsRefresh
			account.UpdatedAt = now
			if uerr := s.repo.Update(ctx, s.db, account); uerr != nil {
				s.log.Warn("mark needs_refresh", zap.Error(uerr))
			}
		}
		return "", fmt.Errorf("refresh token: %w", err)
	}

	account.AccessToken = tokens.AccessToken
	if tokens.RefreshToken != "" {
		account.RefreshToken = tokens.RefreshToken
	}
	account.TokenExpiresAt = tokenExpiry(now, tokens.ExpiresIn)
	account.Status = accountdomain.StatusActive
	account.UpdatedAt = now
	if err := s.repo.Update(ctx, s.db, account); err != nil {
		return "", err
	}
	return account.AccessToken, nil
}

func (s *accountService) Get(ctx context.Context, id snowflake.ID) (*accountdomain.Account, error) {
	return s.repo.FindByID(ctx, s.db, id)
}

func (s *accountService) List(ctx context.Context) ([]accountdomain.Account, error) {
	return s.repo.List(ctx, s.db)
}

func (s *accountService) Disconnect(ctx context.Context, id snowflake.ID) error {
	account, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return err
	}
	if !account.CanTransition(accountdomain.StatusDisconnected, false) {
		return accountdomain.ErrInvalidTransition
	}
	account.Status = accountdomain.StatusDisconnected
	account.WebhookEnabled = false
	account.UpdatedAt = s.clock.Now()
	return s.repo.Update(ctx, s.db, account)
}

func (s *accountService) existingForTeam(ctx context.Context, teamID *int64) (*accountdomain.Account, error) {
	if teamID == nil {
		return nil, nil
	}
	account, err := s.repo.FindByTeamID(ctx, s.db, *teamID)
	if err != nil {
		if err == accountdomain.ErrAccountNotFound {
			return nil, nil
		}
		return nil, err
	}
	return account, nil
}

func tokenExpiry(now time.Time, expiresIn int) *time.Time {
	if expiresIn <= 0 {
		return nil
	}
	at := now.Add(time.Duration(expiresIn) * time.Second)
	return &at
}

func companyIDs(companies []accountdomain.Company) []int64 {
	ids := make([]int64, 0, len(companies))
	for _, c := range companies {
		ids = append(ids, c.ID)
	}
	return ids
}
