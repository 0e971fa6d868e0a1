package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// HandleOAuthCallback exchanges the authorization code, resolves the
	// company to bind (see SelectCompany) and creates or reconnects the
	// account for the given team.
	HandleOAuthCallback(ctx context.Context, code string, teamID *int64) (*Account, error)

	// FreshAccessToken returns a usable bearer token for the account,
	// refreshing it first when expired.
	FreshAccessToken(ctx context.Context, account *Account) (string, error)

	Get(ctx context.Context, id snowflake.ID) (*Account, error)
	List(ctx context.Context) ([]Account, error)
	Disconnect(ctx context.Context, id snowflake.ID) error
}
