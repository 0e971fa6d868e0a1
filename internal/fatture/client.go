// Package fatture talks to the third-party invoicing platform. The rest of
// the codebase treats it as a black box that exchanges OAuth codes, manages
// webhook subscriptions and returns typed resource data given an ID and a
// bearer token.
package fatture

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	resourcedomain "github.com/smallbiznis/invosync/internal/resource/domain"
)

var (
	ErrNotFound     = errors.New("fatture: resource not found")
	ErrUnauthorized = errors.New("fatture: unauthorized")
	ErrRemote       = errors.New("fatture: remote error")
)

// TokenSet is the result of an OAuth code exchange or refresh.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int // seconds
}

// Company is one company visible to an authorized account.
type Company struct {
	ID   int64
	Name string
}

// RemoteSubscription is the platform-side webhook subscription record.
type RemoteSubscription struct {
	ID        string
	Secret    string
	Types     []string
	ExpiresAt *time.Time
}

// Resource is the normalized view of a fetched remote resource. Fields not
// applicable to a type are zero; Raw always carries the original payload.
type Resource struct {
	ID        int64
	Name      string
	Code      string
	VatNumber string
	Number    string
	Status    string
	Total     float64
	Date      *time.Time
	Raw       json.RawMessage
}

// Client is the platform API surface consumed by this service.
type Client interface {
	ExchangeCode(ctx context.Context, code string) (*TokenSet, error)
	RefreshToken(ctx context.Context, refreshToken string) (*TokenSet, error)
	ListCompanies(ctx context.Context, accessToken string) ([]Company, error)
	CreateSubscription(ctx context.Context, accessToken string, companyID int64, types []string, sink string) (*RemoteSubscription, error)
	DeleteSubscription(ctx context.Context, accessToken string, companyID int64, subscriptionID string) error
	FetchResource(ctx context.Context, accessToken string, companyID int64, typ resourcedomain.Type, id int64) (*Resource, error)
}
