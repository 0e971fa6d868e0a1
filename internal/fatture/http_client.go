package fatture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smallbiznis/invosync/internal/config"
	resourcedomain "github.com/smallbiznis/invosync/internal/resource/domain"
)

type httpClient struct {
	baseURL      string
	clientID     string
	clientSecret string
	redirectURI  string
	http         *http.Client
}

// NewHTTPClient builds the real platform client from configuration.
func NewHTTPClient(cfg config.Config) Client {
	return &httpClient{
		baseURL:      strings.TrimRight(cfg.Fatture.BaseURL, "/"),
		clientID:     cfg.Fatture.OAuthClientID,
		clientSecret: cfg.Fatture.OAuthClientSec,
		redirectURI:  cfg.Fatture.OAuthRedirectURI,
		http:         &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *httpClient) ExchangeCode(ctx context.Context, code string) (*TokenSet, error) {
	return c.tokenRequest(ctx, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {c.redirectURI},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	})
}

func (c *httpClient) RefreshToken(ctx context.Context, refreshToken string) (*TokenSet, error) {
	return c.tokenRequest(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	})
}

func (c *httpClient) tokenRequest(ctx context.Context, form url.Values) (*TokenSet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := c.do(req, &payload); err != nil {
		return nil, err
	}
	if payload.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", ErrRemote)
	}
	return &TokenSet{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		ExpiresIn:    payload.ExpiresIn,
	}, nil
}

func (c *httpClient) ListCompanies(ctx context.Context, accessToken string) ([]Company, error) {
	req, err := c.newJSONRequest(ctx, http.MethodGet, "/user/companies", accessToken, nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Data struct {
			Companies []struct {
				ID   int64  `json:"id"`
				Name string `json:"name"`
			} `json:"companies"`
		} `json:"data"`
	}
	if err := c.do(req, &payload); err != nil {
		return nil, err
	}

	companies := make([]Company, 0, len(payload.Data.Companies))
	for _, entry := range payload.Data.Companies {
		companies = append(companies, Company{ID: entry.ID, Name: entry.Name})
	}
	return companies, nil
}

func (c *httpClient) CreateSubscription(ctx context.Context, accessToken string, companyID int64, types []string, sink string) (*RemoteSubscription, error) {
	body := map[string]any{
		"data": map[string]any{
			"sink":  sink,
			"types": types,
		},
	}
	req, err := c.newJSONRequest(ctx, http.MethodPost, fmt.Sprintf("/c/%d/subscriptions", companyID), accessToken, body)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Data struct {
			ID        string   `json:"id"`
			Secret    string   `json:"secret"`
			Types     []string `json:"types"`
			ExpiresAt *string  `json:"expires_at"`
		} `json:"data"`
	}
	if err := c.do(req, &payload); err != nil {
		return nil, err
	}

	sub := &RemoteSubscription{
		ID:     payload.Data.ID,
		Secret: payload.Data.Secret,
		Types:  payload.Data.Types,
	}
	if payload.Data.ExpiresAt != nil {
		if parsed, err := time.Parse(time.RFC3339, *payload.Data.ExpiresAt); err == nil {
			sub.ExpiresAt = &parsed
		}
	}
	return sub, nil
}

func (c *httpClient) DeleteSubscription(ctx context.Context, accessToken string, companyID int64, subscriptionID string) error {
	req, err := c.newJSONRequest(ctx, http.MethodDelete, fmt.Sprintf("/c/%d/subscriptions/%s", companyID, url.PathEscape(subscriptionID)), accessToken, nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

func (c *httpClient) FetchResource(ctx context.Context, accessToken string, companyID int64, typ resourcedomain.Type, id int64) (*Resource, error) {
	path, err := resourcePath(companyID, typ, id)
	if err != nil {
		return nil, err
	}
	req, err := c.newJSONRequest(ctx, http.MethodGet, path, accessToken, nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Data json.RawMessage `json:"data"`
	}
	if err := c.do(req, &payload); err != nil {
		return nil, err
	}
	return parseResource(payload.Data)
}

func resourcePath(companyID int64, typ resourcedomain.Type, id int64) (string, error) {
	switch typ {
	case resourcedomain.TypeClient:
		return fmt.Sprintf("/c/%d/entities/clients/%d", companyID, id), nil
	case resourcedomain.TypeSupplier:
		return fmt.Sprintf("/c/%d/entities/suppliers/%d", companyID, id), nil
	case resourcedomain.TypeInvoice, resourcedomain.TypeQuote:
		return fmt.Sprintf("/c/%d/issued_documents/%d", companyID, id), nil
	default:
		return "", fmt.Errorf("unknown resource type %q", typ)
	}
}

func parseResource(data json.RawMessage) (*Resource, error) {
	var fields struct {
		ID        int64   `json:"id"`
		Name      string  `json:"name"`
		Code      string  `json:"code"`
		VatNumber string  `json:"vat_number"`
		Number    string  `json:"number"`
		Status    string  `json:"status"`
		Total     float64 `json:"amount_gross"`
		Date      string  `json:"date"`
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemote, err)
	}

	resource := &Resource{
		ID:        fields.ID,
		Name:      fields.Name,
		Code:      fields.Code,
		VatNumber: fields.VatNumber,
		Number:    fields.Number,
		Status:    fields.Status,
		Total:     fields.Total,
		Raw:       data,
	}
	if fields.Date != "" {
		if parsed, err := time.Parse("2006-01-02", fields.Date); err == nil {
			resource.Date = &parsed
		}
	}
	return resource, nil
}

func (c *httpClient) newJSONRequest(ctx context.Context, method, path, accessToken string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *httpClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRemote, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: status %d", ErrRemote, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRemote, err)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: %v", ErrRemote, err)
	}
	return nil
}
