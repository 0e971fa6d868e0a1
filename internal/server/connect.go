package server

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/smallbiznis/invosync/internal/account/domain"
)

// ConnectRedirect sends the browser to the platform's consent screen.
// GET /connect?team_id=...
func (s *Server) ConnectRedirect(c *gin.Context) {
	query := url.Values{
		"response_type": {"code"},
		"client_id":     {s.cfg.Fatture.OAuthClientID},
		"redirect_uri":  {s.cfg.Fatture.OAuthRedirectURI},
	}
	if teamID := c.Query("team_id"); teamID != "" {
		query.Set("state", teamID)
	}
	c.Redirect(http.StatusFound, s.cfg.Fatture.AuthURL+"?"+query.Encode())
}

// ConnectCallback completes the OAuth flow: code exchange, company
// selection and account persistence. GET /connect/callback?code=...&state=<team_id>
func (s *Server) ConnectCallback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var teamID *int64
	if state := c.Query("state"); state != "" {
		parsed, err := strconv.ParseInt(state, 10, 64)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		teamID = &parsed
	}

	account, err := s.accountSvc.HandleOAuthCallback(c.Request.Context(), code, teamID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"account": accountResponse(account),
	})
}

func accountResponse(account *accountdomain.Account) gin.H {
	return gin.H{
		"id":                  account.ID.String(),
		"team_id":             account.TeamID,
		"external_company_id": account.ExternalCompanyID,
		"status":              account.Status,
		"webhook_enabled":     account.WebhookEnabled,
		"token_expires_at":    account.TokenExpiresAt,
		"created_at":          account.CreatedAt,
		"updated_at":          account.UpdatedAt,
	}
}
