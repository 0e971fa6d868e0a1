package server

import (
	"errors"
	"io"
	"net/http"
	"regexp"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	obsmetrics "github.com/smallbiznis/invosync/internal/observability/metrics"
	subscriptiondomain "github.com/smallbiznis/invosync/internal/subscription/domain"
	webhookdomain "github.com/smallbiznis/invosync/internal/webhook/domain"
	"go.uber.org/zap"
)

// ChallengeField names the header and query parameter carrying the
// handshake challenge.
const ChallengeField = "x-fic-verification-challenge"

var eventGroupPattern = regexp.MustCompile(`^[a-z_]+$`)

// WebhookRateLimit admits at most the configured rate per source IP before
// any other processing. Applies to both handshake and notification.
func (s *Server) WebhookRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, err := s.limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			s.log.Error("rate limiter unavailable", zap.Error(err))
			// Fail open: dropping valid notifications loses data, the
			// sender will not retry after repeated failures.
			c.Next()
			return
		}
		if !allowed {
			obsmetrics.Webhook().IncRateLimited()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			return
		}
		c.Next()
	}
}

// WebhookHandshake echoes the verification challenge for an active
// subscription. GET /webhooks/:account_id/:event_group
func (s *Server) WebhookHandshake(c *gin.Context) {
	accountID, eventGroup, ok := s.webhookParams(c)
	if !ok {
		return
	}

	challenge := c.GetHeader(ChallengeField)
	if challenge == "" {
		challenge = c.Query(ChallengeField)
	}

	echoed, err := s.webhookSvc.Handshake(c.Request.Context(), accountID, eventGroup, challenge)
	if err != nil {
		obsmetrics.Webhook().IncDelivery(http.MethodGet, "rejected")
		s.writeWebhookError(c, err)
		return
	}

	obsmetrics.Webhook().IncDelivery(http.MethodGet, "verified")
	c.JSON(http.StatusOK, gin.H{"verification": echoed})
}

// WebhookNotification accepts one event notification and enqueues it.
// POST /webhooks/:account_id/:event_group
func (s *Server) WebhookNotification(c *gin.Context) {
	accountID, eventGroup, ok := s.webhookParams(c)
	if !ok {
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		obsmetrics.Webhook().IncDelivery(http.MethodPost, "rejected")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed notification payload"})
		return
	}

	job, err := s.webhookSvc.Accept(c.Request.Context(), accountID, eventGroup, c.Request.Header, body)
	if err != nil {
		obsmetrics.Webhook().IncDelivery(http.MethodPost, "rejected")
		s.writeWebhookError(c, err)
		return
	}

	obsmetrics.Webhook().IncDelivery(http.MethodPost, "accepted")
	s.log.Info("webhook accepted",
		zap.Int64("account_id", int64(accountID)),
		zap.String("event_group", eventGroup),
		zap.String("job_id", job.ID),
	)
	c.JSON(http.StatusAccepted, gin.H{
		"status":  "accepted",
		"message": "Webhook queued for processing",
	})
}

func (s *Server) webhookParams(c *gin.Context) (snowflake.ID, string, bool) {
	rawID := c.Param("account_id")
	eventGroup := c.Param("event_group")

	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || !eventGroupPattern.MatchString(eventGroup) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Subscription not found or inactive"})
		return 0, "", false
	}
	return snowflake.ID(id), eventGroup, true
}

// writeWebhookError maps protocol errors onto the exact wire responses the
// sender expects. These bodies are a compatibility contract, so they are
// written here directly instead of going through the generic API error
// middleware.
func (s *Server) writeWebhookError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Subscription not found or inactive"})
	case errors.Is(err, webhookdomain.ErrMissingChallenge):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing verification challenge"})
	case errors.Is(err, webhookdomain.ErrMissingSignature):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing signature header"})
	case errors.Is(err, webhookdomain.ErrInvalidSignature):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
	case errors.Is(err, webhookdomain.ErrMissingAuth):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing Authorization header"})
	case errors.Is(err, webhookdomain.ErrInvalidToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
	case errors.Is(err, webhookdomain.ErrEmptyResourceIDs):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Empty IDs array in payload"})
	case errors.Is(err, webhookdomain.ErrUnknownEventType):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown event type"})
	case errors.Is(err, webhookdomain.ErrMalformedPayload):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed notification payload"})
	default:
		s.log.Error("webhook processing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
