package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	subscriptiondomain "github.com/smallbiznis/invosync/internal/subscription/domain"
)

type createSubscriptionRequest struct {
	EventGroup string `json:"event_group" binding:"required"`
	Sink       string `json:"sink" binding:"required"`
}

type subscriptionResponse struct {
	ID                     string     `json:"id"`
	AccountID              string     `json:"account_id"`
	ExternalSubscriptionID string     `json:"external_subscription_id"`
	EventGroup             string     `json:"event_group"`
	ExpiresAt              *time.Time `json:"expires_at"`
	IsActive               bool       `json:"is_active"`
	CreatedAt              time.Time  `json:"created_at"`
}

// newSubscriptionResponse deliberately omits the webhook secret.
func newSubscriptionResponse(sub *subscriptiondomain.Subscription) subscriptionResponse {
	return subscriptionResponse{
		ID:                     sub.ID.String(),
		AccountID:              sub.AccountID.String(),
		ExternalSubscriptionID: sub.ExternalSubscriptionID,
		EventGroup:             sub.EventGroup,
		ExpiresAt:              sub.ExpiresAt,
		IsActive:               sub.IsActive,
		CreatedAt:              sub.CreatedAt,
	}
}

func (s *Server) ListSubscriptions(c *gin.Context) {
	accountID, ok := s.pathID(c, "id")
	if !ok {
		return
	}

	subs, err := s.subSvc.List(c.Request.Context(), accountID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	out := make([]subscriptionResponse, 0, len(subs))
	for i := range subs {
		out = append(out, newSubscriptionResponse(&subs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": out})
}

func (s *Server) CreateSubscription(c *gin.Context) {
	accountID, ok := s.pathID(c, "id")
	if !ok {
		return
	}

	var req createSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	sub, err := s.subSvc.Register(c.Request.Context(), accountID, req.EventGroup, req.Sink)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"subscription": newSubscriptionResponse(sub)})
}

func (s *Server) DeactivateSubscription(c *gin.Context) {
	id, ok := s.pathID(c, "id")
	if !ok {
		return
	}

	if err := s.subSvc.Deactivate(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
