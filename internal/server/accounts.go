package server

import (
	"net/http"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

func (s *Server) ListAccounts(c *gin.Context) {
	accounts, err := s.accountSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	out := make([]gin.H, 0, len(accounts))
	for i := range accounts {
		out = append(out, accountResponse(&accounts[i]))
	}
	c.JSON(http.StatusOK, gin.H{"accounts": out})
}

func (s *Server) GetAccountByID(c *gin.Context) {
	id, ok := s.pathID(c, "id")
	if !ok {
		return
	}

	account, err := s.accountSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": accountResponse(account)})
}

func (s *Server) DisconnectAccount(c *gin.Context) {
	id, ok := s.pathID(c, "id")
	if !ok {
		return
	}

	if err := s.accountSvc.Disconnect(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) ListAccountEvents(c *gin.Context) {
	id, ok := s.pathID(c, "id")
	if !ok {
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	events, err := s.eventRepo.ListByAccount(c.Request.Context(), s.db, id, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (s *Server) pathID(c *gin.Context, name string) (snowflake.ID, bool) {
	raw := c.Param(name)
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return 0, false
	}
	return snowflake.ID(parsed), true
}
