package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/platewise/platewise-backend/internal/services"
)

type SessionHandler struct {
	sessionService services.SessionService
}

func NewSessionHandler(sessionService services.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

// POST /api/sessions
func (sh *SessionHandler) Create(c *gin.Context) {
	session, err := sh.sessionService.Create(c.Request.Context())
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"session_id": session.ID})
}
