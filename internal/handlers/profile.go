package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/platewise/platewise-backend/internal/services"
)

type ProfileHandler struct {
	profileService services.ProfileService
}

func NewProfileHandler(profileService services.ProfileService) *ProfileHandler {
	return &ProfileHandler{profileService: profileService}
}

// GET /api/profile?session_id=...
func (ph *ProfileHandler) Get(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Query("session_id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_input", fmt.Errorf("session_id is required"))
		return
	}

	profile, err := ph.profileService.Get(c.Request.Context(), sessionID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{
		"diet":      profile.Diet,
		"allergens": profile.Allergens,
		"goals":     profile.Goals,
	})
}

type saveProfileReq struct {
	SessionID string `json:"session_id"`
	Diet      string `json:"diet"`
	Allergens string `json:"allergens"`
	Goals     string `json:"goals"`
}

// POST /api/profile
func (ph *ProfileHandler) Save(c *gin.Context) {
	var req saveProfileReq
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_input", err)
		return
	}
	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_input", fmt.Errorf("session_id is required"))
		return
	}

	if _, err := ph.profileService.Save(c.Request.Context(), sessionID, req.Diet, req.Allergens, req.Goals); err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"ok": true})
}
