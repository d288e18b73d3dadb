package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/platewise/platewise-backend/internal/logger"
	"github.com/platewise/platewise-backend/internal/services"
	"github.com/platewise/platewise-backend/internal/sse"
)

type ChatHandler struct {
	log            *logger.Logger
	chatService    services.ChatService
	sessionService services.SessionService
}

func NewChatHandler(log *logger.Logger, chatService services.ChatService, sessionService services.SessionService) *ChatHandler {
	return &ChatHandler{
		log:            log.With("handler", "ChatHandler"),
		chatService:    chatService,
		sessionService: sessionService,
	}
}

// GET /api/chat/history?session_id=...
func (ch *ChatHandler) History(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Query("session_id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_input", fmt.Errorf("session_id is required"))
		return
	}

	messages, err := ch.sessionService.GetHistory(c.Request.Context(), sessionID)
	if err != nil {
		RespondAppError(c, err)
		return
	}

	out := make([]gin.H, 0, len(messages))
	for _, m := range messages {
		out = append(out, gin.H{
			"role":       m.Role,
			"content":    m.Content,
			"created_at": m.CreatedAt,
		})
	}
	RespondOK(c, out)
}

type chatReq struct {
	SessionID string               `json:"session_id"`
	Message   string               `json:"message"`
	Context   services.TurnContext `json:"context"`
}

// POST /api/chat
func (ch *ChatHandler) Chat(c *gin.Context) {
	var req chatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_input", err)
		return
	}
	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_input", fmt.Errorf("session_id is required"))
		return
	}

	reply, err := ch.chatService.Converse(c.Request.Context(), sessionID, req.Message, req.Context)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"reply": reply})
}

// GET /api/chat/stream?session_id=...&message=...&context=<json>
//
// The stream is opened with GET because EventSource cannot POST. Validation
// failures are reported as plain JSON before any event is written; after the
// first event, failures are in-band on the stream.
func (ch *ChatHandler) Stream(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Query("session_id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_input", fmt.Errorf("session_id is required"))
		return
	}
	message := c.Query("message")

	// The context bag is advisory: a malformed value is ignored, not rejected.
	var tctx services.TurnContext
	if raw := strings.TrimSpace(c.Query("context")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &tctx); err != nil {
			tctx = services.TurnContext{}
		}
	}

	err = ch.chatService.ConverseStream(c.Request.Context(), sessionID, message, tctx, func() (services.StreamSink, error) {
		return sse.NewStream(c.Writer)
	})
	if err != nil {
		RespondAppError(c, err)
		return
	}
}
