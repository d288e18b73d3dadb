package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/platewise/platewise-backend/internal/apperr"
	"github.com/platewise/platewise-backend/internal/logger"
	"github.com/platewise/platewise-backend/internal/services"
	"github.com/platewise/platewise-backend/internal/types"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

type fakeChatService struct {
	reply string
	err   error

	gotMessage string
	gotContext services.TurnContext

	streamChunks []string
	streamErr    error
}

func (f *fakeChatService) Converse(ctx context.Context, sessionID uuid.UUID, userMessage string, tctx services.TurnContext) (string, error) {
	f.gotMessage = userMessage
	f.gotContext = tctx
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeChatService) ConverseStream(ctx context.Context, sessionID uuid.UUID, userMessage string, tctx services.TurnContext, open func() (services.StreamSink, error)) error {
	f.gotMessage = userMessage
	f.gotContext = tctx
	if f.streamErr != nil {
		return f.streamErr
	}
	sink, err := open()
	if err != nil {
		return err
	}
	for _, c := range f.streamChunks {
		if err := sink.Chunk(c); err != nil {
			return nil
		}
	}
	return sink.End()
}

type fakeSessionService struct {
	session *types.ChatSession
	history []*types.Message
	err     error
}

func (f *fakeSessionService) Create(ctx context.Context) (*types.ChatSession, error) {
	return f.session, f.err
}

func (f *fakeSessionService) GetHistory(ctx context.Context, sessionID uuid.UUID) ([]*types.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.history, nil
}

func newChatRouter(t *testing.T, chat *fakeChatService, session *fakeSessionService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := NewChatHandler(testLogger(t), chat, session)
	r := gin.New()
	r.GET("/api/chat/history", h.History)
	r.POST("/api/chat", h.Chat)
	r.GET("/api/chat/stream", h.Stream)
	return r
}

func TestHistoryEndpoint(t *testing.T) {
	now := time.Now().UTC()
	session := &fakeSessionService{history: []*types.Message{
		{Role: types.RoleUser, Content: "hi", CreatedAt: now},
		{Role: types.RoleAssistant, Content: "hello", CreatedAt: now},
	}}
	r := newChatRouter(t, &fakeChatService{}, session)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/chat/history?session_id="+uuid.NewString(), nil)
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var rows []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 2 || rows[0]["role"] != "user" || rows[1]["content"] != "hello" {
		t.Fatalf("unexpected rows %+v", rows)
	}
}

func TestHistoryRequiresSessionID(t *testing.T) {
	r := newChatRouter(t, &fakeChatService{}, &fakeSessionService{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/api/chat/history", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestChatEndpoint(t *testing.T) {
	chat := &fakeChatService{reply: "use less salt"}
	r := newChatRouter(t, chat, &fakeSessionService{})

	body := `{"session_id":"` + uuid.NewString() + `","message":"too salty","context":{"diet":"vegan"}}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var out map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	if out["reply"] != "use less salt" {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
	if chat.gotContext.Diet != "vegan" {
		t.Fatalf("turn context lost: %+v", chat.gotContext)
	}
}

func TestChatErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{apperr.InvalidInput("message is required"), http.StatusBadRequest},
		{apperr.NotFound("unknown session"), http.StatusNotFound},
		{apperr.Provider(context.DeadlineExceeded), http.StatusBadGateway},
		{apperr.Persistence(context.Canceled), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		r := newChatRouter(t, &fakeChatService{err: tc.err}, &fakeSessionService{})
		body := `{"session_id":"` + uuid.NewString() + `","message":"hi"}`
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/api/chat", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(rec, req)

		if rec.Code != tc.want {
			t.Errorf("err %v: status = %d, want %d", tc.err, rec.Code, tc.want)
		}
		var envelope ErrorEnvelope
		if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil || envelope.Error.Message == "" {
			t.Errorf("err %v: body not an error envelope: %s", tc.err, rec.Body.String())
		}
	}
}

func TestStreamEndpoint(t *testing.T) {
	chat := &fakeChatService{streamChunks: []string{"Hel", "lo"}}
	r := newChatRouter(t, chat, &fakeSessionService{})

	q := url.Values{
		"session_id": {uuid.NewString()},
		"message":    {"hi"},
		"context":    {`{"diet":"keto"}`},
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/api/chat/stream?"+q.Encode(), nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("Content-Type = %q", got)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "event: chunk\ndata: Hel\n\n") {
		t.Fatalf("first chunk missing:\n%s", body)
	}
	if !strings.Contains(body, "event: end\ndata: done\n\n") {
		t.Fatalf("end event missing:\n%s", body)
	}
	if chat.gotContext.Diet != "keto" {
		t.Fatalf("context not decoded: %+v", chat.gotContext)
	}
}

func TestStreamMalformedContextIgnored(t *testing.T) {
	chat := &fakeChatService{streamChunks: []string{"x"}}
	r := newChatRouter(t, chat, &fakeSessionService{})

	q := url.Values{
		"session_id": {uuid.NewString()},
		"message":    {"hi"},
		"context":    {"{not json"},
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/api/chat/stream?"+q.Encode(), nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if chat.gotContext != (services.TurnContext{}) {
		t.Fatalf("malformed context should decode to empty, got %+v", chat.gotContext)
	}
}

func TestStreamPreStreamErrorIsJSON(t *testing.T) {
	chat := &fakeChatService{streamErr: apperr.NotFound("unknown session")}
	r := newChatRouter(t, chat, &fakeSessionService{})

	q := url.Values{"session_id": {uuid.NewString()}, "message": {"hi"}}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/api/chat/stream?"+q.Encode(), nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("pre-stream failure should be JSON, got %q", ct)
	}
}
