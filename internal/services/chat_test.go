package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/platewise/platewise-backend/internal/apperr"
	"github.com/platewise/platewise-backend/internal/clients/cohere"
	"github.com/platewise/platewise-backend/internal/logger"
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

// memStore backs SessionRepo and MessageRepo with maps for service tests.
type memStore struct {
	sessions map[uuid.UUID]*types.ChatSession
	messages map[uuid.UUID][]*types.Message

	appendErr error
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[uuid.UUID]*types.ChatSession),
		messages: make(map[uuid.UUID][]*types.Message),
	}
}

func (m *memStore) Create(ctx context.Context, tx *gorm.DB) (*types.ChatSession, error) {
	s := &types.ChatSession{ID: uuid.New(), CreatedAt: time.Now().UTC()}
	m.sessions[s.ID] = s
	return s, nil
}

func (m *memStore) GetByID(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (*types.ChatSession, error) {
	return m.sessions[sessionID], nil
}

func (m *memStore) Exists(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (bool, error) {
	_, ok := m.sessions[sessionID]
	return ok, nil
}

func (m *memStore) AppendForSession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, role string, content string) (*types.Message, error) {
	if m.appendErr != nil {
		return nil, m.appendErr
	}
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	msg := &types.Message{
		ID:        uuid.New(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Seq:       s.NextSeq,
		CreatedAt: time.Now().UTC(),
	}
	s.NextSeq++
	m.messages[sessionID] = append(m.messages[sessionID], msg)
	return msg, nil
}

func (m *memStore) ListForSession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]*types.Message, error) {
	return m.messages[sessionID], nil
}

type fakeLLM struct {
	reply     string
	deltas    []string
	err       error
	streamErr error

	lastSystem   string
	lastMessages []cohere.ChatMessage
}

func (f *fakeLLM) GenerateReply(ctx context.Context, system string, messages []cohere.ChatMessage) (string, error) {
	f.lastSystem = system
	f.lastMessages = messages
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeLLM) StreamReply(ctx context.Context, system string, messages []cohere.ChatMessage, onDelta func(string)) (string, error) {
	f.lastSystem = system
	f.lastMessages = messages
	var full strings.Builder
	for _, d := range f.deltas {
		if onDelta != nil {
			onDelta(d)
		}
		full.WriteString(d)
	}
	if f.streamErr != nil {
		return "", f.streamErr
	}
	return full.String(), nil
}

// memSink records stream events and can simulate a dropped client.
type memSink struct {
	chunks []string
	errs   []string
	ended  bool
	pings  int

	failChunkAt int // fail the nth Chunk call (1-based), 0 means never
}

func (s *memSink) Chunk(text string) error {
	if s.failChunkAt > 0 && len(s.chunks)+1 >= s.failChunkAt {
		return fmt.Errorf("write: broken pipe")
	}
	s.chunks = append(s.chunks, text)
	return nil
}

func (s *memSink) Error(msg string) error {
	s.errs = append(s.errs, msg)
	return nil
}

func (s *memSink) End() error {
	s.ended = true
	return nil
}

func (s *memSink) Ping() error {
	s.pings++
	return nil
}

func newChatFixture(t *testing.T, llm cohere.Client) (*memStore, ChatService, uuid.UUID) {
	t.Helper()
	store := newMemStore()
	session, _ := store.Create(context.Background(), nil)
	svc := NewChatService(nil, testLogger(t), store, store, llm, nil)
	return store, svc, session.ID
}

func TestConverseAppendsUserAndAssistant(t *testing.T) {
	llm := &fakeLLM{reply: "Try roasting the broccoli."}
	store, svc, sessionID := newChatFixture(t, llm)

	reply, err := svc.Converse(context.Background(), sessionID, "  what to do with broccoli?  ", TurnContext{})
	if err != nil {
		t.Fatalf("Converse: %v", err)
	}
	if reply != "Try roasting the broccoli." {
		t.Fatalf("unexpected reply %q", reply)
	}

	msgs := store.messages[sessionID]
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != types.RoleUser || msgs[0].Content != "what to do with broccoli?" {
		t.Fatalf("unexpected user message %+v", msgs[0])
	}
	if msgs[1].Role != types.RoleAssistant || msgs[1].Content != reply {
		t.Fatalf("unexpected assistant message %+v", msgs[1])
	}
	if msgs[0].Seq != 0 || msgs[1].Seq != 1 {
		t.Fatalf("unexpected seqs %d, %d", msgs[0].Seq, msgs[1].Seq)
	}
}

func TestConverseEmptyMessageRejectedWithoutMutation(t *testing.T) {
	store, svc, sessionID := newChatFixture(t, &fakeLLM{reply: "hi"})

	_, err := svc.Converse(context.Background(), sessionID, "   \n\t ", TurnContext{})
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if len(store.messages[sessionID]) != 0 {
		t.Fatalf("history mutated on rejected turn")
	}
}

func TestConverseUnknownSession(t *testing.T) {
	_, svc, _ := newChatFixture(t, &fakeLLM{reply: "hi"})

	_, err := svc.Converse(context.Background(), uuid.New(), "hello", TurnContext{})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConverseProviderErrorKeepsUserMessage(t *testing.T) {
	llm := &fakeLLM{err: fmt.Errorf("upstream down")}
	store, svc, sessionID := newChatFixture(t, llm)

	_, err := svc.Converse(context.Background(), sessionID, "hello", TurnContext{})
	if !errors.Is(err, apperr.ErrProvider) {
		t.Fatalf("expected ErrProvider, got %v", err)
	}

	msgs := store.messages[sessionID]
	if len(msgs) != 1 || msgs[0].Role != types.RoleUser {
		t.Fatalf("expected only the user message to survive, got %+v", msgs)
	}
}

func TestConverseIncludesProfileInSystemPrompt(t *testing.T) {
	llm := &fakeLLM{reply: "ok"}
	_, svc, sessionID := newChatFixture(t, llm)

	tctx := TurnContext{Diet: "vegan", Allergens: "peanuts", Goals: "high protein"}
	if _, err := svc.Converse(context.Background(), sessionID, "dinner ideas", tctx); err != nil {
		t.Fatalf("Converse: %v", err)
	}

	for _, want := range []string{"vegan", "peanuts", "high protein"} {
		if !strings.Contains(llm.lastSystem, want) {
			t.Fatalf("system prompt missing %q:\n%s", want, llm.lastSystem)
		}
	}
}

func TestConverseStreamPersistsFullReplyOnce(t *testing.T) {
	llm := &fakeLLM{deltas: []string{"Hel", "lo ", "there"}}
	store, svc, sessionID := newChatFixture(t, llm)

	sink := &memSink{}
	err := svc.ConverseStream(context.Background(), sessionID, "hi", TurnContext{}, func() (StreamSink, error) {
		return sink, nil
	})
	if err != nil {
		t.Fatalf("ConverseStream: %v", err)
	}

	if got := strings.Join(sink.chunks, ""); got != "Hello there" {
		t.Fatalf("unexpected streamed text %q", got)
	}
	if !sink.ended {
		t.Fatalf("end event not sent")
	}
	if len(sink.errs) != 0 {
		t.Fatalf("unexpected error events %v", sink.errs)
	}

	msgs := store.messages[sessionID]
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[1].Role != types.RoleAssistant || msgs[1].Content != "Hello there" {
		t.Fatalf("unexpected persisted assistant message %+v", msgs[1])
	}
}

func TestConverseStreamProviderFailureIsInBand(t *testing.T) {
	llm := &fakeLLM{deltas: []string{"par"}, streamErr: fmt.Errorf("stream reset")}
	store, svc, sessionID := newChatFixture(t, llm)

	sink := &memSink{}
	err := svc.ConverseStream(context.Background(), sessionID, "hi", TurnContext{}, func() (StreamSink, error) {
		return sink, nil
	})
	if err != nil {
		t.Fatalf("expected in-band error reporting, got %v", err)
	}

	if len(sink.errs) != 1 {
		t.Fatalf("expected one error event, got %v", sink.errs)
	}
	if sink.ended {
		t.Fatalf("end event sent after provider failure")
	}

	msgs := store.messages[sessionID]
	if len(msgs) != 1 || msgs[0].Role != types.RoleUser {
		t.Fatalf("partial reply must not be persisted, got %+v", msgs)
	}
}

func TestConverseStreamClientGoneDiscardsPartial(t *testing.T) {
	llm := &fakeLLM{deltas: []string{"a", "b", "c"}}
	store, svc, sessionID := newChatFixture(t, llm)

	sink := &memSink{failChunkAt: 2}
	err := svc.ConverseStream(context.Background(), sessionID, "hi", TurnContext{}, func() (StreamSink, error) {
		return sink, nil
	})
	if err != nil {
		t.Fatalf("client disconnect is not an error, got %v", err)
	}

	msgs := store.messages[sessionID]
	if len(msgs) != 1 || msgs[0].Role != types.RoleUser {
		t.Fatalf("nothing should be persisted after disconnect, got %+v", msgs)
	}
	if sink.ended {
		t.Fatalf("end event sent to a gone client")
	}
}

func TestConverseStreamValidationFailsBeforeOpen(t *testing.T) {
	_, svc, sessionID := newChatFixture(t, &fakeLLM{deltas: []string{"x"}})

	opened := false
	err := svc.ConverseStream(context.Background(), sessionID, "   ", TurnContext{}, func() (StreamSink, error) {
		opened = true
		return &memSink{}, nil
	})
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if opened {
		t.Fatalf("sink opened for an invalid turn")
	}
}

func TestNeedsSearch(t *testing.T) {
	cases := []struct {
		message string
		want    bool
	}{
		{"what's the latest on seed oils?", true},
		{"any recent studies about fiber?", true},
		{"search the web for keto desserts", true},
		{"best pasta in 2025", true},
		{"how do I poach an egg", false},
		{"make this spicier", false},
	}
	for _, tc := range cases {
		if got := needsSearch(tc.message); got != tc.want {
			t.Errorf("needsSearch(%q) = %v, want %v", tc.message, got, tc.want)
		}
	}
}

// recordingRecipes captures the query the orchestrator sends for enrichment.
type recordingRecipes struct {
	query   string
	results []types.RecipeResult
}

func (r *recordingRecipes) Search(ctx context.Context, query, diet, ingredients string) ([]types.RecipeResult, error) {
	r.query = query
	return r.results, nil
}

func TestSearchEnrichmentCarriesDietaryContext(t *testing.T) {
	store := newMemStore()
	session, _ := store.Create(context.Background(), nil)

	llm := &fakeLLM{reply: "ok"}
	recipes := &recordingRecipes{results: []types.RecipeResult{
		{Title: "Lentil bowl", Summary: "High fiber", SourceURL: "https://example.com/lentil"},
	}}
	svc := NewChatService(nil, testLogger(t), store, store, llm, recipes)

	tctx := TurnContext{Diet: "vegetarian", Goals: "more iron"}
	if _, err := svc.Converse(context.Background(), session.ID, "latest iron-rich dinner ideas", tctx); err != nil {
		t.Fatalf("Converse: %v", err)
	}

	if !strings.Contains(recipes.query, "latest iron-rich dinner ideas") {
		t.Fatalf("search query missing the user message: %q", recipes.query)
	}
	if !strings.Contains(recipes.query, "vegetarian") || !strings.Contains(recipes.query, "more iron") {
		t.Fatalf("search query missing dietary context: %q", recipes.query)
	}
	if !strings.Contains(llm.lastSystem, "Lentil bowl") {
		t.Fatalf("system prompt missing search findings:\n%s", llm.lastSystem)
	}
}

func TestSessionLocksSerializeTurns(t *testing.T) {
	var locks sessionLocks
	id := uuid.New()

	unlock := locks.lock(id)
	acquired := make(chan struct{})
	go func() {
		u := locks.lock(id)
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatalf("second lock acquired while first held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatalf("second lock never acquired after release")
	}
}
