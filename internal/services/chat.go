package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/platewise/platewise-backend/internal/apperr"
	"github.com/platewise/platewise-backend/internal/clients/cohere"
	"github.com/platewise/platewise-backend/internal/logger"
	"github.com/platewise/platewise-backend/internal/repos"
	"github.com/platewise/platewise-backend/internal/types"
)

// StreamSink is the per-turn push channel the orchestrator writes into. A
// write error means the client is gone and the turn is treated as cancelled.
type StreamSink interface {
	Chunk(text string) error
	Error(msg string) error
	End() error
	Ping() error
}

type ChatService interface {
	// Converse runs one synchronous chat turn: the user message is appended
	// before the provider call, the full reply is appended after it.
	Converse(ctx context.Context, sessionID uuid.UUID, userMessage string, tctx TurnContext) (string, error)

	// ConverseStream runs one streaming chat turn. Validation and the user
	// message append happen before open is called, so pre-stream failures
	// are returned as typed errors; once the sink is open every failure is
	// reported in-band and the method returns nil. The full reply is
	// persisted only when the provider completes and the client is still
	// connected.
	ConverseStream(ctx context.Context, sessionID uuid.UUID, userMessage string, tctx TurnContext, open func() (StreamSink, error)) error
}

type chatService struct {
	db       *gorm.DB
	log      *logger.Logger
	sessions repos.SessionRepo
	messages repos.MessageRepo
	llm      cohere.Client
	recipes  RecipeService

	locks sessionLocks
}

func NewChatService(db *gorm.DB, baseLog *logger.Logger, sessionRepo repos.SessionRepo, messageRepo repos.MessageRepo, llm cohere.Client, recipeService RecipeService) ChatService {
	return &chatService{
		db:       db,
		log:      baseLog.With("service", "ChatService"),
		sessions: sessionRepo,
		messages: messageRepo,
		llm:      llm,
		recipes:  recipeService,
	}
}

// searchTriggers routes a turn through web search first when the user asks
// for fresh or web-backed information.
var searchTriggers = []string{
	"latest", "recent", "news", "study", "research", "trending",
	"new", "202", "google", "web", "online", "search",
}

func needsSearch(message string) bool {
	q := strings.ToLower(message)
	for _, w := range searchTriggers {
		if strings.Contains(q, w) {
			return true
		}
	}
	return false
}

// preparedTurn is the outcome of validating a turn and recording the user
// message: everything needed to invoke the provider.
type preparedTurn struct {
	system   string
	messages []cohere.ChatMessage
}

func (s *chatService) prepareTurn(ctx context.Context, sessionID uuid.UUID, userMessage string, tctx TurnContext) (*preparedTurn, error) {
	exists, err := s.sessions.Exists(ctx, nil, sessionID)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	if !exists {
		return nil, apperr.NotFound("unknown session")
	}

	trimmed := strings.TrimSpace(userMessage)
	if trimmed == "" {
		return nil, apperr.InvalidInput("message is required")
	}

	// The user's utterance is recorded before the provider call so a failed
	// generation still leaves it in history.
	if _, err := s.messages.AppendForSession(ctx, nil, sessionID, types.RoleUser, trimmed); err != nil {
		return nil, apperr.Persistence(err)
	}

	history, err := s.messages.ListForSession(ctx, nil, sessionID)
	if err != nil {
		return nil, apperr.Persistence(err)
	}

	var searchResults []types.RecipeResult
	if s.recipes != nil && needsSearch(trimmed) {
		enriched := trimmed
		if dc := tctx.dietaryContext(); dc != "" {
			enriched = trimmed + " " + dc
		}
		results, err := s.recipes.Search(ctx, enriched, "", "")
		if err != nil {
			s.log.Warn("Search enrichment failed; generating without it", "session_id", sessionID, "error", err)
		} else {
			searchResults = results
		}
	}

	return &preparedTurn{
		system:   buildSystemPrompt(tctx, searchResults),
		messages: promptHistory(history, historyWindow),
	}, nil
}

func (s *chatService) Converse(ctx context.Context, sessionID uuid.UUID, userMessage string, tctx TurnContext) (string, error) {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	turn, err := s.prepareTurn(ctx, sessionID, userMessage, tctx)
	if err != nil {
		return "", err
	}

	reply, err := s.llm.GenerateReply(ctx, turn.system, turn.messages)
	if err != nil {
		return "", apperr.Provider(err)
	}

	if _, err := s.messages.AppendForSession(ctx, nil, sessionID, types.RoleAssistant, reply); err != nil {
		return "", apperr.Persistence(err)
	}
	return reply, nil
}

type streamOutcome struct {
	text string
	err  error
}

func (s *chatService) ConverseStream(ctx context.Context, sessionID uuid.UUID, userMessage string, tctx TurnContext, open func() (StreamSink, error)) error {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	turn, err := s.prepareTurn(ctx, sessionID, userMessage, tctx)
	if err != nil {
		return err
	}

	sink, err := open()
	if err != nil {
		return err
	}

	pctx, cancel := context.WithCancel(ctx)
	defer cancel()

	deltas := make(chan string, 16)
	outcomeCh := make(chan streamOutcome, 1)
	go func() {
		full, err := s.llm.StreamReply(pctx, turn.system, turn.messages, func(d string) {
			select {
			case deltas <- d:
			case <-pctx.Done():
			}
		})
		close(deltas)
		outcomeCh <- streamOutcome{text: full, err: err}
	}()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	clientGone := false
forward:
	for {
		select {
		case <-ctx.Done():
			clientGone = true
			cancel()
			break forward
		case <-heartbeat.C:
			if err := sink.Ping(); err != nil {
				clientGone = true
				cancel()
				break forward
			}
		case d, ok := <-deltas:
			if !ok {
				break forward
			}
			if err := sink.Chunk(d); err != nil {
				clientGone = true
				cancel()
				break forward
			}
		}
	}

	outcome := <-outcomeCh

	if clientGone {
		// Client-initiated cancellation: the partial buffer is discarded,
		// nothing is persisted.
		s.log.Debug("Chat stream cancelled by client", "session_id", sessionID)
		return nil
	}

	if outcome.err != nil {
		s.log.Warn("Chat stream provider failed", "session_id", sessionID, "error", outcome.err)
		if err := sink.Error(outcome.err.Error()); err != nil {
			s.log.Debug("Client gone before error event", "session_id", sessionID)
		}
		return nil
	}

	if _, err := s.messages.AppendForSession(ctx, nil, sessionID, types.RoleAssistant, outcome.text); err != nil {
		s.log.Error("Failed to persist streamed reply", "session_id", sessionID, "error", err)
		_ = sink.Error("failed to save reply")
		return nil
	}

	if err := sink.End(); err != nil {
		s.log.Debug("Client gone before end event", "session_id", sessionID)
	}
	return nil
}

// sessionLocks serializes chat turns per session so concurrent turns cannot
// interleave history. Entries are reference counted and removed when idle.
type sessionLocks struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func (l *sessionLocks) lock(id uuid.UUID) func() {
	l.mu.Lock()
	if l.entries == nil {
		l.entries = make(map[uuid.UUID]*lockEntry)
	}
	e, ok := l.entries[id]
	if !ok {
		e = &lockEntry{}
		l.entries[id] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, id)
		}
		l.mu.Unlock()
	}
}
