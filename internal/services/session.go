package services

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/platewise/platewise-backend/internal/apperr"
	"github.com/platewise/platewise-backend/internal/logger"
	"github.com/platewise/platewise-backend/internal/repos"
	"github.com/platewise/platewise-backend/internal/types"
)

type SessionService interface {
	Create(ctx context.Context) (*types.ChatSession, error)
	GetHistory(ctx context.Context, sessionID uuid.UUID) ([]*types.Message, error)
}

type sessionService struct {
	db       *gorm.DB
	log      *logger.Logger
	sessions repos.SessionRepo
	messages repos.MessageRepo
}

func NewSessionService(db *gorm.DB, baseLog *logger.Logger, sessionRepo repos.SessionRepo, messageRepo repos.MessageRepo) SessionService {
	return &sessionService{
		db:       db,
		log:      baseLog.With("service", "SessionService"),
		sessions: sessionRepo,
		messages: messageRepo,
	}
}

func (s *sessionService) Create(ctx context.Context) (*types.ChatSession, error) {
	session, err := s.sessions.Create(ctx, nil)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	s.log.Debug("Session created", "session_id", session.ID)
	return session, nil
}

func (s *sessionService) GetHistory(ctx context.Context, sessionID uuid.UUID) ([]*types.Message, error) {
	exists, err := s.sessions.Exists(ctx, nil, sessionID)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	if !exists {
		return nil, apperr.NotFound("unknown session")
	}

	messages, err := s.messages.ListForSession(ctx, nil, sessionID)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	return messages, nil
}
