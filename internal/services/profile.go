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

type ProfileService interface {
	// Get returns the stored profile, or an empty one when nothing has been
	// saved yet.
	Get(ctx context.Context, sessionID uuid.UUID) (*types.HealthProfile, error)
	// Save replaces the whole profile for the session (upsert, full replace).
	Save(ctx context.Context, sessionID uuid.UUID, diet, allergens, goals string) (*types.HealthProfile, error)
}

type profileService struct {
	db       *gorm.DB
	log      *logger.Logger
	sessions repos.SessionRepo
	profiles repos.ProfileRepo
}

func NewProfileService(db *gorm.DB, baseLog *logger.Logger, sessionRepo repos.SessionRepo, profileRepo repos.ProfileRepo) ProfileService {
	return &profileService{
		db:       db,
		log:      baseLog.With("service", "ProfileService"),
		sessions: sessionRepo,
		profiles: profileRepo,
	}
}

func (s *profileService) Get(ctx context.Context, sessionID uuid.UUID) (*types.HealthProfile, error) {
	exists, err := s.sessions.Exists(ctx, nil, sessionID)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	if !exists {
		return nil, apperr.NotFound("unknown session")
	}

	profile, err := s.profiles.GetBySessionID(ctx, nil, sessionID)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	if profile == nil {
		return &types.HealthProfile{SessionID: sessionID}, nil
	}
	return profile, nil
}

func (s *profileService) Save(ctx context.Context, sessionID uuid.UUID, diet, allergens, goals string) (*types.HealthProfile, error) {
	exists, err := s.sessions.Exists(ctx, nil, sessionID)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	if !exists {
		return nil, apperr.NotFound("unknown session")
	}

	profile := &types.HealthProfile{
		SessionID: sessionID,
		Diet:      diet,
		Allergens: allergens,
		Goals:     goals,
	}
	saved, err := s.profiles.Upsert(ctx, nil, profile)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	return saved, nil
}
