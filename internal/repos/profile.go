package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/platewise/platewise-backend/internal/logger"
	"github.com/platewise/platewise-backend/internal/types"
)

type ProfileRepo interface {
	GetBySessionID(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (*types.HealthProfile, error)
	// Upsert replaces the whole profile row for a session. Saving empty
	// fields clears them; there is no merge.
	Upsert(ctx context.Context, tx *gorm.DB, profile *types.HealthProfile) (*types.HealthProfile, error)
}

type profileRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProfileRepo(db *gorm.DB, baseLog *logger.Logger) ProfileRepo {
	repoLog := baseLog.With("repo", "ProfileRepo")
	return &profileRepo{db: db, log: repoLog}
}

func (pr *profileRepo) GetBySessionID(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (*types.HealthProfile, error) {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}

	var result types.HealthProfile
	if err := transaction.WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (pr *profileRepo) Upsert(ctx context.Context, tx *gorm.DB, profile *types.HealthProfile) (*types.HealthProfile, error) {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}

	now := time.Now().UTC()
	if profile.ID == uuid.Nil {
		profile.ID = uuid.New()
	}
	profile.CreatedAt = now
	profile.UpdatedAt = now

	if err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "session_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"diet":       profile.Diet,
				"allergens":  profile.Allergens,
				"goals":      profile.Goals,
				"updated_at": now,
			}),
		}).
		Create(profile).Error; err != nil {
		return nil, err
	}
	return profile, nil
}
