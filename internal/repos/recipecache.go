package repos

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/platewise/platewise-backend/internal/logger"
	"github.com/platewise/platewise-backend/internal/types"
)

type RecipeCacheRepo interface {
	GetFresh(ctx context.Context, tx *gorm.DB, queryKey string, ttl time.Duration) ([]types.RecipeResult, bool, error)
	Put(ctx context.Context, tx *gorm.DB, queryKey string, results []types.RecipeResult) error
}

type recipeCacheRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRecipeCacheRepo(db *gorm.DB, baseLog *logger.Logger) RecipeCacheRepo {
	repoLog := baseLog.With("repo", "RecipeCacheRepo")
	return &recipeCacheRepo{db: db, log: repoLog}
}

func (rr *recipeCacheRepo) GetFresh(ctx context.Context, tx *gorm.DB, queryKey string, ttl time.Duration) ([]types.RecipeResult, bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = rr.db
	}

	cutoff := time.Now().UTC().Add(-ttl)

	var entry types.RecipeCacheEntry
	err := transaction.WithContext(ctx).
		Where("query_key = ? AND created_at > ?", queryKey, cutoff).
		Order("created_at DESC").
		First(&entry).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}

	var results []types.RecipeResult
	if err := json.Unmarshal(entry.Results, &results); err != nil {
		rr.log.Warn("Discarding unreadable recipe cache entry", "query_key", queryKey, "error", err)
		return nil, false, nil
	}
	return results, true, nil
}

func (rr *recipeCacheRepo) Put(ctx context.Context, tx *gorm.DB, queryKey string, results []types.RecipeResult) error {
	transaction := tx
	if transaction == nil {
		transaction = rr.db
	}

	raw, err := json.Marshal(results)
	if err != nil {
		return err
	}

	return transaction.WithContext(ctx).Transaction(func(inner *gorm.DB) error {
		if err := inner.
			Where("query_key = ?", queryKey).
			Delete(&types.RecipeCacheEntry{}).Error; err != nil {
			return err
		}
		entry := &types.RecipeCacheEntry{
			QueryKey:  queryKey,
			Results:   datatypes.JSON(raw),
			CreatedAt: time.Now().UTC(),
		}
		return inner.Create(entry).Error
	})
}
