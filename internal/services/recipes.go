package services

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/platewise/platewise-backend/internal/clients/tavily"
	"github.com/platewise/platewise-backend/internal/logger"
	"github.com/platewise/platewise-backend/internal/repos"
	"github.com/platewise/platewise-backend/internal/types"
)

const (
	maxSearchResults = 8
	maxSummaryLen    = 300
)

// RecipeCache is the short-lived result cache in front of the search
// provider. Redis backs it when configured; otherwise the DB table does.
type RecipeCache interface {
	Get(ctx context.Context, queryKey string) ([]types.RecipeResult, bool, error)
	Put(ctx context.Context, queryKey string, results []types.RecipeResult) error
}

type RecipeService interface {
	// Search composes the provider query from the free-text query plus
	// optional diet and ingredient filters. Provider failures and a missing
	// provider degrade to an empty result set rather than an error.
	Search(ctx context.Context, query, diet, ingredients string) ([]types.RecipeResult, error)
}

type recipeService struct {
	log    *logger.Logger
	search tavily.Client
	cache  RecipeCache
	group  singleflight.Group
}

func NewRecipeService(baseLog *logger.Logger, search tavily.Client, cache RecipeCache) RecipeService {
	return &recipeService{
		log:    baseLog.With("service", "RecipeService"),
		search: search,
		cache:  cache,
	}
}

// dbRecipeCache adapts the gorm-backed cache table to the RecipeCache
// interface, judging freshness against a fixed TTL at read time.
type dbRecipeCache struct {
	repo repos.RecipeCacheRepo
	ttl  time.Duration
}

func NewDBRecipeCache(repo repos.RecipeCacheRepo, ttl time.Duration) RecipeCache {
	return &dbRecipeCache{repo: repo, ttl: ttl}
}

func (c *dbRecipeCache) Get(ctx context.Context, queryKey string) ([]types.RecipeResult, bool, error) {
	return c.repo.GetFresh(ctx, nil, queryKey, c.ttl)
}

func (c *dbRecipeCache) Put(ctx context.Context, queryKey string, results []types.RecipeResult) error {
	return c.repo.Put(ctx, nil, queryKey, results)
}

func composeQuery(query, diet, ingredients string) string {
	parts := make([]string, 0, 3)
	if q := strings.TrimSpace(query); q != "" {
		parts = append(parts, q)
	}
	if d := strings.TrimSpace(diet); d != "" {
		parts = append(parts, "diet:"+d)
	}
	if ing := strings.TrimSpace(ingredients); ing != "" {
		parts = append(parts, "ingredients:"+ing)
	}
	return strings.Join(parts, " ")
}

// normalizeKey makes the cache key insensitive to case and whitespace noise.
func normalizeKey(composed string) string {
	return strings.Join(strings.Fields(strings.ToLower(composed)), " ")
}

func (s *recipeService) Search(ctx context.Context, query, diet, ingredients string) ([]types.RecipeResult, error) {
	composed := composeQuery(query, diet, ingredients)
	if composed == "" {
		return []types.RecipeResult{}, nil
	}
	key := normalizeKey(composed)

	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.log.Warn("Recipe cache read failed", "query_key", key, "error", err)
		} else if ok {
			return cached, nil
		}
	}

	// Identical in-flight queries share one provider call. The call runs on
	// a detached context so one cancelled caller cannot poison the result
	// for the waiters sharing it.
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		return s.searchProvider(context.WithoutCancel(ctx), composed, key), nil
	})
	if err != nil {
		return []types.RecipeResult{}, nil
	}
	return v.([]types.RecipeResult), nil
}

func (s *recipeService) searchProvider(ctx context.Context, composed, key string) []types.RecipeResult {
	if s.search == nil {
		s.log.Debug("Search provider not configured; returning empty results")
		return []types.RecipeResult{}
	}

	hits, err := s.search.Search(ctx, composed, maxSearchResults)
	if err != nil {
		s.log.Warn("Recipe search provider failed", "query_key", key, "error", err)
		return []types.RecipeResult{}
	}

	results := make([]types.RecipeResult, 0, len(hits))
	for _, h := range hits {
		summary := h.Content
		// Truncate on rune boundaries so multi-byte text is not cut
		// mid-sequence.
		if r := []rune(summary); len(r) > maxSummaryLen {
			summary = string(r[:maxSummaryLen]) + "..."
		}
		results = append(results, types.RecipeResult{
			Title:        h.Title,
			Summary:      summary,
			Ingredients:  []string{},
			Instructions: "See full recipe link",
			SourceURL:    h.URL,
			Source:       "Tavily",
		})
	}

	if s.cache != nil && len(results) > 0 {
		if err := s.cache.Put(ctx, key, results); err != nil {
			s.log.Warn("Recipe cache write failed", "query_key", key, "error", err)
		}
	}
	return results
}
