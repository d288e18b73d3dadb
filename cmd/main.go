package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/platewise/platewise-backend/internal/clients/cohere"
	redisclient "github.com/platewise/platewise-backend/internal/clients/redis"
	"github.com/platewise/platewise-backend/internal/clients/tavily"
	"github.com/platewise/platewise-backend/internal/db"
	"github.com/platewise/platewise-backend/internal/handlers"
	"github.com/platewise/platewise-backend/internal/logger"
	"github.com/platewise/platewise-backend/internal/repos"
	"github.com/platewise/platewise-backend/internal/server"
	"github.com/platewise/platewise-backend/internal/services"
	"github.com/platewise/platewise-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// DB
	dbService, err := db.NewService(log)
	if err != nil {
		log.Error("DB init failed", "error", err)
		os.Exit(1)
	}
	if err := dbService.AutoMigrateAll(); err != nil {
		log.Error("DB auto migration failed", "error", err)
		os.Exit(1)
	}
	theDB := dbService.DB()

	// Repos
	log.Info("Setting up repos from main...")
	sessionRepo := repos.NewSessionRepo(theDB, log)
	messageRepo := repos.NewMessageRepo(theDB, log)
	profileRepo := repos.NewProfileRepo(theDB, log)
	recipeCacheRepo := repos.NewRecipeCacheRepo(theDB, log)

	// Clients
	log.Info("Setting up clients from main...")
	llmClient, err := cohere.New(log)
	if err != nil {
		log.Error("Cohere client init failed", "error", err)
		os.Exit(1)
	}
	searchClient, err := tavily.New(log)
	if err != nil {
		log.Warn("Tavily client unavailable; recipe search will return empty results", "error", err)
	}

	cacheTTL := time.Duration(utils.GetEnvAsInt("RECIPE_CACHE_TTL_MINUTES", 10, log)) * time.Minute
	var recipeCache services.RecipeCache
	if strings.TrimSpace(os.Getenv("REDIS_ADDR")) != "" {
		redisCache, err := redisclient.NewRecipeCache(log, cacheTTL)
		if err != nil {
			log.Warn("Redis recipe cache unavailable; falling back to DB cache", "error", err)
		} else {
			recipeCache = redisCache
		}
	}
	if recipeCache == nil {
		recipeCache = services.NewDBRecipeCache(recipeCacheRepo, cacheTTL)
	}

	// Services
	log.Info("Setting up services from main...")
	sessionService := services.NewSessionService(theDB, log, sessionRepo, messageRepo)
	profileService := services.NewProfileService(theDB, log, sessionRepo, profileRepo)
	recipeService := services.NewRecipeService(log, searchClient, recipeCache)
	chatService := services.NewChatService(theDB, log, sessionRepo, messageRepo, llmClient, recipeService)

	// Handlers
	log.Info("Setting up handlers from main...")
	sessionHandler := handlers.NewSessionHandler(sessionService)
	chatHandler := handlers.NewChatHandler(log, chatService, sessionService)
	recipeHandler := handlers.NewRecipeHandler(recipeService)
	profileHandler := handlers.NewProfileHandler(profileService)

	// Router
	log.Info("Setting up router from main...")
	origins := strings.Split(utils.GetEnv("FRONTEND_ORIGIN", "http://localhost:5173", log), ",")
	router := server.NewRouter(server.RouterConfig{
		AllowedOrigins: origins,
		SessionHandler: sessionHandler,
		ChatHandler:    chatHandler,
		RecipeHandler:  recipeHandler,
		ProfileHandler: profileHandler,
	})

	port := utils.GetEnv("PORT", "4000", log)
	log.Info("Server listening", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Error("Server failed", "error", err)
	}
}
