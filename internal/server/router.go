package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/platewise/platewise-backend/internal/handlers"
)

type RouterConfig struct {
	AllowedOrigins []string

	SessionHandler *handlers.SessionHandler
	ChatHandler    *handlers.ChatHandler
	RecipeHandler  *handlers.RecipeHandler
	ProfileHandler *handlers.ProfileHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/health", handlers.HealthCheck)

	api := router.Group("/api")
	{
		api.POST("/sessions", cfg.SessionHandler.Create)

		api.GET("/chat/history", cfg.ChatHandler.History)
		api.POST("/chat", cfg.ChatHandler.Chat)
		api.GET("/chat/stream", cfg.ChatHandler.Stream)

		api.GET("/recipes/search", cfg.RecipeHandler.Search)

		api.GET("/profile", cfg.ProfileHandler.Get)
		api.POST("/profile", cfg.ProfileHandler.Save)
	}

	return router
}
