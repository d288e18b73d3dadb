package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/platewise/platewise-backend/internal/services"
)

type RecipeHandler struct {
	recipeService services.RecipeService
}

func NewRecipeHandler(recipeService services.RecipeService) *RecipeHandler {
	return &RecipeHandler{recipeService: recipeService}
}

// GET /api/recipes/search?q=...&diet=...&ingredients=...
func (rh *RecipeHandler) Search(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	diet := strings.TrimSpace(c.Query("diet"))
	ingredients := strings.TrimSpace(c.Query("ingredients"))

	if q == "" && ingredients == "" {
		RespondError(c, http.StatusBadRequest, "invalid_input", fmt.Errorf("provide q or ingredients"))
		return
	}

	results, err := rh.recipeService.Search(c.Request.Context(), q, diet, ingredients)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, results)
}
