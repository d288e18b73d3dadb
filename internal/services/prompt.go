package services

import (
	"fmt"
	"strings"

	"github.com/platewise/platewise-backend/internal/clients/cohere"
	"github.com/platewise/platewise-backend/internal/types"
)

const systemInstructions = "You are a helpful nutrition-aware cooking assistant. Prefer healthier substitutions, " +
	"and structure recipes as ingredients then numbered steps. If a user health profile or " +
	"selected recipe context is provided, use it."

// historyWindow bounds how many stored messages are replayed to the provider
// per turn.
const historyWindow = 12

// TurnContext is the ad hoc context merged into the prompt for one turn. It
// is advisory: empty fields are simply omitted from the prompt.
type TurnContext struct {
	Diet           string              `json:"diet,omitempty"`
	Allergens      string              `json:"allergens,omitempty"`
	Goals          string              `json:"goals,omitempty"`
	SelectedRecipe *types.RecipeResult `json:"selectedRecipe,omitempty"`
}

func (t TurnContext) dietaryContext() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{t.Diet, t.Allergens, t.Goals} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, strings.TrimSpace(p))
		}
	}
	return strings.Join(parts, ", ")
}

func buildSystemPrompt(tctx TurnContext, searchResults []types.RecipeResult) string {
	var b strings.Builder
	b.WriteString(systemInstructions)

	if tctx.Diet != "" || tctx.Allergens != "" || tctx.Goals != "" {
		b.WriteString("\n\nUser health profile:\n")
		b.WriteString(fmt.Sprintf("Diet: %s\n", tctx.Diet))
		b.WriteString(fmt.Sprintf("Allergens: %s\n", tctx.Allergens))
		b.WriteString(fmt.Sprintf("Goals: %s\n", tctx.Goals))
	}

	if r := tctx.SelectedRecipe; r != nil {
		b.WriteString("\n\nSelected recipe context:\n")
		b.WriteString(fmt.Sprintf("Title: %s\n", r.Title))
		if len(r.Ingredients) > 0 {
			b.WriteString(fmt.Sprintf("Ingredients: %s\n", strings.Join(r.Ingredients, ", ")))
		}
		if r.Summary != "" {
			b.WriteString(fmt.Sprintf("Summary: %s\n", r.Summary))
		}
	}

	if len(searchResults) > 0 {
		b.WriteString("\n\nRecent findings (web):\n")
		limit := len(searchResults)
		if limit > 5 {
			limit = 5
		}
		for _, r := range searchResults[:limit] {
			title := r.Title
			if title == "" {
				title = "Result"
			}
			b.WriteString(fmt.Sprintf("- %s: %s\n  %s\n", title, r.Summary, r.SourceURL))
		}
	}

	return b.String()
}

// promptHistory converts the tail of the stored conversation into provider
// messages. The just-appended user message is already part of history.
func promptHistory(messages []*types.Message, window int) []cohere.ChatMessage {
	start := 0
	if len(messages) > window {
		start = len(messages) - window
	}
	out := make([]cohere.ChatMessage, 0, len(messages)-start)
	for _, m := range messages[start:] {
		role := "assistant"
		if m.Role == types.RoleUser {
			role = "user"
		}
		out = append(out, cohere.ChatMessage{Role: role, Content: m.Content})
	}
	return out
}
