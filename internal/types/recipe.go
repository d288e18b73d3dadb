package types

// RecipeResult is transient: it lives in the recipe cache for a short TTL
// and is never part of the durable data model.
type RecipeResult struct {
	Title        string   `json:"title"`
	Summary      string   `json:"summary"`
	Ingredients  []string `json:"ingredients"`
	Instructions string   `json:"instructions"`
	Nutrition    string   `json:"nutrition,omitempty"`
	SourceURL    string   `json:"sourceUrl"`
	Source       string   `json:"source"`
}
