package models

import "strings"

type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// ParseRiskLevel accepts the exact level names case-insensitively.
func ParseRiskLevel(s string) (RiskLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return RiskLow, true
	case "medium":
		return RiskMedium, true
	case "high":
		return RiskHigh, true
	}
	return "", false
}

// ReferenceIngredient is a curated entry of the ingredient library.
type ReferenceIngredient struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	Description        string    `json:"description"`
	RiskLevel          RiskLevel `json:"risk_level"`
	Embedding          []float32 `json:"-"`
	RelatedIngredients []string  `json:"related_ingredients,omitempty"`
}

type SimilarityMatch struct {
	Reference  ReferenceIngredient `json:"ingredient"`
	Similarity float64             `json:"similarity"`
}

type SearchRequest struct {
	Query     string `form:"q" validate:"required,max=200"`
	Limit     int    `form:"limit"`
	RiskLevel string `form:"risk_level" validate:"omitempty,oneof=Low Medium High low medium high"`
}

type SearchResponse struct {
	Query   string            `json:"query"`
	Results []SimilarityMatch `json:"results"`
	Count   int               `json:"count"`
}

type IngredientListRequest struct {
	Limit     int    `form:"limit" validate:"omitempty,min=1,max=100"`
	Offset    int    `form:"offset" validate:"omitempty,min=0"`
	RiskLevel string `form:"risk_level" validate:"omitempty,oneof=all All Low Medium High low medium high"`
	Name      string `form:"name" validate:"omitempty,max=200"`
}

type IngredientListResponse struct {
	Ingredients []ReferenceIngredient `json:"ingredients"`
	Pagination  PaginationResponse    `json:"pagination"`
}
