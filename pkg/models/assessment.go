package models

import (
	"time"

	"github.com/google/uuid"
)

// OverallLevel is the categorical verdict; it is always derived from the score.
type OverallLevel string

const (
	LevelLow     OverallLevel = "Low"
	LevelCaution OverallLevel = "Caution"
	LevelHigh    OverallLevel = "High"
)

type ScoreSource string

const (
	ScoreFromReasoning ScoreSource = "reasoning"
	ScoreFromFallback  ScoreSource = "fallback"
)

type ScanInput struct {
	IngredientNames []string `json:"ingredients"`
	UserID          string   `json:"user_id,omitempty"`
}

type AssessRequest struct {
	Ingredients []string `json:"ingredients" validate:"required,max=100,dive,max=200"`
	UserID      string   `json:"user_id,omitempty" validate:"omitempty,max=128"`
}

type RiskyIngredient struct {
	Name      string    `json:"name"`
	RiskLevel RiskLevel `json:"risk_level"`
	Reason    string    `json:"reason"`
}

type RiskAssessment struct {
	ID               uuid.UUID         `json:"id"`
	UserID           string            `json:"user_id,omitempty"`
	OverallLevel     OverallLevel      `json:"overall_risk_level"`
	RiskScore        int               `json:"risk_score"`
	RiskyIngredients []RiskyIngredient `json:"risky_ingredients"`
	Explanation      string            `json:"explanation"`
	Recommendations  string            `json:"recommendations,omitempty"`
	IngredientsFound []string          `json:"ingredients_found"`
	ScoreSource      ScoreSource       `json:"score_source"`
	GeneratedAt      time.Time         `json:"generated_at"`
}

// AssessmentEvent is published after every completed assessment.
type AssessmentEvent struct {
	EventID         uuid.UUID    `json:"event_id"`
	AssessmentID    uuid.UUID    `json:"assessment_id"`
	UserID          string       `json:"user_id,omitempty"`
	IngredientCount int          `json:"ingredient_count"`
	RiskyCount      int          `json:"risky_count"`
	RiskScore       int          `json:"risk_score"`
	OverallLevel    OverallLevel `json:"overall_risk_level"`
	ScoreSource     ScoreSource  `json:"score_source"`
	Timestamp       time.Time    `json:"timestamp"`
}

// ReferenceUpdateEvent announces a change to the curated ingredient library.
type ReferenceUpdateEvent struct {
	IngredientIDs []int64   `json:"ingredient_ids,omitempty"`
	Action        string    `json:"action"`
	Timestamp     time.Time `json:"timestamp"`
}
