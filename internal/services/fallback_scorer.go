package services

import (
	"strings"

	"github.com/temcen/lotus/pkg/models"
)

const (
	maxScore          = 100
	highRiskPenalty   = 8
	mediumRiskPenalty = 4
)

// FallbackScore starts from 100 and subtracts 8 per High and 4 per Medium
// ingredient, clamped to [0, 100]. Low entries cost nothing.
func FallbackScore(levels []models.RiskLevel) int {
	score := maxScore
	for _, level := range levels {
		switch level {
		case models.RiskHigh:
			score -= highRiskPenalty
		case models.RiskMedium:
			score -= mediumRiskPenalty
		}
	}
	return clampScore(score)
}

// LevelForScore maps a score to its band: 71-100 Low, 41-70 Caution, 0-40 High.
func LevelForScore(score int) models.OverallLevel {
	switch {
	case score >= 71:
		return models.LevelLow
	case score >= 41:
		return models.LevelCaution
	default:
		return models.LevelHigh
	}
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > maxScore {
		return maxScore
	}
	return score
}

// NormalizeRiskLabel maps the free-form labels a reasoning model produces
// ("High Risk (Harmful)", "Caution (Irritating)", "safe", ...) onto a
// RiskLevel. Caution counts as Medium.
func NormalizeRiskLabel(label string) (models.RiskLevel, bool) {
	l := strings.ToLower(strings.TrimSpace(label))
	switch {
	case l == "":
		return "", false
	case strings.Contains(l, "high"), strings.Contains(l, "harm"), strings.Contains(l, "danger"):
		return models.RiskHigh, true
	case strings.Contains(l, "medium"), strings.Contains(l, "caution"),
		strings.Contains(l, "moderate"), strings.Contains(l, "irritat"):
		return models.RiskMedium, true
	case strings.Contains(l, "low"), strings.Contains(l, "safe"), strings.Contains(l, "none"):
		return models.RiskLow, true
	}
	return "", false
}
