package services

import (
	"fmt"
	"strings"

	"github.com/temcen/lotus/internal/ml"
	"github.com/temcen/lotus/pkg/models"
)

const assessmentSystemPrompt = `You are a clinician specialising in intimate and vulvovaginal health and in the safety of personal care ingredients.
You give evidence-based guidance on how product ingredients may affect sensitive tissue.

When judging ingredients weigh:
- direct chemical irritancy and pH disruption
- allergenic potential
- the user's declared sensitivities
- combined effects of several ingredients

Be balanced and avoid alarmism.`

const assessmentPromptTemplate = `Assess the health risk of a personal care product from the information below.

SCANNED INGREDIENTS:
%s

USER SENSITIVITIES:
%s

SIMILAR INGREDIENTS FROM KNOWLEDGE BASE:
%s

Check each ingredient against the sensitivities and against the knowledge base entries, then give one overall verdict.

Reply with a single JSON object and nothing else:
{
  "overall_risk_level": "Low" | "Caution" | "High",
  "risk_score": <integer 0-100, 100 meaning no concern>,
  "explanation": "two sentences on why",
  "ingredient_details": [
    {"name": "ingredient name", "risk_level": "Low" | "Medium" | "High", "reason": "why"}
  ],
  "recommendations": "practical advice for this user"
}

Score bands: 71-100 Low, 41-70 Caution, 0-40 High.`

const (
	noSensitivities = "No known sensitivities"
	noReferences    = "No similar ingredients found in knowledge base"
)

func buildAssessmentMessages(names, sensitivities []string, matches []models.SimilarityMatch) []ml.Message {
	return []ml.Message{
		{Role: ml.RoleSystem, Content: assessmentSystemPrompt},
		{Role: ml.RoleUser, Content: formatAssessmentPrompt(names, sensitivities, matches)},
	}
}

func formatAssessmentPrompt(names, sensitivities []string, matches []models.SimilarityMatch) string {
	ingredients := "None"
	if len(names) > 0 {
		ingredients = strings.Join(names, ", ")
	}

	sens := noSensitivities
	if len(sensitivities) > 0 {
		sens = strings.Join(sensitivities, ", ")
	}

	refs := noReferences
	if len(matches) > 0 {
		lines := make([]string, len(matches))
		for i, m := range matches {
			lines[i] = fmt.Sprintf("- %s: %s (Risk Level: %s)", m.Reference.Name, m.Reference.Description, m.Reference.RiskLevel)
		}
		refs = strings.Join(lines, "\n")
	}

	return fmt.Sprintf(assessmentPromptTemplate, ingredients, sens, refs)
}
