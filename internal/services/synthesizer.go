package services

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/temcen/lotus/internal/ml"
	"github.com/temcen/lotus/internal/validation"
	"github.com/temcen/lotus/pkg/models"
)

const defaultExplanation = "Unable to generate detailed explanation"

// SynthesisResult is the validated outcome of one reasoning call.
type SynthesisResult struct {
	Score            int
	Level            models.OverallLevel
	ScoreSource      models.ScoreSource
	RiskyIngredients []models.RiskyIngredient
	Explanation      string
	Recommendations  string
}

type reasoningResponse struct {
	OverallRiskLevel  string             `json:"overall_risk_level"`
	RiskScore         json.RawMessage    `json:"risk_score"`
	Explanation       string             `json:"explanation"`
	IngredientDetails []ingredientDetail `json:"ingredient_details"`
	Recommendations   *string            `json:"recommendations"`
}

type ingredientDetail struct {
	Name      string `json:"name"`
	RiskLevel string `json:"risk_level"`
	Reason    string `json:"reason"`
}

// AssessmentSynthesizer asks the reasoning service for a verdict and turns its
// reply into a SynthesisResult. The score is trusted when it is a number in
// [0, 100]; otherwise the deterministic fallback score is used.
type AssessmentSynthesizer struct {
	chat      ml.ChatClient
	validator *validation.SchemaValidator
	metrics   *Metrics
	logger    *logrus.Logger
}

func NewAssessmentSynthesizer(chat ml.ChatClient, validator *validation.SchemaValidator, metrics *Metrics, logger *logrus.Logger) *AssessmentSynthesizer {
	return &AssessmentSynthesizer{
		chat:      chat,
		validator: validator,
		metrics:   metrics,
		logger:    logger,
	}
}

func (s *AssessmentSynthesizer) Synthesize(
	ctx context.Context,
	names []string,
	sensitivities []string,
	matches []models.SimilarityMatch,
) (*SynthesisResult, error) {
	start := time.Now()
	defer func() {
		s.metrics.AssessmentLatency.WithLabelValues("synthesize").Observe(time.Since(start).Seconds())
	}()

	raw, err := s.chat.Complete(ctx, buildAssessmentMessages(names, sensitivities, matches))
	if err != nil {
		return nil, &SynthesisError{Reason: "reasoning service call failed", Err: err}
	}

	body := []byte(stripCodeFences(raw))
	if result := s.validator.ValidateReasoningResponse(body); !result.Valid {
		return nil, &SynthesisError{Reason: "reasoning response is not a valid assessment", Err: result.Err()}
	}

	var resp reasoningResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &SynthesisError{Reason: "reasoning response could not be decoded", Err: err}
	}

	details, levels := normalizeDetails(resp.IngredientDetails)

	out := &SynthesisResult{
		ScoreSource:      models.ScoreFromReasoning,
		RiskyIngredients: riskyIngredients(details),
		Explanation:      strings.TrimSpace(resp.Explanation),
	}
	if resp.Recommendations != nil {
		out.Recommendations = strings.TrimSpace(*resp.Recommendations)
	}
	if out.Explanation == "" {
		out.Explanation = defaultExplanation
	}

	score, err := parseRiskScore(resp.RiskScore)
	if err != nil {
		var sve *scoreValidationError
		if !errors.As(err, &sve) {
			return nil, &SynthesisError{Reason: "unexpected score error", Err: err}
		}
		score = FallbackScore(levels)
		out.ScoreSource = models.ScoreFromFallback
		s.logger.WithFields(logrus.Fields{
			"reason":         sve.reason,
			"fallback_score": score,
		}).Info("Reasoning score rejected, using fallback score")
	}

	out.Score = score
	out.Level = LevelForScore(score)

	if stated, ok := overallLabel(resp.OverallRiskLevel); ok && stated != out.Level {
		s.logger.WithFields(logrus.Fields{
			"stated_level":  stated,
			"derived_level": out.Level,
			"score":         score,
		}).Debug("Reasoning label disagrees with score, keeping score band")
	}

	return out, nil
}

// parseRiskScore accepts only JSON numbers within [0, 100], rounded to the
// nearest integer.
func parseRiskScore(raw json.RawMessage) (int, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return 0, &scoreValidationError{raw: "null", reason: "score missing"}
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, &scoreValidationError{raw: trimmed, reason: "score is not a number"}
	}
	if math.IsNaN(f) || f < 0 || f > maxScore {
		return 0, &scoreValidationError{raw: trimmed, reason: "score out of range"}
	}
	return int(math.Round(f)), nil
}

type normalizedDetail struct {
	name   string
	level  models.RiskLevel
	known  bool
	reason string
}

func normalizeDetails(in []ingredientDetail) ([]normalizedDetail, []models.RiskLevel) {
	details := make([]normalizedDetail, 0, len(in))
	levels := make([]models.RiskLevel, 0, len(in))
	for _, d := range in {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			continue
		}
		level, ok := NormalizeRiskLabel(d.RiskLevel)
		details = append(details, normalizedDetail{
			name:   name,
			level:  level,
			known:  ok,
			reason: strings.TrimSpace(d.Reason),
		})
		if ok {
			levels = append(levels, level)
		}
	}
	return details, levels
}

func riskyIngredients(details []normalizedDetail) []models.RiskyIngredient {
	risky := make([]models.RiskyIngredient, 0)
	for _, d := range details {
		if !d.known || (d.level != models.RiskMedium && d.level != models.RiskHigh) {
			continue
		}
		risky = append(risky, models.RiskyIngredient{
			Name:      d.name,
			RiskLevel: d.level,
			Reason:    d.reason,
		})
	}
	return risky
}

func overallLabel(label string) (models.OverallLevel, bool) {
	level, ok := NormalizeRiskLabel(label)
	if !ok {
		return "", false
	}
	switch level {
	case models.RiskHigh:
		return models.LevelHigh, true
	case models.RiskMedium:
		return models.LevelCaution, true
	default:
		return models.LevelLow, true
	}
}

// stripCodeFences removes a surrounding markdown code block, if any.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
