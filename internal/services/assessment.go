package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/unicode/norm"

	"github.com/temcen/lotus/pkg/models"
)

type PipelineState string

const (
	StateInit       PipelineState = "INIT"
	StateFanOut     PipelineState = "FAN_OUT"
	StateSynthesize PipelineState = "SYNTHESIZE"
	StateValidate   PipelineState = "VALIDATE"
	StateComplete   PipelineState = "COMPLETE"
	StateFailed     PipelineState = "FAILED"
)

var allowedTransitions = map[PipelineState][]PipelineState{
	StateInit:       {StateFanOut, StateComplete},
	StateFanOut:     {StateSynthesize},
	StateSynthesize: {StateValidate, StateFailed},
	StateValidate:   {StateComplete},
}

const emptyInputExplanation = "No ingredients were provided, so there is nothing to assess."

// EventPublisher receives completed assessments. Publishing is best effort.
type EventPublisher interface {
	PublishAssessment(ctx context.Context, event models.AssessmentEvent) error
}

// TransitionHook observes pipeline state changes.
type TransitionHook func(id uuid.UUID, from, to PipelineState)

// AssessmentService runs INIT -> FAN_OUT -> SYNTHESIZE -> VALIDATE -> COMPLETE
// for each scan. FAILED is only reachable from SYNTHESIZE.
type AssessmentService struct {
	fanOut      *FanOutOrchestrator
	synthesizer *AssessmentSynthesizer
	search      *SimilaritySearchEngine
	publisher   EventPublisher
	timeout     time.Duration
	metrics     *Metrics
	logger      *logrus.Logger

	hook    TransitionHook
	pending sync.WaitGroup
}

func NewAssessmentService(
	fanOut *FanOutOrchestrator,
	synthesizer *AssessmentSynthesizer,
	search *SimilaritySearchEngine,
	publisher EventPublisher,
	timeout time.Duration,
	metrics *Metrics,
	logger *logrus.Logger,
) *AssessmentService {
	return &AssessmentService{
		fanOut:      fanOut,
		synthesizer: synthesizer,
		search:      search,
		publisher:   publisher,
		timeout:     timeout,
		metrics:     metrics,
		logger:      logger,
	}
}

// OnTransition installs a hook called on every state change. It is not
// synchronized with Assess and must be called before the service handles
// requests.
func (s *AssessmentService) OnTransition(hook TransitionHook) {
	s.hook = hook
}

type pipelineRun struct {
	id    uuid.UUID
	state PipelineState
	hook  TransitionHook
}

func (r *pipelineRun) transition(to PipelineState) error {
	for _, next := range allowedTransitions[r.state] {
		if next == to {
			if r.hook != nil {
				r.hook(r.id, r.state, to)
			}
			r.state = to
			return nil
		}
	}
	return fmt.Errorf("illegal pipeline transition %s -> %s", r.state, to)
}

// Assess produces a personalized risk assessment. It returns either a complete
// assessment or a single error: a *SynthesisError, or the context error when
// the caller gave up.
func (s *AssessmentService) Assess(ctx context.Context, input models.ScanInput) (*models.RiskAssessment, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	run := &pipelineRun{id: uuid.New(), state: StateInit, hook: s.hook}
	names := NormalizeIngredientNames(input.IngredientNames)

	log := s.logger.WithFields(logrus.Fields{
		"assessment_id": run.id,
		"ingredients":   len(names),
		"user_id":       input.UserID,
	})

	if len(names) == 0 {
		if err := run.transition(StateComplete); err != nil {
			return nil, err
		}
		assessment := formatAssessment(run.id, input.UserID, names, &SynthesisResult{
			Score:            maxScore,
			Level:            LevelForScore(maxScore),
			ScoreSource:      models.ScoreFromFallback,
			RiskyIngredients: []models.RiskyIngredient{},
			Explanation:      emptyInputExplanation,
		})
		s.finish(assessment, start)
		return assessment, nil
	}

	if err := run.transition(StateFanOut); err != nil {
		return nil, err
	}
	gathered, err := s.fanOut.FanOut(ctx, names, input.UserID)
	if err != nil {
		log.WithError(err).Warn("Assessment aborted during fan-out")
		return nil, err
	}

	if err := run.transition(StateSynthesize); err != nil {
		return nil, err
	}
	result, err := s.synthesizer.Synthesize(ctx, names, gathered.Sensitivities, gathered.Matches)
	if err != nil {
		if terr := run.transition(StateFailed); terr != nil {
			return nil, terr
		}
		s.metrics.Assessments.WithLabelValues("failed", "none").Inc()
		log.WithError(err).Error("Assessment synthesis failed")
		return nil, err
	}

	if err := run.transition(StateValidate); err != nil {
		return nil, err
	}
	enforceScoreInvariants(result)
	assessment := formatAssessment(run.id, input.UserID, names, result)

	if err := run.transition(StateComplete); err != nil {
		return nil, err
	}
	s.finish(assessment, start)

	log.WithFields(logrus.Fields{
		"risk_score":      assessment.RiskScore,
		"overall_level":   assessment.OverallLevel,
		"score_source":    assessment.ScoreSource,
		"matches":         len(gathered.Matches),
		"failed_searches": len(gathered.Failed),
		"duration":        time.Since(start),
	}).Info("Assessment completed")

	return assessment, nil
}

// SearchSimilar exposes the similarity search on its own.
func (s *AssessmentService) SearchSimilar(ctx context.Context, name string, limit int, filter *models.RiskLevel) ([]models.SimilarityMatch, error) {
	name = norm.NFC.String(strings.TrimSpace(name))
	if name == "" {
		return nil, ErrEmptyText
	}
	return s.search.Search(ctx, name, limit, filter)
}

// Wait blocks until in-flight event publications finish.
func (s *AssessmentService) Wait() {
	s.pending.Wait()
}

func (s *AssessmentService) finish(assessment *models.RiskAssessment, start time.Time) {
	s.metrics.Assessments.WithLabelValues("completed", string(assessment.ScoreSource)).Inc()
	s.metrics.AssessmentLatency.WithLabelValues("total").Observe(time.Since(start).Seconds())
	s.publish(assessment)
}

func (s *AssessmentService) publish(a *models.RiskAssessment) {
	if s.publisher == nil {
		return
	}

	event := models.AssessmentEvent{
		EventID:         uuid.New(),
		AssessmentID:    a.ID,
		UserID:          a.UserID,
		IngredientCount: len(a.IngredientsFound),
		RiskyCount:      len(a.RiskyIngredients),
		RiskScore:       a.RiskScore,
		OverallLevel:    a.OverallLevel,
		ScoreSource:     a.ScoreSource,
		Timestamp:       a.GeneratedAt,
	}

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.publisher.PublishAssessment(ctx, event); err != nil {
			s.logger.WithError(err).WithField("assessment_id", a.ID).Warn("Failed to publish assessment event")
		}
	}()
}

// enforceScoreInvariants keeps the score in range and the level in its band.
func enforceScoreInvariants(r *SynthesisResult) {
	r.Score = clampScore(r.Score)
	r.Level = LevelForScore(r.Score)
	if r.RiskyIngredients == nil {
		r.RiskyIngredients = []models.RiskyIngredient{}
	}
}

func formatAssessment(id uuid.UUID, userID string, names []string, r *SynthesisResult) *models.RiskAssessment {
	found := make([]string, len(names))
	copy(found, names)

	return &models.RiskAssessment{
		ID:               id,
		UserID:           userID,
		OverallLevel:     r.Level,
		RiskScore:        r.Score,
		RiskyIngredients: r.RiskyIngredients,
		Explanation:      r.Explanation,
		Recommendations:  r.Recommendations,
		IngredientsFound: found,
		ScoreSource:      r.ScoreSource,
		GeneratedAt:      time.Now().UTC(),
	}
}

// NormalizeIngredientNames trims and NFC-normalizes names, dropping blanks
// and exact duplicates while keeping first-seen order. Case is preserved.
func NormalizeIngredientNames(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, name := range in {
		name = norm.NFC.String(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}
