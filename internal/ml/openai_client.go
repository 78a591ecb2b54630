package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/temcen/lotus/internal/config"
)

// StatusError is returned when the model API answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("model api returned status %d: %s", e.StatusCode, e.Body)
}

// apiClient is the shared transport for OpenAI-compatible endpoints. Calls are
// paced by a token bucket and guarded by a circuit breaker.
type apiClient struct {
	name    string
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  *logrus.Logger
}

func newAPIClient(name, baseURL, apiKey string, timeout time.Duration, rps float64, bc config.BreakerConfig, logger *logrus.Logger) *apiClient {
	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}

	c := &apiClient{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}

	minRequests := bc.MinRequests
	failureRatio := bc.FailureRatio
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= failureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Model API circuit breaker state changed")
		},
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			var statusErr *StatusError
			if errors.As(err, &statusErr) {
				return statusErr.StatusCode < http.StatusInternalServerError &&
					statusErr.StatusCode != http.StatusTooManyRequests
			}
			return false
		},
	})

	return c
}

func (c *apiClient) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", c.name, err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s rate limiter: %w", c.name, err)
	}

	start := time.Now()
	raw, err := c.breaker.Execute(func() ([]byte, error) {
		return c.do(ctx, path, body)
	})
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"client":   c.name,
			"path":     path,
			"duration": time.Since(start),
		}).WithError(err).Warn("Model API call failed")
		return err
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", c.name, err)
	}
	return nil
}

func (c *apiClient) do(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(respBody)
		if len(msg) > 512 {
			msg = msg[:512]
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: msg}
	}

	return respBody, nil
}

// OpenAIEmbeddingClient calls the /embeddings endpoint.
type OpenAIEmbeddingClient struct {
	api        *apiClient
	model      string
	dimensions int
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func NewOpenAIEmbeddingClient(cfg config.EmbeddingConfig, bc config.BreakerConfig, logger *logrus.Logger) *OpenAIEmbeddingClient {
	return &OpenAIEmbeddingClient{
		api:        newAPIClient("embeddings", cfg.BaseURL, cfg.APIKey, cfg.Timeout, cfg.RequestsPerSecond, bc, logger),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}
}

func (c *OpenAIEmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (c *OpenAIEmbeddingClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("texts cannot be empty")
	}

	var resp embeddingResponse
	err := c.api.post(ctx, "/embeddings", embeddingRequest{
		Model:      c.model,
		Input:      texts,
		Dimensions: c.dimensions,
	}, &resp)
	if err != nil {
		return nil, err
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors", len(texts), len(resp.Data))
	}

	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })

	vectors := make([][]float32, len(texts))
	for i, d := range resp.Data {
		if len(d.Embedding) == 0 {
			return nil, fmt.Errorf("empty embedding at index %d", d.Index)
		}
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

// OpenAIChatClient calls the /chat/completions endpoint in JSON mode.
type OpenAIChatClient struct {
	api         *apiClient
	model       string
	temperature float64
	maxTokens   int
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

func NewOpenAIChatClient(cfg config.ReasoningConfig, bc config.BreakerConfig, logger *logrus.Logger) *OpenAIChatClient {
	return &OpenAIChatClient{
		api:         newAPIClient("reasoning", cfg.BaseURL, cfg.APIKey, cfg.Timeout, cfg.RequestsPerSecond, bc, logger),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

func (c *OpenAIChatClient) Complete(ctx context.Context, messages []Message) (string, error) {
	var resp chatResponse
	err := c.api.post(ctx, "/chat/completions", chatRequest{
		Model:          c.model,
		Messages:       messages,
		Temperature:    c.temperature,
		MaxTokens:      c.maxTokens,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}, &resp)
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("reasoning response has no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
