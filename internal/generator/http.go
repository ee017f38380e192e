// Package generator produces competition question sets, either through the
// external generation endpoint or from a static bank for demos and tests.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"quiz-competition-service/internal/domain"
)

// HTTPGenerator calls the question-generation endpoint (the serverless
// function fronting the LLM). The endpoint receives the quiz preferences and
// returns the generated question set.
type HTTPGenerator struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewHTTPGenerator(endpoint, apiKey string, timeout time.Duration) *HTTPGenerator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPGenerator{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

type generateResponse struct {
	Questions []domain.Question `json:"questions"`
}

// Generate posts the preferences and decodes the question set. Any non-200
// response or malformed body is an error; the caller decides whether the
// competition transition is abandoned.
func (g *HTTPGenerator) Generate(ctx context.Context, prefs domain.Preferences) ([]domain.Question, error) {
	body, err := json.Marshal(prefs)
	if err != nil {
		return nil, fmt.Errorf("marshal preferences: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call generator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("generator returned status %d", resp.StatusCode)
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode generator response: %w", err)
	}
	if len(decoded.Questions) == 0 {
		return nil, fmt.Errorf("generator returned no questions")
	}
	return decoded.Questions, nil
}
