// Package riskscore obtains a risk assessment for proposal documents
// from an external scoring service and enforces deterministic
// aggregation over its output. The service's own arithmetic is never
// trusted: it gates financial terms, so the aggregate and grade are
// always recomputed here.
package riskscore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"rwa-vault-lab/internal/domain"
)

// systemPrompt instructs the scoring model. The five dimensions and the
// strict-JSON output shape are fixed; everything else about the prompt
// is display-level and not validated.
const systemPrompt = `You are a real estate investment risk assessment engine.
Score the project documents on five dimensions, each 0-100 (higher = lower risk):
legal, financial, operational, market, documentation.
Return ONLY valid JSON:
{"riskGrade":"A|B|C|D","riskScore":number,"dimensionScores":{"legal":number,"financial":number,"operational":number,"market":number,"documentation":number},"keyRisks":string[],"missingDocs":string[]}`

// Scorer is the consumed scoring capability.
type Scorer interface {
	// Score submits the documents and returns the raw, unvalidated
	// service output.
	Score(ctx context.Context, docs []domain.Document) (*RawAssessment, error)
}

// RawAssessment is the scoring service's self-reported output. The
// aggregate and grade fields are present on the wire but discarded by
// the validator.
type RawAssessment struct {
	RiskGrade       string             `json:"riskGrade"`
	RiskScore       *float64           `json:"riskScore"`
	DimensionScores map[string]float64 `json:"dimensionScores"`
	KeyRisks        []string           `json:"keyRisks"`
	MissingDocs     []string           `json:"missingDocs"`
}

// HTTPScorer calls an OpenAI-style chat-completions endpoint.
type HTTPScorer struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewHTTPScorer creates a scoring client.
func NewHTTPScorer(baseURL, apiKey, model string) *HTTPScorer {
	return &HTTPScorer{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// Compile-time interface check.
var _ Scorer = (*HTTPScorer)(nil)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	Messages    []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Score submits the documents and parses the strict-JSON reply.
func (s *HTTPScorer) Score(ctx context.Context, docs []domain.Document) (*RawAssessment, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("at least one document is required")
	}

	var b strings.Builder
	for i, d := range docs {
		if i > 0 {
			b.WriteString("\n\n---\n\n")
		}
		fmt.Fprintf(&b, "DOCUMENT: %s\nCONTENT:\n%s", d.Name, d.Text)
	}

	reqBody := chatRequest{
		Model:       s.model,
		Temperature: 0.2,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: b.String()},
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal scoring request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create scoring request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scoring request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read scoring response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scoring service status %d: %s", resp.StatusCode, string(respBody))
	}

	var chat chatResponse
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return nil, fmt.Errorf("unmarshal scoring response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("scoring service returned no choices")
	}

	var raw RawAssessment
	content := strings.TrimSpace(chat.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return &raw, nil
}
