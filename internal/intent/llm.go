package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/swetaais/analysis-agent/internal/models"
)

const llmSystemPrompt = `You are an intent extraction service for a data analysis platform.
Given a user task, respond with a single JSON object and nothing else:
{"goal": "<one of the listed goals>", "data_type": "<tabular|timeseries|geospatial|text|graph>",
 "confidence": <0.0-1.0>, "parameters": {...}, "constraints": ["key=value", ...]}
Valid goals: %s.
If the task matches none of the goals, use "unknown" with confidence 0.`

// LLMOptions configures the external-model extraction method.
type LLMOptions struct {
	BaseURL string
	Model   string
	APIKey  string
	Weight  int
	Timeout time.Duration
}

// LLMMethod asks an OpenAI-compatible chat model to extract intent. It
// carries a higher vote weight than the local methods because it handles
// paraphrase and vocabulary the static tables miss.
type LLMMethod struct {
	model   llms.Model
	weight  int
	timeout time.Duration
}

// NewLLMMethod builds the method over an OpenAI-compatible endpoint.
func NewLLMMethod(opts LLMOptions) (*LLMMethod, error) {
	clientOpts := []openai.Option{}
	if opts.Model != "" {
		clientOpts = append(clientOpts, openai.WithModel(opts.Model))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, openai.WithBaseURL(opts.BaseURL))
	}
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, openai.WithToken(opts.APIKey))
	}
	client, err := openai.New(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating llm client: %w", err)
	}
	weight := opts.Weight
	if weight < 1 {
		weight = 2
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LLMMethod{model: client, weight: weight, timeout: timeout}, nil
}

// NewLLMMethodWithModel is the test seam: it wires an arbitrary llms.Model.
func NewLLMMethodWithModel(model llms.Model, weight int, timeout time.Duration) *LLMMethod {
	return &LLMMethod{model: model, weight: weight, timeout: timeout}
}

func (m *LLMMethod) Name() models.ExtractionMethod { return models.MethodExternalLLM }

// Attempt queries the chat model and parses its JSON reply. A reply that is
// not valid JSON or names an unknown goal counts as a declined vote, not an
// error; only transport failures surface as errors.
func (m *LLMMethod) Attempt(ctx context.Context, req Request) (*models.ExtractionVote, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, fmt.Sprintf(llmSystemPrompt, strings.Join(orderedGoals, ", "))),
		llms.TextParts(llms.ChatMessageTypeHuman, req.Text),
	}
	resp, err := m.model.GenerateContent(ctx, messages, llms.WithTemperature(0))
	if err != nil {
		return nil, fmt.Errorf("llm extraction: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, nil
	}

	var parsed struct {
		Goal        string                 `json:"goal"`
		DataType    string                 `json:"data_type"`
		Confidence  float64                `json:"confidence"`
		Parameters  map[string]interface{} `json:"parameters"`
		Constraints []string               `json:"constraints"`
	}
	raw := stripCodeFences(resp.Choices[0].Content)
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, nil
	}
	if !KnownGoal(parsed.Goal) {
		return nil, nil
	}
	if parsed.Confidence < 0 {
		parsed.Confidence = 0
	}
	if parsed.Confidence > 1 {
		parsed.Confidence = 1
	}
	if parsed.DataType == "" {
		parsed.DataType = detectDataType(strings.ToLower(req.Text), req.Data)
	}
	if len(parsed.Parameters) == 0 {
		parsed.Parameters = extractParameters(req.Text)
	}
	if len(parsed.Constraints) == 0 {
		parsed.Constraints = extractConstraints(req.Text)
	}

	return &models.ExtractionVote{
		Method:      models.MethodExternalLLM,
		Goal:        parsed.Goal,
		DataType:    parsed.DataType,
		Constraints: parsed.Constraints,
		Parameters:  parsed.Parameters,
		Confidence:  parsed.Confidence,
		Weight:      m.weight,
	}, nil
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}
