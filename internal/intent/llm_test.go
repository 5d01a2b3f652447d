package intent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/swetaais/analysis-agent/internal/models"
)

// scriptedModel replays a fixed chat completion.
type scriptedModel struct {
	reply string
	err   error
}

func (s *scriptedModel) GenerateContent(ctx context.Context, _ []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: s.reply}}}, nil
}

func (s *scriptedModel) Call(ctx context.Context, _ string, _ ...llms.CallOption) (string, error) {
	return s.reply, s.err
}

func TestLLMMethodAttempt(t *testing.T) {
	cases := []struct {
		name     string
		reply    string
		err      error
		wantVote bool
		wantErr  bool
		goal     string
	}{
		{
			name:     "valid json reply",
			reply:    `{"goal": "anomaly_detection", "data_type": "tabular", "confidence": 0.9}`,
			wantVote: true,
			goal:     GoalAnomalyDetection,
		},
		{
			name:     "fenced json reply",
			reply:    "```json\n{\"goal\": \"clustering\", \"confidence\": 0.7}\n```",
			wantVote: true,
			goal:     GoalClustering,
		},
		{
			name:  "prose reply declines",
			reply: "I believe the user wants anomaly detection.",
		},
		{
			name:  "unknown goal declines",
			reply: `{"goal": "order_pizza", "confidence": 0.95}`,
		},
		{
			name:    "transport error surfaces",
			err:     errors.New("connection refused"),
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := NewLLMMethodWithModel(&scriptedModel{reply: tc.reply, err: tc.err}, 3, time.Second)
			vote, err := m.Attempt(context.Background(), Request{Text: "analyze the data"})

			if tc.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("attempt: %v", err)
			}
			if !tc.wantVote {
				if vote != nil {
					t.Fatalf("expected a declined vote, got %+v", vote)
				}
				return
			}
			if vote == nil {
				t.Fatal("expected a vote")
			}
			if vote.Goal != tc.goal {
				t.Errorf("expected goal %s, got %s", tc.goal, vote.Goal)
			}
			if vote.Method != models.MethodExternalLLM || vote.Weight != 3 {
				t.Errorf("expected external_llm vote at weight 3, got %+v", vote)
			}
		})
	}
}

func TestLLMMethodFillsOmittedFieldsFromGrammar(t *testing.T) {
	m := NewLLMMethodWithModel(&scriptedModel{
		reply: `{"goal": "anomaly_detection", "confidence": 0.8}`,
	}, 2, time.Second)

	vote, err := m.Attempt(context.Background(), Request{
		Text: "detect anomalies with threshold of 2.5 within 30 seconds",
	})
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if vote == nil {
		t.Fatal("expected a vote")
	}
	if vote.DataType != "tabular" {
		t.Errorf("expected inferred tabular data type, got %s", vote.DataType)
	}
	if vote.Parameters["threshold"] != 2.5 {
		t.Errorf("expected threshold extracted from text, got %v", vote.Parameters)
	}
	if len(vote.Constraints) != 1 || vote.Constraints[0] != "max_time=30 seconds" {
		t.Errorf("expected max_time constraint from text, got %v", vote.Constraints)
	}
}

func TestLLMMethodClampsConfidence(t *testing.T) {
	m := NewLLMMethodWithModel(&scriptedModel{
		reply: `{"goal": "anomaly_detection", "confidence": 3.5}`,
	}, 2, time.Second)

	vote, err := m.Attempt(context.Background(), Request{Text: "detect anomalies"})
	if err != nil || vote == nil {
		t.Fatalf("expected a vote, got %+v / %v", vote, err)
	}
	if vote.Confidence != 1.0 {
		t.Errorf("expected confidence clamped to 1.0, got %g", vote.Confidence)
	}
}
