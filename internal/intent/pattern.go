package intent

import (
	"context"
	"strings"

	"github.com/swetaais/analysis-agent/internal/models"
)

// PatternMethod extracts intent from goal phrase tables and the regex
// entity grammar. It is the cheapest method and runs on every request.
type PatternMethod struct {
	// Floor is the confidence below which the method declines to vote.
	Floor float64
}

// NewPatternMethod creates the pattern method with the given decline floor.
func NewPatternMethod(floor float64) *PatternMethod {
	return &PatternMethod{Floor: floor}
}

func (m *PatternMethod) Name() models.ExtractionMethod { return models.MethodPattern }

// Attempt scores goal phrases against the request text. Confidence is
// 0.4 plus 0.2 per phrase match, capped at 0.95.
func (m *PatternMethod) Attempt(ctx context.Context, req Request) (*models.ExtractionVote, error) {
	lower := strings.ToLower(req.Text)
	goal, score := bestGoal(scoreGoalPhrases(lower))
	if goal == GoalUnknown || score == 0 {
		return nil, nil
	}

	confidence := 0.4 + 0.2*float64(score)
	if confidence > 0.95 {
		confidence = 0.95
	}
	if confidence < m.Floor {
		return nil, nil
	}

	return &models.ExtractionVote{
		Method:      models.MethodPattern,
		Goal:        goal,
		DataType:    detectDataType(lower, req.Data),
		Constraints: extractConstraints(req.Text),
		Parameters:  extractParameters(req.Text),
		Confidence:  confidence,
		Weight:      1,
	}, nil
}
