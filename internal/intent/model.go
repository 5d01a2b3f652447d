package intent

import (
	"context"
	"strings"

	"github.com/swetaais/analysis-agent/internal/models"
)

// goalKeywords are weighted token stems per goal, used by the model method.
// Stems are matched by substring over the lowered text, so "anomalies" and
// "anomalous" both hit "anomal".
var goalKeywords = map[string][]weightedStem{
	GoalAnomalyDetection: {
		{"anomal", 2.0}, {"outlier", 2.0}, {"unusual", 1.5}, {"spike", 1.0}, {"detect", 0.5},
	},
	GoalClustering: {
		{"cluster", 2.0}, {"segment", 1.5}, {"group", 1.0},
	},
	GoalFeatureEngineering: {
		{"feature", 2.0}, {"engineer", 1.5}, {"transform", 1.0},
	},
	GoalForecasting: {
		{"forecast", 2.0}, {"predict", 1.0}, {"trend", 1.0}, {"future", 1.0}, {"horizon", 1.0},
	},
	GoalClassification: {
		{"classif", 2.0}, {"categor", 1.5}, {"label", 1.0},
	},
	GoalRegression: {
		{"regress", 2.0}, {"estimat", 1.0},
	},
	GoalStatsComparison: {
		{"compar", 1.5}, {"a/b", 2.0}, {"statistic", 1.0}, {"significan", 1.5},
	},
	GoalGeospatial: {
		{"geo", 1.5}, {"spatial", 2.0}, {"location", 1.0}, {"latitude", 1.5},
	},
	GoalIncidentDetection: {
		{"incident", 2.0}, {"alert", 1.5}, {"breach", 1.5},
	},
	GoalReportGeneration: {
		{"report", 2.0},
	},
	GoalVisualization: {
		{"visualiz", 2.0}, {"chart", 1.5}, {"plot", 1.5},
	},
	GoalSummaryReport: {
		{"summar", 2.0},
	},
}

type weightedStem struct {
	stem   string
	weight float64
}

// ModelMethod scores weighted keyword stems against the request text. It
// stands in for the locally hosted scoring model and trades the pattern
// method's precision for broader recall.
type ModelMethod struct{}

func NewModelMethod() *ModelMethod { return &ModelMethod{} }

func (m *ModelMethod) Name() models.ExtractionMethod { return models.MethodModel }

// Attempt sums stem weights per goal and votes for the highest scorer with
// confidence score/(score+1), so a lone weak stem stays low while several
// strong stems approach 1. Declines when nothing scores at least 1.
func (m *ModelMethod) Attempt(ctx context.Context, req Request) (*models.ExtractionVote, error) {
	lower := strings.ToLower(req.Text)

	best, bestScore := GoalUnknown, 0.0
	for _, goal := range orderedGoals {
		score := 0.0
		for _, ws := range goalKeywords[goal] {
			if strings.Contains(lower, ws.stem) {
				score += ws.weight
			}
		}
		if score > bestScore || (score == bestScore && score > 0 && goal < best) {
			best, bestScore = goal, score
		}
	}
	if best == GoalUnknown || bestScore < 1.0 {
		return nil, nil
	}

	return &models.ExtractionVote{
		Method:      models.MethodModel,
		Goal:        best,
		DataType:    detectDataType(lower, req.Data),
		Constraints: extractConstraints(req.Text),
		Parameters:  extractParameters(req.Text),
		Confidence:  bestScore / (bestScore + 1),
		Weight:      1,
	}, nil
}
