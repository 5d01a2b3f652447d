package intent

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/swetaais/analysis-agent/internal/audit"
	"github.com/swetaais/analysis-agent/internal/models"
)

type stubMethod struct {
	name models.ExtractionMethod
	vote *models.ExtractionVote
	err  error
}

func (s *stubMethod) Name() models.ExtractionMethod { return s.name }

func (s *stubMethod) Attempt(ctx context.Context, req Request) (*models.ExtractionVote, error) {
	return s.vote, s.err
}

func vote(method models.ExtractionMethod, goal string, confidence float64, weight int) *models.ExtractionVote {
	return &models.ExtractionVote{
		Method:     method,
		Goal:       goal,
		DataType:   "tabular",
		Confidence: confidence,
		Weight:     weight,
	}
}

func TestResolveUnanimousBoostsConfidence(t *testing.T) {
	r := NewResolver(audit.Nop(),
		&stubMethod{name: models.MethodPattern, vote: vote(models.MethodPattern, GoalAnomalyDetection, 0.6, 1)},
		&stubMethod{name: models.MethodModel, vote: vote(models.MethodModel, GoalAnomalyDetection, 0.7, 1)},
		&stubMethod{name: models.MethodExternalLLM, vote: vote(models.MethodExternalLLM, GoalAnomalyDetection, 0.8, 2)},
	)

	rec := r.Resolve(context.Background(), Request{Text: "detect anomalies"})
	if rec.Goal != GoalAnomalyDetection {
		t.Fatalf("expected anomaly_detection, got %s", rec.Goal)
	}
	if rec.ConsensusLevel != models.ConsensusUnanimous {
		t.Errorf("expected unanimous, got %s", rec.ConsensusLevel)
	}
	if want := 0.8 * 1.2; rec.Confidence != want {
		t.Errorf("expected confidence %.3f, got %.3f", want, rec.Confidence)
	}
	if rec.VoteBreakdown[GoalAnomalyDetection] != 4 {
		t.Errorf("expected tally weight 4, got %d", rec.VoteBreakdown[GoalAnomalyDetection])
	}
	if len(rec.DissentingGoals) != 0 {
		t.Errorf("unexpected dissent: %v", rec.DissentingGoals)
	}
}

func TestResolveConfidenceCappedAtOne(t *testing.T) {
	r := NewResolver(audit.Nop(),
		&stubMethod{name: models.MethodPattern, vote: vote(models.MethodPattern, GoalClustering, 0.95, 1)},
		&stubMethod{name: models.MethodModel, vote: vote(models.MethodModel, GoalClustering, 0.9, 1)},
	)

	rec := r.Resolve(context.Background(), Request{Text: "cluster the rows"})
	if rec.Confidence != 1.0 {
		t.Errorf("expected capped confidence 1.0, got %.3f", rec.Confidence)
	}
}

func TestResolveAllDeclinedYieldsUnknownSentinel(t *testing.T) {
	r := NewResolver(audit.Nop(),
		&stubMethod{name: models.MethodPattern},
		&stubMethod{name: models.MethodModel},
	)

	rec := r.Resolve(context.Background(), Request{Text: "make me a sandwich"})
	if rec.Goal != GoalUnknown {
		t.Fatalf("expected unknown goal, got %s", rec.Goal)
	}
	if rec.Confidence != 0 {
		t.Errorf("expected zero confidence, got %.3f", rec.Confidence)
	}
	if rec.ConsensusLevel != models.ConsensusNone {
		t.Errorf("expected consensus none, got %s", rec.ConsensusLevel)
	}
}

func TestResolveWeakConsensusRecordsDissent(t *testing.T) {
	r := NewResolver(audit.Nop(),
		&stubMethod{name: models.MethodPattern, vote: vote(models.MethodPattern, GoalClustering, 0.5, 1)},
		&stubMethod{name: models.MethodModel, vote: vote(models.MethodModel, GoalForecasting, 0.9, 1)},
	)

	rec := r.Resolve(context.Background(), Request{Text: "cluster or forecast"})
	if rec.Goal != GoalForecasting {
		t.Fatalf("expected tie to break on confidence, got %s", rec.Goal)
	}
	if rec.ConsensusLevel != models.ConsensusWeak {
		t.Errorf("expected weak consensus, got %s", rec.ConsensusLevel)
	}
	if want := 0.9 * 0.9; rec.Confidence != want {
		t.Errorf("expected dampened confidence %.3f, got %.3f", want, rec.Confidence)
	}
	if !reflect.DeepEqual(rec.DissentingGoals, []string{GoalClustering}) {
		t.Errorf("expected clustering dissent, got %v", rec.DissentingGoals)
	}
}

func TestResolveWeightedVoteOutranksCount(t *testing.T) {
	r := NewResolver(audit.Nop(),
		&stubMethod{name: models.MethodPattern, vote: vote(models.MethodPattern, GoalClustering, 0.9, 1)},
		&stubMethod{name: models.MethodModel, vote: vote(models.MethodModel, GoalClustering, 0.9, 1)},
		&stubMethod{name: models.MethodExternalLLM, vote: vote(models.MethodExternalLLM, GoalForecasting, 0.6, 3)},
	)

	rec := r.Resolve(context.Background(), Request{Text: "forecast or cluster"})
	if rec.Goal != GoalForecasting {
		t.Fatalf("expected weighted winner, got %s", rec.Goal)
	}
	if rec.ConsensusLevel != models.ConsensusMajority {
		t.Errorf("expected majority at 3/5 weight, got %s", rec.ConsensusLevel)
	}
}

func TestResolveSwallowsMethodFailure(t *testing.T) {
	r := NewResolver(audit.Nop(),
		&stubMethod{name: models.MethodExternalLLM, err: errors.New("upstream 503")},
		&stubMethod{name: models.MethodPattern, vote: vote(models.MethodPattern, GoalClustering, 0.6, 1)},
	)

	rec := r.Resolve(context.Background(), Request{Text: "segment customers"})
	if rec.Goal != GoalClustering {
		t.Fatalf("expected surviving vote to win, got %s", rec.Goal)
	}
	if rec.ConsensusLevel != models.ConsensusUnanimous {
		t.Errorf("failed method must not count against consensus, got %s", rec.ConsensusLevel)
	}
}

func TestResolveMergesParametersFirstWriterWins(t *testing.T) {
	a := vote(models.MethodPattern, GoalAnomalyDetection, 0.6, 1)
	a.Parameters = map[string]interface{}{"threshold": 2.5, "metric": "sales"}
	a.Constraints = []string{"max_time=30 seconds"}
	b := vote(models.MethodModel, GoalAnomalyDetection, 0.7, 1)
	b.Parameters = map[string]interface{}{"threshold": 9.9, "window": "7 days"}
	b.Constraints = []string{"max_time=30 seconds", "max_results=10"}

	r := NewResolver(audit.Nop(),
		&stubMethod{name: models.MethodPattern, vote: a},
		&stubMethod{name: models.MethodModel, vote: b},
	)

	rec := r.Resolve(context.Background(), Request{Text: "detect anomalies"})
	if rec.Parameters["threshold"] != 2.5 {
		t.Errorf("expected first writer to win threshold, got %v", rec.Parameters["threshold"])
	}
	if rec.Parameters["window"] != "7 days" || rec.Parameters["metric"] != "sales" {
		t.Errorf("expected union of parameters, got %v", rec.Parameters)
	}
	if !reflect.DeepEqual(rec.Constraints, []string{"max_time=30 seconds", "max_results=10"}) {
		t.Errorf("expected deduplicated ordered constraints, got %v", rec.Constraints)
	}
}

func TestPatternMethodExtractsGoalAndParameters(t *testing.T) {
	m := NewPatternMethod(0.4)
	v, err := m.Attempt(context.Background(), Request{
		Text: "Detect anomalies in sales data with threshold of 2.5 within 30 seconds",
	})
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if v == nil {
		t.Fatal("expected a vote")
	}
	if v.Goal != GoalAnomalyDetection {
		t.Errorf("expected anomaly_detection, got %s", v.Goal)
	}
	if v.Confidence < 0.4 || v.Confidence > 0.95 {
		t.Errorf("confidence out of range: %.3f", v.Confidence)
	}
	if v.Parameters["threshold"] != 2.5 {
		t.Errorf("expected threshold 2.5, got %v", v.Parameters["threshold"])
	}
	if !reflect.DeepEqual(v.Constraints, []string{"max_time=30 seconds"}) {
		t.Errorf("expected max_time constraint, got %v", v.Constraints)
	}
}

func TestPatternMethodDeclinesBelowFloor(t *testing.T) {
	m := NewPatternMethod(0.99)
	v, err := m.Attempt(context.Background(), Request{Text: "detect anomalies"})
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if v != nil {
		t.Errorf("expected decline under raised floor, got %+v", v)
	}
}

func TestPatternMethodDeclinesOnNoMatch(t *testing.T) {
	m := NewPatternMethod(0.4)
	v, err := m.Attempt(context.Background(), Request{Text: "order a pizza"})
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if v != nil {
		t.Errorf("expected no vote, got %+v", v)
	}
}

func TestModelMethodScoresStems(t *testing.T) {
	m := NewModelMethod()
	v, err := m.Attempt(context.Background(), Request{
		Text: "find anomalous spikes and outliers in the metrics",
	})
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if v == nil || v.Goal != GoalAnomalyDetection {
		t.Fatalf("expected anomaly_detection vote, got %+v", v)
	}
	if v.Confidence <= 0.5 || v.Confidence >= 1.0 {
		t.Errorf("confidence outside expected band: %.3f", v.Confidence)
	}
}

func TestDetectDataTypePrefersSampleColumns(t *testing.T) {
	dt := detectDataType("analyze this table", []map[string]interface{}{
		{"timestamp": "2026-01-01T00:00:00Z", "value": 1.0},
	})
	if dt != "timeseries" {
		t.Errorf("expected timeseries from timestamp column, got %s", dt)
	}

	dt = detectDataType("show it on a map", nil)
	if dt != "geospatial" {
		t.Errorf("expected geospatial from text cues, got %s", dt)
	}

	dt = detectDataType("crunch the numbers", nil)
	if dt != "tabular" {
		t.Errorf("expected tabular default, got %s", dt)
	}
}

func TestSecondaryGoalsOrderedByOccurrence(t *testing.T) {
	rec := NewResolver(audit.Nop(),
		&stubMethod{name: models.MethodPattern, vote: vote(models.MethodPattern, GoalAnomalyDetection, 0.6, 1)},
	).Resolve(context.Background(), Request{
		Text: "detect anomalies in the metrics and then forecast next month",
	})

	if len(rec.SecondaryGoals) == 0 || rec.SecondaryGoals[0] != GoalForecasting {
		t.Errorf("expected forecasting as first secondary goal, got %v", rec.SecondaryGoals)
	}
}
