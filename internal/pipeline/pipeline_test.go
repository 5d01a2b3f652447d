package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/swetaais/analysis-agent/internal/audit"
	"github.com/swetaais/analysis-agent/internal/executor"
	"github.com/swetaais/analysis-agent/internal/intent"
	"github.com/swetaais/analysis-agent/internal/models"
	"github.com/swetaais/analysis-agent/internal/planner"
	"github.com/swetaais/analysis-agent/internal/registry"
	"github.com/swetaais/analysis-agent/pkg/types"
)

type staticRegistry struct {
	snap *registry.Snapshot
	err  error
}

func (s *staticRegistry) Snapshot(ctx context.Context) (*registry.Snapshot, error) {
	return s.snap, s.err
}

func newCoordinator(t *testing.T, snap *registry.Snapshot, notify func(RunEvent)) *Coordinator {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	log := audit.Nop()
	res := intent.NewResolver(log, intent.NewPatternMethod(0.4), intent.NewModelMethod())
	pl := planner.New(log, 5, 1)
	ex := executor.New(executor.NewInvoker("test-secret"), log,
		executor.Options{RetryBackoff: time.Millisecond})
	return NewCoordinator(&staticRegistry{snap: snap}, res, pl, ex, store, log, notify)
}

func toolServer(t *testing.T, hits *int32, output map[string]interface{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "success",
			"output": output,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func descriptorFor(id, endpoint string) models.ToolDescriptor {
	return models.ToolDescriptor{
		ID:                 id,
		Endpoint:           endpoint,
		Protocol:           "REST",
		Version:            "1.0.0",
		SupportedDataTypes: []string{"tabular", "timeseries"},
		HealthStatus:       "up",
	}
}

func TestAnalyzeSingleToolSuccess(t *testing.T) {
	srv := toolServer(t, nil, map[string]interface{}{"anomaly_count": 2.0})
	snap := registry.NewSnapshot([]models.ToolDescriptor{descriptorFor("anomaly_zscore", srv.URL)})

	var events []RunEvent
	c := newCoordinator(t, snap, func(ev RunEvent) { events = append(events, ev) })

	resp, err := c.Analyze(context.Background(), &types.AnalyzeRequest{
		TenantID: "acme",
		Task:     "Detect anomalies in sales data with threshold of 2.5",
		Data:     []map[string]interface{}{{"sales": 100.0}, {"sales": 900.0}},
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if resp.Status != models.PipelineSuccess {
		t.Fatalf("expected success, got %s: %+v", resp.Status, resp)
	}
	if resp.ToolMeta.Goal != "anomaly_detection" {
		t.Errorf("expected anomaly_detection goal, got %s", resp.ToolMeta.Goal)
	}
	if resp.ToolMeta.Strategy != models.StrategySingle {
		t.Errorf("expected single strategy, got %s", resp.ToolMeta.Strategy)
	}
	if len(resp.ToolMeta.Invoked) != 1 || resp.ToolMeta.Invoked[0] != "anomaly_zscore" {
		t.Errorf("expected anomaly_zscore invoked, got %v", resp.ToolMeta.Invoked)
	}
	if resp.Summary.Successful != 1 || resp.Summary.Total != 1 {
		t.Errorf("unexpected summary: %+v", resp.Summary)
	}

	rec, err := c.Run(context.Background(), resp.RequestID)
	if err != nil {
		t.Fatalf("run not persisted: %v", err)
	}
	if rec.Status != models.PipelineSuccess || rec.Goal != "anomaly_detection" || rec.TenantID != "acme" {
		t.Errorf("unexpected persisted record: %+v", rec)
	}

	if len(events) != 1 || events[0].Status != models.PipelineSuccess {
		t.Errorf("expected one success notification, got %+v", events)
	}
}

func TestAnalyzeUnknownGoalNeverInvokesTools(t *testing.T) {
	var hits int32
	srv := toolServer(t, &hits, nil)
	snap := registry.NewSnapshot([]models.ToolDescriptor{descriptorFor("anomaly_zscore", srv.URL)})

	c := newCoordinator(t, snap, nil)
	resp, err := c.Analyze(context.Background(), &types.AnalyzeRequest{
		Task: "please order me a pizza",
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if resp.Status != models.PipelineNeedsFeedback {
		t.Fatalf("expected needs_feedback, got %s", resp.Status)
	}
	if len(resp.Outcomes) != 0 {
		t.Errorf("expected no outcomes, got %+v", resp.Outcomes)
	}
	if resp.FeedbackRequest == nil || len(resp.FeedbackRequest.Options) < 3 {
		t.Fatalf("expected clarification options, got %+v", resp.FeedbackRequest)
	}
	if n := atomic.LoadInt32(&hits); n != 0 {
		t.Errorf("tool dispatched %d times for an unknown goal", n)
	}
	if resp.ToolMeta.ConsensusLevel != models.ConsensusNone {
		t.Errorf("expected consensus none, got %s", resp.ToolMeta.ConsensusLevel)
	}
}

func TestAnalyzeWeakConsensusSurfacesDissent(t *testing.T) {
	srv := toolServer(t, nil, map[string]interface{}{})
	snap := registry.NewSnapshot([]models.ToolDescriptor{
		descriptorFor("anomaly_zscore", srv.URL),
		descriptorFor("feature_engineering", srv.URL),
		descriptorFor("clustering_kmeans", srv.URL),
	})

	// "segment" reads as clustering to the phrase tables while "spike" and
	// "outlier" read as anomaly detection to the keyword scorer, so the two
	// methods split the vote.
	c := newCoordinator(t, snap, nil)
	resp, err := c.Analyze(context.Background(), &types.AnalyzeRequest{
		Task: "segment the accounts, the usage spike and outlier values worry me",
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if resp.ToolMeta.Goal != "anomaly_detection" {
		t.Fatalf("expected anomaly_detection to win the split vote, got %s", resp.ToolMeta.Goal)
	}
	if resp.ToolMeta.ConsensusLevel != models.ConsensusWeak {
		t.Errorf("expected weak consensus, got %s", resp.ToolMeta.ConsensusLevel)
	}
	if len(resp.ToolMeta.DissentingGoals) != 1 || resp.ToolMeta.DissentingGoals[0] != "clustering" {
		t.Errorf("expected clustering listed as dissent, got %v", resp.ToolMeta.DissentingGoals)
	}
}

func TestAnalyzeCallerParamsOverrideExtracted(t *testing.T) {
	var gotThreshold atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Params map[string]interface{} `json:"params"`
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		gotThreshold.Store(payload.Params["zscore_threshold"])
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": "success", "output": map[string]interface{}{}})
	}))
	defer srv.Close()
	snap := registry.NewSnapshot([]models.ToolDescriptor{descriptorFor("anomaly_zscore", srv.URL)})

	c := newCoordinator(t, snap, nil)
	resp, err := c.Analyze(context.Background(), &types.AnalyzeRequest{
		Task:   "detect anomalies with threshold of 2.5",
		Params: map[string]interface{}{"threshold": 4.0},
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if resp.Status != models.PipelineSuccess {
		t.Fatalf("expected success, got %s", resp.Status)
	}
	if v, _ := gotThreshold.Load().(float64); v != 4.0 {
		t.Errorf("expected caller threshold 4.0 to win, tool saw %v", gotThreshold.Load())
	}
}

func TestAnalyzeMissingToolRequestsFeedback(t *testing.T) {
	snap := registry.NewSnapshot(nil)
	c := newCoordinator(t, snap, nil)

	resp, err := c.Analyze(context.Background(), &types.AnalyzeRequest{
		Task: "detect anomalies in the data",
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if resp.Status != models.PipelineNeedsFeedback {
		t.Fatalf("expected needs_feedback, got %s", resp.Status)
	}
	if resp.FeedbackRequest == nil {
		t.Fatal("expected a feedback request")
	}
	hasCancel := false
	for _, o := range resp.FeedbackRequest.Options {
		if o.OptionID == "cancel" {
			hasCancel = true
		}
	}
	if !hasCancel {
		t.Errorf("expected cancel option, got %+v", resp.FeedbackRequest.Options)
	}
}

func TestAnalyzeRegistryFailureIsInfrastructureError(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	log := audit.Nop()
	c := NewCoordinator(&staticRegistry{err: errors.New("registry down")},
		intent.NewResolver(log, intent.NewPatternMethod(0.4)),
		planner.New(log, 5, 0),
		executor.New(executor.NewInvoker("s"), log, executor.Options{}),
		store, log, nil)

	if _, err := c.Analyze(context.Background(), &types.AnalyzeRequest{Task: "detect anomalies"}); err == nil {
		t.Fatal("expected an error when the registry is unreachable")
	}
}

func TestStoreRoundTrip(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	now := time.Now().UTC().Truncate(time.Second)
	rec := &models.RunRecord{
		ID:         "run-1",
		TenantID:   "acme",
		Task:       "detect anomalies",
		Goal:       "anomaly_detection",
		Status:     models.PipelinePartialSuccess,
		Summary:    models.ResultSummary{Total: 2, Successful: 1, Failed: 1},
		Reasoning:  "strategy parallel over 2 step(s)",
		StartedAt:  now.Add(-time.Minute),
		FinishedAt: now,
	}
	if err := store.SaveRun(context.Background(), rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.GetRun(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.PipelinePartialSuccess || got.Summary.Successful != 1 {
		t.Errorf("unexpected record: %+v", got)
	}

	runs, err := store.ListRuns(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "run-1" {
		t.Errorf("unexpected list: %+v", runs)
	}

	if _, err := store.GetRun(context.Background(), "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}
