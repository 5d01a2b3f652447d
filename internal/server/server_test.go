package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/swetaais/analysis-agent/internal/audit"
	"github.com/swetaais/analysis-agent/internal/config"
	"github.com/swetaais/analysis-agent/internal/models"
	"github.com/swetaais/analysis-agent/internal/pipeline"
	"github.com/swetaais/analysis-agent/pkg/types"
)

type stubPipeline struct {
	analyzeResp *types.AnalyzeResponse
	analyzeErr  error
	tools       []models.ToolDescriptor
	runs        map[string]*models.RunRecord
	gotLimit    int
}

func (s *stubPipeline) Analyze(ctx context.Context, req *types.AnalyzeRequest) (*types.AnalyzeResponse, error) {
	return s.analyzeResp, s.analyzeErr
}

func (s *stubPipeline) Tools(ctx context.Context) ([]models.ToolDescriptor, error) {
	return s.tools, nil
}

func (s *stubPipeline) Run(ctx context.Context, id string) (*models.RunRecord, error) {
	if rec, ok := s.runs[id]; ok {
		return rec, nil
	}
	return nil, pipeline.ErrRunNotFound
}

func (s *stubPipeline) Runs(ctx context.Context, limit, offset int) ([]*models.RunRecord, error) {
	s.gotLimit = limit
	var out []*models.RunRecord
	for _, r := range s.runs {
		out = append(out, r)
	}
	return out, nil
}

func newTestServer(t *testing.T, p Pipeline) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	cfg.Server.AllowedOrigins = []string{"*"}
	s := New(cfg, p, audit.Nop())
	srv := httptest.NewServer(s.routes())
	t.Cleanup(srv.Close)
	t.Cleanup(s.hub.Close)
	return srv
}

func TestAnalyzeEndpoint(t *testing.T) {
	stub := &stubPipeline{analyzeResp: &types.AnalyzeResponse{
		RequestID: "run-1",
		Status:    models.PipelineSuccess,
		Summary:   models.ResultSummary{Total: 1, Successful: 1},
		ToolMeta:  types.ToolMeta{Goal: "anomaly_detection"},
	}}
	srv := newTestServer(t, stub)

	resp, err := http.Post(srv.URL+"/v1/analyze", "application/json",
		strings.NewReader(`{"task": "detect anomalies in sales data"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body types.AnalyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.RequestID != "run-1" || body.ToolMeta.Goal != "anomaly_detection" {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestAnalyzeRejectsEmptyTask(t *testing.T) {
	srv := newTestServer(t, &stubPipeline{})

	resp, err := http.Post(srv.URL+"/v1/analyze", "application/json",
		strings.NewReader(`{"task": "   "}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestAnalyzeRejectsMalformedJSON(t *testing.T) {
	srv := newTestServer(t, &stubPipeline{})

	resp, err := http.Post(srv.URL+"/v1/analyze", "application/json",
		strings.NewReader(`{"task": `))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestToolsEndpoint(t *testing.T) {
	stub := &stubPipeline{tools: []models.ToolDescriptor{
		{ID: "anomaly_zscore"}, {ID: "clustering_kmeans"},
	}}
	srv := newTestServer(t, stub)

	resp, err := http.Get(srv.URL + "/v1/tools")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Count int                     `json:"count"`
		Tools []models.ToolDescriptor `json:"tools"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 2 || len(body.Tools) != 2 {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestRunEndpointNotFound(t *testing.T) {
	srv := newTestServer(t, &stubPipeline{runs: map[string]*models.RunRecord{}})

	resp, err := http.Get(srv.URL + "/v1/runs/missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestRunsEndpointPassesLimit(t *testing.T) {
	stub := &stubPipeline{runs: map[string]*models.RunRecord{
		"run-1": {ID: "run-1", Status: models.PipelineSuccess},
	}}
	srv := newTestServer(t, stub)

	resp, err := http.Get(srv.URL + "/v1/runs?limit=5")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if stub.gotLimit != 5 {
		t.Errorf("expected limit 5 forwarded, got %d", stub.gotLimit)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubPipeline{})

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestStreamBroadcastsRunEvents(t *testing.T) {
	cfg := config.Default()
	cfg.Server.AllowedOrigins = []string{"*"}
	s := New(cfg, &stubPipeline{}, audit.Nop())
	srv := httptest.NewServer(s.routes())
	defer srv.Close()
	defer s.hub.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// the hub registers asynchronously with the upgrade response
	time.Sleep(50 * time.Millisecond)
	s.hub.Broadcast(pipeline.RunEvent{RunID: "run-7", Status: models.PipelineSuccess})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev pipeline.RunEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.RunID != "run-7" || ev.Status != models.PipelineSuccess {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestStreamRejectsDisallowedOrigin(t *testing.T) {
	cfg := config.Default()
	cfg.Server.AllowedOrigins = []string{"https://app.example.com"}
	s := New(cfg, &stubPipeline{}, audit.Nop())
	srv := httptest.NewServer(s.routes())
	defer srv.Close()
	defer s.hub.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/stream"
	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	if _, resp, err := websocket.DefaultDialer.Dial(wsURL, header); err == nil {
		t.Error("expected origin rejection")
	} else if resp != nil && resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %d", resp.StatusCode)
	}
}
