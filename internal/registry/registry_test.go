package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/swetaais/analysis-agent/internal/models"
)

const sampleRegistry = `[
  {"id": "anomaly_zscore", "endpoint": "http://anomaly:8000/run", "protocol": "REST",
   "version": "1.1.0", "supported_data_types": ["tabular", "timeseries"],
   "required_parameters": ["metric"], "health_status": "up"},
  {"id": "clustering", "endpoint": "http://clustering:8000/run", "protocol": "REST",
   "supported_data_types": ["tabular"], "required_parameters": [], "health_status": "up"}
]`

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tools.json")
	if err := os.WriteFile(path, []byte(sampleRegistry), 0o644); err != nil {
		t.Fatal(err)
	}

	src := &FileSource{Path: path}
	tools, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(tools) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(tools))
	}
	if tools[0].ID != "anomaly_zscore" || tools[0].Endpoint != "http://anomaly:8000/run" {
		t.Errorf("unexpected first descriptor: %+v", tools[0])
	}
}

func TestHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleRegistry))
	}))
	defer srv.Close()

	src := &HTTPSource{URL: srv.URL}
	tools, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(tools) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(tools))
	}
}

func TestSnapshotLookupAndOrder(t *testing.T) {
	snap := NewSnapshot([]models.ToolDescriptor{
		{ID: "zeta"},
		{ID: "alpha"},
	})
	if snap.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", snap.Len())
	}
	if _, ok := snap.Get("alpha"); !ok {
		t.Error("expected alpha to be present")
	}
	if _, ok := snap.Get("missing"); ok {
		t.Error("unexpected hit for missing tool")
	}
	list := snap.List()
	if list[0].ID != "alpha" || list[1].ID != "zeta" {
		t.Errorf("expected ID-sorted order, got %v", list)
	}
}

type countingSource struct {
	calls int32
	fail  bool
}

func (c *countingSource) Name() string { return "counting" }

func (c *countingSource) Fetch(ctx context.Context) ([]models.ToolDescriptor, error) {
	atomic.AddInt32(&c.calls, 1)
	if c.fail {
		return nil, context.DeadlineExceeded
	}
	return []models.ToolDescriptor{{ID: "anomaly_zscore"}}, nil
}

func TestClientCachesWithinTTL(t *testing.T) {
	src := &countingSource{}
	client := NewClient(src, time.Minute)

	for i := 0; i < 3; i++ {
		if _, err := client.Snapshot(context.Background()); err != nil {
			t.Fatalf("snapshot: %v", err)
		}
	}
	if n := atomic.LoadInt32(&src.calls); n != 1 {
		t.Errorf("expected single fetch within TTL, got %d", n)
	}
}

func TestClientServesStaleOnRefreshFailure(t *testing.T) {
	src := &countingSource{}
	client := NewClient(src, time.Nanosecond)

	first, err := client.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	src.fail = true
	time.Sleep(time.Millisecond)
	second, err := client.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("expected stale snapshot, got error: %v", err)
	}
	if second != first {
		t.Error("expected the stale snapshot to be reused")
	}
}

func TestClientFailsWithoutAnySnapshot(t *testing.T) {
	client := NewClient(&countingSource{fail: true}, time.Minute)
	if _, err := client.Snapshot(context.Background()); err == nil {
		t.Fatal("expected error when first refresh fails")
	}
}
