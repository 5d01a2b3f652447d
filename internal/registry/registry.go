// Package registry provides read-only access to the external capability
// registry. Descriptors are loaded from a local JSON file or an HTTP
// endpoint and frozen into an immutable Snapshot per pipeline run; the core
// never writes back.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/swetaais/analysis-agent/internal/metrics"
	"github.com/swetaais/analysis-agent/internal/models"
)

// Source fetches the current set of tool descriptors.
type Source interface {
	Fetch(ctx context.Context) ([]models.ToolDescriptor, error)
	Name() string
}

// Snapshot is an immutable view of the registry taken before a pipeline run.
type Snapshot struct {
	tools []models.ToolDescriptor
	byID  map[string]models.ToolDescriptor
	taken time.Time
}

// NewSnapshot freezes the given descriptors. Tools are kept in a stable
// ID-sorted order so downstream planning is deterministic.
func NewSnapshot(tools []models.ToolDescriptor) *Snapshot {
	sorted := make([]models.ToolDescriptor, len(tools))
	copy(sorted, tools)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	byID := make(map[string]models.ToolDescriptor, len(sorted))
	for _, t := range sorted {
		byID[t.ID] = t
	}
	return &Snapshot{tools: sorted, byID: byID, taken: time.Now()}
}

// Get returns the descriptor for the given tool id.
func (s *Snapshot) Get(id string) (models.ToolDescriptor, bool) {
	t, ok := s.byID[id]
	return t, ok
}

// List returns a copy of all descriptors in ID order.
func (s *Snapshot) List() []models.ToolDescriptor {
	out := make([]models.ToolDescriptor, len(s.tools))
	copy(out, s.tools)
	return out
}

// Len returns the number of descriptors in the snapshot.
func (s *Snapshot) Len() int { return len(s.tools) }

// TakenAt returns when the snapshot was frozen.
func (s *Snapshot) TakenAt() time.Time { return s.taken }

// FileSource loads descriptors from a tools.json file.
type FileSource struct {
	Path string
}

func (f *FileSource) Name() string { return "file" }

func (f *FileSource) Fetch(ctx context.Context) ([]models.ToolDescriptor, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("reading registry file %s: %w", f.Path, err)
	}
	var tools []models.ToolDescriptor
	if err := json.Unmarshal(data, &tools); err != nil {
		return nil, fmt.Errorf("parsing registry file %s: %w", f.Path, err)
	}
	return tools, nil
}

// HTTPSource queries an HTTP registry for descriptors.
type HTTPSource struct {
	URL    string
	Client *http.Client
}

func (h *HTTPSource) Name() string { return "http" }

func (h *HTTPSource) Fetch(ctx context.Context) ([]models.ToolDescriptor, error) {
	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("building registry request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying registry %s: %w", h.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registry %s returned status %d", h.URL, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading registry response: %w", err)
	}
	var tools []models.ToolDescriptor
	if err := json.Unmarshal(body, &tools); err != nil {
		return nil, fmt.Errorf("parsing registry response: %w", err)
	}
	return tools, nil
}

// Client serves snapshots with TTL caching. Refreshing happens at most once
// per TTL window; concurrent pipeline runs within a window share a snapshot.
type Client struct {
	source Source
	ttl    time.Duration

	mu        sync.RWMutex
	snapshot  *Snapshot
	refreshed time.Time
}

// NewClient creates a registry client over the given source.
func NewClient(source Source, ttl time.Duration) *Client {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Client{source: source, ttl: ttl}
}

// Snapshot returns the current snapshot, refreshing from the source when the
// cached one is stale. A stale snapshot is served if the refresh fails and a
// previous snapshot exists, so a registry outage degrades rather than stops
// the pipeline.
func (c *Client) Snapshot(ctx context.Context) (*Snapshot, error) {
	c.mu.RLock()
	snap, refreshed := c.snapshot, c.refreshed
	c.mu.RUnlock()

	if snap != nil && time.Since(refreshed) < c.ttl {
		return snap, nil
	}

	tools, err := c.source.Fetch(ctx)
	if err != nil {
		metrics.RegistryRefreshes.WithLabelValues(c.source.Name(), "error").Inc()
		if snap != nil {
			return snap, nil
		}
		return nil, fmt.Errorf("registry refresh: %w", err)
	}
	metrics.RegistryRefreshes.WithLabelValues(c.source.Name(), "ok").Inc()
	metrics.RegistryTools.Set(float64(len(tools)))

	fresh := NewSnapshot(tools)
	c.mu.Lock()
	c.snapshot = fresh
	c.refreshed = time.Now()
	c.mu.Unlock()
	return fresh, nil
}
