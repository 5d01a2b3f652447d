// Package pipeline wires intent resolution, planning, and execution into
// the end-to-end analyze flow and persists the resulting run history.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/swetaais/analysis-agent/internal/audit"
	"github.com/swetaais/analysis-agent/internal/executor"
	"github.com/swetaais/analysis-agent/internal/intent"
	"github.com/swetaais/analysis-agent/internal/metrics"
	"github.com/swetaais/analysis-agent/internal/models"
	"github.com/swetaais/analysis-agent/internal/planner"
	"github.com/swetaais/analysis-agent/internal/registry"
	"github.com/swetaais/analysis-agent/pkg/types"
)

// SnapshotProvider yields the registry snapshot a run plans against.
type SnapshotProvider interface {
	Snapshot(ctx context.Context) (*registry.Snapshot, error)
}

// RunEvent is the notification fanned out to stream subscribers when a run
// reaches a terminal state.
type RunEvent struct {
	RunID    string                `json:"run_id"`
	TenantID string                `json:"tenant_id,omitempty"`
	Goal     string                `json:"goal"`
	Status   models.PipelineStatus `json:"status"`
	Strategy models.Strategy       `json:"strategy,omitempty"`
	At       time.Time             `json:"at"`
}

// Coordinator drives one pipeline run per Analyze call: snapshot the
// registry, resolve intent, plan, execute, persist, notify.
type Coordinator struct {
	registry SnapshotProvider
	resolver *intent.Resolver
	planner  *planner.Planner
	exec     *executor.Executor
	store    Store
	log      audit.Logger
	notify   func(RunEvent)
}

// NewCoordinator assembles the pipeline. notify may be nil.
func NewCoordinator(reg SnapshotProvider, res *intent.Resolver, pl *planner.Planner,
	ex *executor.Executor, store Store, log audit.Logger, notify func(RunEvent)) *Coordinator {
	return &Coordinator{
		registry: reg,
		resolver: res,
		planner:  pl,
		exec:     ex,
		store:    store,
		log:      log,
		notify:   notify,
	}
}

// Analyze runs the full pipeline for one request. The error return covers
// infrastructure failures only; analysis-level failures come back inside
// the response status.
func (c *Coordinator) Analyze(ctx context.Context, req *types.AnalyzeRequest) (*types.AnalyzeResponse, error) {
	runID := uuid.NewString()
	if audit.CorrelationIDFrom(ctx) == "" {
		ctx = audit.WithCorrelationID(ctx, runID)
	}
	started := time.Now()

	c.log.Log(ctx, audit.NewEvent(audit.EventRunStarted).
		WithRun(runID).WithTenant(req.TenantID).
		WithDescription(req.Task).WithResult(audit.ResultPending))

	snap, err := c.registry.Snapshot(ctx)
	if err != nil {
		c.log.Log(ctx, audit.NewEvent(audit.EventRunFailed).
			WithRun(runID).WithTenant(req.TenantID).WithError(err, "registry_unavailable"))
		metrics.RunsTotal.WithLabelValues("infrastructure_error").Inc()
		return nil, fmt.Errorf("registry snapshot: %w", err)
	}

	rec := c.resolver.Resolve(ctx, intent.Request{Text: req.Task, Data: req.Data})
	c.log.Log(ctx, audit.NewEvent(audit.EventIntentResolved).
		WithRun(runID).WithTenant(req.TenantID).
		WithDescription(rec.Goal).
		WithMetadata("consensus_level", string(rec.ConsensusLevel)).
		WithMetadata("confidence", rec.Confidence).
		WithResult(audit.ResultSuccess))

	// the planner never sees an unknown goal
	if rec.Goal == intent.GoalUnknown && len(req.ForcedTools) == 0 {
		resp := c.clarificationResponse(runID, rec)
		c.finishRun(ctx, runID, req, rec, "", "none", started, resp)
		return resp, nil
	}

	// explicit caller parameters override anything extracted from the text
	if len(req.Params) > 0 {
		if rec.Parameters == nil {
			rec.Parameters = make(map[string]interface{}, len(req.Params))
		}
		for k, v := range req.Params {
			rec.Parameters[k] = v
		}
	}

	plan := c.planner.Plan(rec, snap, req.ForcedTools)
	if plan.RequiresFeedback {
		c.log.Log(ctx, audit.NewEvent(audit.EventFeedbackRequested).
			WithRun(runID).WithTenant(req.TenantID).
			WithDescription(plan.Reasoning).WithResult(audit.ResultPending))
	} else {
		c.log.Log(ctx, audit.NewEvent(audit.EventPlanCreated).
			WithRun(runID).WithTenant(req.TenantID).
			WithDescription(plan.Reasoning).
			WithMetadata("strategy", string(plan.Strategy)).
			WithMetadata("steps", len(plan.Steps)).
			WithResult(audit.ResultSuccess))
	}

	result := c.exec.Execute(ctx, plan, executor.Input{
		RunID:    runID,
		TenantID: req.TenantID,
		Goal:     rec.Goal,
		Data:     req.Data,
	})

	resp := &types.AnalyzeResponse{
		RequestID:       runID,
		Status:          result.Status,
		Outcomes:        result.Outcomes,
		Summary:         result.Summary,
		FeedbackRequest: result.FeedbackRequest,
		ToolMeta: types.ToolMeta{
			Goal:            rec.Goal,
			ConsensusLevel:  rec.ConsensusLevel,
			Confidence:      rec.Confidence,
			VoteBreakdown:   rec.VoteBreakdown,
			DissentingGoals: rec.DissentingGoals,
			Strategy:        plan.Strategy,
			Reasoning:       plan.Reasoning,
			Invoked:         invokedTools(result.Outcomes),
		},
	}
	c.finishRun(ctx, runID, req, rec, plan.Reasoning, string(plan.Strategy), started, resp)
	return resp, nil
}

// Tools lists the current registry snapshot for the read-only tools API.
func (c *Coordinator) Tools(ctx context.Context) ([]models.ToolDescriptor, error) {
	snap, err := c.registry.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.List(), nil
}

// Run retrieves one persisted run.
func (c *Coordinator) Run(ctx context.Context, id string) (*models.RunRecord, error) {
	return c.store.GetRun(ctx, id)
}

// Runs lists persisted runs, newest first.
func (c *Coordinator) Runs(ctx context.Context, limit, offset int) ([]*models.RunRecord, error) {
	return c.store.ListRuns(ctx, limit, offset)
}

// clarificationResponse is the short-circuit for an unresolvable goal. No
// tool is ever invoked for it.
func (c *Coordinator) clarificationResponse(runID string, rec models.IntentRecord) *types.AnalyzeResponse {
	return &types.AnalyzeResponse{
		RequestID: runID,
		Status:    models.PipelineNeedsFeedback,
		FeedbackRequest: &models.FeedbackRequest{
			Message: "the analysis goal could not be determined from the task",
			Options: []models.FeedbackOption{
				{OptionID: "rephrase", Message: "rephrase the task with a concrete analysis goal", Action: "rephrase"},
				{OptionID: "list_capabilities", Message: "list the analyses this agent can run", Action: "list_capabilities"},
				{OptionID: "cancel", Message: "cancel the analysis request", Action: "cancel"},
			},
		},
		ToolMeta: types.ToolMeta{
			Goal:            rec.Goal,
			ConsensusLevel:  rec.ConsensusLevel,
			Confidence:      rec.Confidence,
			VoteBreakdown:   rec.VoteBreakdown,
			DissentingGoals: rec.DissentingGoals,
		},
	}
}

// finishRun persists the record, emits terminal metrics and audit events,
// and notifies stream subscribers.
func (c *Coordinator) finishRun(ctx context.Context, runID string, req *types.AnalyzeRequest,
	rec models.IntentRecord, reasoning, strategy string, started time.Time, resp *types.AnalyzeResponse) {

	finished := time.Now()
	metrics.RunsTotal.WithLabelValues(string(resp.Status)).Inc()
	metrics.RunDuration.WithLabelValues(strategy).Observe(finished.Sub(started).Seconds())

	record := &models.RunRecord{
		ID:         runID,
		TenantID:   req.TenantID,
		Task:       req.Task,
		Goal:       rec.Goal,
		Status:     resp.Status,
		Summary:    resp.Summary,
		Reasoning:  reasoning,
		StartedAt:  started.UTC(),
		FinishedAt: finished.UTC(),
	}
	if err := c.store.SaveRun(ctx, record); err != nil {
		c.log.App().Error("persisting run record", zap.String("run_id", runID), zap.Error(err))
	}

	eventType := audit.EventRunCompleted
	result := audit.ResultSuccess
	if resp.Status == models.PipelineFailed {
		eventType = audit.EventRunFailed
		result = audit.ResultFailure
	}
	c.log.Log(ctx, audit.NewEvent(eventType).
		WithRun(runID).WithTenant(req.TenantID).
		WithDescription(string(resp.Status)).
		WithDuration(finished.Sub(started)).
		WithResult(result))

	if c.notify != nil {
		c.notify(RunEvent{
			RunID:    runID,
			TenantID: req.TenantID,
			Goal:     rec.Goal,
			Status:   resp.Status,
			Strategy: models.Strategy(strategy),
			At:       finished.UTC(),
		})
	}
}

func invokedTools(outcomes []models.ToolOutcome) []string {
	if len(outcomes) == 0 {
		return nil
	}
	ids := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		if o.AttemptsMade > 0 {
			ids = append(ids, o.ToolID)
		}
	}
	return ids
}
