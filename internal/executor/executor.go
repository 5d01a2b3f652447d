// Package executor dispatches execution plans against external tools and
// aggregates the per-step outcomes into one pipeline result. Each step
// yields exactly one outcome; failures degrade the aggregate status but
// never panic or abort sibling steps.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/swetaais/analysis-agent/internal/audit"
	"github.com/swetaais/analysis-agent/internal/metrics"
	"github.com/swetaais/analysis-agent/internal/models"
)

// Input is the run context handed to every step of a plan.
type Input struct {
	RunID    string
	TenantID string
	Goal     string
	Data     []map[string]interface{}
}

// Options configures an Executor.
type Options struct {
	MaxConcurrent  int
	PlanningBudget time.Duration
	RetryBackoff   time.Duration
}

// Executor runs execution plans.
type Executor struct {
	invoker        *Invoker
	log            audit.Logger
	maxConcurrent  int
	planningBudget time.Duration
	backoff        time.Duration
}

// New creates an executor over the given invoker.
func New(invoker *Invoker, log audit.Logger, opts Options) *Executor {
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 5
	}
	if opts.PlanningBudget <= 0 {
		opts.PlanningBudget = 5 * time.Second
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 100 * time.Millisecond
	}
	return &Executor{
		invoker:        invoker,
		log:            log,
		maxConcurrent:  opts.MaxConcurrent,
		planningBudget: opts.PlanningBudget,
		backoff:        opts.RetryBackoff,
	}
}

// Execute runs the plan to completion. A plan flagged for feedback is never
// dispatched; the flag converts directly into a needs_feedback result. The
// whole run is bounded by the sum of the step timeouts plus the planning
// budget.
func (e *Executor) Execute(ctx context.Context, plan models.ExecutionPlan, in Input) models.PipelineResult {
	if plan.RequiresFeedback {
		return models.PipelineResult{
			Status:          models.PipelineNeedsFeedback,
			Summary:         models.ResultSummary{},
			FeedbackRequest: feedbackFromPlan(plan),
		}
	}
	if len(plan.Steps) == 0 {
		return models.PipelineResult{Status: models.PipelineFailed}
	}

	budget := e.planningBudget
	for _, s := range plan.Steps {
		budget += time.Duration(s.TimeoutSeconds * float64(time.Second))
	}
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	var outcomes []models.ToolOutcome
	switch plan.Strategy {
	case models.StrategySequential:
		outcomes = e.runSequential(ctx, plan.Steps, in)
	case models.StrategyParallel:
		outcomes = e.runParallel(ctx, plan.Steps, in)
	default:
		outcomes = e.runSequential(ctx, plan.Steps, in)
	}
	return aggregate(plan, outcomes)
}

// runParallel dispatches every step at once under the concurrency limit.
// Outcomes land at their step's index so the result keeps plan order no
// matter which step finishes first.
func (e *Executor) runParallel(ctx context.Context, steps []models.ToolInvocationSpec, in Input) []models.ToolOutcome {
	outcomes := make([]models.ToolOutcome, len(steps))

	g := &errgroup.Group{}
	g.SetLimit(e.maxConcurrent)
	for i, step := range steps {
		i, step := i, step
		g.Go(func() error {
			outcomes[i] = e.runStep(ctx, step, in, nil)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// runSequential runs steps in plan order, feeding each step the outputs of
// the ones before it. A failed step stops dispatch; every remaining step is
// marked failed without being sent.
func (e *Executor) runSequential(ctx context.Context, steps []models.ToolInvocationSpec, in Input) []models.ToolOutcome {
	outcomes := make([]models.ToolOutcome, 0, len(steps))
	prior := make(map[string]interface{})

	for i, step := range steps {
		outcome := e.runStep(ctx, step, in, prior)
		outcomes = append(outcomes, outcome)
		if outcome.Status != models.OutcomeSuccess {
			for _, skipped := range steps[i+1:] {
				outcomes = append(outcomes, models.ToolOutcome{
					ToolID: skipped.ToolID,
					Status: models.OutcomeError,
					Error:  fmt.Sprintf("dependency %s did not succeed", step.ToolID),
				})
			}
			break
		}
		prior[step.ToolID] = outcome.Output
	}
	return outcomes
}

// runStep performs one step with its retry budget and emits metrics and
// audit events for the terminal attempt.
func (e *Executor) runStep(ctx context.Context, step models.ToolInvocationSpec, in Input, prior map[string]interface{}) models.ToolOutcome {
	payload := toolPayload{
		Input:  in.Data,
		Params: step.Parameters,
		Context: invocationContext{
			Goal:         in.Goal,
			TraceID:      audit.CorrelationIDFrom(ctx),
			TenantID:     in.TenantID,
			PriorOutputs: prior,
		},
	}

	stepTimeout := time.Duration(step.TimeoutSeconds * float64(time.Second))
	stepCtx, cancel := context.WithTimeout(ctx, stepTimeout)
	defer cancel()

	started := time.Now()
	output, attempts, err := withRetries(stepCtx, step.MaxRetries, e.backoff,
		func(ctx context.Context) (map[string]interface{}, error) {
			return e.invoker.Invoke(ctx, step, payload)
		})
	elapsed := time.Since(started)

	metrics.ToolInvocationDuration.WithLabelValues(step.ToolID).Observe(elapsed.Seconds())
	if attempts > 1 {
		metrics.ToolRetries.WithLabelValues(step.ToolID).Add(float64(attempts - 1))
	}

	outcome := models.ToolOutcome{ToolID: step.ToolID, AttemptsMade: attempts}
	switch {
	case err == nil:
		outcome.Status = models.OutcomeSuccess
		outcome.Output = output
		e.log.Log(ctx, audit.NewEvent(audit.EventToolInvoked).
			WithRun(in.RunID).WithTenant(in.TenantID).WithTool(step.ToolID).
			WithDuration(elapsed).WithResult(audit.ResultSuccess))
	case classify(err) == FailureUnavailable:
		outcome.Status = models.OutcomeUnavailable
		outcome.Error = err.Error()
		e.log.Log(ctx, audit.NewEvent(audit.EventToolUnavailable).
			WithRun(in.RunID).WithTenant(in.TenantID).WithTool(step.ToolID).
			WithDuration(elapsed).WithError(err, "endpoint_not_found"))
	case errors.Is(stepCtx.Err(), context.DeadlineExceeded):
		outcome.Status = models.OutcomeTimeout
		outcome.Error = fmt.Sprintf("tool %s timed out after %.1fs", step.ToolID, step.TimeoutSeconds)
		e.log.Log(ctx, audit.NewEvent(audit.EventToolFailed).
			WithRun(in.RunID).WithTenant(in.TenantID).WithTool(step.ToolID).
			WithDuration(elapsed).WithError(err, "timeout"))
	default:
		outcome.Status = models.OutcomeError
		outcome.Error = err.Error()
		e.log.Log(ctx, audit.NewEvent(audit.EventToolFailed).
			WithRun(in.RunID).WithTenant(in.TenantID).WithTool(step.ToolID).
			WithDuration(elapsed).WithError(err, "invocation_failed"))
	}
	metrics.ToolInvocations.WithLabelValues(step.ToolID, string(outcome.Status)).Inc()
	return outcome
}

// aggregate folds step outcomes into the pipeline status. Unavailable tools
// dominate: the caller has to decide how to proceed, so the run surfaces a
// feedback request even when sibling steps succeeded.
func aggregate(plan models.ExecutionPlan, outcomes []models.ToolOutcome) models.PipelineResult {
	summary := models.ResultSummary{Total: len(outcomes)}
	var unavailable []string
	for _, o := range outcomes {
		switch o.Status {
		case models.OutcomeSuccess:
			summary.Successful++
		case models.OutcomeUnavailable:
			summary.Unavailable++
			unavailable = append(unavailable, o.ToolID)
		default:
			summary.Failed++
		}
	}

	result := models.PipelineResult{Outcomes: outcomes, Summary: summary}
	switch {
	case summary.Unavailable > 0:
		result.Status = models.PipelineNeedsFeedback
		result.FeedbackRequest = feedbackForUnavailable(plan, unavailable)
	case summary.Successful == summary.Total:
		result.Status = models.PipelineSuccess
	case summary.Successful > 0:
		result.Status = models.PipelinePartialSuccess
	default:
		result.Status = models.PipelineFailed
	}
	return result
}

// feedbackFromPlan converts the planner's fallback options into the
// caller-facing feedback request.
func feedbackFromPlan(plan models.ExecutionPlan) *models.FeedbackRequest {
	var unavailable []string
	for _, c := range plan.Conflicts {
		if c.Kind == models.ConflictToolUnavailable && c.Resolution == models.ResolveUserFeedback && c.ToolID != "" {
			unavailable = append(unavailable, c.ToolID)
		}
	}

	options := make([]models.FeedbackOption, 0, len(plan.FallbackOptions))
	for _, f := range plan.FallbackOptions {
		options = append(options, models.FeedbackOption{
			OptionID: f.OptionID,
			Message:  f.Description,
			Action:   f.OptionID,
			Tools:    f.CandidateTools,
		})
	}
	if len(options) == 0 {
		options = defaultFeedbackOptions(nil)
	}

	return &models.FeedbackRequest{
		Message:          "the request cannot be executed as planned",
		UnavailableTools: unavailable,
		Conflicts:        plan.Conflicts,
		Options:          options,
	}
}

// feedbackForUnavailable synthesizes the escalation for tools that turned
// unreachable during execution. Alternative candidates come from the plan's
// fallback options, minus the tools that just dropped out.
func feedbackForUnavailable(plan models.ExecutionPlan, tools []string) *models.FeedbackRequest {
	down := make(map[string]bool, len(tools))
	for _, id := range tools {
		down[id] = true
	}
	var alternatives []string
	for _, f := range plan.FallbackOptions {
		if f.OptionID != "select_alternative" {
			continue
		}
		for _, id := range f.CandidateTools {
			if !down[id] {
				alternatives = append(alternatives, id)
			}
		}
	}

	options := defaultFeedbackOptions(tools)
	for i := range options {
		if options[i].OptionID == "select_alternative" {
			options[i].Tools = alternatives
		}
	}
	return &models.FeedbackRequest{
		Message: fmt.Sprintf("the following tools were unavailable during execution: %s",
			strings.Join(tools, ", ")),
		UnavailableTools: tools,
		Options:          options,
	}
}

func defaultFeedbackOptions(tools []string) []models.FeedbackOption {
	return []models.FeedbackOption{
		{
			OptionID: "select_alternative",
			Message:  "run the analysis with a different tool",
			Action:   "select_alternative",
		},
		{
			OptionID: "create_new_tool",
			Message:  "request creation of the missing capability",
			Action:   "create_new_tool",
			Tools:    tools,
		},
		{
			OptionID: "cancel",
			Message:  "cancel the analysis request",
			Action:   "cancel",
		},
	}
}
