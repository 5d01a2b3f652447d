// Package planner turns a resolved intent and a registry snapshot into a
// deterministic execution plan. Planning is a pure function of its inputs:
// the same intent against the same snapshot always yields the same plan.
package planner

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/swetaais/analysis-agent/internal/audit"
	"github.com/swetaais/analysis-agent/internal/intent"
	"github.com/swetaais/analysis-agent/internal/metrics"
	"github.com/swetaais/analysis-agent/internal/models"
	"github.com/swetaais/analysis-agent/internal/registry"
)

// Planner builds execution plans. Timeout and retry budgets come from
// configuration and apply uniformly to every step.
type Planner struct {
	log            audit.Logger
	timeoutSeconds float64
	maxRetries     int
}

// New creates a planner with the given per-step budgets.
func New(log audit.Logger, timeoutSeconds float64, maxRetries int) *Planner {
	if timeoutSeconds <= 0 {
		timeoutSeconds = 30
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Planner{log: log, timeoutSeconds: timeoutSeconds, maxRetries: maxRetries}
}

// Plan maps the intent's goals onto registered tools. Forced tool IDs, when
// present, bypass goal affinity entirely and are validated directly against
// the snapshot.
func (p *Planner) Plan(rec models.IntentRecord, snap *registry.Snapshot, forced []string) models.ExecutionPlan {
	if len(forced) > 0 {
		return p.planForced(rec, snap, forced)
	}

	goals := expandGoals(rec)

	var (
		steps     []models.ToolInvocationSpec
		conflicts []models.Conflict
		failed    []string // goals with no usable tool
		unavail   []string // tool ids behind the failures
	)
	for _, goal := range goals {
		step, goalConflicts, ok := p.selectTool(goal, rec, snap)
		conflicts = append(conflicts, goalConflicts...)
		if !ok {
			failed = append(failed, goal)
			for _, c := range goalConflicts {
				if c.Kind == models.ConflictToolUnavailable && c.Resolution == models.ResolveUserFeedback {
					unavail = append(unavail, c.ToolID)
				}
			}
			continue
		}
		step.Order = len(steps)
		steps = append(steps, step)
	}

	strategy := strategyFor(goals, steps)
	if strategy == models.StrategySequential {
		conflicts = append(conflicts, chainConflicts(steps)...)
	}

	for _, c := range conflicts {
		metrics.PlanConflicts.WithLabelValues(string(c.Kind), string(c.Resolution)).Inc()
	}

	requiresFeedback := len(failed) > 0
	p.log.App().Debug("plan built",
		zap.String("goal", rec.Goal),
		zap.String("strategy", string(strategy)),
		zap.Int("steps", len(steps)),
		zap.Bool("requires_feedback", requiresFeedback))

	skip := unavail
	for _, s := range steps {
		skip = append(skip, s.ToolID)
	}
	return models.ExecutionPlan{
		Strategy:         strategy,
		Steps:            steps,
		Conflicts:        conflicts,
		RequiresFeedback: requiresFeedback,
		FallbackOptions:  fallbackOptions(rec, snap, skip),
		Reasoning:        reasoning(rec, strategy, steps, conflicts, requiresFeedback),
		EstimatedSeconds: estimate(strategy, steps),
	}
}

// planForced builds a plan straight from caller-selected tool IDs.
func (p *Planner) planForced(rec models.IntentRecord, snap *registry.Snapshot, forced []string) models.ExecutionPlan {
	var (
		steps     []models.ToolInvocationSpec
		conflicts []models.Conflict
		unavail   []string
	)
	for _, id := range forced {
		d, ok := snap.Get(id)
		if !ok || !d.Healthy() {
			conflicts = append(conflicts, models.Conflict{
				Kind:        models.ConflictToolUnavailable,
				Severity:    models.SeverityHigh,
				ToolID:      id,
				Description: fmt.Sprintf("requested tool %s is not available", id),
				Resolution:  models.ResolveUserFeedback,
			})
			unavail = append(unavail, id)
			continue
		}
		steps = append(steps, models.ToolInvocationSpec{
			ToolID:         d.ID,
			Endpoint:       d.Endpoint,
			Version:        d.Version,
			Parameters:     buildToolParams(d.ID, rec),
			Order:          len(steps),
			MaxRetries:     p.maxRetries,
			TimeoutSeconds: p.timeoutSeconds,
		})
	}

	for _, c := range conflicts {
		metrics.PlanConflicts.WithLabelValues(string(c.Kind), string(c.Resolution)).Inc()
	}

	strategy := models.StrategySingle
	if len(steps) > 1 {
		strategy = models.StrategyParallel
	}
	requiresFeedback := len(unavail) > 0

	skip := unavail
	for _, s := range steps {
		skip = append(skip, s.ToolID)
	}
	return models.ExecutionPlan{
		Strategy:         strategy,
		Steps:            steps,
		Conflicts:        conflicts,
		RequiresFeedback: requiresFeedback,
		FallbackOptions:  fallbackOptions(rec, snap, skip),
		Reasoning:        reasoning(rec, strategy, steps, conflicts, requiresFeedback),
		EstimatedSeconds: estimate(strategy, steps),
	}
}

// expandGoals returns the primary goal, its secondaries, and every
// prerequisite goal, dependencies first, deduplicated.
func expandGoals(rec models.IntentRecord) []string {
	var out []string
	seen := make(map[string]bool)
	var visit func(goal string)
	visit = func(goal string) {
		if seen[goal] {
			return
		}
		seen[goal] = true
		for _, dep := range goalDependencies[goal] {
			visit(dep)
		}
		out = append(out, goal)
	}
	visit(rec.Goal)
	for _, g := range rec.SecondaryGoals {
		if intent.KnownGoal(g) {
			visit(g)
		}
	}
	return out
}

// selectTool walks the goal's ranked candidates and picks the first one
// that is registered, healthy, and compatible with the intent's data type.
// Picking anything but the first candidate is a substitution and is
// recorded as an auto-resolved conflict.
func (p *Planner) selectTool(goal string, rec models.IntentRecord, snap *registry.Snapshot) (models.ToolInvocationSpec, []models.Conflict, bool) {
	candidates := goalTools[goal]

	var conflicts []models.Conflict
	sawMismatch := false
	for _, id := range candidates {
		d, ok := snap.Get(id)
		if !ok || !d.Healthy() {
			conflicts = append(conflicts, models.Conflict{
				Kind:        models.ConflictToolUnavailable,
				Severity:    models.SeverityMedium,
				ToolID:      id,
				Description: fmt.Sprintf("tool %s for goal %s is not available", id, goal),
				Resolution:  models.ResolveAutoSelect,
			})
			continue
		}
		if !d.SupportsDataType(rec.DataType) {
			sawMismatch = true
			conflicts = append(conflicts, models.Conflict{
				Kind:        models.ConflictDataTypeMismatch,
				Severity:    models.SeverityMedium,
				ToolID:      id,
				Description: fmt.Sprintf("tool %s does not support %s data", id, rec.DataType),
				Resolution:  models.ResolveAutoSelect,
			})
			continue
		}
		params := buildToolParams(d.ID, rec)
		for _, req := range d.RequiredParameters {
			if _, present := params[req]; !present {
				params[req] = "auto"
				conflicts = append(conflicts, models.Conflict{
					Kind:        models.ConflictMissingParameter,
					Severity:    models.SeverityMedium,
					ToolID:      d.ID,
					Description: fmt.Sprintf("parameter %s for tool %s defaulted to auto", req, d.ID),
					Resolution:  models.ResolveAutoSelect,
				})
			}
		}

		return models.ToolInvocationSpec{
			ToolID:         d.ID,
			Endpoint:       d.Endpoint,
			Version:        d.Version,
			Parameters:     params,
			MaxRetries:     p.maxRetries,
			TimeoutSeconds: p.timeoutSeconds,
		}, conflicts, true
	}

	// no candidate worked; the per-candidate conflicts collapse into one
	// high-severity escalation
	kind := models.ConflictToolUnavailable
	desc := fmt.Sprintf("no available tool for goal %s", goal)
	toolID := ""
	if len(candidates) > 0 {
		toolID = candidates[0]
	}
	if sawMismatch {
		kind = models.ConflictDataTypeMismatch
		desc = fmt.Sprintf("no tool for goal %s supports %s data", goal, rec.DataType)
	}
	escalated := []models.Conflict{{
		Kind:        kind,
		Severity:    models.SeverityHigh,
		ToolID:      toolID,
		Description: desc,
		Resolution:  models.ResolveUserFeedback,
	}}
	return models.ToolInvocationSpec{}, escalated, false
}

// chainConflicts records output-contract mismatches between steps of a
// sequential chain. These never block execution; the downstream tool still
// receives the original input alongside the prior outputs.
func chainConflicts(steps []models.ToolInvocationSpec) []models.Conflict {
	var out []models.Conflict
	for i, up := range steps {
		for _, down := range steps[i+1:] {
			if !outputsIncompatible(up.ToolID, down.ToolID) {
				continue
			}
			out = append(out, models.Conflict{
				Kind:        models.ConflictIncompatible,
				Severity:    models.SeverityLow,
				ToolID:      down.ToolID,
				Description: fmt.Sprintf("output of %s does not satisfy the input contract of %s", up.ToolID, down.ToolID),
				Resolution:  models.ResolveAutoSelect,
			})
		}
	}
	return out
}

// buildToolParams projects the intent's parameters into the tool's
// vocabulary and fills the tool's defaults for anything still missing.
func buildToolParams(toolID string, rec models.IntentRecord) map[string]interface{} {
	params := make(map[string]interface{})
	aliases := toolParamAliases[toolID]

	keys := make([]string, 0, len(rec.Parameters))
	for k := range rec.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		name := k
		if alias, ok := aliases[k]; ok {
			name = alias
		}
		if _, exists := params[name]; !exists {
			params[name] = rec.Parameters[k]
		}
	}
	for k, v := range toolDefaults[toolID] {
		if _, exists := params[k]; !exists {
			params[k] = v
		}
	}
	return params
}

func strategyFor(goals []string, steps []models.ToolInvocationSpec) models.Strategy {
	if len(steps) <= 1 {
		return models.StrategySingle
	}
	for _, g := range goals {
		if len(goalDependencies[g]) > 0 {
			return models.StrategySequential
		}
	}
	return models.StrategyParallel
}

func estimate(strategy models.Strategy, steps []models.ToolInvocationSpec) float64 {
	total, longest := 0.0, 0.0
	for _, s := range steps {
		e := estimateFor(s.ToolID)
		total += e
		if e > longest {
			longest = e
		}
	}
	if strategy == models.StrategyParallel {
		return longest
	}
	return total
}

// fallbackOptions builds the caller's choices when the plan cannot run as
// built. Alternatives are healthy registered tools compatible with the
// intent's data type, minus planned and unavailable tools, capped at three.
// Every plan carries its options; the executor reuses them when a planned
// tool turns out to be unreachable at run time.
func fallbackOptions(rec models.IntentRecord, snap *registry.Snapshot, excluded []string) []models.FallbackOption {
	skip := make(map[string]bool, len(excluded))
	for _, id := range excluded {
		skip[id] = true
	}
	var alternatives []string
	for _, d := range snap.List() {
		if skip[d.ID] || !d.Healthy() || !d.SupportsDataType(rec.DataType) {
			continue
		}
		alternatives = append(alternatives, d.ID)
		if len(alternatives) == 3 {
			break
		}
	}

	var opts []models.FallbackOption
	if len(alternatives) > 0 {
		opts = append(opts, models.FallbackOption{
			OptionID:       "select_alternative",
			Description:    "run one of the available alternative tools instead",
			CandidateTools: alternatives,
		})
	}
	opts = append(opts,
		models.FallbackOption{
			OptionID:    "create_new_tool",
			Description: "request creation of a tool for this capability",
		},
		models.FallbackOption{
			OptionID:    "cancel",
			Description: "cancel the analysis request",
		},
	)
	return opts
}

// reasoning renders the plan's audit trail line. It is deterministic for a
// given intent, snapshot, and configuration.
func reasoning(rec models.IntentRecord, strategy models.Strategy, steps []models.ToolInvocationSpec, conflicts []models.Conflict, feedback bool) string {
	ids := make([]string, len(steps))
	for i, s := range steps {
		ids[i] = s.ToolID
	}
	var b strings.Builder
	fmt.Fprintf(&b, "goal %s resolved with %s consensus at confidence %.2f; ",
		rec.Goal, rec.ConsensusLevel, rec.Confidence)
	fmt.Fprintf(&b, "strategy %s over %d step(s)", strategy, len(steps))
	if len(ids) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(ids, " -> "))
	}
	if len(conflicts) > 0 {
		fmt.Fprintf(&b, "; %d conflict(s) recorded", len(conflicts))
	}
	if feedback {
		b.WriteString("; user feedback required")
	}
	return b.String()
}
