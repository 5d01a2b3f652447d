// Package models defines the records exchanged between the intent resolver,
// the execution planner, and the tool invocation executor.
//
// Every record is created fresh for a single pipeline run and never mutated
// after the producing component hands it off. The registry snapshot is the
// only long-lived external state, and it is read-only to this module.
package models

import "time"

// ExtractionMethod identifies one of the independent intent extraction
// strategies run by the consensus resolver.
type ExtractionMethod string

const (
	MethodPattern     ExtractionMethod = "pattern"
	MethodModel       ExtractionMethod = "model"
	MethodExternalLLM ExtractionMethod = "external_llm"
)

// ConsensusLevel is the qualitative strength of agreement among extraction
// methods.
type ConsensusLevel string

const (
	ConsensusUnanimous ConsensusLevel = "unanimous"
	ConsensusStrong    ConsensusLevel = "strong"
	ConsensusMajority  ConsensusLevel = "majority"
	ConsensusWeak      ConsensusLevel = "weak"
	ConsensusNone      ConsensusLevel = "none"
)

// Strategy describes how the steps of a plan relate to one another.
type Strategy string

const (
	StrategySingle     Strategy = "single"
	StrategyParallel   Strategy = "parallel"
	StrategySequential Strategy = "sequential"
)

// ConflictKind classifies an obstacle detected during planning.
type ConflictKind string

const (
	ConflictToolUnavailable  ConflictKind = "tool_unavailable"
	ConflictMissingParameter ConflictKind = "missing_parameter"
	ConflictDataTypeMismatch ConflictKind = "data_type_mismatch"
	ConflictIncompatible     ConflictKind = "incompatible_tools"
)

// Severity grades a conflict.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// ResolutionPolicy is how a conflict gets resolved. It is decided by a pure
// function of (kind, severity, registry availability) at planning time.
type ResolutionPolicy string

const (
	ResolveUserFeedback ResolutionPolicy = "user_feedback"
	ResolveAutoSelect   ResolutionPolicy = "auto_select"
	ResolveCreateNew    ResolutionPolicy = "create_new"
)

// OutcomeStatus is the terminal state of a single tool invocation.
type OutcomeStatus string

const (
	OutcomeSuccess     OutcomeStatus = "success"
	OutcomeError       OutcomeStatus = "error"
	OutcomeUnavailable OutcomeStatus = "unavailable"
	OutcomeTimeout     OutcomeStatus = "timeout"
)

// PipelineStatus is the overall state of one pipeline run.
type PipelineStatus string

const (
	PipelineSuccess        PipelineStatus = "success"
	PipelinePartialSuccess PipelineStatus = "partial_success"
	PipelineFailed         PipelineStatus = "failed"
	PipelineNeedsFeedback  PipelineStatus = "needs_feedback"
)

// ExtractionVote is one extraction method's reading of the request. A method
// that cannot produce a usable reading returns no vote at all rather than a
// low-confidence one.
type ExtractionVote struct {
	Method      ExtractionMethod       `json:"method"`
	Goal        string                 `json:"goal"`
	DataType    string                 `json:"data_type"`
	Constraints []string               `json:"constraints,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
	Confidence  float64                `json:"confidence"`
	Weight      int                    `json:"weight"`
}

// IntentRecord is the aggregated result of the consensus vote. Consumed by
// the planner; immutable once produced.
type IntentRecord struct {
	Goal            string                 `json:"goal"`
	SecondaryGoals  []string               `json:"secondary_goals,omitempty"`
	DataType        string                 `json:"data_type"`
	Constraints     []string               `json:"constraints,omitempty"`
	Parameters      map[string]interface{} `json:"parameters,omitempty"`
	Confidence      float64                `json:"confidence"`
	ConsensusLevel  ConsensusLevel         `json:"consensus_level"`
	VoteBreakdown   map[string]int         `json:"vote_breakdown,omitempty"`
	DissentingGoals []string               `json:"dissenting_goals,omitempty"`
}

// ToolDescriptor mirrors one entry of the external capability registry.
// The core only ever reads these.
type ToolDescriptor struct {
	ID                 string   `json:"id"`
	Endpoint           string   `json:"endpoint"`
	Protocol           string   `json:"protocol"`
	Version            string   `json:"version,omitempty"`
	SupportedDataTypes []string `json:"supported_data_types"`
	RequiredParameters []string `json:"required_parameters"`
	HealthStatus       string   `json:"health_status"`
}

// Healthy reports whether the descriptor's health status allows dispatch.
func (d ToolDescriptor) Healthy() bool {
	return d.HealthStatus == "" || d.HealthStatus == "up" || d.HealthStatus == "healthy"
}

// SupportsDataType reports whether the tool accepts the given data type.
// An empty list means the tool is data-type agnostic.
func (d ToolDescriptor) SupportsDataType(dt string) bool {
	if len(d.SupportedDataTypes) == 0 {
		return true
	}
	for _, s := range d.SupportedDataTypes {
		if s == dt {
			return true
		}
	}
	return false
}

// Conflict records one obstacle found while building a plan, never mutated
// after creation.
type Conflict struct {
	Kind        ConflictKind     `json:"kind"`
	Severity    Severity         `json:"severity"`
	ToolID      string           `json:"tool_id,omitempty"`
	Description string           `json:"description"`
	Resolution  ResolutionPolicy `json:"resolution_policy"`
}

// ToolInvocationSpec is one step of an execution plan. Order is meaningful
// only under StrategySequential.
type ToolInvocationSpec struct {
	ToolID         string                 `json:"tool_id"`
	Endpoint       string                 `json:"endpoint"`
	Version        string                 `json:"version,omitempty"`
	Parameters     map[string]interface{} `json:"parameters,omitempty"`
	Order          int                    `json:"order"`
	MaxRetries     int                    `json:"max_retries"`
	TimeoutSeconds float64                `json:"timeout_seconds"`
}

// FallbackOption enumerates alternative tools for an unresolved conflict.
type FallbackOption struct {
	OptionID       string   `json:"option_id"`
	Description    string   `json:"description"`
	CandidateTools []string `json:"candidate_tools,omitempty"`
}

// ExecutionPlan is the planner's output. The executor consumes it without
// mutation.
type ExecutionPlan struct {
	Strategy         Strategy             `json:"strategy"`
	Steps            []ToolInvocationSpec `json:"steps"`
	Conflicts        []Conflict           `json:"conflicts,omitempty"`
	RequiresFeedback bool                 `json:"requires_feedback"`
	FallbackOptions  []FallbackOption     `json:"fallback_options,omitempty"`
	Reasoning        string               `json:"reasoning"`
	EstimatedSeconds float64              `json:"estimated_seconds"`
}

// ToolOutcome is produced exactly once per step by the executor.
type ToolOutcome struct {
	ToolID       string                 `json:"tool_id"`
	Status       OutcomeStatus          `json:"status"`
	Output       map[string]interface{} `json:"output,omitempty"`
	Error        string                 `json:"error,omitempty"`
	AttemptsMade int                    `json:"attempts_made"`
}

// ResultSummary is the per-run count block.
type ResultSummary struct {
	Total       int `json:"total"`
	Successful  int `json:"successful"`
	Failed      int `json:"failed"`
	Unavailable int `json:"unavailable"`
}

// FeedbackOption is one caller-actionable choice in a feedback request.
type FeedbackOption struct {
	OptionID string   `json:"option_id"`
	Message  string   `json:"message"`
	Action   string   `json:"action"`
	Tools    []string `json:"tools,omitempty"`
}

// FeedbackRequest is the structured escalation handed back to the caller
// when automatic resolution is not possible.
type FeedbackRequest struct {
	Message          string           `json:"message"`
	UnavailableTools []string         `json:"unavailable_tools,omitempty"`
	Conflicts        []Conflict       `json:"conflicts,omitempty"`
	Options          []FeedbackOption `json:"options"`
}

// PipelineResult is the executor's aggregate outcome for one run.
type PipelineResult struct {
	Status          PipelineStatus   `json:"status"`
	Outcomes        []ToolOutcome    `json:"outcomes"`
	Summary         ResultSummary    `json:"summary"`
	FeedbackRequest *FeedbackRequest `json:"feedback_request,omitempty"`
}

// RunRecord is the persisted trace of one pipeline run.
type RunRecord struct {
	ID         string         `json:"id"`
	TenantID   string         `json:"tenant_id"`
	Task       string         `json:"task"`
	Goal       string         `json:"goal"`
	Status     PipelineStatus `json:"status"`
	Summary    ResultSummary  `json:"summary"`
	Reasoning  string         `json:"reasoning,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}
