// Package types holds the externally visible API contract of the analysis
// agent. Anything in here is consumed by callers and must stay wire-stable.
package types

import "github.com/swetaais/analysis-agent/internal/models"

// AnalyzeRequest is the caller-facing request accepted by POST /v1/analyze.
//
// Task carries the free-text description of what the caller wants. Data is an
// inline sample of records with named fields. ForcedTools bypasses goal→tool
// ranking but still passes conflict detection. Params carries explicit domain
// parameters (metric field, timestamp field, grouping keys, thresholds) that
// take precedence over anything extracted from the task text.
type AnalyzeRequest struct {
	TenantID    string                   `json:"tenant_id"`
	Task        string                   `json:"task"`
	Data        []map[string]interface{} `json:"data,omitempty"`
	ForcedTools []string                 `json:"forced_tools,omitempty"`
	Params      map[string]interface{}   `json:"params,omitempty"`
}

// ToolMeta is the audit block attached to every analyze response: how the
// intent was resolved and what the planner decided. DissentingGoals is the
// caller-visible warning attached to weak-consensus resolutions.
type ToolMeta struct {
	Goal            string                `json:"goal"`
	ConsensusLevel  models.ConsensusLevel `json:"consensus_level"`
	Confidence      float64               `json:"confidence"`
	VoteBreakdown   map[string]int        `json:"vote_breakdown,omitempty"`
	DissentingGoals []string              `json:"dissenting_goals,omitempty"`
	Strategy        models.Strategy       `json:"strategy,omitempty"`
	Reasoning       string                `json:"reasoning,omitempty"`
	Invoked         []string              `json:"invoked,omitempty"`
}

// AnalyzeResponse is the caller-facing response for one pipeline run.
type AnalyzeResponse struct {
	RequestID       string                  `json:"request_id"`
	Status          models.PipelineStatus   `json:"status"`
	Outcomes        []models.ToolOutcome    `json:"outcomes"`
	Summary         models.ResultSummary    `json:"summary"`
	FeedbackRequest *models.FeedbackRequest `json:"feedback_request,omitempty"`
	ToolMeta        ToolMeta                `json:"tool_meta"`
}
