package audit

import "time"

// EventType represents the type of audit event.
type EventType string

const (
	// Pipeline run events
	EventRunStarted   EventType = "run.started"
	EventRunCompleted EventType = "run.completed"
	EventRunFailed    EventType = "run.failed"

	// Resolution and planning events
	EventIntentResolved    EventType = "intent.resolved"
	EventPlanCreated       EventType = "plan.created"
	EventFeedbackRequested EventType = "plan.feedback_requested"

	// Tool invocation events
	EventToolInvoked     EventType = "tool.invoked"
	EventToolFailed      EventType = "tool.failed"
	EventToolUnavailable EventType = "tool.unavailable"

	// Registry events
	EventRegistryRefreshed EventType = "registry.refreshed"

	// System events
	EventServerStarted  EventType = "system.server_started"
	EventServerShutdown EventType = "system.server_shutdown"
	EventConfigLoaded   EventType = "system.config_loaded"
)

// Result represents the outcome of an audited action.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
	ResultPending Result = "pending"
)

// Event represents a single audit event.
type Event struct {
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id"`
	EventType     EventType `json:"event_type"`
	Result        Result    `json:"result"`

	TenantID string `json:"tenant_id,omitempty"`
	RunID    string `json:"run_id,omitempty"`
	ToolID   string `json:"tool_id,omitempty"`

	Description string                 `json:"description,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`

	Error      string `json:"error,omitempty"`
	ErrorCode  string `json:"error_code,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// NewEvent creates a new audit event with default values.
func NewEvent(eventType EventType) *Event {
	return &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Result:    ResultPending,
		Metadata:  make(map[string]interface{}),
	}
}

// WithCorrelationID sets the correlation ID for event tracking.
func (e *Event) WithCorrelationID(id string) *Event {
	e.CorrelationID = id
	return e
}

// WithRun sets the pipeline run the event belongs to.
func (e *Event) WithRun(runID string) *Event {
	e.RunID = runID
	return e
}

// WithTenant sets the tenant that triggered the event.
func (e *Event) WithTenant(tenantID string) *Event {
	e.TenantID = tenantID
	return e
}

// WithTool sets the tool being invoked.
func (e *Event) WithTool(toolID string) *Event {
	e.ToolID = toolID
	return e
}

// WithDescription sets a human-readable description.
func (e *Event) WithDescription(desc string) *Event {
	e.Description = desc
	return e
}

// WithMetadata attaches an arbitrary key/value pair.
func (e *Event) WithMetadata(key string, value interface{}) *Event {
	e.Metadata[key] = value
	return e
}

// WithResult sets the result of the event.
func (e *Event) WithResult(result Result) *Event {
	e.Result = result
	return e
}

// WithError records error details and marks the event failed.
func (e *Event) WithError(err error, code string) *Event {
	if err != nil {
		e.Error = err.Error()
	}
	e.ErrorCode = code
	e.Result = ResultFailure
	return e
}

// WithDuration records how long the audited operation took.
func (e *Event) WithDuration(d time.Duration) *Event {
	e.DurationMs = d.Milliseconds()
	return e
}
