package executor

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/swetaais/analysis-agent/internal/models"
)

// invocationContext travels with every tool call so tools can log and
// chain against the run.
type invocationContext struct {
	Goal         string                 `json:"goal"`
	TraceID      string                 `json:"trace_id"`
	TenantID     string                 `json:"tenant_id,omitempty"`
	PriorOutputs map[string]interface{} `json:"prior_outputs,omitempty"`
}

// toolPayload is the request body POSTed to a tool endpoint.
type toolPayload struct {
	Input   []map[string]interface{} `json:"input"`
	Params  map[string]interface{}   `json:"params,omitempty"`
	Context invocationContext        `json:"context"`
}

// toolResponse is the envelope every tool must reply with.
type toolResponse struct {
	Status string                 `json:"status"`
	Output map[string]interface{} `json:"output"`
	Meta   map[string]interface{} `json:"meta,omitempty"`
}

// Invoker dispatches a single tool invocation over HTTP. Request bodies are
// signed with HMAC-SHA256 in the X-Signature header so tools can verify the
// agent as the caller.
type Invoker struct {
	client *http.Client
	secret string
}

// NewInvoker creates an invoker signing requests with the given secret.
func NewInvoker(secret string) *Invoker {
	return &Invoker{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 8,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		secret: secret,
	}
}

// Invoke performs one attempt against the step's endpoint. Errors are
// classified for the retry layer: connection failures and 5xx are
// transient, a 404 marks the tool unavailable, anything else is permanent.
func (iv *Invoker) Invoke(ctx context.Context, step models.ToolInvocationSpec, payload toolPayload) (map[string]interface{}, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, permanentErr("encoding payload for %s: %v", step.ToolID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, step.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, permanentErr("building request for %s: %v", step.ToolID, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", iv.sign(body))
	if step.Version != "" {
		req.Header.Set("X-Tool-Version", step.Version)
	}

	resp, err := iv.client.Do(req)
	if err != nil {
		return nil, transientErr("dispatching to %s: %v", step.ToolID, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, unavailableErr("tool %s endpoint not found", step.ToolID)
	case resp.StatusCode >= 500:
		return nil, transientErr("tool %s returned status %d", step.ToolID, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, permanentErr("tool %s rejected the request with status %d", step.ToolID, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transientErr("reading response from %s: %v", step.ToolID, err)
	}
	var parsed toolResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, permanentErr("tool %s returned a malformed response: %v", step.ToolID, err)
	}
	if parsed.Status != "success" {
		detail := ""
		if msg, ok := parsed.Output["error"].(string); ok {
			detail = ": " + msg
		}
		return nil, permanentErr("tool %s reported %s%s", step.ToolID, nonEmpty(parsed.Status, "failure"), detail)
	}
	return parsed.Output, nil
}

func (iv *Invoker) sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(iv.secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a request body signature, for use by in-process
// test tools and any component terminating signed traffic.
func VerifySignature(secret string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
