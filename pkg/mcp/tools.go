package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/stepflow/internal/diagram"
	"github.com/rendis/stepflow/internal/engine"
	"github.com/rendis/stepflow/internal/matcher"
	"github.com/rendis/stepflow/internal/store"
	"github.com/rendis/stepflow/pkg/schema"
)

// handleRun executes a stored workflow synchronously.
func (s *Server) handleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}
	initial := mcp.ParseStringMap(req, "context", nil)

	if session := server.ClientSessionFromContext(ctx); session != nil {
		release := s.sessions.Watch(workflowID, session.SessionID())
		defer release()
	}

	initial = engine.WithTrigger(initial, engine.Trigger{
		Kind:    schema.TriggerManual,
		Payload: map[string]any{"source": "mcp"},
	})
	run, runErr := s.executor.Run(ctx, workflowID, initial)
	if runErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("run failed: %v", runErr)), nil
	}
	return marshalResult(run)
}

// handleStatus returns the persisted run record.
func (s *Server) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := req.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError("run_id is required"), nil
	}

	run, statusErr := s.executor.Status(ctx, runID)
	if statusErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("status query failed: %v", statusErr)), nil
	}
	return marshalResult(run)
}

// handleCancel cancels a running run and returns its updated record.
func (s *Server) handleCancel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := req.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError("run_id is required"), nil
	}

	if cancelErr := s.executor.Cancel(ctx, runID); cancelErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("cancel failed: %v", cancelErr)), nil
	}
	run, statusErr := s.executor.Status(ctx, runID)
	if statusErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("status query failed: %v", statusErr)), nil
	}
	return marshalResult(run)
}

// defineResult is returned by stepflow.define.
type defineResult struct {
	WorkflowID string                   `json:"workflow_id"`
	Name       string                   `json:"name"`
	Warnings   []schema.ValidationIssue `json:"warnings,omitempty"`
}

// handleDefine validates a workflow definition and stores it.
func (s *Server) handleDefine(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw := mcp.ParseStringMap(req, "workflow", nil)
	if raw == nil {
		return mcp.NewToolResultError("workflow is required"), nil
	}

	wf, err := DecodeWorkflow(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid workflow: %v", err)), nil
	}
	if userID := req.GetString("user_id", ""); userID != "" {
		wf.UserID = userID
	}

	result := s.validator.Validate(wf)
	if !result.Valid() {
		return mcp.NewToolResultError(fmt.Sprintf("workflow validation failed: %v", result.ToError())), nil
	}

	now := time.Now().UTC()
	wf.CreatedAt = now
	wf.UpdatedAt = now
	if err := s.store.CreateWorkflow(ctx, wf); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to store workflow: %v", err)), nil
	}

	s.logger.InfoContext(ctx, "workflow defined", "workflow_id", wf.ID, "name", wf.Name, "steps", len(wf.Steps))
	return marshalResult(defineResult{WorkflowID: wf.ID, Name: wf.Name, Warnings: result.Warnings})
}

// DecodeWorkflow converts a decoded JSON or YAML document into a Workflow.
// A missing id is generated, a missing trigger_kind means manual and a
// missing enabled flag means enabled.
func DecodeWorkflow(raw map[string]any) (*schema.Workflow, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	wf := &schema.Workflow{}
	if err := json.Unmarshal(data, wf); err != nil {
		return nil, err
	}
	if wf.ID == "" {
		wf.ID = uuid.New().String()
	}
	if wf.TriggerKind == "" {
		wf.TriggerKind = schema.TriggerManual
	}
	if _, ok := raw["enabled"]; !ok {
		wf.Enabled = true
	}
	if wf.Steps == nil {
		wf.Steps = []schema.Step{}
	}
	return wf, nil
}

// handleQuery lists workflows or runs.
func (s *Server) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resource, err := req.RequireString("resource")
	if err != nil {
		return mcp.NewToolResultError("resource is required"), nil
	}
	filter := mcp.ParseStringMap(req, "filter", nil)

	switch resource {
	case "workflows":
		return s.queryWorkflows(ctx, filter)
	case "runs":
		return s.queryRuns(ctx, filter)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown resource: %s", resource)), nil
	}
}

func (s *Server) queryWorkflows(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	wf := store.WorkflowFilter{
		UserID:      extractString(filter, "user_id"),
		TriggerKind: schema.TriggerKind(extractString(filter, "trigger_kind")),
		Limit:       extractInt(filter, "limit", 50),
		Offset:      extractInt(filter, "offset", 0),
	}
	if v, ok := filter["enabled"].(bool); ok {
		wf.Enabled = &v
	}

	workflows, err := s.store.ListWorkflows(ctx, wf)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"workflows": workflows})
}

func (s *Server) queryRuns(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	rf := store.RunFilter{
		WorkflowID: extractString(filter, "workflow_id"),
		Limit:      extractInt(filter, "limit", 50),
		Offset:     extractInt(filter, "offset", 0),
	}
	if status := extractString(filter, "status"); status != "" {
		st := schema.RunStatus(status)
		rf.Status = &st
	}
	if since := extractString(filter, "since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid since: %v", err)), nil
		}
		rf.Since = &t
	}

	runs, err := s.store.ListRuns(ctx, rf)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"runs": runs})
}

// handleMatchAgents ranks the supplied agents for a task description.
func (s *Server) handleMatchAgents(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	description, err := req.RequireString("description")
	if err != nil {
		return mcp.NewToolResultError("description is required"), nil
	}
	rawAgents, ok := req.GetArguments()["agents"].([]any)
	if !ok {
		return mcp.NewToolResultError("agents must be an array"), nil
	}

	data, err := json.Marshal(rawAgents)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid agents: %v", err)), nil
	}
	var agents []matcher.Agent
	if err := json.Unmarshal(data, &agents); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid agents: %v", err)), nil
	}
	for _, a := range agents {
		if err := matcher.ValidateAgent(a); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	opts := matcher.DefaultOptions()
	opts.Limit = req.GetInt("limit", opts.Limit)
	opts.MinScore = req.GetFloat("min_score", opts.MinScore)
	opts.OnlineOnly = req.GetBool("online_only", false)

	matches := matcher.MatchAgents(description, agents, opts)
	return marshalResult(map[string]any{
		"keywords": matcher.ExtractKeywords(description),
		"matches":  matches,
	})
}

// handleSuggestCapabilities maps a description onto capability categories.
func (s *Server) handleSuggestCapabilities(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	description, err := req.RequireString("description")
	if err != nil {
		return mcp.NewToolResultError("description is required"), nil
	}
	return marshalResult(map[string]any{"capabilities": matcher.SuggestCapabilities(description)})
}

// handleDiagram renders a workflow, with a run overlay when run_id is given.
func (s *Server) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}
	switch format {
	case "mermaid", "ascii", diagram.ImagePNG, diagram.ImageSVG:
	default:
		return mcp.NewToolResultError("format must be mermaid, ascii, png, or svg"), nil
	}

	workflowID := req.GetString("workflow_id", "")
	runID := req.GetString("run_id", "")
	if workflowID == "" && runID == "" {
		return mcp.NewToolResultError("at least one of workflow_id or run_id is required"), nil
	}

	var run *schema.WorkflowRun
	if runID != "" {
		r, runErr := s.store.GetRun(ctx, runID)
		if runErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("run not found: %v", runErr)), nil
		}
		if workflowID != "" && workflowID != r.WorkflowID {
			return mcp.NewToolResultError(fmt.Sprintf("run %s belongs to workflow %s", runID, r.WorkflowID)), nil
		}
		run = r
		workflowID = r.WorkflowID
	}

	wf, wfErr := s.store.GetWorkflow(ctx, workflowID)
	if wfErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("workflow not found: %v", wfErr)), nil
	}

	model, buildErr := diagram.Build(wf, run)
	if buildErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("diagram build failed: %v", buildErr)), nil
	}

	switch format {
	case "mermaid":
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	case "ascii":
		return mcp.NewToolResultText(diagram.RenderASCII(model)), nil
	default:
		img, imgErr := diagram.RenderImage(model, format)
		if imgErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("image render failed: %v", imgErr)), nil
		}
		mime := "image/png"
		if format == diagram.ImageSVG {
			mime = "image/svg+xml"
		}
		return mcp.NewToolResultImage(model.Title, base64.StdEncoding.EncodeToString(img), mime), nil
	}
}

// extractString returns filter[key] when it is a string.
func extractString(filter map[string]any, key string) string {
	v, _ := filter[key].(string)
	return v
}

// extractInt safely extracts an integer from a filter map.
func extractInt(filter map[string]any, key string, defaultVal int) int {
	if filter == nil {
		return defaultVal
	}
	v, ok := filter[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
