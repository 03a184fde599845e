package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Jay-Tejada/malunita/internal/learning"
	"github.com/Jay-Tejada/malunita/internal/pipeline"
	"github.com/Jay-Tejada/malunita/internal/storage"
	"github.com/Jay-Tejada/malunita/internal/task"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store   *storage.Store
	Runner  *pipeline.Runner
	Learner *learning.Service
	Prefs   *learning.Manager
	Runs    *RunCache
	UserID  string // user the MCP session acts as; empty means the local default
}

// NewMCPServer creates an MCP server with all malunita tools and resources
// registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	if deps.Runs == nil {
		deps.Runs = NewRunCache()
	}

	s := server.NewMCPServer(
		"malunita",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("malunita is a local task intelligence service: capture free-form thoughts, get structured tasks, agendas and a daily focus suggestion."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("capture",
			mcp.WithDescription("Run a free-form thought through the capture pipeline: extract tasks, score, route to agenda buckets and suggest the day's focus."),
			mcp.WithString("text", mcp.Description("The raw capture text"), mcp.Required()),
			mcp.WithString("bucket_hint", mcp.Description("Optional agenda bucket hint (today, tomorrow, this_week, upcoming, someday)")),
		),
		mcpCapture(deps),
	)

	s.AddTool(
		mcp.NewTool("get_agenda",
			mcp.WithDescription("Return the current agenda: stored tasks grouped by bucket."),
			mcp.WithString("bucket", mcp.Description("Limit to one bucket (today, tomorrow, this_week, upcoming, someday)")),
		),
		mcpGetAgenda(deps),
	)

	s.AddTool(
		mcp.NewTool("record_feedback",
			mcp.WithDescription("Record a feedback signal (destination_correction, summary_edit, decomposition_rejection, suggestion_ignored, expansion_pattern, task_completed)."),
			mcp.WithString("type", mcp.Description("Signal type"), mcp.Required()),
			mcp.WithString("payload", mcp.Description("Optional JSON payload for the signal")),
		),
		mcpRecordFeedback(deps),
	)

	s.AddTool(
		mcp.NewTool("list_clarifications",
			mcp.WithDescription("Return the clarification questions from the most recent capture, if any."),
		),
		mcpListClarifications(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"user://preferences",
			"Learned Preferences",
			mcp.WithResourceDescription("Current learned user preferences as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourcePreferences(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"user://recent",
			"Recent Tasks",
			mcp.WithResourceDescription("Last 10 stored tasks"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpCapture(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}
		bucketHint := req.GetString("bucket_hint", "")

		res, err := deps.Runner.ProcessCapture(ctx, userOrDefault(deps.UserID), text, task.InputText, bucketHint)
		if err != nil {
			return mcpError(fmt.Sprintf("capture failed: %v", err)), nil
		}
		deps.Runs.Put(res)

		type captureResult struct {
			CaptureID      string           `json:"capture_id"`
			Candidates     []task.Candidate `json:"candidates"`
			Routing        task.Routing     `json:"routing"`
			OneThing       string           `json:"one_thing,omitempty"`
			Clarifications []task.Question  `json:"clarifications,omitempty"`
			UsedInference  bool             `json:"used_inference"`
		}

		b, err := json.Marshal(captureResult{
			CaptureID:      res.Capture.ID,
			Candidates:     res.Candidates,
			Routing:        res.Routing,
			OneThing:       res.Suggestion,
			Clarifications: res.Clarifications,
			UsedInference:  res.UsedInference,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetAgenda(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID := userOrDefault(deps.UserID)

		buckets := task.Buckets
		if one := req.GetString("bucket", ""); one != "" {
			buckets = []task.Bucket{task.Bucket(one)}
		}

		agenda := make(map[string][]storage.TaskRecord, len(buckets))
		for _, bucket := range buckets {
			tasks, err := deps.Store.TasksByBucket(userID, string(bucket))
			if err != nil {
				return mcpError(fmt.Sprintf("failed to load bucket %s: %v", bucket, err)), nil
			}
			if tasks == nil {
				tasks = []storage.TaskRecord{}
			}
			agenda[string(bucket)] = tasks
		}

		b, err := json.Marshal(agenda)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal agenda: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpRecordFeedback(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		typ, err := req.RequireString("type")
		if err != nil {
			return mcpError("type is required"), nil
		}
		if !knownSignal(task.SignalType(typ)) {
			return mcpError(fmt.Sprintf("unknown signal type %q", typ)), nil
		}

		var payload any
		if raw := req.GetString("payload", ""); raw != "" {
			if !json.Valid([]byte(raw)) {
				return mcpError("payload must be valid JSON"), nil
			}
			payload = json.RawMessage(raw)
		}

		sig, err := learning.NewSignal(userOrDefault(deps.UserID), task.SignalType(typ), payload, time.Now())
		if err != nil {
			return mcpError(fmt.Sprintf("failed to build signal: %v", err)), nil
		}
		if err := deps.Learner.Record(sig); err != nil {
			return mcpError(fmt.Sprintf("failed to record signal: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Recorded %s signal %s", typ, sig.ID)), nil
	}
}

func mcpListClarifications(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, ok := deps.Runs.Latest(userOrDefault(deps.UserID))
		if !ok || len(res.Clarifications) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(res.Clarifications)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal clarifications: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourcePreferences(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		prefs, err := deps.Prefs.Get(userOrDefault(deps.UserID))
		if err != nil {
			return nil, fmt.Errorf("failed to get preferences: %w", err)
		}

		b, err := json.Marshal(prefs)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal preferences: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		tasks, err := deps.Store.RecentTasks(userOrDefault(deps.UserID), 10)
		if err != nil {
			return nil, fmt.Errorf("failed to get recent tasks: %w", err)
		}

		type taskSummary struct {
			ID        string `json:"id"`
			Title     string `json:"title"`
			Bucket    string `json:"bucket"`
			Priority  string `json:"priority"`
			CreatedAt string `json:"created_at"`
		}

		summaries := make([]taskSummary, len(tasks))
		for i, t := range tasks {
			summaries[i] = taskSummary{
				ID:        t.ID,
				Title:     t.Title,
				Bucket:    t.Bucket,
				Priority:  t.Priority,
				CreatedAt: t.CreatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal tasks: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
