package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/yujeong0411/stack-note/internal/activity"
	"github.com/yujeong0411/stack-note/internal/agent"
	"github.com/yujeong0411/stack-note/internal/db"
	"github.com/yujeong0411/stack-note/internal/errors"
	"github.com/yujeong0411/stack-note/internal/llm"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db       *sql.DB
	searcher agent.Searcher
	chatter  llm.Chatter
	now      func() time.Time
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(database *sql.DB, searcher agent.Searcher, chatter llm.Chatter, now func() time.Time) *Handlers {
	if now == nil {
		now = time.Now
	}
	return &Handlers{db: database, searcher: searcher, chatter: chatter, now: now}
}

// decodeRequest maps a tool call's arguments onto one of the request
// structs below via a JSON round trip, so partial or extra arguments
// behave the same as they do over the HTTP API.
func decodeRequest[T any](req mcp.CallToolRequest) (T, error) {
	var out T
	raw, err := json.Marshal(req.GetArguments())
	if err != nil {
		return out, fmt.Errorf("marshal tool arguments: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("unmarshal tool arguments: %w", err)
	}
	return out, nil
}

// Request types for each tool

// KnowledgeSearchRequest represents the arguments for knowledge_search.
type KnowledgeSearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// ActivityListRequest represents the arguments for activity_list.
type ActivityListRequest struct {
	Category string `json:"category,omitempty"`
	Date     string `json:"date,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// ActivityGetRequest represents the arguments for activity_get.
type ActivityGetRequest struct {
	ID int64 `json:"id"`
}

// BriefingGenerateRequest represents the arguments for briefing_generate.
type BriefingGenerateRequest struct {
	Days int `json:"days,omitempty"`
}

// Handler implementations

// HandleKnowledgeSearch handles the knowledge_search tool call.
func (h *Handlers) HandleKnowledgeSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decodeRequest[KnowledgeSearchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.Query == "" {
		return errorResult(errors.NewInvalidRequest("query is required")), nil
	}
	if input.Limit <= 0 {
		input.Limit = 3
	}

	results, err := h.searcher.Search(ctx, input.Query, input.Limit)
	if err != nil {
		return errorResult(errors.NewInternal(err)), nil
	}

	items := make([]map[string]any, 0, len(results))
	for _, r := range results {
		items = append(items, map[string]any{
			"activity_id": r.Meta.ActivityID,
			"title":       r.Meta.Title,
			"category":    r.Meta.Category,
			"url":         r.Meta.URL,
			"score":       r.Score,
			"content":     activity.TruncateRunes(r.Content, 400),
		})
	}
	return successResult(map[string]any{"items": items, "total": len(items)})
}

// HandleActivityList handles the activity_list tool call.
func (h *Handlers) HandleActivityList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decodeRequest[ActivityListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.Limit <= 0 {
		input.Limit = 10
	}

	result, err := db.ListActivities(h.db, db.ListFilter{
		Page:      1,
		PageSize:  input.Limit,
		Category:  input.Category,
		StartDate: input.Date,
		EndDate:   input.Date,
	})
	if err != nil {
		return errorResult(err), nil
	}

	items := make([]map[string]any, 0, len(result.Items))
	for _, a := range result.Items {
		items = append(items, map[string]any{
			"id":          a.ID,
			"title":       a.Title,
			"url":         a.URL,
			"category":    a.Category,
			"tags":        a.Tags,
			"source_type": a.SourceType,
			"summary":     a.Summary,
			"created_at":  a.CreatedAt.Format("2006-01-02"),
		})
	}
	return successResult(map[string]any{"items": items, "total": result.Total})
}

// HandleActivityGet handles the activity_get tool call.
func (h *Handlers) HandleActivityGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decodeRequest[ActivityGetRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.ID <= 0 {
		return errorResult(errors.NewInvalidRequest("id is required")), nil
	}

	act, err := db.GetActivityByID(h.db, input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(act)
}

// HandleBriefingGenerate handles the briefing_generate tool call.
func (h *Handlers) HandleBriefingGenerate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decodeRequest[BriefingGenerateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	text, err := agent.GenerateBriefing(ctx, h.db, h.chatter, h.now, input.Days)
	if err != nil {
		return errorResult(errors.NewInternal(err)), nil
	}
	return successResult(map[string]any{"content": text})
}

// HandleUserTopics handles the user_topics tool call.
func (h *Handlers) HandleUserTopics(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	topics, err := db.GetTopics(h.db)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"topics": topics})
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Note: Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if sErr, ok := err.(*errors.StackError); ok {
		errorObj := map[string]any{
			"code":    sErr.Code,
			"message": sErr.Message,
			"status":  sErr.Status,
		}
		if sErr.Code != errors.ErrInternal && sErr.Details != nil {
			errorObj["details"] = sErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
