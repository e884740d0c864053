package agent

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/yujeong0411/stack-note/internal/activity"
	"github.com/yujeong0411/stack-note/internal/db"
	"github.com/yujeong0411/stack-note/internal/errors"
	"github.com/yujeong0411/stack-note/internal/llm"
	"github.com/yujeong0411/stack-note/internal/vector"
)

// searchK is how many hits a knowledge search returns to the model.
const searchK = 3

// snippetLen caps the content excerpt per search hit.
const snippetLen = 400

// detailLen caps the body excerpt in an activity detail view.
const detailLen = 2500

// Searcher is the vector index as the agent sees it.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]vector.Result, error)
}

// Tools holds the dependencies tool handlers run against.
type Tools struct {
	db      *sql.DB
	vector  Searcher
	chatter llm.Chatter
	now     func() time.Time
}

// toolFunc executes one tool call. args is the raw JSON argument
// object from the model.
type toolFunc func(ctx context.Context, t *Tools, args string) (string, error)

// toolEntry pairs a tool definition with its handler.
type toolEntry struct {
	def     llm.Tool
	handler toolFunc
}

// toolRegistry maps tool names to their definitions and handlers.
var toolRegistry = map[string]toolEntry{
	"search_knowledge": {
		def: llm.Tool{
			Name:        "search_knowledge",
			Description: "Search saved knowledge by meaning. Use for conceptual questions like 'what is RAG' or 'explain goroutines'. Pass the core topic or keywords of the question.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "Topic or keywords to search for",
					},
				},
				"required": []string{"query"},
			},
		},
		handler: handleSearchKnowledge,
	},
	"generate_briefing": {
		def: llm.Tool{
			Name:        "generate_briefing",
			Description: "Analyze recent saved activity and produce a briefing with trends, keywords, and highlights. Use for period summaries like 'summarize my week'. The briefing is also saved.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"days": map[string]any{
						"type":        "integer",
						"description": "How many days back to analyze (default 7)",
					},
				},
			},
		},
		handler: handleGenerateBriefing,
	},
	"list_activities": {
		def: llm.Tool{
			Name:        "list_activities",
			Description: "List saved activities, optionally filtered by category and date. Use for requests like 'what did I save today'. Date accepts YYYY-MM-DD, 'today', or 'yesterday'.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"category": map[string]any{
						"type":        "string",
						"description": "Category filter, omit for all",
					},
					"limit": map[string]any{
						"type":        "integer",
						"description": "Maximum results (default 10)",
					},
					"date": map[string]any{
						"type":        "string",
						"description": "Date filter: YYYY-MM-DD, 'today', or 'yesterday'",
					},
				},
			},
		},
		handler: handleListActivities,
	},
	"get_activity": {
		def: llm.Tool{
			Name:        "get_activity",
			Description: "Fetch one saved activity in full, including its body, by ID. Use when the user asks for the original content of a specific item.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"activity_id": map[string]any{
						"type":        "integer",
						"description": "Activity ID",
					},
				},
				"required": []string{"activity_id"},
			},
		},
		handler: handleGetActivity,
	},
	"get_user_topics": {
		def: llm.Tool{
			Name:        "get_user_topics",
			Description: "Fetch the user's configured topics of interest. Use to tailor search or briefing answers. Takes no arguments.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		handler: handleGetUserTopics,
	},
}

// toolDefs returns all registered tool definitions for the chat call.
func toolDefs() []llm.Tool {
	defs := make([]llm.Tool, 0, len(toolRegistry))
	for _, entry := range toolRegistry {
		defs = append(defs, entry.def)
	}
	return defs
}

// decodeArgs unmarshals a tool call's JSON arguments. An empty
// argument string decodes to the zero value.
func decodeArgs[T any](args string) (T, error) {
	var out T
	if strings.TrimSpace(args) == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(args), &out); err != nil {
		return out, fmt.Errorf("decode tool args: %w", err)
	}
	return out, nil
}

type searchKnowledgeArgs struct {
	Query string `json:"query"`
}

func handleSearchKnowledge(ctx context.Context, t *Tools, args string) (string, error) {
	input, err := decodeArgs[searchKnowledgeArgs](args)
	if err != nil {
		return "", err
	}

	results, err := t.vector.Search(ctx, input.Query, searchK)
	if err != nil {
		return "", fmt.Errorf("vector search: %w", err)
	}
	if len(results) == 0 {
		return "No saved material matched the question.", nil
	}

	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, fmt.Sprintf("Title: %s, Content: %s...",
			r.Meta.Title, activity.TruncateRunes(r.Content, snippetLen)))
	}
	return "Reference material found:\n" + strings.Join(lines, "\n---\n"), nil
}

type generateBriefingArgs struct {
	Days int `json:"days"`
}

func handleGenerateBriefing(ctx context.Context, t *Tools, args string) (string, error) {
	input, err := decodeArgs[generateBriefingArgs](args)
	if err != nil {
		return "", err
	}
	return GenerateBriefing(ctx, t.db, t.chatter, t.now, input.Days)
}

type listActivitiesArgs struct {
	Category string `json:"category"`
	Limit    int    `json:"limit"`
	Date     string `json:"date"`
}

func handleListActivities(ctx context.Context, t *Tools, args string) (string, error) {
	input, err := decodeArgs[listActivitiesArgs](args)
	if err != nil {
		return "", err
	}
	if input.Limit <= 0 {
		input.Limit = 10
	}

	date := normalizeDate(input.Date, t.now())

	filter := db.ListFilter{
		Page:      1,
		PageSize:  input.Limit,
		Category:  input.Category,
		StartDate: date,
		EndDate:   date,
	}
	result, err := db.ListActivities(t.db, filter)
	if err != nil {
		return "", fmt.Errorf("list activities: %w", err)
	}

	if len(result.Items) == 0 {
		dateMsg := "any date"
		if date != "" {
			dateMsg = date
		}
		catMsg := "all categories"
		if input.Category != "" {
			catMsg = "category " + input.Category
		}
		return fmt.Sprintf("No saved activity found for %s in %s.", dateMsg, catMsg), nil
	}

	lines := make([]string, 0, len(result.Items))
	for i, a := range result.Items {
		lines = append(lines, fmt.Sprintf(
			"%d. **%s**\n   - URL: %s\n   - Category: %s\n   - Date: %s\n   - Summary: %s...",
			i+1, a.Title, a.URL, a.Category,
			a.CreatedAt.Format("2006-01-02"),
			activity.TruncateRunes(a.Summary, 100)))
	}

	dateInfo := ""
	if date != "" {
		dateInfo = fmt.Sprintf(" (%s)", date)
	}
	return fmt.Sprintf("Activities found%s: %d total\n\n%s",
		dateInfo, len(result.Items), strings.Join(lines, "\n\n")), nil
}

// normalizeDate resolves "today" and "yesterday" to concrete dates.
func normalizeDate(date string, now time.Time) string {
	switch strings.ToLower(strings.TrimSpace(date)) {
	case "today":
		return now.Format("2006-01-02")
	case "yesterday":
		return now.AddDate(0, 0, -1).Format("2006-01-02")
	default:
		return strings.TrimSpace(date)
	}
}

type getActivityArgs struct {
	ActivityID int64 `json:"activity_id"`
}

func handleGetActivity(ctx context.Context, t *Tools, args string) (string, error) {
	input, err := decodeArgs[getActivityArgs](args)
	if err != nil {
		return "", err
	}

	act, err := db.GetActivityByID(t.db, input.ActivityID)
	if errors.Is(err, errors.ErrNotFound) {
		return fmt.Sprintf("No saved activity with ID %d.", input.ActivityID), nil
	}
	if err != nil {
		return "", fmt.Errorf("get activity: %w", err)
	}

	return fmt.Sprintf(
		"--- Activity detail (ID: %d) ---\nTitle: %s\nURL: %s\nSummary: %s\nCategory: %s\nSaved: %s\n\n**Content:**\n%s",
		act.ID, act.Title, act.URL, act.Summary, act.Category,
		act.CreatedAt.Format("2006-01-02"),
		activity.TruncateRunes(act.Content, detailLen)), nil
}

func handleGetUserTopics(ctx context.Context, t *Tools, args string) (string, error) {
	topics, err := db.GetTopics(t.db)
	if err != nil {
		return "", fmt.Errorf("get topics: %w", err)
	}
	if len(topics) == 0 {
		return "The user has not configured any topics of interest. Give a general answer.", nil
	}
	return "The user's current topics of interest: " + strings.Join(topics, ", "), nil
}
