// Package mcp exposes the knowledge base to MCP clients over stdio.
package mcp

import (
	"database/sql"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/yujeong0411/stack-note/internal/agent"
	"github.com/yujeong0411/stack-note/internal/llm"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"knowledge_search": {
		def: mcp.NewTool("knowledge_search",
			mcp.WithDescription("Search saved knowledge by meaning and return the closest matches."),
			mcp.WithString("query",
				mcp.Required(),
				mcp.Description("Topic or keywords to search for"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum results (default 3)"),
			),
		),
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleKnowledgeSearch },
	},
	"activity_list": {
		def: mcp.NewTool("activity_list",
			mcp.WithDescription("List saved activities with optional category and date filters. Date accepts YYYY-MM-DD."),
			mcp.WithString("category",
				mcp.Description("Category filter, omit for all"),
			),
			mcp.WithString("date",
				mcp.Description("ISO date filter, omit for all dates"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum results (default 10)"),
			),
		),
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleActivityList },
	},
	"activity_get": {
		def: mcp.NewTool("activity_get",
			mcp.WithDescription("Fetch one saved activity in full by ID."),
			mcp.WithNumber("id",
				mcp.Required(),
				mcp.Description("Activity ID"),
			),
		),
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleActivityGet },
	},
	"briefing_generate": {
		def: mcp.NewTool("briefing_generate",
			mcp.WithDescription("Analyze recent saved activity and produce a briefing. The briefing is also stored."),
			mcp.WithNumber("days",
				mcp.Description("How many days back to analyze (default 7)"),
			),
		),
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleBriefingGenerate },
	},
	"user_topics": {
		def: mcp.NewTool("user_topics",
			mcp.WithDescription("Fetch the user's configured topics of interest."),
		),
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleUserTopics },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// NewServer creates an MCP server with all knowledge base tools
// registered.
func NewServer(db *sql.DB, searcher agent.Searcher, chatter llm.Chatter, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"stacknote",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(db, searcher, chatter, time.Now)
	for _, entry := range toolRegistry {
		s.AddTool(entry.def, entry.handler(h))
	}
	return s
}

// Run starts the MCP server using stdio transport.
func Run(db *sql.DB, searcher agent.Searcher, chatter llm.Chatter, version string) error {
	return server.ServeStdio(NewServer(db, searcher, chatter, version))
}
