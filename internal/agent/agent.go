// Package agent runs the tool-calling conversation loop over the
// knowledge base.
//
// The loop is explicit: call the model with the tool catalog, execute
// any tool calls it makes, feed the results back, and repeat until
// the model answers in plain text or the iteration cap is hit.
package agent

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/yujeong0411/stack-note/internal/llm"
)

// DefaultMaxIterations bounds the tool-calling loop.
const DefaultMaxIterations = 8

const systemPrompt = `<role>
You are the assistant for a personal knowledge base. Pages the user
visits are captured automatically and classified by content into
categories like Programming, AI, Music, or News.
</role>

<capabilities>
What the system can do:
- capture and store visited web pages: title, URL, body, summary, category, tags
- filter stored data by date, category, and tags
- find related material by semantic search
- generate briefings over a period

What it cannot do:
- live internet search
- look up pages that were never saved
- download or upload files
</capabilities>

<instructions>
Decide first whether a tool is needed; answer directly when it is not.
You keep conversation history, so resolve references like "that one"
or "the second item" from earlier turns.

Tool selection:
1. Conceptual questions ("what is RAG?") -> search_knowledge with the
   core topic as query.
2. Listing requests ("what did I save today?") -> list_activities;
   map "today"/"yesterday" to the date argument, mention of a
   category to the category argument.
3. Period summaries or trend analysis ("summarize my week") ->
   generate_briefing with the number of days.
4. Full content of a specific item ("show me item 15") ->
   get_activity with the activity ID.
5. When tailoring an answer to the user's interests would help,
   call get_user_topics first.

Answer clearly and helpfully, and suggest a follow-up question when
it is natural.
</instructions>`

const apologyReply = "Sorry, something went wrong while handling your request. Please try again."

const cappedReply = "Sorry, I stopped after too many tool rounds without reaching an answer. Please try a more specific question."

// Deps are the agent's external dependencies.
type Deps struct {
	DB      *sql.DB
	Vector  Searcher
	Chatter llm.Chatter

	// Now supplies the current time; nil means time.Now.
	Now func() time.Time

	// MaxIterations caps tool-calling rounds; zero means the default.
	MaxIterations int

	Logger *slog.Logger
}

// Agent answers questions about the knowledge base.
type Agent struct {
	tools   *Tools
	chatter llm.Chatter
	maxIter int
	logger  *slog.Logger
}

// Result is one completed agent turn.
type Result struct {
	Reply string
	// Messages is the full conversation after this turn, to be
	// carried into the next one.
	Messages []llm.Message
}

func New(deps Deps) *Agent {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	maxIter := deps.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		tools: &Tools{
			db:      deps.DB,
			vector:  deps.Vector,
			chatter: deps.Chatter,
			now:     now,
		},
		chatter: deps.Chatter,
		maxIter: maxIter,
		logger:  logger,
	}
}

// Run handles one user turn. history is the conversation so far and
// may be nil. Failures never surface as errors: the user gets an
// apology and the history stays at its last good state.
func (a *Agent) Run(ctx context.Context, userMessage string, history []llm.Message) *Result {
	messages := make([]llm.Message, 0, len(history)+2)
	if !llm.HasSystemMessage(history) {
		messages = append(messages, llm.SystemMessage(systemPrompt))
	}
	messages = append(messages, history...)
	messages = append(messages, llm.UserMessage(userMessage))

	defs := toolDefs()

	for i := 0; i < a.maxIter; i++ {
		reply, err := a.chatter.Chat(ctx, messages, defs)
		if err != nil {
			a.logger.Error("agent: chat failed", "error", err)
			return &Result{Reply: apologyReply, Messages: messages}
		}

		if len(reply.ToolCalls) == 0 {
			messages = append(messages, reply)
			return &Result{Reply: reply.Content, Messages: messages}
		}

		messages = append(messages, reply)
		for _, call := range reply.ToolCalls {
			output := a.execute(ctx, call)
			messages = append(messages, llm.ToolMessage(call.ID, output))
		}
	}

	a.logger.Warn("agent: iteration cap reached", "max", a.maxIter)
	return &Result{Reply: cappedReply, Messages: messages}
}

// execute runs one tool call. Errors are rendered into the tool
// output so the model can recover or apologize itself.
func (a *Agent) execute(ctx context.Context, call llm.ToolCall) string {
	entry, ok := toolRegistry[call.Name]
	if !ok {
		return fmt.Sprintf("Unknown tool %q.", call.Name)
	}

	output, err := entry.handler(ctx, a.tools, call.Arguments)
	if err != nil {
		a.logger.Warn("agent: tool failed", "tool", call.Name, "error", err)
		return fmt.Sprintf("Tool %s failed: %s", call.Name, err)
	}
	return output
}
