package agent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/yujeong0411/stack-note/internal/activity"
	"github.com/yujeong0411/stack-note/internal/db"
	"github.com/yujeong0411/stack-note/internal/llm"
	"github.com/yujeong0411/stack-note/internal/vector"
)

// scriptedChatter replays a fixed sequence of replies.
type scriptedChatter struct {
	replies  []llm.Message
	err      error
	calls    int
	lastMsgs []llm.Message
}

func (s *scriptedChatter) Chat(ctx context.Context, msgs []llm.Message, tools []llm.Tool) (llm.Message, error) {
	s.calls++
	s.lastMsgs = msgs
	if s.err != nil {
		return llm.Message{}, s.err
	}
	i := s.calls - 1
	if i >= len(s.replies) {
		i = len(s.replies) - 1
	}
	return s.replies[i], nil
}

type fakeSearcher struct {
	results []vector.Result
	err     error
	queries []string
}

func (f *fakeSearcher) Search(ctx context.Context, query string, k int) ([]vector.Result, error) {
	f.queries = append(f.queries, query)
	return f.results, f.err
}

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("db.Init failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func assistantText(content string) llm.Message {
	return llm.Message{Role: llm.RoleAssistant, Content: content}
}

func assistantToolCall(name, args string) llm.Message {
	return llm.Message{
		Role:      llm.RoleAssistant,
		ToolCalls: []llm.ToolCall{{ID: "call_1", Name: name, Arguments: args}},
	}
}

func TestRun_DirectAnswer(t *testing.T) {
	chatter := &scriptedChatter{replies: []llm.Message{assistantText("Hello there.")}}
	a := New(Deps{DB: testDB(t), Vector: &fakeSearcher{}, Chatter: chatter})

	res := a.Run(context.Background(), "hi", nil)
	if res.Reply != "Hello there." {
		t.Errorf("Reply = %q", res.Reply)
	}
	if chatter.calls != 1 {
		t.Errorf("chat calls = %d, want 1", chatter.calls)
	}
	if chatter.lastMsgs[0].Role != llm.RoleSystem {
		t.Error("system prompt not seeded")
	}
	// system + user + assistant
	if len(res.Messages) != 3 {
		t.Errorf("len(Messages) = %d, want 3", len(res.Messages))
	}
}

func TestRun_SystemPromptSeededOnce(t *testing.T) {
	chatter := &scriptedChatter{replies: []llm.Message{assistantText("ok")}}
	a := New(Deps{DB: testDB(t), Vector: &fakeSearcher{}, Chatter: chatter})

	first := a.Run(context.Background(), "hi", nil)
	second := a.Run(context.Background(), "again", first.Messages)

	system := 0
	for _, m := range second.Messages {
		if m.Role == llm.RoleSystem {
			system++
		}
	}
	if system != 1 {
		t.Errorf("system messages = %d, want 1", system)
	}
}

func TestRun_ToolRound(t *testing.T) {
	chatter := &scriptedChatter{replies: []llm.Message{
		assistantToolCall("search_knowledge", `{"query": "rag"}`),
		assistantText("RAG is retrieval augmented generation."),
	}}
	searcher := &fakeSearcher{results: []vector.Result{
		{Content: "RAG combines retrieval with generation.", Meta: vector.Meta{Title: "Intro to RAG", ActivityID: 1}},
	}}
	a := New(Deps{DB: testDB(t), Vector: searcher, Chatter: chatter})

	res := a.Run(context.Background(), "what is RAG?", nil)
	if res.Reply != "RAG is retrieval augmented generation." {
		t.Errorf("Reply = %q", res.Reply)
	}
	if chatter.calls != 2 {
		t.Errorf("chat calls = %d, want 2", chatter.calls)
	}
	if len(searcher.queries) != 1 || searcher.queries[0] != "rag" {
		t.Errorf("search queries = %v", searcher.queries)
	}

	// The second chat call must include the tool result.
	var toolMsg *llm.Message
	for i := range chatter.lastMsgs {
		if chatter.lastMsgs[i].Role == llm.RoleTool {
			toolMsg = &chatter.lastMsgs[i]
		}
	}
	if toolMsg == nil {
		t.Fatal("no tool message sent back to the model")
	}
	if toolMsg.ToolCallID != "call_1" {
		t.Errorf("ToolCallID = %q", toolMsg.ToolCallID)
	}
	if !strings.Contains(toolMsg.Content, "Intro to RAG") {
		t.Errorf("tool output missing hit title: %q", toolMsg.Content)
	}
}

func TestRun_IterationCap(t *testing.T) {
	chatter := &scriptedChatter{replies: []llm.Message{
		assistantToolCall("get_user_topics", "{}"),
	}}
	a := New(Deps{DB: testDB(t), Vector: &fakeSearcher{}, Chatter: chatter, MaxIterations: 3})

	res := a.Run(context.Background(), "loop forever", nil)
	if chatter.calls != 3 {
		t.Errorf("chat calls = %d, want 3", chatter.calls)
	}
	if res.Reply != cappedReply {
		t.Errorf("Reply = %q, want the tool-round cap message", res.Reply)
	}
}

func TestRun_ChatErrorKeepsHistory(t *testing.T) {
	chatter := &scriptedChatter{err: errors.New("model down")}
	a := New(Deps{DB: testDB(t), Vector: &fakeSearcher{}, Chatter: chatter})

	res := a.Run(context.Background(), "hi", nil)
	if res.Reply != apologyReply {
		t.Errorf("Reply = %q, want apology", res.Reply)
	}
	last := res.Messages[len(res.Messages)-1]
	if last.Role != llm.RoleUser || last.Content != "hi" {
		t.Errorf("history should end with the user message, got %+v", last)
	}
}

func TestRun_UnknownTool(t *testing.T) {
	chatter := &scriptedChatter{replies: []llm.Message{
		assistantToolCall("delete_everything", "{}"),
		assistantText("done"),
	}}
	a := New(Deps{DB: testDB(t), Vector: &fakeSearcher{}, Chatter: chatter})

	a.Run(context.Background(), "hi", nil)

	var toolOutput string
	for _, m := range chatter.lastMsgs {
		if m.Role == llm.RoleTool {
			toolOutput = m.Content
		}
	}
	if !strings.Contains(toolOutput, "Unknown tool") {
		t.Errorf("tool output = %q, want unknown tool notice", toolOutput)
	}
}

func TestRun_ToolErrorFedBack(t *testing.T) {
	chatter := &scriptedChatter{replies: []llm.Message{
		assistantToolCall("search_knowledge", `{"query": "x"}`),
		assistantText("sorry"),
	}}
	searcher := &fakeSearcher{err: errors.New("index offline")}
	a := New(Deps{DB: testDB(t), Vector: searcher, Chatter: chatter})

	res := a.Run(context.Background(), "hi", nil)
	if res.Reply != "sorry" {
		t.Errorf("Reply = %q", res.Reply)
	}

	var toolOutput string
	for _, m := range chatter.lastMsgs {
		if m.Role == llm.RoleTool {
			toolOutput = m.Content
		}
	}
	if !strings.Contains(toolOutput, "failed") {
		t.Errorf("tool output = %q, want failure notice", toolOutput)
	}
}

func insertTestActivity(t *testing.T, database *sql.DB, title, category string) int64 {
	t.Helper()
	id, err := db.InsertActivity(database, &activity.Activity{
		URL:        "https://example.com/" + strings.ToLower(strings.ReplaceAll(title, " ", "-")),
		Domain:     "example.com",
		Title:      title,
		Content:    "Body of " + title,
		Summary:    "Summary of " + title,
		Category:   category,
		Tags:       []string{"test"},
		SourceType: activity.SourceArticle,
	})
	if err != nil {
		t.Fatalf("InsertActivity failed: %v", err)
	}
	return id
}

func TestGenerateBriefing(t *testing.T) {
	database := testDB(t)
	insertTestActivity(t, database, "Go Concurrency Patterns", "Programming")
	insertTestActivity(t, database, "Attention Is All You Need", "AI")

	chatter := &scriptedChatter{replies: []llm.Message{
		assistantText("# Activity Briefing\nA good week of reading."),
	}}

	text, err := GenerateBriefing(context.Background(), database, chatter, time.Now, 7)
	if err != nil {
		t.Fatalf("GenerateBriefing failed: %v", err)
	}
	if !strings.Contains(text, "Activity Briefing") {
		t.Errorf("briefing text = %q", text)
	}

	// The prompt carries the activity summaries.
	prompt := chatter.lastMsgs[len(chatter.lastMsgs)-1].Content
	if !strings.Contains(prompt, "Go Concurrency Patterns") {
		t.Error("prompt missing activity titles")
	}

	briefings, err := db.ListBriefings(database, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(briefings) != 1 {
		t.Fatalf("briefings stored = %d, want 1", len(briefings))
	}
	if briefings[0].ActivityCount != 2 {
		t.Errorf("ActivityCount = %d, want 2", briefings[0].ActivityCount)
	}
}

func TestGenerateBriefing_NoActivity(t *testing.T) {
	database := testDB(t)
	chatter := &scriptedChatter{replies: []llm.Message{assistantText("should not be called")}}

	text, err := GenerateBriefing(context.Background(), database, chatter, time.Now, 7)
	if err != nil {
		t.Fatalf("GenerateBriefing failed: %v", err)
	}
	if !strings.Contains(text, "no briefing can be generated") {
		t.Errorf("text = %q, want no-activity notice", text)
	}
	if chatter.calls != 0 {
		t.Errorf("model called %d times with no activity, want 0", chatter.calls)
	}

	briefings, err := db.ListBriefings(database, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(briefings) != 0 {
		t.Errorf("briefings stored = %d, want 0", len(briefings))
	}
}

func TestHandleListActivities_DateNormalization(t *testing.T) {
	database := testDB(t)
	insertTestActivity(t, database, "Saved Today", "Programming")

	tools := &Tools{db: database, now: func() time.Time { return time.Now().UTC() }}
	out, err := handleListActivities(context.Background(), tools, `{"date": "today"}`)
	if err != nil {
		t.Fatalf("handleListActivities failed: %v", err)
	}
	if !strings.Contains(out, "Saved Today") {
		t.Errorf("output = %q, want today's activity", out)
	}

	out, err = handleListActivities(context.Background(), tools, `{"date": "yesterday"}`)
	if err != nil {
		t.Fatalf("handleListActivities failed: %v", err)
	}
	if strings.Contains(out, "Saved Today") {
		t.Errorf("yesterday filter returned today's activity: %q", out)
	}
}

func TestHandleGetActivity(t *testing.T) {
	database := testDB(t)
	id := insertTestActivity(t, database, "Deep Dive", "Programming")

	tools := &Tools{db: database, now: func() time.Time { return time.Now().UTC() }}
	out, err := handleGetActivity(context.Background(), tools, fmt.Sprintf(`{"activity_id": %d}`, id))
	if err != nil {
		t.Fatalf("handleGetActivity failed: %v", err)
	}
	if !strings.Contains(out, "Deep Dive") || !strings.Contains(out, "Body of Deep Dive") {
		t.Errorf("output missing detail: %q", out)
	}
}

func TestHandleGetActivity_Missing(t *testing.T) {
	tools := &Tools{db: testDB(t), now: time.Now}
	out, err := handleGetActivity(context.Background(), tools, `{"activity_id": 999}`)
	if err != nil {
		t.Fatalf("handleGetActivity failed: %v", err)
	}
	if !strings.Contains(out, "No saved activity") {
		t.Errorf("output = %q, want missing notice", out)
	}
}

func TestHandleGetUserTopics_Empty(t *testing.T) {
	tools := &Tools{db: testDB(t), now: time.Now}
	out, err := handleGetUserTopics(context.Background(), tools, "")
	if err != nil {
		t.Fatalf("handleGetUserTopics failed: %v", err)
	}
	if !strings.Contains(out, "not configured") {
		t.Errorf("output = %q, want unconfigured notice", out)
	}
}

func TestNormalizeDate(t *testing.T) {
	now := time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want string
	}{
		{"today", "2025-03-15"},
		{"Today", "2025-03-15"},
		{"yesterday", "2025-03-14"},
		{"2025-01-01", "2025-01-01"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := normalizeDate(tt.in, now); got != tt.want {
			t.Errorf("normalizeDate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
