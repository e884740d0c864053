package web

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/yujeong0411/stack-note/internal/activity"
	"github.com/yujeong0411/stack-note/internal/agent"
	"github.com/yujeong0411/stack-note/internal/db"
	"github.com/yujeong0411/stack-note/internal/errors"
	"github.com/yujeong0411/stack-note/internal/llm"
	"github.com/yujeong0411/stack-note/internal/pipeline"
)

// Enqueuer is the intake queue as the API sees it.
type Enqueuer interface {
	Enqueue(item pipeline.Item) error
}

// VectorDeleter removes activities from the vector index.
type VectorDeleter interface {
	DeleteByID(id int64) error
}

// ChatRunner handles one chat turn with conversation history.
type ChatRunner interface {
	Run(ctx context.Context, message string, history []llm.Message) *agent.Result
}

// BriefingFunc generates and stores a briefing over the last days.
type BriefingFunc func(ctx context.Context, days int) (string, error)

// session holds one conversation's history. Its mutex serializes
// turns within the conversation.
type session struct {
	mu      sync.Mutex
	history []llm.Message
}

// Handlers holds dependencies for the API handlers.
type Handlers struct {
	db       *sql.DB
	queue    Enqueuer
	vector   VectorDeleter
	chat     ChatRunner
	briefing BriefingFunc
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

func NewHandlers(database *sql.DB, queue Enqueuer, vector VectorDeleter, chat ChatRunner, briefing BriefingFunc, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		db:       database,
		queue:    queue,
		vector:   vector,
		chat:     chat,
		briefing: briefing,
		logger:   logger,
		sessions: make(map[string]*session),
	}
}

// Response envelope

type envelope struct {
	IsSuccess bool   `json:"isSuccess"`
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	Timestamp string `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, code int, env envelope) {
	env.Code = code
	env.Timestamp = time.Now().Format(time.RFC3339)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(env)
}

func writeSuccess(w http.ResponseWriter, code int, message string, data any) {
	writeJSON(w, code, envelope{IsSuccess: true, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, err error) {
	if sErr, ok := err.(*errors.StackError); ok {
		writeJSON(w, sErr.Status, envelope{IsSuccess: false, Message: sErr.Message})
		return
	}
	writeJSON(w, http.StatusInternalServerError, envelope{IsSuccess: false, Message: "an internal error occurred"})
}

// HandleHealth reports liveness.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, "ok", nil)
}

// Capture

type captureRequest struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// HandleCapture accepts a URL for background processing.
func (h *Handlers) HandleCapture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.NewInvalidRequest("invalid JSON body"))
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		writeError(w, errors.NewInvalidRequest("url is required"))
		return
	}
	parsed, err := url.Parse(req.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		writeError(w, errors.NewInvalidRequest("url must be a valid http(s) URL"))
		return
	}

	if err := h.queue.Enqueue(pipeline.Item{URL: req.URL, Title: strings.TrimSpace(req.Title)}); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusAccepted, "URL queued for processing", nil)
}

// Activities

// HandleListActivities lists activities with paging and filters.
func (h *Handlers) HandleListActivities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := db.ListFilter{
		Page:       intParam(q.Get("page"), 1),
		PageSize:   intParam(q.Get("page_size"), db.DefaultPageSize),
		Category:   q.Get("category"),
		SourceType: q.Get("source_type"),
		StartDate:  q.Get("start_date"),
		EndDate:    q.Get("end_date"),
	}
	if tags := strings.TrimSpace(q.Get("tags")); tags != "" {
		filter.Tags = strings.Split(tags, ",")
	}

	result, err := db.ListActivities(h.db, filter)
	if err != nil {
		h.logger.Error("list activities failed", "error", err)
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "activities listed", result)
}

// HandleGetActivity returns one activity in full.
func (h *Handlers) HandleGetActivity(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	act, err := db.GetActivityByID(h.db, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "activity found", act)
}

// HandleUpdateActivity applies a partial update to an activity.
func (h *Handlers) HandleUpdateActivity(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var update activity.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, errors.NewInvalidRequest("invalid JSON body"))
		return
	}
	if update.Empty() {
		writeError(w, errors.NewInvalidRequest("no fields to update"))
		return
	}

	act, err := db.UpdateActivity(h.db, id, update)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "activity updated", act)
}

// HandleDeleteActivity removes an activity from both the relational
// store and the vector index.
func (h *Handlers) HandleDeleteActivity(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := db.DeleteActivity(h.db, id); err != nil {
		writeError(w, err)
		return
	}
	if err := h.vector.DeleteByID(id); err != nil {
		h.logger.Warn("vector delete failed", "activity_id", id, "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search

// HandleSearch runs a keyword search over stored activities.
func (h *Handlers) HandleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, errors.NewInvalidRequest("q is required"))
		return
	}
	limit := intParam(r.URL.Query().Get("limit"), 10)

	items, err := db.SearchActivities(h.db, q, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "search complete", map[string]any{
		"items": items,
		"total": len(items),
	})
}

// Analytics

// HandleCategories returns category counts, optionally for one date.
func (h *Handlers) HandleCategories(w http.ResponseWriter, r *http.Request) {
	counts, err := db.ListCategories(h.db, r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "categories listed", map[string]any{"items": counts})
}

// HandleTags returns distinct tags, optionally filtered.
func (h *Handlers) HandleTags(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tags, err := db.ListTags(h.db, q.Get("date"), q.Get("category"), intParam(q.Get("limit"), 0))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "tags listed", map[string]any{"items": tags})
}

// HandleMetrics returns today's dashboard metrics.
func (h *Handlers) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := db.TodayMetrics(h.db, time.Now().UTC())
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "metrics computed", metrics)
}

// Briefings

// HandleListBriefings lists recent briefings.
func (h *Handlers) HandleListBriefings(w http.ResponseWriter, r *http.Request) {
	limit := intParam(r.URL.Query().Get("limit"), 10)
	briefings, err := db.ListBriefings(h.db, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "briefings listed", map[string]any{"items": briefings})
}

// HandleGetBriefing returns one briefing. With format=html the
// markdown content is rendered to a sanitized HTML fragment.
func (h *Handlers) HandleGetBriefing(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	briefing, err := db.GetBriefingByID(h.db, id)
	if err != nil {
		writeError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "html" {
		html, err := renderMarkdown(briefing.Content)
		if err != nil {
			h.logger.Error("briefing render failed", "briefing_id", id, "error", err)
			writeError(w, errors.NewInternal(err))
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(html)
		return
	}
	writeSuccess(w, http.StatusOK, "briefing found", briefing)
}

type briefingRequest struct {
	Days int `json:"days"`
}

// HandleGenerateBriefing generates a briefing over the last days.
func (h *Handlers) HandleGenerateBriefing(w http.ResponseWriter, r *http.Request) {
	var req briefingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.NewInvalidRequest("invalid JSON body"))
		return
	}

	text, err := h.briefing(r.Context(), req.Days)
	if err != nil {
		h.logger.Error("briefing generation failed", "error", err)
		writeError(w, errors.NewInternal(err))
		return
	}
	writeSuccess(w, http.StatusCreated, "briefing generated", map[string]any{"content": text})
}

// Chat

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}

// HandleChat runs one agent turn. Without a conversation_id a new
// conversation is started; turns within one conversation are
// serialized.
func (h *Handlers) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.NewInvalidRequest("invalid JSON body"))
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		writeError(w, errors.NewInvalidRequest("message is required"))
		return
	}

	id, sess := h.session(req.ConversationID)

	sess.mu.Lock()
	turn := h.chat.Run(r.Context(), req.Message, sess.history)
	sess.history = turn.Messages
	sess.mu.Unlock()

	writeSuccess(w, http.StatusOK, "response generated", map[string]any{
		"response":        turn.Reply,
		"conversation_id": id,
	})
}

// session returns the conversation for id, creating a new one with a
// fresh ULID when id is empty or unknown.
func (h *Handlers) session(id string) (string, *session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if id != "" {
		if sess, ok := h.sessions[id]; ok {
			return id, sess
		}
	}
	entropy := ulid.Monotonic(rand.Reader, 0)
	id = ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
	sess := &session{}
	h.sessions[id] = sess
	return id, sess
}

// Settings

type topicsRequest struct {
	Topics []string `json:"topics"`
}

// HandleGetTopics returns the user's configured topics of interest.
func (h *Handlers) HandleGetTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := db.GetTopics(h.db)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "topics listed", map[string]any{"topics": topics})
}

// HandleSetTopics replaces the user's topics of interest.
func (h *Handlers) HandleSetTopics(w http.ResponseWriter, r *http.Request) {
	var req topicsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.NewInvalidRequest("invalid JSON body"))
		return
	}

	if err := db.SetTopics(h.db, req.Topics); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "topics updated", map[string]any{"topics": req.Topics})
}

// Helpers

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.NewInvalidRequest("invalid id")
	}
	return id, nil
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
