package activity

import (
	"strings"
	"time"
	"unicode/utf8"
)

// TimeFormat is the canonical created_at layout stored in SQLite.
// DATE(created_at) filters in internal/db rely on this layout.
const TimeFormat = "2006-01-02 15:04:05"

// Source types derived from URL pattern matching (internal/extract).
const (
	SourceVideo   = "video"
	SourceBlog    = "blog"
	SourceDocs    = "docs"
	SourceNews    = "news"
	SourceForum   = "forum"
	SourceArticle = "article" // catch-all default
)

// SourceTypes lists the fixed source-type vocabulary.
var SourceTypes = []string{SourceVideo, SourceBlog, SourceDocs, SourceNews, SourceForum, SourceArticle}

// Activity is one ingested, classified web page.
type Activity struct {
	// ID is assigned by the store on insert (AUTOINCREMENT).
	ID int64 `json:"id"`

	// URL is the natural key for dedup; unique across all activities.
	URL string `json:"url"`

	// Domain is the host portion of URL, kept for analytics queries.
	Domain string `json:"domain"`

	Title   string `json:"title"`
	Content string `json:"content"` // full extracted text (markdown)
	Summary string `json:"summary"` // model-derived, 3-4 sentences

	// Category is a single short label (e.g. "RAG", "FastAPI").
	Category string `json:"category"`

	// Tags is an ordered list of short keywords (stored as JSON).
	Tags []string `json:"tags"`

	// SourceType is one of the SourceTypes vocabulary.
	SourceType string `json:"source_type"`

	// Metadata is a free-form map reserved for future attributes.
	Metadata map[string]any `json:"metadata,omitempty"`

	// CreatedAt is set at insert time and never changes.
	CreatedAt time.Time `json:"created_at"`
}

// Update carries the user-editable subset of Activity fields.
// Nil pointers mean "leave unchanged".
type Update struct {
	Title      *string   `json:"title,omitempty"`
	Summary    *string   `json:"summary,omitempty"`
	Category   *string   `json:"category,omitempty"`
	Tags       *[]string `json:"tags,omitempty"`
	SourceType *string   `json:"source_type,omitempty"`
}

// Empty reports whether the update would change nothing.
func (u Update) Empty() bool {
	return u.Title == nil && u.Summary == nil && u.Category == nil &&
		u.Tags == nil && u.SourceType == nil
}

// Briefing is a generated digest over a date window.
// PeriodStart and PeriodEnd are ISO dates; both bounds are inclusive.
type Briefing struct {
	ID            int64          `json:"id"`
	PeriodStart   string         `json:"period_start"`
	PeriodEnd     string         `json:"period_end"`
	Content       string         `json:"content"` // markdown
	ActivityCount int            `json:"activity_count"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// ClassifierDefaults are the fallback values used when classification fails.
const (
	DefaultCategory = "Uncategorized"
	DefaultTag      = "tech"
)

// TruncateRunes shortens s to at most n runes, never splitting a rune.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// NormalizeTags trims whitespace, drops empties, and strips leading '#'.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimPrefix(strings.TrimSpace(tag), "#")
		if tag != "" {
			out = append(out, tag)
		}
	}
	return out
}
