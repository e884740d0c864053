// Package classify assigns a category, tags, and summary to extracted
// content via the model.
//
// Classification never fails the pipeline: any model error or
// malformed output degrades to a default classification so the
// activity is still stored.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/yujeong0411/stack-note/internal/activity"
	"github.com/yujeong0411/stack-note/internal/llm"
)

// contentLimit caps how much of the body goes into the prompt.
const contentLimit = 2000

const systemPrompt = `You classify web content saved to a personal knowledge base.

Respond with JSON only, exactly this shape:
{"category": "...", "tags": ["...", "..."], "summary": "..."}

Rules:
- category: one short noun phrase, e.g. "Machine Learning", "Web Development"
- tags: 3 to 5 lowercase keywords, no # prefix
- summary: 2 to 3 sentences covering what the content teaches or argues`

// Classification is the model's verdict on one piece of content.
type Classification struct {
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
	Summary  string   `json:"summary"`
}

// Classifier labels extracted content.
type Classifier struct {
	chatter llm.Chatter
	logger  *slog.Logger
}

func New(chatter llm.Chatter, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{chatter: chatter, logger: logger}
}

// Classify labels content with a category, tags, and summary. On any
// model failure it returns the default classification with the title
// as summary; the error is logged, never returned.
func (c *Classifier) Classify(ctx context.Context, title, content string) *Classification {
	body := activity.TruncateRunes(content, contentLimit)
	user := fmt.Sprintf("Title: %s\n\nContent:\n%s", title, body)

	reply, err := c.chatter.Chat(ctx, []llm.Message{
		llm.SystemMessage(systemPrompt),
		llm.UserMessage(user),
	}, nil)
	if err != nil {
		c.logger.Warn("classify: chat failed, using defaults", "error", err)
		return fallback(title)
	}

	var out Classification
	raw := llm.StripFences(reply.Content)
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		c.logger.Warn("classify: unparseable model output, using defaults", "error", err)
		return fallback(title)
	}

	out.Category = strings.TrimSpace(out.Category)
	if out.Category == "" {
		out.Category = activity.DefaultCategory
	}
	out.Tags = activity.NormalizeTags(out.Tags)
	if len(out.Tags) == 0 {
		out.Tags = []string{activity.DefaultTag}
	}
	out.Summary = strings.TrimSpace(out.Summary)
	if out.Summary == "" {
		out.Summary = title
	}
	return &out
}

func fallback(title string) *Classification {
	return &Classification{
		Category: activity.DefaultCategory,
		Tags:     []string{activity.DefaultTag},
		Summary:  title,
	}
}
