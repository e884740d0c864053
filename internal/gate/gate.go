// Package gate decides whether a captured URL is worth keeping.
//
// A static blocklist rejects sensitive and noise pages outright; the
// rest go to the model for a relevance call.
package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yujeong0411/stack-note/internal/errors"
	"github.com/yujeong0411/stack-note/internal/llm"
)

// blockedTerms short-circuits the model call. Banking and auth pages
// must never be fetched, let alone stored.
var blockedTerms = []string{"bank", "facebook", "instagram", "login", "auth"}

const blockedReason = "blocked domain or auth page"

const systemPrompt = `You decide whether a web page is worth saving to a personal
knowledge base of technical and learning material.

Respond with JSON only, exactly this shape:
{"should_save": true, "reason": "one short sentence"}

Save pages with substantive content: articles, documentation, tutorials,
talks, discussions. Reject search result pages, login or account pages,
shopping carts, social feeds, and pages with no durable content.`

// Decision is the gate's verdict on one URL.
type Decision struct {
	ShouldSave bool   `json:"should_save"`
	Reason     string `json:"reason"`
}

// Gate screens URLs before extraction.
type Gate struct {
	chatter llm.Chatter
}

func New(chatter llm.Chatter) *Gate {
	return &Gate{chatter: chatter}
}

// Check screens a URL with its page title. Blocklisted URLs are
// rejected without a model call. A model response that is not the
// expected JSON shape is an error, not a rejection.
func (g *Gate) Check(ctx context.Context, url, title string) (*Decision, error) {
	lower := strings.ToLower(url)
	for _, term := range blockedTerms {
		if strings.Contains(lower, term) {
			return &Decision{ShouldSave: false, Reason: blockedReason}, nil
		}
	}

	user := fmt.Sprintf("URL: %s\nTitle: %s", url, title)
	reply, err := g.chatter.Chat(ctx, []llm.Message{
		llm.SystemMessage(systemPrompt),
		llm.UserMessage(user),
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("gate chat: %w", err)
	}

	var d Decision
	raw := llm.StripFences(reply.Content)
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, errors.NewModelOutputInvalid("gate: " + err.Error())
	}
	if d.Reason == "" {
		return nil, errors.NewModelOutputInvalid("gate: missing reason")
	}
	return &d, nil
}
