package agent

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/yujeong0411/stack-note/internal/activity"
	"github.com/yujeong0411/stack-note/internal/db"
	"github.com/yujeong0411/stack-note/internal/llm"
)

// DefaultBriefingDays is the analysis window when none is given.
const DefaultBriefingDays = 7

const briefingPromptTemplate = `You are the analyst for a personal knowledge base.
Analyze the activity data below and write a detailed briefing.

<metadata>
Today: %s
Period: last %d days (%s to %s)
Total activities: %d
</metadata>

<raw_data>
%s
</raw_data>

<analysis_guidelines>
Structure the briefing like this:

# Activity Briefing (%s to %s)
## 1. Key Trends
### Weekly flow
- How interests shifted across the period

### Core themes
- The 2-3 most prominent themes
- Concrete activity examples for each

## 2. Category Distribution
- Share per category, e.g. AI (60%%) > Programming (30%%) > other (10%%)

## 3. Key Keywords
- The 3-5 most important keywords
- One line of context for each

## 4. Insights
- 2-3 suggestions for next steps that continue the current learning thread
- Name specific technologies or projects

## 5. Notable Material
- 2-3 items worth revisiting, with title and a short note
</analysis_guidelines>

<tone>
- Positive and encouraging
- Praise balanced activity
- Concrete, actionable advice
</tone>

Write the briefing in Markdown.`

// GenerateBriefing analyzes the last days of activity and writes a
// briefing. The briefing is stored and its text returned. With no
// activity in the period nothing is stored or sent to the model.
func GenerateBriefing(ctx context.Context, database *sql.DB, chatter llm.Chatter, now func() time.Time, days int) (string, error) {
	if days <= 0 {
		days = DefaultBriefingDays
	}
	if now == nil {
		now = time.Now
	}

	end := now()
	start := end.AddDate(0, 0, -days)
	periodStart := start.Format("2006-01-02")
	periodEnd := end.Format("2006-01-02")

	activities, err := db.ListActivitiesSince(database, start)
	if err != nil {
		return "", fmt.Errorf("load activities: %w", err)
	}
	if len(activities) == 0 {
		return fmt.Sprintf("No activity was recorded between %s and %s, so no briefing can be generated.",
			periodStart, periodEnd), nil
	}

	lines := make([]string, 0, len(activities))
	for _, a := range activities {
		lines = append(lines, fmt.Sprintf("- [%s] %s (category-%s): %s",
			a.CreatedAt.Format("2006-01-02"), a.Title, a.Category, a.Summary))
	}

	prompt := fmt.Sprintf(briefingPromptTemplate,
		periodEnd, days, periodStart, periodEnd, len(activities),
		strings.Join(lines, "\n"),
		periodStart, periodEnd)

	reply, err := chatter.Chat(ctx, []llm.Message{llm.UserMessage(prompt)}, nil)
	if err != nil {
		return "", fmt.Errorf("briefing chat: %w", err)
	}
	text := strings.TrimSpace(reply.Content)
	if text == "" {
		return "", fmt.Errorf("briefing chat: empty response")
	}

	briefing := &activity.Briefing{
		PeriodStart:   periodStart,
		PeriodEnd:     periodEnd,
		Content:       text,
		ActivityCount: len(activities),
		Metadata:      map[string]any{"days": days},
	}
	if _, err := db.InsertBriefing(database, briefing); err != nil {
		return "", fmt.Errorf("save briefing: %w", err)
	}
	return text, nil
}
