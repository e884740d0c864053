// Package pipeline runs captured URLs through the intake flow:
// dedup, relevance gate, extraction, classification, storage, and
// vector indexing.
//
// Intake is a bounded queue drained by a single worker, so capture
// returns immediately and processing failures never reach the caller.
package pipeline

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/yujeong0411/stack-note/internal/activity"
	"github.com/yujeong0411/stack-note/internal/classify"
	"github.com/yujeong0411/stack-note/internal/db"
	"github.com/yujeong0411/stack-note/internal/errors"
	"github.com/yujeong0411/stack-note/internal/extract"
	"github.com/yujeong0411/stack-note/internal/gate"
)

// Item is one captured URL awaiting processing.
type Item struct {
	URL   string
	Title string
}

// Outcome statuses.
const (
	StatusStored  = "stored"
	StatusSkipped = "skipped"
)

// Outcome reports what happened to one item.
type Outcome struct {
	Status     string
	Reason     string
	ActivityID int64
}

// Gater screens URLs before extraction.
type Gater interface {
	Check(ctx context.Context, url, title string) (*gate.Decision, error)
}

// Extractor pulls readable content from a URL.
type Extractor interface {
	Extract(ctx context.Context, url string) (*extract.Result, error)
}

// Classifier labels extracted content.
type Classifier interface {
	Classify(ctx context.Context, title, content string) *classify.Classification
}

// Indexer maintains the vector index over stored activities.
type Indexer interface {
	Upsert(ctx context.Context, act *activity.Activity) error
}

// Pipeline processes captured URLs.
type Pipeline struct {
	db         *sql.DB
	gate       Gater
	extractor  Extractor
	classifier Classifier
	indexer    Indexer
	queue      chan Item
	logger     *slog.Logger
}

func New(database *sql.DB, g Gater, e Extractor, c Classifier, idx Indexer, queueSize int, logger *slog.Logger) *Pipeline {
	if queueSize <= 0 {
		queueSize = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		db:         database,
		gate:       g,
		extractor:  e,
		classifier: c,
		indexer:    idx,
		queue:      make(chan Item, queueSize),
		logger:     logger,
	}
}

// Enqueue adds an item to the intake queue without blocking. A full
// queue rejects the item.
func (p *Pipeline) Enqueue(item Item) error {
	select {
	case p.queue <- item:
		return nil
	default:
		return errors.NewQueueFull()
	}
}

// QueueDepth returns the number of items waiting in the queue.
func (p *Pipeline) QueueDepth() int {
	return len(p.queue)
}

// Run drains the queue until ctx is cancelled. Item failures are
// logged; the worker never dies.
func (p *Pipeline) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-p.queue:
			out := p.Process(ctx, item)
			p.logger.Info("pipeline: processed",
				"url", item.URL,
				"status", out.Status,
				"reason", out.Reason,
				"activity_id", out.ActivityID)
		}
	}
}

// Process runs one item through the full intake flow.
func (p *Pipeline) Process(ctx context.Context, item Item) Outcome {
	existing, err := db.GetActivityIDByURL(p.db, item.URL)
	if err != nil {
		return Outcome{Status: StatusSkipped, Reason: "dedup check failed: " + err.Error()}
	}
	if existing != 0 {
		return Outcome{Status: StatusSkipped, Reason: "already saved", ActivityID: existing}
	}

	decision, err := p.gate.Check(ctx, item.URL, item.Title)
	if err != nil {
		return Outcome{Status: StatusSkipped, Reason: "gate failed: " + err.Error()}
	}
	if !decision.ShouldSave {
		return Outcome{Status: StatusSkipped, Reason: decision.Reason}
	}

	extracted, err := p.extractor.Extract(ctx, item.URL)
	if err != nil {
		return Outcome{Status: StatusSkipped, Reason: "extract failed: " + err.Error()}
	}
	if extracted == nil {
		return Outcome{Status: StatusSkipped, Reason: "no extractable content"}
	}

	title := extracted.Title
	if title == "" {
		title = item.Title
	}
	// A page with no title at all isn't worth keeping.
	if title == "" {
		return Outcome{Status: StatusSkipped, Reason: "no extractable content"}
	}

	labels := p.classifier.Classify(ctx, title, extracted.Content)

	act := &activity.Activity{
		URL:        item.URL,
		Domain:     extracted.Domain,
		Title:      title,
		Content:    extracted.Content,
		Summary:    labels.Summary,
		Category:   labels.Category,
		Tags:       labels.Tags,
		SourceType: extract.DetectSourceType(item.URL),
	}
	if extracted.Author != "" || extracted.Date != "" {
		act.Metadata = map[string]any{}
		if extracted.Author != "" {
			act.Metadata["author"] = extracted.Author
		}
		if extracted.Date != "" {
			act.Metadata["published"] = extracted.Date
		}
	}

	if _, err := db.InsertActivity(p.db, act); err != nil {
		if errors.Is(err, errors.ErrDuplicateURL) {
			return Outcome{Status: StatusSkipped, Reason: "already saved"}
		}
		return Outcome{Status: StatusSkipped, Reason: "store failed: " + err.Error()}
	}

	// Indexing failures leave the activity stored; the index can be
	// rebuilt later.
	if err := p.indexer.Upsert(ctx, act); err != nil {
		p.logger.Warn("pipeline: vector indexing failed", "activity_id", act.ID, "error", err)
	}

	return Outcome{Status: StatusStored, ActivityID: act.ID}
}
