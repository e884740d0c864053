// Package vector maintains the embedding index over stored activities.
//
// The index lives in memory guarded by a RWMutex and persists to a
// JSON file under the data directory. Search is brute-force cosine
// similarity, which is plenty for a personal collection.
package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/yujeong0411/stack-note/internal/activity"
	"github.com/yujeong0411/stack-note/internal/llm"
)

// embedLimit caps how much content goes into the embedding text.
const embedLimit = 3800

const fileName = "vectors.json"

// Meta carries the fields returned alongside a search hit.
type Meta struct {
	ActivityID int64  `json:"activity_id"`
	Title      string `json:"title"`
	Category   string `json:"category"`
	URL        string `json:"url"`
}

type entry struct {
	Key       string    `json:"key"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding"`
	Meta      Meta      `json:"meta"`
}

type index struct {
	Entries   []entry   `json:"entries"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Result is a scored search hit.
type Result struct {
	Content string
	Score   float32
	Meta    Meta
}

// Store is the persistent embedding index.
type Store struct {
	mu       sync.RWMutex
	entries  []entry
	byKey    map[string]int
	path     string
	embedder llm.Embedder
}

func NewStore(dataDir string, embedder llm.Embedder) *Store {
	return &Store{
		byKey:    make(map[string]int),
		path:     filepath.Join(dataDir, fileName),
		embedder: embedder,
	}
}

// Key returns the index key for an activity ID.
func Key(id int64) string {
	return fmt.Sprintf("activity_%d", id)
}

// Load reads the index from disk. A missing file is not an error.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read vector index: %w", err)
	}

	var idx index
	if err := json.Unmarshal(data, &idx); err != nil {
		return fmt.Errorf("decode vector index: %w", err)
	}

	s.entries = idx.Entries
	s.byKey = make(map[string]int, len(idx.Entries))
	for i, e := range idx.Entries {
		s.byKey[e.Key] = i
	}
	return nil
}

// Save persists the index to disk.
func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	data, err := json.Marshal(index{Entries: s.entries, UpdatedAt: time.Now()})
	if err != nil {
		return fmt.Errorf("marshal vector index: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("write vector index: %w", err)
	}
	return nil
}

// Upsert embeds an activity and adds or replaces its index entry,
// then persists the index.
func (s *Store) Upsert(ctx context.Context, act *activity.Activity) error {
	text := embeddingText(act)
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed activity %d: %w", act.ID, err)
	}

	e := entry{
		Key:       Key(act.ID),
		Content:   text,
		Embedding: vec,
		Meta: Meta{
			ActivityID: act.ID,
			Title:      act.Title,
			Category:   act.Category,
			URL:        act.URL,
		},
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.byKey[e.Key]; ok {
		s.entries[i] = e
	} else {
		s.byKey[e.Key] = len(s.entries)
		s.entries = append(s.entries, e)
	}
	return s.saveLocked()
}

// DeleteByID removes an activity's entry. Removing an absent entry
// is a no-op.
func (s *Store) DeleteByID(id int64) error {
	key := Key(id)

	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byKey[key]
	if !ok {
		return nil
	}

	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	delete(s.byKey, key)
	for j := i; j < len(s.entries); j++ {
		s.byKey[s.entries[j].Key] = j
	}
	return s.saveLocked()
}

// Search embeds the query and returns the top-k entries by cosine
// similarity.
func (s *Store) Search(ctx context.Context, query string, k int) ([]Result, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 {
		return nil, nil
	}

	results := make([]Result, 0, len(s.entries))
	for _, e := range s.entries {
		results = append(results, Result{
			Content: e.Content,
			Score:   cosineSimilarity(vec, e.Embedding),
			Meta:    e.Meta,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if k > 0 && k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// Count returns the number of indexed entries.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// embeddingText builds the text embedded for an activity: title,
// summary, tags, then the body up to the embed limit.
func embeddingText(act *activity.Activity) string {
	text := act.Title + "\n" + act.Summary
	for _, tag := range act.Tags {
		text += "\n" + tag
	}
	text += "\n" + act.Content
	return activity.TruncateRunes(text, embedLimit)
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return float32(dot / denom)
}
