package db

import (
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/yujeong0411/stack-note/internal/activity"
	"github.com/yujeong0411/stack-note/internal/errors"
)

// newTestActivity creates an activity with default values for testing.
func newTestActivity(url, title string) *activity.Activity {
	return &activity.Activity{
		URL:        url,
		Domain:     "example.com",
		Title:      title,
		Content:    "Some extracted body text.",
		Summary:    "A short summary.",
		Category:   "AI",
		Tags:       []string{"rag", "llm"},
		SourceType: activity.SourceArticle,
		Metadata:   map[string]any{"lang": "en"},
	}
}

func initTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func TestInsertAndGetByID_RoundTrip(t *testing.T) {
	database := initTestDB(t)

	a := newTestActivity("https://example.com/post", "Intro to RAG")
	id, err := InsertActivity(database, a)
	if err != nil {
		t.Fatalf("InsertActivity failed: %v", err)
	}
	if id == 0 {
		t.Fatal("id should be assigned")
	}

	got, err := GetActivityByID(database, id)
	if err != nil {
		t.Fatalf("GetActivityByID failed: %v", err)
	}

	if got.URL != a.URL {
		t.Errorf("URL = %q, want %q", got.URL, a.URL)
	}
	if got.Title != a.Title {
		t.Errorf("Title = %q, want %q", got.Title, a.Title)
	}
	if got.Content != a.Content {
		t.Errorf("Content = %q, want %q", got.Content, a.Content)
	}
	if got.Summary != a.Summary {
		t.Errorf("Summary = %q, want %q", got.Summary, a.Summary)
	}
	if got.Category != a.Category {
		t.Errorf("Category = %q, want %q", got.Category, a.Category)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "rag" || got.Tags[1] != "llm" {
		t.Errorf("Tags = %v, want %v", got.Tags, a.Tags)
	}
	if got.SourceType != activity.SourceArticle {
		t.Errorf("SourceType = %q", got.SourceType)
	}
	if got.Metadata["lang"] != "en" {
		t.Errorf("Metadata = %v", got.Metadata)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}

func TestInsertActivity_DuplicateURL(t *testing.T) {
	database := initTestDB(t)

	if _, err := InsertActivity(database, newTestActivity("https://example.com/a", "A")); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}

	_, err := InsertActivity(database, newTestActivity("https://example.com/a", "A again"))
	if !errors.Is(err, errors.ErrDuplicateURL) {
		t.Errorf("second insert should return ErrDuplicateURL, got: %v", err)
	}
}

func TestInsertActivity_ConcurrentSameURL(t *testing.T) {
	database := initTestDB(t)

	const workers = 8
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = InsertActivity(database, newTestActivity("https://example.com/race", "Race"))
		}()
	}
	wg.Wait()

	var count int
	if err := database.QueryRow(
		"SELECT COUNT(*) FROM activities WHERE url = ?", "https://example.com/race",
	).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("row count = %d, want exactly 1", count)
	}
}

func TestGetActivityIDByURL(t *testing.T) {
	database := initTestDB(t)

	id, err := GetActivityIDByURL(database, "https://example.com/missing")
	if err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if id != 0 {
		t.Errorf("missing url should probe 0, got %d", id)
	}

	inserted, err := InsertActivity(database, newTestActivity("https://example.com/here", "Here"))
	if err != nil {
		t.Fatal(err)
	}

	id, err = GetActivityIDByURL(database, "https://example.com/here")
	if err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if id != inserted {
		t.Errorf("probe = %d, want %d", id, inserted)
	}
}

func TestListActivities_Filters(t *testing.T) {
	database := initTestDB(t)

	a1 := newTestActivity("https://example.com/1", "One")
	a1.Category = "AI"
	a2 := newTestActivity("https://example.com/2", "Two")
	a2.Category = "Web"
	a2.Tags = []string{"css"}
	a3 := newTestActivity("https://example.com/3", "Three")
	a3.Category = "AI"
	a3.SourceType = activity.SourceBlog

	for _, a := range []*activity.Activity{a1, a2, a3} {
		if _, err := InsertActivity(database, a); err != nil {
			t.Fatal(err)
		}
	}

	res, err := ListActivities(database, ListFilter{Category: "AI"})
	if err != nil {
		t.Fatalf("ListActivities failed: %v", err)
	}
	if res.Total != 2 || len(res.Items) != 2 {
		t.Errorf("category filter: total = %d, items = %d, want 2", res.Total, len(res.Items))
	}

	res, err = ListActivities(database, ListFilter{SourceType: activity.SourceBlog})
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 1 {
		t.Errorf("source_type filter: total = %d, want 1", res.Total)
	}

	res, err = ListActivities(database, ListFilter{Tags: []string{"#css"}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 1 || res.Items[0].URL != "https://example.com/2" {
		t.Errorf("tag filter: got %d items", res.Total)
	}

	today := time.Now().UTC().Format("2006-01-02")
	res, err = ListActivities(database, ListFilter{StartDate: today, EndDate: today})
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 3 {
		t.Errorf("date filter: total = %d, want 3", res.Total)
	}
}

func TestListActivities_Pagination(t *testing.T) {
	database := initTestDB(t)

	for i := range 5 {
		a := newTestActivity("https://example.com/p"+string(rune('a'+i)), "Paged")
		if _, err := InsertActivity(database, a); err != nil {
			t.Fatal(err)
		}
	}

	res, err := ListActivities(database, ListFilter{Page: 2, PageSize: 2})
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 5 {
		t.Errorf("Total = %d, want 5", res.Total)
	}
	if len(res.Items) != 2 {
		t.Errorf("len(Items) = %d, want 2", len(res.Items))
	}
	if res.TotalPages != 3 {
		t.Errorf("TotalPages = %d, want 3", res.TotalPages)
	}
}

func TestUpdateActivity(t *testing.T) {
	database := initTestDB(t)

	id, err := InsertActivity(database, newTestActivity("https://example.com/u", "Before"))
	if err != nil {
		t.Fatal(err)
	}

	title := "After"
	tags := []string{"updated"}
	got, err := UpdateActivity(database, id, activity.Update{Title: &title, Tags: &tags})
	if err != nil {
		t.Fatalf("UpdateActivity failed: %v", err)
	}
	if got.Title != "After" {
		t.Errorf("Title = %q", got.Title)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "updated" {
		t.Errorf("Tags = %v", got.Tags)
	}
	// Untouched fields survive.
	if got.Summary != "A short summary." {
		t.Errorf("Summary = %q", got.Summary)
	}
}

func TestUpdateActivity_NotFound(t *testing.T) {
	database := initTestDB(t)

	title := "x"
	_, err := UpdateActivity(database, 999, activity.Update{Title: &title})
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("want ErrNotFound, got: %v", err)
	}
}

func TestUpdateActivity_NoFields(t *testing.T) {
	database := initTestDB(t)

	_, err := UpdateActivity(database, 1, activity.Update{})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("want ErrInvalidRequest, got: %v", err)
	}
}

func TestDeleteActivity_Idempotency(t *testing.T) {
	database := initTestDB(t)

	id, err := InsertActivity(database, newTestActivity("https://example.com/d", "Doomed"))
	if err != nil {
		t.Fatal(err)
	}

	if err := DeleteActivity(database, id); err != nil {
		t.Fatalf("DeleteActivity failed: %v", err)
	}

	if _, err := GetActivityByID(database, id); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("GetActivityByID after delete should return ErrNotFound, got: %v", err)
	}

	if err := DeleteActivity(database, id); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("second delete should return ErrNotFound, got: %v", err)
	}
}

func TestSearchActivities(t *testing.T) {
	database := initTestDB(t)

	a := newTestActivity("https://example.com/s", "LangGraph deep dive")
	a.Content = "State machines for agent workflows."
	if _, err := InsertActivity(database, a); err != nil {
		t.Fatal(err)
	}

	hits, err := SearchActivities(database, "langgraph", 10)
	if err != nil {
		t.Fatalf("SearchActivities failed: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("hits = %d, want 1", len(hits))
	}

	hits, err = SearchActivities(database, "nothing-matches-this", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("hits = %d, want 0", len(hits))
	}

	if _, err := SearchActivities(database, "  ", 10); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("empty keyword should be invalid, got: %v", err)
	}
}

func TestListCategoriesAndTags(t *testing.T) {
	database := initTestDB(t)

	a1 := newTestActivity("https://example.com/c1", "One")
	a1.Category = "AI"
	a1.Tags = []string{"rag"}
	a2 := newTestActivity("https://example.com/c2", "Two")
	a2.Category = "AI"
	a2.Tags = []string{"llm", "rag"}
	a3 := newTestActivity("https://example.com/c3", "Three")
	a3.Category = "Web"
	a3.Tags = []string{"css"}

	for _, a := range []*activity.Activity{a1, a2, a3} {
		if _, err := InsertActivity(database, a); err != nil {
			t.Fatal(err)
		}
	}

	cats, err := ListCategories(database, "")
	if err != nil {
		t.Fatalf("ListCategories failed: %v", err)
	}
	if len(cats) != 2 {
		t.Fatalf("categories = %d, want 2", len(cats))
	}
	if cats[0].Category != "AI" || cats[0].Count != 2 {
		t.Errorf("cats[0] = %+v", cats[0])
	}

	tags, err := ListTags(database, "", "", 100)
	if err != nil {
		t.Fatalf("ListTags failed: %v", err)
	}
	if len(tags) != 3 {
		t.Errorf("tags = %v, want 3 entries", tags)
	}

	tags, err = ListTags(database, "", "AI", 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(tags) != 2 {
		t.Errorf("AI tags = %v, want 2 entries", tags)
	}
}

func TestTodayMetrics(t *testing.T) {
	database := initTestDB(t)

	a1 := newTestActivity("https://example.com/m1", "One")
	a1.Category = "AI"
	a1.Tags = []string{"rag", "llm"}
	a2 := newTestActivity("https://example.com/m2", "Two")
	a2.Category = "AI"
	a2.Tags = []string{"rag"}

	for _, a := range []*activity.Activity{a1, a2} {
		if _, err := InsertActivity(database, a); err != nil {
			t.Fatal(err)
		}
	}

	m, err := TodayMetrics(database, time.Now())
	if err != nil {
		t.Fatalf("TodayMetrics failed: %v", err)
	}
	if m.TotalCountToday != 2 {
		t.Errorf("TotalCountToday = %d, want 2", m.TotalCountToday)
	}
	if m.TopCategory != "AI" {
		t.Errorf("TopCategory = %q", m.TopCategory)
	}
	if m.TopTag != "#rag" {
		t.Errorf("TopTag = %q", m.TopTag)
	}
	if len(m.CategoryDistribution) != 1 || m.CategoryDistribution[0].Percent != 100 {
		t.Errorf("CategoryDistribution = %+v", m.CategoryDistribution)
	}
}

func TestTodayMetrics_Empty(t *testing.T) {
	database := initTestDB(t)

	m, err := TodayMetrics(database, time.Now())
	if err != nil {
		t.Fatalf("TodayMetrics failed: %v", err)
	}
	if m.TotalCountToday != 0 || m.TopCategory != "N/A" || m.TopTag != "N/A" {
		t.Errorf("empty metrics = %+v", m)
	}
}

func TestBriefings(t *testing.T) {
	database := initTestDB(t)

	b := &activity.Briefing{
		PeriodStart:   "2026-08-25",
		PeriodEnd:     "2026-09-01",
		Content:       "# Weekly briefing\n\nContent here.",
		ActivityCount: 12,
		Metadata:      map[string]any{"days": float64(7)},
	}
	id, err := InsertBriefing(database, b)
	if err != nil {
		t.Fatalf("InsertBriefing failed: %v", err)
	}

	got, err := GetBriefingByID(database, id)
	if err != nil {
		t.Fatalf("GetBriefingByID failed: %v", err)
	}
	if got.PeriodStart != "2026-08-25" || got.PeriodEnd != "2026-09-01" {
		t.Errorf("period = %s..%s", got.PeriodStart, got.PeriodEnd)
	}
	if got.ActivityCount != 12 {
		t.Errorf("ActivityCount = %d", got.ActivityCount)
	}
	if got.Metadata["days"] != float64(7) {
		t.Errorf("Metadata = %v", got.Metadata)
	}

	list, err := ListBriefings(database, 10)
	if err != nil {
		t.Fatalf("ListBriefings failed: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("briefings = %d, want 1", len(list))
	}
}

func TestTopics(t *testing.T) {
	database := initTestDB(t)

	topics, err := GetTopics(database)
	if err != nil {
		t.Fatalf("GetTopics failed: %v", err)
	}
	if len(topics) != 0 {
		t.Errorf("initial topics = %v, want empty", topics)
	}

	if err := SetTopics(database, []string{"RAG", "LangGraph"}); err != nil {
		t.Fatalf("SetTopics failed: %v", err)
	}

	// Upsert replaces wholesale, no partial merge.
	if err := SetTopics(database, []string{"FastAPI"}); err != nil {
		t.Fatal(err)
	}

	topics, err = GetTopics(database)
	if err != nil {
		t.Fatal(err)
	}
	if len(topics) != 1 || topics[0] != "FastAPI" {
		t.Errorf("topics = %v, want [FastAPI]", topics)
	}
}

func TestListActivitiesSince(t *testing.T) {
	database := initTestDB(t)

	old := newTestActivity("https://example.com/old", "Old")
	old.CreatedAt = time.Now().UTC().AddDate(0, 0, -30)
	recent := newTestActivity("https://example.com/recent", "Recent")

	for _, a := range []*activity.Activity{old, recent} {
		if _, err := InsertActivity(database, a); err != nil {
			t.Fatal(err)
		}
	}

	items, err := ListActivitiesSince(database, time.Now().UTC().AddDate(0, 0, -7))
	if err != nil {
		t.Fatalf("ListActivitiesSince failed: %v", err)
	}
	if len(items) != 1 || items[0].URL != "https://example.com/recent" {
		t.Errorf("items = %d", len(items))
	}
}
