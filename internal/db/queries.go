package db

import (
	"database/sql"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/yujeong0411/stack-note/internal/activity"
	"github.com/yujeong0411/stack-note/internal/errors"
)

const activityColumns = `id, url, domain, title, content, summary,
	category, tags_json, source_type, metadata_json, created_at`

// InsertActivity stores a new activity and returns its id.
// A UNIQUE violation on url returns ErrDuplicateURL; the storage layer,
// not application logic, is what enforces at-most-one record per URL.
func InsertActivity(db *sql.DB, a *activity.Activity) (int64, error) {
	tagsJSON, err := marshalJSON(a.Tags)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	metaJSON, err := marshalJSON(a.Metadata)
	if err != nil {
		return 0, errors.NewInternal(err)
	}

	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO activities (
			url, domain, title, content, summary,
			category, tags_json, source_type, metadata_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := db.Exec(query,
		a.URL, a.Domain, a.Title, a.Content, a.Summary,
		a.Category, tagsJSON, a.SourceType, metaJSON,
		createdAt.Format(activity.TimeFormat),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return 0, errors.NewDuplicateURL(a.URL)
		}
		return 0, errors.NewInternal(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, errors.NewInternal(err)
	}

	a.ID = id
	a.CreatedAt = createdAt
	return id, nil
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	// SQLite returns "UNIQUE constraint failed: ..." for unique violations
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// GetActivityIDByURL is the dedup probe: it returns the existing activity id
// for a URL, or 0 if none is stored. Absence is not an error.
func GetActivityIDByURL(db *sql.DB, url string) (int64, error) {
	var id int64
	err := db.QueryRow("SELECT id FROM activities WHERE url = ?", url).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return id, nil
}

// GetActivityByID retrieves a single activity.
func GetActivityByID(db *sql.DB, id int64) (*activity.Activity, error) {
	row := db.QueryRow("SELECT "+activityColumns+" FROM activities WHERE id = ?", id)
	a, err := scanActivity(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("activity", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return a, nil
}

// ListFilter narrows ListActivities results. Zero values mean "no filter".
// StartDate/EndDate are ISO dates compared against DATE(created_at);
// both bounds are inclusive.
type ListFilter struct {
	Page       int
	PageSize   int
	Category   string
	SourceType string
	StartDate  string
	EndDate    string
	Tags       []string // OR semantics across tags
}

// ListResult is a page of activities plus pagination metadata.
type ListResult struct {
	Items      []*activity.Activity `json:"items"`
	Total      int                  `json:"total"`
	Page       int                  `json:"page"`
	PageSize   int                  `json:"page_size"`
	TotalPages int                  `json:"total_pages"`
}

// Pagination limits for ListActivities.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// ListActivities returns activities matching the filter, newest first.
func ListActivities(db *sql.DB, f ListFilter) (*ListResult, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}

	where, params := buildActivityWhere(f)

	var total int
	if err := db.QueryRow("SELECT COUNT(*) FROM activities"+where, params...).Scan(&total); err != nil {
		return nil, errors.NewInternal(err)
	}

	query := "SELECT " + activityColumns + " FROM activities" + where +
		" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	params = append(params, f.PageSize, (f.Page-1)*f.PageSize)

	rows, err := db.Query(query, params...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	items, err := collectActivities(rows)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	return &ListResult{
		Items:      items,
		Total:      total,
		Page:       f.Page,
		PageSize:   f.PageSize,
		TotalPages: (total + f.PageSize - 1) / f.PageSize,
	}, nil
}

func buildActivityWhere(f ListFilter) (string, []any) {
	conds := []string{}
	params := []any{}

	if f.Category != "" {
		conds = append(conds, "category = ?")
		params = append(params, f.Category)
	}
	if f.SourceType != "" {
		conds = append(conds, "source_type = ?")
		params = append(params, f.SourceType)
	}
	switch {
	case f.StartDate != "" && f.EndDate != "":
		conds = append(conds, "DATE(created_at) BETWEEN ? AND ?")
		params = append(params, f.StartDate, f.EndDate)
	case f.StartDate != "":
		conds = append(conds, "DATE(created_at) >= ?")
		params = append(params, f.StartDate)
	case f.EndDate != "":
		conds = append(conds, "DATE(created_at) <= ?")
		params = append(params, f.EndDate)
	}
	if len(f.Tags) > 0 {
		tagConds := make([]string, 0, len(f.Tags))
		for _, tag := range activity.NormalizeTags(f.Tags) {
			tagConds = append(tagConds, "tags_json LIKE ?")
			params = append(params, `%"`+tag+`"%`)
		}
		if len(tagConds) > 0 {
			conds = append(conds, "("+strings.Join(tagConds, " OR ")+")")
		}
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), params
}

// ListActivitiesSince returns all activities created at or after since,
// newest first. Used by briefing generation.
func ListActivitiesSince(db *sql.DB, since time.Time) ([]*activity.Activity, error) {
	rows, err := db.Query(
		"SELECT "+activityColumns+" FROM activities WHERE created_at >= ? ORDER BY created_at DESC",
		since.UTC().Format(activity.TimeFormat),
	)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	items, err := collectActivities(rows)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return items, nil
}

// UpdateActivity applies a partial update and returns the updated record.
// id, url, content, and created_at are never touched.
func UpdateActivity(db *sql.DB, id int64, u activity.Update) (*activity.Activity, error) {
	if u.Empty() {
		return nil, errors.NewInvalidRequest("no fields to update")
	}

	sets := []string{}
	params := []any{}

	if u.Title != nil {
		sets = append(sets, "title = ?")
		params = append(params, *u.Title)
	}
	if u.Summary != nil {
		sets = append(sets, "summary = ?")
		params = append(params, *u.Summary)
	}
	if u.Category != nil {
		sets = append(sets, "category = ?")
		params = append(params, *u.Category)
	}
	if u.Tags != nil {
		tagsJSON, err := marshalJSON(activity.NormalizeTags(*u.Tags))
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		sets = append(sets, "tags_json = ?")
		params = append(params, tagsJSON)
	}
	if u.SourceType != nil {
		sets = append(sets, "source_type = ?")
		params = append(params, *u.SourceType)
	}

	params = append(params, id)
	result, err := db.Exec("UPDATE activities SET "+strings.Join(sets, ", ")+" WHERE id = ?", params...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if affected == 0 {
		return nil, errors.NewNotFound("activity", id)
	}

	return GetActivityByID(db, id)
}

// DeleteActivity removes an activity. Missing id returns ErrNotFound.
// Removing the matching vector entry is the caller's responsibility.
func DeleteActivity(db *sql.DB, id int64) error {
	result, err := db.Exec("DELETE FROM activities WHERE id = ?", id)
	if err != nil {
		return errors.NewInternal(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if affected == 0 {
		return errors.NewNotFound("activity", id)
	}
	return nil
}

// SearchActivities matches keyword against title, content, tags, and
// category (LIKE semantics), newest first.
func SearchActivities(db *sql.DB, keyword string, limit int) ([]*activity.Activity, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, errors.NewInvalidRequest("search keyword is required")
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}

	pattern := "%" + keyword + "%"
	rows, err := db.Query(`
		SELECT `+activityColumns+` FROM activities
		WHERE title LIKE ? OR content LIKE ? OR tags_json LIKE ? OR category LIKE ?
		ORDER BY created_at DESC
		LIMIT ?
	`, pattern, pattern, pattern, pattern, limit)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	items, err := collectActivities(rows)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return items, nil
}

// CategoryCount pairs a category with how many activities carry it.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// ListCategories returns distinct categories with counts. A non-empty date
// restricts to activities created on that ISO date.
func ListCategories(db *sql.DB, date string) ([]CategoryCount, error) {
	query := `
		SELECT category, COUNT(*) AS count
		FROM activities
		WHERE category IS NOT NULL AND category != ''
	`
	params := []any{}
	if date != "" {
		query += " AND DATE(created_at) = ?"
		params = append(params, date)
	}
	query += " GROUP BY category ORDER BY category"

	rows, err := db.Query(query, params...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var out []CategoryCount
	for rows.Next() {
		var cc CategoryCount
		if err := rows.Scan(&cc.Category, &cc.Count); err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, cc)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// ListTags returns the sorted union of tags, optionally restricted by
// ISO date and category, capped at limit.
func ListTags(db *sql.DB, date, category string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}

	query := "SELECT tags_json FROM activities WHERE tags_json IS NOT NULL"
	params := []any{}
	if date != "" {
		query += " AND DATE(created_at) = ?"
		params = append(params, date)
	}
	if category != "" {
		query += " AND category = ?"
		params = append(params, category)
	}

	rows, err := db.Query(query, params...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	seen := map[string]bool{}
	for rows.Next() {
		var tagsJSON sql.NullString
		if err := rows.Scan(&tagsJSON); err != nil {
			return nil, errors.NewInternal(err)
		}
		if !tagsJSON.Valid || tagsJSON.String == "" {
			continue
		}
		var tags []string
		// Rows with malformed tags_json are skipped, not fatal.
		if err := json.Unmarshal([]byte(tagsJSON.String), &tags); err != nil {
			continue
		}
		for _, tag := range tags {
			seen[tag] = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}

	all := make([]string, 0, len(seen))
	for tag := range seen {
		all = append(all, tag)
	}
	sort.Strings(all)
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// Metrics summarizes today's activity for the dashboard.
type Metrics struct {
	TotalCountToday      int             `json:"total_count_today"`
	TopCategory          string          `json:"top_category"`
	TopTag               string          `json:"top_tag"`
	CategoryDistribution []CategoryShare `json:"category_distribution"`
}

// CategoryShare is one slice of the 7-day category distribution.
type CategoryShare struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
	Percent  int    `json:"percent"`
}

// TodayMetrics computes today's totals plus a 7-day category distribution.
// now anchors "today" so tests can pin the clock.
func TodayMetrics(db *sql.DB, now time.Time) (*Metrics, error) {
	today := now.UTC().Format("2006-01-02")
	weekAgo := now.UTC().AddDate(0, 0, -7).Format(activity.TimeFormat)

	m := &Metrics{TopCategory: "N/A", TopTag: "N/A"}

	if err := db.QueryRow(
		"SELECT COUNT(id) FROM activities WHERE DATE(created_at) = ?", today,
	).Scan(&m.TotalCountToday); err != nil {
		return nil, errors.NewInternal(err)
	}

	err := db.QueryRow(`
		SELECT category FROM activities
		WHERE DATE(created_at) = ? AND category IS NOT NULL AND category != ''
		GROUP BY category ORDER BY COUNT(category) DESC LIMIT 1
	`, today).Scan(&m.TopCategory)
	if err != nil && err != sql.ErrNoRows {
		return nil, errors.NewInternal(err)
	}

	if topTag, err := topTagForDate(db, today); err != nil {
		return nil, err
	} else if topTag != "" {
		m.TopTag = "#" + topTag
	}

	rows, err := db.Query(`
		SELECT category, COUNT(category) AS count
		FROM activities
		WHERE created_at >= ? AND category IS NOT NULL AND category != ''
		GROUP BY category ORDER BY count DESC LIMIT 5
	`, weekAgo)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var shares []CategoryShare
	total := 0
	for rows.Next() {
		var s CategoryShare
		if err := rows.Scan(&s.Category, &s.Count); err != nil {
			return nil, errors.NewInternal(err)
		}
		shares = append(shares, s)
		total += s.Count
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	for i := range shares {
		if total > 0 {
			shares[i].Percent = int(float64(shares[i].Count)/float64(total)*100 + 0.5)
		}
	}
	m.CategoryDistribution = shares

	return m, nil
}

func topTagForDate(db *sql.DB, date string) (string, error) {
	rows, err := db.Query(
		"SELECT tags_json FROM activities WHERE DATE(created_at) = ? AND tags_json IS NOT NULL", date,
	)
	if err != nil {
		return "", errors.NewInternal(err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var tagsJSON sql.NullString
		if err := rows.Scan(&tagsJSON); err != nil {
			return "", errors.NewInternal(err)
		}
		if !tagsJSON.Valid {
			continue
		}
		var tags []string
		if err := json.Unmarshal([]byte(tagsJSON.String), &tags); err != nil {
			continue
		}
		for _, tag := range tags {
			counts[tag]++
		}
	}
	if err := rows.Err(); err != nil {
		return "", errors.NewInternal(err)
	}

	best, bestCount := "", 0
	for tag, count := range counts {
		if count > bestCount || (count == bestCount && tag < best) {
			best, bestCount = tag, count
		}
	}
	return best, nil
}

// InsertBriefing stores a generated briefing and returns its id.
func InsertBriefing(db *sql.DB, b *activity.Briefing) (int64, error) {
	metaJSON, err := marshalJSON(b.Metadata)
	if err != nil {
		return 0, errors.NewInternal(err)
	}

	createdAt := b.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	result, err := db.Exec(`
		INSERT INTO briefings (period_start, period_end, content, activity_count, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, b.PeriodStart, b.PeriodEnd, b.Content, b.ActivityCount, metaJSON,
		createdAt.Format(activity.TimeFormat))
	if err != nil {
		return 0, errors.NewInternal(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	b.ID = id
	b.CreatedAt = createdAt
	return id, nil
}

// GetBriefingByID retrieves a single briefing.
func GetBriefingByID(db *sql.DB, id int64) (*activity.Briefing, error) {
	row := db.QueryRow(`
		SELECT id, period_start, period_end, content, activity_count, metadata_json, created_at
		FROM briefings WHERE id = ?
	`, id)
	b, err := scanBriefing(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("briefing", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return b, nil
}

// ListBriefings returns the most recent briefings.
func ListBriefings(db *sql.DB, limit int) ([]*activity.Briefing, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := db.Query(`
		SELECT id, period_start, period_end, content, activity_count, metadata_json, created_at
		FROM briefings ORDER BY created_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var out []*activity.Briefing
	for rows.Next() {
		b, err := scanBriefingRows(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// topicsKey is the settings row holding the user's interest topics.
const topicsKey = "user_topics"

// GetTopics returns the stored user topics, or an empty list if unset.
func GetTopics(db *sql.DB) ([]string, error) {
	var value sql.NullString
	err := db.QueryRow("SELECT value FROM settings WHERE key = ?", topicsKey).Scan(&value)
	if err == sql.ErrNoRows {
		return []string{}, nil
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if !value.Valid || value.String == "" {
		return []string{}, nil
	}

	var topics []string
	if err := json.Unmarshal([]byte(value.String), &topics); err != nil {
		return nil, errors.NewInternal(err)
	}
	return topics, nil
}

// SetTopics replaces the stored user topics wholesale.
func SetTopics(db *sql.DB, topics []string) error {
	data, err := json.Marshal(topics)
	if err != nil {
		return errors.NewInternal(err)
	}

	_, err = db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, topicsKey, string(data), time.Now().UTC().Format(activity.TimeFormat))
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for scan helpers.
type scanner interface {
	Scan(dest ...any) error
}

func scanActivity(s scanner) (*activity.Activity, error) {
	var (
		a         activity.Activity
		domain    sql.NullString
		title     sql.NullString
		content   sql.NullString
		summary   sql.NullString
		category  sql.NullString
		tagsJSON  sql.NullString
		srcType   sql.NullString
		metaJSON  sql.NullString
		createdAt string
	)

	err := s.Scan(
		&a.ID, &a.URL, &domain, &title, &content, &summary,
		&category, &tagsJSON, &srcType, &metaJSON, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	a.Domain = domain.String
	a.Title = title.String
	a.Content = content.String
	a.Summary = summary.String
	a.Category = category.String
	a.SourceType = srcType.String

	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &a.Tags); err != nil {
			return nil, err
		}
	}
	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &a.Metadata); err != nil {
			return nil, err
		}
	}

	a.CreatedAt, err = time.Parse(activity.TimeFormat, createdAt)
	if err != nil {
		return nil, err
	}

	return &a, nil
}

func scanBriefing(s scanner) (*activity.Briefing, error) {
	var (
		b         activity.Briefing
		metaJSON  sql.NullString
		createdAt string
	)

	err := s.Scan(&b.ID, &b.PeriodStart, &b.PeriodEnd, &b.Content, &b.ActivityCount, &metaJSON, &createdAt)
	if err != nil {
		return nil, err
	}

	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &b.Metadata); err != nil {
			return nil, err
		}
	}

	b.CreatedAt, err = time.Parse(activity.TimeFormat, createdAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func scanBriefingRows(rows *sql.Rows) (*activity.Briefing, error) {
	return scanBriefing(rows)
}

func collectActivities(rows *sql.Rows) ([]*activity.Activity, error) {
	var out []*activity.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// marshalJSON encodes v, returning NULL for empty slices/maps.
func marshalJSON(v any) (sql.NullString, error) {
	switch t := v.(type) {
	case []string:
		if len(t) == 0 {
			return sql.NullString{}, nil
		}
	case map[string]any:
		if len(t) == 0 {
			return sql.NullString{}, nil
		}
	case nil:
		return sql.NullString{}, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
