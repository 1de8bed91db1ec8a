package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/matthewbaird/accountdesk/internal/types"
)

// Store is the interface for reading and writing activity entries.
type Store interface {
	// WriteEntries writes one or more activity entries (one event, many entries).
	// Rewriting an entry that already exists is a no-op.
	WriteEntries(ctx context.Context, entries []types.ActivityEntry) error

	// QueryByEntity returns activity entries for a specific entity, newest first.
	QueryByEntity(ctx context.Context, entityType, entityID string, opts QueryOptions) (entries []types.ActivityEntry, nextCursor string, totalCount int, err error)

	// Search matches query case-insensitively against entry summaries.
	Search(ctx context.Context, query string, opts SearchOptions) (entries []types.ActivityEntry, totalCount int, err error)
}

const table = "activity_entries"

var columns = []string{
	"event_id", "event_type", "occurred_at", "indexed_entity_type", "indexed_entity_id",
	"entity_role", "source_refs", "actor", "summary", "category", "weight", "payload",
}

// SQLiteStore implements Store on a SQLite table. occurred_at is kept as
// unix nanoseconds so ordering and cursors compare as integers.
type SQLiteStore struct {
	drv *entsql.Driver
}

// NewSQLiteStore creates a store over drv. Call CreateTable before use.
func NewSQLiteStore(drv *entsql.Driver) *SQLiteStore {
	return &SQLiteStore{drv: drv}
}

// CreateTable creates the activity table and its index if missing.
func (s *SQLiteStore) CreateTable(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS activity_entries (
			event_id            TEXT NOT NULL,
			event_type          TEXT NOT NULL,
			occurred_at         INTEGER NOT NULL,
			indexed_entity_type TEXT NOT NULL,
			indexed_entity_id   TEXT NOT NULL,
			entity_role         TEXT NOT NULL,
			source_refs         TEXT NOT NULL DEFAULT '[]',
			actor               TEXT NOT NULL DEFAULT '',
			summary             TEXT NOT NULL,
			category            TEXT NOT NULL,
			weight              TEXT NOT NULL,
			payload             BLOB,
			PRIMARY KEY (indexed_entity_type, indexed_entity_id, event_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_entity_time
			ON activity_entries (indexed_entity_type, indexed_entity_id, occurred_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.drv.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating activity table: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) builder() *entsql.DialectBuilder {
	return entsql.Dialect(dialect.SQLite)
}

func (s *SQLiteStore) WriteEntries(ctx context.Context, entries []types.ActivityEntry) error {
	if len(entries) == 0 {
		return nil
	}
	ins := s.builder().Insert(table).Columns(columns...)
	for _, e := range entries {
		refs, err := json.Marshal(e.SourceRefs)
		if err != nil {
			return fmt.Errorf("encoding source refs: %w", err)
		}
		ins.Values(
			e.EventID, e.EventType, e.OccurredAt.UnixNano(), e.IndexedEntityType, e.IndexedEntityID,
			e.EntityRole, string(refs), e.Actor, e.Summary, e.Category, e.Weight, []byte(e.Payload),
		)
	}
	ins.OnConflict(entsql.DoNothing())
	query, args := ins.Query()
	if _, err := s.drv.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("writing activity entries: %w", err)
	}
	return nil
}

func (s *SQLiteStore) QueryByEntity(ctx context.Context, entityType, entityID string, opts QueryOptions) ([]types.ActivityEntry, string, int, error) {
	preds := []*entsql.Predicate{
		entsql.EQ("indexed_entity_type", entityType),
		entsql.EQ("indexed_entity_id", entityID),
	}
	if opts.Since != nil {
		preds = append(preds, entsql.GTE("occurred_at", opts.Since.UnixNano()))
	}
	if opts.Until != nil {
		preds = append(preds, entsql.LTE("occurred_at", opts.Until.UnixNano()))
	}
	if len(opts.Categories) > 0 {
		preds = append(preds, entsql.In("category", toAny(opts.Categories)...))
	}
	if opts.MinWeight != "" && opts.MinWeight != "info" {
		preds = append(preds, entsql.In("weight", toAny(weightsAtLeast(opts.MinWeight))...))
	}
	if opts.Actor != "" {
		preds = append(preds, entsql.EQ("actor", opts.Actor))
	}

	total, err := s.count(ctx, preds)
	if err != nil {
		return nil, "", 0, err
	}

	page := preds
	if cursor, ok := decodeCursor(opts.Cursor); ok {
		page = append(page[:len(page):len(page)], entsql.LT("occurred_at", cursor.UnixNano()))
	}
	limit := opts.limit()
	entries, err := s.selectEntries(ctx, page, limit+1)
	if err != nil {
		return nil, "", 0, err
	}

	var nextCursor string
	if len(entries) > limit {
		entries = entries[:limit]
		nextCursor = encodeCursor(entries[len(entries)-1].OccurredAt)
	}
	return entries, nextCursor, total, nil
}

func (s *SQLiteStore) Search(ctx context.Context, query string, opts SearchOptions) ([]types.ActivityEntry, int, error) {
	preds := []*entsql.Predicate{entsql.ContainsFold("summary", query)}
	if opts.EntityType != "" {
		preds = append(preds, entsql.EQ("indexed_entity_type", opts.EntityType))
	}
	if opts.Since != nil {
		preds = append(preds, entsql.GTE("occurred_at", opts.Since.UnixNano()))
	}
	if len(opts.Categories) > 0 {
		preds = append(preds, entsql.In("category", toAny(opts.Categories)...))
	}

	total, err := s.count(ctx, preds)
	if err != nil {
		return nil, 0, err
	}
	entries, err := s.selectEntries(ctx, preds, opts.limit())
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (s *SQLiteStore) count(ctx context.Context, preds []*entsql.Predicate) (int, error) {
	query, args := s.builder().
		Select(entsql.Count("*")).
		From(entsql.Table(table)).
		Where(entsql.And(preds...)).
		Query()
	rows, err := s.drv.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("counting activity entries: %w", err)
	}
	defer rows.Close()
	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, fmt.Errorf("counting activity entries: %w", err)
		}
	}
	return n, rows.Err()
}

func (s *SQLiteStore) selectEntries(ctx context.Context, preds []*entsql.Predicate, limit int) ([]types.ActivityEntry, error) {
	query, args := s.builder().
		Select(columns...).
		From(entsql.Table(table)).
		Where(entsql.And(preds...)).
		OrderBy(entsql.Desc("occurred_at"), entsql.Asc("event_id")).
		Limit(limit).
		Query()
	rows, err := s.drv.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying activity entries: %w", err)
	}
	defer rows.Close()

	var entries []types.ActivityEntry
	for rows.Next() {
		var (
			e       types.ActivityEntry
			nanos   int64
			refs    string
			payload []byte
		)
		err := rows.Scan(
			&e.EventID, &e.EventType, &nanos, &e.IndexedEntityType, &e.IndexedEntityID,
			&e.EntityRole, &refs, &e.Actor, &e.Summary, &e.Category, &e.Weight, &payload,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning activity entry: %w", err)
		}
		e.OccurredAt = time.Unix(0, nanos).UTC()
		if refs != "" {
			_ = json.Unmarshal([]byte(refs), &e.SourceRefs)
		}
		if len(payload) > 0 {
			e.Payload = payload
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
