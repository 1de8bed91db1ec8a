package session

import (
	"context"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/matthewbaird/accountdesk/internal/wizard"
)

const sessionTable = "wizard_sessions"

// SQLiteStore persists sessions as JSON rows so they survive restarts.
type SQLiteStore struct {
	drv         *entsql.Driver
	codec       wizard.Codec
	idleTimeout time.Duration
	now         func() time.Time
}

func NewSQLiteStore(drv *entsql.Driver, codec wizard.Codec, idleTimeout time.Duration) *SQLiteStore {
	return &SQLiteStore{
		drv:         drv,
		codec:       codec,
		idleTimeout: idleOrDefault(idleTimeout),
		now:         time.Now,
	}
}

// SetClock replaces the time source.
func (s *SQLiteStore) SetClock(now func() time.Time) { s.now = now }

// CreateTable creates the session table if missing.
func (s *SQLiteStore) CreateTable(ctx context.Context) error {
	_, err := s.drv.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS wizard_sessions (
			conversation_id TEXT PRIMARY KEY,
			data            BLOB NOT NULL,
			updated_at      INTEGER NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("creating session table: %w", err)
	}
	return nil
}

func (s *SQLiteStore) builder() *entsql.DialectBuilder {
	return entsql.Dialect(dialect.SQLite)
}

func (s *SQLiteStore) cutoff() int64 {
	return s.now().Add(-s.idleTimeout).UnixNano()
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (wizard.Session, bool, error) {
	query, args := s.builder().
		Select("data").
		From(entsql.Table(sessionTable)).
		Where(entsql.And(
			entsql.EQ("conversation_id", id),
			entsql.GTE("updated_at", s.cutoff()),
		)).
		Query()
	rows, err := s.drv.QueryContext(ctx, query, args...)
	if err != nil {
		return wizard.Session{}, false, fmt.Errorf("loading session: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return wizard.Session{}, false, rows.Err()
	}
	var data []byte
	if err := rows.Scan(&data); err != nil {
		return wizard.Session{}, false, fmt.Errorf("loading session: %w", err)
	}
	sess, err := s.codec.Decode(data)
	if err != nil {
		return wizard.Session{}, false, err
	}
	return sess, true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, id string, sess wizard.Session) error {
	data, err := s.codec.Encode(sess)
	if err != nil {
		return err
	}
	query, args := s.builder().
		Insert(sessionTable).
		Columns("conversation_id", "data", "updated_at").
		Values(id, data, s.now().UnixNano()).
		OnConflict(
			entsql.ConflictColumns("conversation_id"),
			entsql.ResolveWithNewValues(),
		).
		Query()
	if _, err := s.drv.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Remove(ctx context.Context, id string) error {
	query, args := s.builder().
		Delete(sessionTable).
		Where(entsql.EQ("conversation_id", id)).
		Query()
	if _, err := s.drv.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("removing session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Cleanup(ctx context.Context) (int, error) {
	query, args := s.builder().
		Delete(sessionTable).
		Where(entsql.LT("updated_at", s.cutoff())).
		Query()
	res, err := s.drv.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("cleaning sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(n), nil
}
