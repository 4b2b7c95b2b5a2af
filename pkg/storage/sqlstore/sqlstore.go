// Package sqlstore implements storage.Driver over database/sql. The sqlite and
// postgres packages supply the connection and their dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nontawat9304/mali-chat/pkg/history"
	"github.com/nontawat9304/mali-chat/pkg/memory"
	"github.com/nontawat9304/mali-chat/pkg/storage"
)

// Dialect carries what differs between SQL engines.
type Dialect struct {
	Name string

	// Schema statements run in order at open; they must be idempotent.
	Schema []string

	// Numbered placeholders ($1, $2, ...) instead of "?".
	Numbered bool
}

// Store implements storage.Driver. Timestamps are stored as unix milliseconds.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// New applies the dialect's schema and returns a Store owning db.
func New(ctx context.Context, db *sql.DB, d Dialect) (*Store, error) {
	for _, stmt := range d.Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create %s schema: %w", d.Name, err)
		}
	}
	return &Store{db: db, dialect: d}, nil
}

// DB exposes the underlying connection pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

// rebind rewrites "?" placeholders for dialects that number them.
func (s *Store) rebind(query string) string {
	if !s.dialect.Numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) AppendTurn(ctx context.Context, identity memory.Identity, turn history.Turn) error {
	ts := turn.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		s.rebind(`INSERT INTO turns (identity, role, text, created_at) VALUES (?, ?, ?, ?)`),
		string(identity), string(turn.Role), turn.Text, ts.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("appending turn: %w", err)
	}
	return nil
}

func (s *Store) RecentTurns(ctx context.Context, identity memory.Identity, n int) ([]history.Turn, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT role, text, created_at FROM turns WHERE identity = ? ORDER BY id DESC LIMIT ?`),
		string(identity), n,
	)
	if err != nil {
		return nil, fmt.Errorf("querying turns: %w", err)
	}
	defer rows.Close()

	var out []history.Turn
	for rows.Next() {
		var (
			role, text string
			ms         int64
		)
		if err := rows.Scan(&role, &text, &ms); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		out = append(out, history.Turn{
			Role:      history.Role(role),
			Text:      text,
			Timestamp: time.UnixMilli(ms),
			Identity:  identity,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating turns: %w", err)
	}

	// Newest first from the query; callers want oldest first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *Store) GetProfile(ctx context.Context, identity memory.Identity) (storage.Profile, error) {
	var (
		p  storage.Profile
		ms int64
	)
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT display_name, role, updated_at FROM profiles WHERE identity = ?`),
		string(identity),
	).Scan(&p.DisplayName, &p.Role, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Profile{}, storage.NotFoundError{Identity: identity}
	}
	if err != nil {
		return storage.Profile{}, fmt.Errorf("querying profile: %w", err)
	}
	p.Identity = identity
	p.UpdatedAt = time.UnixMilli(ms)
	return p, nil
}

func (s *Store) SetProfile(ctx context.Context, p storage.Profile) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		s.rebind(`INSERT INTO profiles (identity, display_name, role, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (identity) DO UPDATE SET
				display_name = excluded.display_name,
				role = excluded.role,
				updated_at = excluded.updated_at`),
		string(p.Identity), p.DisplayName, p.Role, p.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("saving profile: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

var _ storage.Driver = (*Store)(nil)
