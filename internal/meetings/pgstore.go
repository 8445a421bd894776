package meetings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Rudra9905/Studify/internal/domain"
)

// PGStore keeps meetings in postgres so relay restarts do not orphan live
// codes. Schema:
//
//	CREATE TABLE meetings (
//	    id            text PRIMARY KEY,
//	    code          text NOT NULL,
//	    title         text NOT NULL DEFAULT '',
//	    classroom_id  text NOT NULL DEFAULT '',
//	    host_id       text NOT NULL,
//	    host_name     text NOT NULL,
//	    active        boolean NOT NULL,
//	    is_classroom  boolean NOT NULL,
//	    created_at    timestamptz NOT NULL,
//	    ended_at      timestamptz
//	);
//	CREATE UNIQUE INDEX meetings_active_code ON meetings (code) WHERE active;
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(ctx context.Context, databaseURL string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PGStore{pool: pool}, nil
}

func (s *PGStore) Close() { s.pool.Close() }

func (s *PGStore) Create(ctx context.Context, m *domain.Meeting) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO meetings (id, code, title, classroom_id, host_id, host_name, active, is_classroom, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		string(m.ID), string(m.Code), m.Title, m.ClassroomID,
		string(m.Host.ID), m.Host.DisplayName, m.Active, m.IsClassroom, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert meeting: %w", err)
	}
	return nil
}

func (s *PGStore) ActiveByCode(ctx context.Context, code domain.MeetingCode) (*domain.Meeting, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, code, title, classroom_id, host_id, host_name, active, is_classroom, created_at, ended_at
		 FROM meetings WHERE code = $1 AND active`, string(code))

	var m domain.Meeting
	err := row.Scan(&m.ID, &m.Code, &m.Title, &m.ClassroomID,
		&m.Host.ID, &m.Host.DisplayName, &m.Active, &m.IsClassroom, &m.CreatedAt, &m.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMeetingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select meeting: %w", err)
	}
	return &m, nil
}

func (s *PGStore) End(ctx context.Context, code domain.MeetingCode, endedAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE meetings SET active = false, ended_at = $2 WHERE code = $1 AND active`,
		string(code), endedAt)
	if err != nil {
		return fmt.Errorf("end meeting: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMeetingNotFound
	}
	return nil
}
