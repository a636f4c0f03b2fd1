package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/JonMunkholm/talkimport/internal/core"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// uniqueViolation is the PostgreSQL SQLSTATE for a unique constraint.
const uniqueViolation = "23505"

// TalkRepository is the PostgreSQL core.TalkStore.
type TalkRepository struct {
	db DBTX
}

var _ core.TalkStore = (*TalkRepository)(nil)

// NewTalkRepository creates a talk repository.
func NewTalkRepository(db DBTX) *TalkRepository {
	return &TalkRepository{db: db}
}

func pgDate(key core.TalkKey) pgtype.Date {
	return pgtype.Date{Time: key.Date, Valid: !key.Date.IsZero()}
}

// Exists reports whether a talk with the natural key is stored.
func (r *TalkRepository) Exists(ctx context.Context, key core.TalkKey) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM talks WHERE title = $1 AND speaker = $2 AND talk_date = $3)`,
		key.Title, key.Speaker, pgDate(key),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check talk exists: %w", err)
	}
	return exists, nil
}

// Insert stores t unless its natural key is already present.
func (r *TalkRepository) Insert(ctx context.Context, t core.Talk) (bool, error) {
	jobID := pgtype.UUID{Bytes: [16]byte(t.ImportJobID), Valid: t.ImportJobID != uuid.Nil}
	tag, err := r.db.Exec(ctx, `
		INSERT INTO talks (id, title, speaker, talk_date, views, likes, link, import_job_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (title, speaker, talk_date) DO NOTHING`,
		t.ID, t.Title, t.Speaker, pgDate(t.Key()), t.Views, t.Likes, t.Link, jobID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return false, nil
		}
		return false, fmt.Errorf("insert talk: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Count returns the number of stored talks.
func (r *TalkRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM talks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count talks: %w", err)
	}
	return n, nil
}
