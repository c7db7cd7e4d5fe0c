package contributions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed store.
func NewRepository(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Create inserts c, assigning ID and SubmittedAt when unset.
func (r *PGStore) Create(ctx context.Context, c *Contribution) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.SubmittedAt.IsZero() {
		c.SubmittedAt = time.Now().UTC()
	}
	userID := pgtype.UUID{}
	if c.UserID != "" {
		parsed, err := uuid.Parse(c.UserID)
		if err != nil {
			return fmt.Errorf("contributions: user id: %w", err)
		}
		userID = pgtype.UUID{Bytes: parsed, Valid: true}
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO contributions
		(id, text, languages, context, region, platform, age, user_id, user_email, user_name, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, c.Text, c.Languages, nullText(c.Context), nullText(c.Region), nullText(c.Platform),
		nullText(c.Age), userID, nullText(c.UserEmail), nullText(c.UserName), c.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("contributions: insert: %w", err)
	}
	return nil
}

// Count returns the number of stored contributions.
func (r *PGStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM contributions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("contributions: count: %w", err)
	}
	return n, nil
}

// CountContributors returns the number of distinct contributor emails.
func (r *PGStore) CountContributors(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(DISTINCT user_email) FROM contributions WHERE user_email IS NOT NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("contributions: count contributors: %w", err)
	}
	return n, nil
}

// LanguageSets returns the language list of every contribution.
func (r *PGStore) LanguageSets(ctx context.Context) ([][]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT languages FROM contributions`)
	if err != nil {
		return nil, fmt.Errorf("contributions: list languages: %w", err)
	}
	defer rows.Close()

	var sets [][]string
	for rows.Next() {
		var languages []string
		if err := rows.Scan(&languages); err != nil {
			return nil, fmt.Errorf("contributions: scan languages: %w", err)
		}
		sets = append(sets, languages)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("contributions: list languages: %w", err)
	}
	return sets, nil
}

func nullText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}
