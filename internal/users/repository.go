package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codeboard/earlyaccess/internal/platform/db"
	"github.com/codeboard/earlyaccess/internal/shared"
)

const userColumns = `id, email, password_hash, name, display_name, profile_image, tier, auth_provider,
	provider_user_id, email_verified, email_opt_in, last_login_at, created_at, updated_at`

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed store.
func NewRepository(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Create inserts a new user, assigning ID and timestamps when unset.
func (r *PGStore) Create(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	_, err := r.pool.Exec(ctx, `INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		user.ID, user.Email, nullText(user.PasswordHash), nullText(user.Name), nullText(user.DisplayName),
		nullText(user.ProfileImage), string(user.Tier), string(user.AuthProvider), nullText(user.ProviderUserID),
		user.EmailVerified, user.EmailOptIn, nullTime(user.LastLoginAt), user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return shared.ErrDuplicate
		}
		return fmt.Errorf("users: insert: %w", err)
	}
	return nil
}

// FindByEmail fetches a user by exact email.
func (r *PGStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// FindByID fetches a user by id.
func (r *PGStore) FindByID(ctx context.Context, id string) (*User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, shared.ErrNotFound
	}
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// Update writes the mutable columns of user. Email and created_at never change.
func (r *PGStore) Update(ctx context.Context, user *User) error {
	user.UpdatedAt = time.Now().UTC()
	tag, err := r.pool.Exec(ctx, `UPDATE users SET
		password_hash = $2, name = $3, display_name = $4, profile_image = $5, tier = $6,
		auth_provider = $7, provider_user_id = $8, email_verified = $9, email_opt_in = $10,
		last_login_at = $11, updated_at = $12
		WHERE id = $1`,
		user.ID, nullText(user.PasswordHash), nullText(user.Name), nullText(user.DisplayName),
		nullText(user.ProfileImage), string(user.Tier), string(user.AuthProvider), nullText(user.ProviderUserID),
		user.EmailVerified, user.EmailOptIn, nullTime(user.LastLoginAt), user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("users: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes a user. Only tests and operators call this.
func (r *PGStore) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("users: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*User, error) {
	var (
		user                                   User
		passwordHash, name, displayName, image pgtype.Text
		providerUserID                         pgtype.Text
		tier, provider                         string
		lastLogin                              pgtype.Timestamptz
	)
	err := row.Scan(&user.ID, &user.Email, &passwordHash, &name, &displayName, &image, &tier, &provider,
		&providerUserID, &user.EmailVerified, &user.EmailOptIn, &lastLogin, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("users: scan: %w", err)
	}
	user.PasswordHash = passwordHash.String
	user.Name = name.String
	user.DisplayName = displayName.String
	user.ProfileImage = image.String
	user.ProviderUserID = providerUserID.String
	user.Tier = Tier(tier)
	user.AuthProvider = AuthProvider(provider)
	if lastLogin.Valid {
		t := lastLogin.Time
		user.LastLoginAt = &t
	}
	return &user, nil
}

func nullText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t.UTC(), Valid: true}
}

var _ Store = (*PGStore)(nil)
