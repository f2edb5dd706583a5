package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/partywise/backend/internal/db"
	"github.com/partywise/backend/internal/models"
)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// PostgresAccountRepository provides PostgreSQL-backed persistence for accounts.
type PostgresAccountRepository struct {
	pool db.Pool
}

// NewPostgresAccountRepository constructs an account repository backed by PostgreSQL.
func NewPostgresAccountRepository(pool db.Pool) *PostgresAccountRepository {
	return &PostgresAccountRepository{pool: pool}
}

// Create persists a new account record.
func (r *PostgresAccountRepository) Create(ctx context.Context, account models.Account) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO accounts (id, email, password_hash, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5)
    `, account.ID, account.Email, account.PasswordHash, account.CreatedAt, account.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert account: %w", err)
	}

	return nil
}

// FindByEmail fetches an account by its email address.
func (r *PostgresAccountRepository) FindByEmail(ctx context.Context, email string) (models.Account, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Account{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, email, password_hash, created_at, updated_at
        FROM accounts
        WHERE email = $1
    `, email)

	var account models.Account
	if err := row.Scan(&account.ID, &account.Email, &account.PasswordHash, &account.CreatedAt, &account.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Account{}, ErrNotFound
		}
		return models.Account{}, fmt.Errorf("select account by email: %w", err)
	}

	return account, nil
}

// Get fetches an account by id.
func (r *PostgresAccountRepository) Get(ctx context.Context, id string) (models.Account, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Account{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, email, password_hash, created_at, updated_at
        FROM accounts
        WHERE id = $1
    `, id)

	var account models.Account
	if err := row.Scan(&account.ID, &account.Email, &account.PasswordHash, &account.CreatedAt, &account.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Account{}, ErrNotFound
		}
		return models.Account{}, fmt.Errorf("select account: %w", err)
	}

	return account, nil
}

// PostgresProfileRepository provides PostgreSQL-backed persistence for profiles.
type PostgresProfileRepository struct {
	pool db.Pool
}

// NewPostgresProfileRepository constructs a profile repository backed by PostgreSQL.
func NewPostgresProfileRepository(pool db.Pool) *PostgresProfileRepository {
	return &PostgresProfileRepository{pool: pool}
}

// Get fetches a profile by id.
func (r *PostgresProfileRepository) Get(ctx context.Context, id string) (models.Profile, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Profile{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, username, display_name, avatar_url, theme,
               notifications_enabled, location_enabled, created_at, updated_at
        FROM profiles
        WHERE id = $1
    `, id)

	var profile models.Profile
	if err := row.Scan(
		&profile.ID, &profile.Username, &profile.DisplayName, &profile.AvatarURL,
		&profile.Theme, &profile.NotificationsEnabled, &profile.LocationEnabled,
		&profile.CreatedAt, &profile.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Profile{}, ErrNotFound
		}
		return models.Profile{}, fmt.Errorf("select profile: %w", err)
	}

	return profile, nil
}

// Insert persists a new profile record.
func (r *PostgresProfileRepository) Insert(ctx context.Context, profile models.Profile) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO profiles (id, username, display_name, avatar_url, theme,
                              notifications_enabled, location_enabled, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `, profile.ID, profile.Username, profile.DisplayName, profile.AvatarURL, profile.Theme,
		profile.NotificationsEnabled, profile.LocationEnabled, profile.CreatedAt, profile.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert profile: %w", err)
	}

	return nil
}

// PatchDefaults fills null columns with the provided defaults. COALESCE
// keeps the stored value whenever it is already set, so the patch is safe
// against concurrent provisioning and against user edits.
func (r *PostgresProfileRepository) PatchDefaults(ctx context.Context, id string, patch ProfilePatch) error {
	if patch.Empty() {
		return nil
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE profiles
        SET username              = COALESCE(username, $2),
            display_name          = COALESCE(display_name, $3),
            avatar_url            = COALESCE(avatar_url, $4),
            theme                 = COALESCE(theme, $5),
            notifications_enabled = COALESCE(notifications_enabled, $6),
            location_enabled      = COALESCE(location_enabled, $7),
            updated_at            = $8
        WHERE id = $1
    `, id, patch.Username, patch.DisplayName, patch.AvatarURL, patch.Theme,
		patch.NotificationsEnabled, patch.LocationEnabled, time.Now().UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("patch profile defaults: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// GetBriefs fetches display projections for the provided profile ids.
// Missing ids are simply absent from the result.
func (r *PostgresProfileRepository) GetBriefs(ctx context.Context, ids []string) ([]models.ProfileBrief, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, COALESCE(display_name, ''), COALESCE(avatar_url, '')
        FROM profiles
        WHERE id = ANY($1)
    `, ids)
	if err != nil {
		return nil, fmt.Errorf("query profile briefs: %w", err)
	}
	defer rows.Close()

	var briefs []models.ProfileBrief
	for rows.Next() {
		var brief models.ProfileBrief
		if err := rows.Scan(&brief.ID, &brief.DisplayName, &brief.AvatarURL); err != nil {
			return nil, fmt.Errorf("scan profile brief: %w", err)
		}
		briefs = append(briefs, brief)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profile briefs: %w", err)
	}

	return briefs, nil
}

// UsernameExists reports whether any profile holds the username,
// case-insensitively.
func (r *PostgresProfileRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM profiles WHERE lower(username) = lower($1))`, username)
}

// DisplayNameExists reports whether any profile holds the display name,
// case-insensitively.
func (r *PostgresProfileRepository) DisplayNameExists(ctx context.Context, displayName string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM profiles WHERE lower(display_name) = lower($1))`, displayName)
}

func (r *PostgresProfileRepository) exists(ctx context.Context, query, arg string) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var exists bool
	if err := conn.QueryRow(ctx, query, arg).Scan(&exists); err != nil {
		return false, fmt.Errorf("existence check: %w", err)
	}
	return exists, nil
}

// SearchByDisplayName returns briefs whose display name matches exactly,
// case-insensitively. Serves as the fallback availability path.
func (r *PostgresProfileRepository) SearchByDisplayName(ctx context.Context, displayName string) ([]models.ProfileBrief, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, COALESCE(display_name, ''), COALESCE(avatar_url, '')
        FROM profiles
        WHERE lower(display_name) = lower($1)
    `, displayName)
	if err != nil {
		return nil, fmt.Errorf("query profiles by display name: %w", err)
	}
	defer rows.Close()

	var briefs []models.ProfileBrief
	for rows.Next() {
		var brief models.ProfileBrief
		if err := rows.Scan(&brief.ID, &brief.DisplayName, &brief.AvatarURL); err != nil {
			return nil, fmt.Errorf("scan profile brief: %w", err)
		}
		briefs = append(briefs, brief)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles by display name: %w", err)
	}

	return briefs, nil
}

var _ AccountRepository = (*PostgresAccountRepository)(nil)
var _ ProfileRepository = (*PostgresProfileRepository)(nil)
