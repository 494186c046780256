package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"webui-accounts/internal/apperror"
	"webui-accounts/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository maps account records onto the "user" table. Lookups return
// apperror.ErrNotFound when the row is absent; store failures are wrapped and
// propagated so callers can tell the two apart.
type UserRepository interface {
	InsertUser(ctx context.Context, id, name, cellPhone, email string, oauthSub *string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByCellPhone(ctx context.Context, cellPhone string) (*model.User, error)
	GetUserByAPIKey(ctx context.Context, apiKey string) (*model.User, error)
	GetUserByOAuthSub(ctx context.Context, sub string) (*model.User, error)
	// GetFirstUser returns the earliest-created account, the protected
	// bootstrap admin.
	GetFirstUser(ctx context.Context) (*model.User, error)
	GetUsers(ctx context.Context, skip, limit int) ([]model.User, error)
	CountUsers(ctx context.Context) (int64, error)

	// UpdateUserByID applies a partial field set and returns the fresh row.
	UpdateUserByID(ctx context.Context, id string, updates map[string]any) (*model.User, error)
	UpdateUserRoleByID(ctx context.Context, id, role string) (*model.User, error)
	UpdateProfileImageURLByID(ctx context.Context, id, profileImageURL string) (*model.User, error)
	UpdateLastActiveByID(ctx context.Context, id string) (*model.User, error)
	UpdateOAuthSubByID(ctx context.Context, id, sub string) (*model.User, error)

	UpdateUserAPIKeyByID(ctx context.Context, id, apiKey string) error
	GetUserAPIKeyByID(ctx context.Context, id string) (*string, error)

	// DeleteUserByID removes the user's chats, auth record and account bills
	// together with the user row in a single transaction.
	DeleteUserByID(ctx context.Context, id string) error
}

// updatableUserColumns whitelists the columns UpdateUserByID may touch.
var updatableUserColumns = map[string]bool{
	"name":              true,
	"cell_phone":        true,
	"email":             true,
	"role":              true,
	"profile_image_url": true,
	"last_active_at":    true,
	"api_key":           true,
	"settings":          true,
	"info":              true,
	"oauth_sub":         true,
}

const userColumns = `id, name, cell_phone, email, role, profile_image_url, last_active_at, updated_at, created_at, api_key, settings, info, oauth_sub`

type userRepo struct {
	pool *pgxpool.Pool
}

// NewUserRepo creates a new UserRepository.
func NewUserRepo(pool *pgxpool.Pool) UserRepository {
	return &userRepo{pool: pool}
}

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u            model.User
		settingsJSON []byte
		infoJSON     []byte
	)
	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.CellPhone,
		&u.Email,
		&u.Role,
		&u.ProfileImageURL,
		&u.LastActiveAt,
		&u.UpdatedAt,
		&u.CreatedAt,
		&u.APIKey,
		&settingsJSON,
		&infoJSON,
		&u.OAuthSub,
	)
	if err != nil {
		return nil, err
	}
	if len(settingsJSON) > 0 {
		var s model.UserSettings
		if err := json.Unmarshal(settingsJSON, &s); err != nil {
			return nil, fmt.Errorf("unmarshal settings for user %s: %w", u.ID, err)
		}
		u.Settings = &s
	}
	if len(infoJSON) > 0 {
		if err := json.Unmarshal(infoJSON, &u.Info); err != nil {
			return nil, fmt.Errorf("unmarshal info for user %s: %w", u.ID, err)
		}
	}
	return &u, nil
}

func (r *userRepo) getUserBy(ctx context.Context, column, value string) (*model.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM "user" WHERE %s = $1`, userColumns, column)
	u, err := scanUser(r.pool.QueryRow(ctx, query, value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("user", value)
		}
		return nil, fmt.Errorf("getting user by %s: %w", column, err)
	}
	return u, nil
}

func (r *userRepo) InsertUser(ctx context.Context, id, name, cellPhone, email string, oauthSub *string) (*model.User, error) {
	now := time.Now().Unix()
	query := fmt.Sprintf(`
		INSERT INTO "user" (id, name, cell_phone, email, role, profile_image_url, last_active_at, updated_at, created_at, oauth_sub)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING %s
	`, userColumns)
	u, err := scanUser(r.pool.QueryRow(ctx, query,
		id, name, cellPhone, email, model.RolePending, model.DefaultProfileImageURL, now, now, now, oauthSub,
	))
	if err != nil {
		return nil, fmt.Errorf("inserting user %s: %w", id, err)
	}
	return u, nil
}

func (r *userRepo) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return r.getUserBy(ctx, "id", id)
}

func (r *userRepo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getUserBy(ctx, "email", email)
}

func (r *userRepo) GetUserByCellPhone(ctx context.Context, cellPhone string) (*model.User, error) {
	return r.getUserBy(ctx, "cell_phone", cellPhone)
}

func (r *userRepo) GetUserByAPIKey(ctx context.Context, apiKey string) (*model.User, error) {
	return r.getUserBy(ctx, "api_key", apiKey)
}

func (r *userRepo) GetUserByOAuthSub(ctx context.Context, sub string) (*model.User, error) {
	return r.getUserBy(ctx, "oauth_sub", sub)
}

func (r *userRepo) GetFirstUser(ctx context.Context) (*model.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM "user" ORDER BY created_at LIMIT 1`, userColumns)
	u, err := scanUser(r.pool.QueryRow(ctx, query))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("user", "first")
		}
		return nil, fmt.Errorf("getting first user: %w", err)
	}
	return u, nil
}

// GetUsers accepts skip/limit for API compatibility with the admin table but
// returns every user ordered by creation time.
// TODO: paginate once the admin table stops loading the full user list.
func (r *userRepo) GetUsers(ctx context.Context, skip, limit int) ([]model.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM "user" ORDER BY created_at`, userColumns)
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user row: %w", err)
		}
		users = append(users, *u)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating user rows: %w", err)
	}
	return users, nil
}

func (r *userRepo) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM "user"`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return count, nil
}

func (r *userRepo) UpdateUserByID(ctx context.Context, id string, updates map[string]any) (*model.User, error) {
	if len(updates) == 0 {
		return r.GetUserByID(ctx, id)
	}

	setParts := make([]string, 0, len(updates)+1)
	args := make([]any, 0, len(updates)+2)
	for column, value := range updates {
		if !updatableUserColumns[column] {
			return nil, fmt.Errorf("column %q is not updatable", column)
		}
		if column == "settings" || column == "info" {
			encoded, err := json.Marshal(value)
			if err != nil {
				return nil, fmt.Errorf("marshal %s for user %s: %w", column, id, err)
			}
			value = encoded
		}
		args = append(args, value)
		setParts = append(setParts, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	args = append(args, time.Now().Unix())
	setParts = append(setParts, fmt.Sprintf("updated_at = $%d", len(args)))
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE "user" SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(setParts, ", "), len(args), userColumns)
	u, err := scanUser(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("updating user %s: %w", id, err)
	}
	return u, nil
}

func (r *userRepo) UpdateUserRoleByID(ctx context.Context, id, role string) (*model.User, error) {
	return r.UpdateUserByID(ctx, id, map[string]any{"role": role})
}

func (r *userRepo) UpdateProfileImageURLByID(ctx context.Context, id, profileImageURL string) (*model.User, error) {
	return r.UpdateUserByID(ctx, id, map[string]any{"profile_image_url": profileImageURL})
}

// UpdateLastActiveByID touches only last_active_at. It runs on every
// authenticated request, so it must not drag updated_at along with it.
func (r *userRepo) UpdateLastActiveByID(ctx context.Context, id string) (*model.User, error) {
	query := fmt.Sprintf(`UPDATE "user" SET last_active_at = $1 WHERE id = $2 RETURNING %s`, userColumns)
	u, err := scanUser(r.pool.QueryRow(ctx, query, time.Now().Unix(), id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("updating last_active_at for user %s: %w", id, err)
	}
	return u, nil
}

func (r *userRepo) UpdateOAuthSubByID(ctx context.Context, id, sub string) (*model.User, error) {
	return r.UpdateUserByID(ctx, id, map[string]any{"oauth_sub": sub})
}

func (r *userRepo) UpdateUserAPIKeyByID(ctx context.Context, id, apiKey string) error {
	var key any = apiKey
	if apiKey == "" {
		key = nil // revoke
	}
	tag, err := r.pool.Exec(ctx, `UPDATE "user" SET api_key = $1, updated_at = $2 WHERE id = $3`,
		key, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("updating api key for user %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

func (r *userRepo) GetUserAPIKeyByID(ctx context.Context, id string) (*string, error) {
	var apiKey *string
	err := r.pool.QueryRow(ctx, `SELECT api_key FROM "user" WHERE id = $1`, id).Scan(&apiKey)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("getting api key for user %s: %w", id, err)
	}
	return apiKey, nil
}

// DeleteUserByID deletes the account and everything keyed to it in one
// transaction, so a crash can never leave a half-deleted user behind.
func (r *userRepo) DeleteUserByID(ctx context.Context, id string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("starting delete transaction for user %s: %w", id, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM chat WHERE user_id = $1`, id); err != nil {
		return fmt.Errorf("deleting chats for user %s: %w", id, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM auth WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting auth record for user %s: %w", id, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM account_bill WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting account bills for user %s: %w", id, err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM "user" WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting user %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("user", id)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing delete for user %s: %w", id, err)
	}
	return nil
}
