package repository

import (
	"context"
	"fmt"

	"webui-accounts/internal/apperror"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuthRepository is the account service's view of the auth-record store. The
// auth table shares the user's id and carries the credential material; the
// cell phone is denormalized into it and kept in sync on profile updates.
type AuthRepository interface {
	UpdatePasswordHashByID(ctx context.Context, id, passwordHash string) error
	UpdateCellPhoneByID(ctx context.Context, id, cellPhone string) error
}

type authRepo struct {
	pool *pgxpool.Pool
}

// NewAuthRepo creates a new AuthRepository.
func NewAuthRepo(pool *pgxpool.Pool) AuthRepository {
	return &authRepo{pool: pool}
}

func (r *authRepo) UpdatePasswordHashByID(ctx context.Context, id, passwordHash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE auth SET password = $1 WHERE id = $2`, passwordHash, id)
	if err != nil {
		return fmt.Errorf("updating password for user %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("auth record", id)
	}
	return nil
}

func (r *authRepo) UpdateCellPhoneByID(ctx context.Context, id, cellPhone string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE auth SET cell_phone = $1 WHERE id = $2`, cellPhone, id)
	if err != nil {
		return fmt.Errorf("updating cell phone for user %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("auth record", id)
	}
	return nil
}
