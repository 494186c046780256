package repository

import (
	"context"
	"errors"
	"fmt"

	"webui-accounts/internal/apperror"
	"webui-accounts/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ChatRepository is the account service's view of the chat store: it only
// resolves shared chat links to their owner and removes a user's chats.
type ChatRepository interface {
	GetChatByID(ctx context.Context, chatID string) (*model.Chat, error)
	DeleteChatsByUserID(ctx context.Context, userID string) error
}

type chatRepo struct {
	pool *pgxpool.Pool
}

// NewChatRepo creates a new ChatRepository.
func NewChatRepo(pool *pgxpool.Pool) ChatRepository {
	return &chatRepo{pool: pool}
}

func (r *chatRepo) GetChatByID(ctx context.Context, chatID string) (*model.Chat, error) {
	query := `
		SELECT id, user_id, title, created_at, updated_at
		FROM chat
		WHERE id = $1
	`
	var chat model.Chat
	err := r.pool.QueryRow(ctx, query, chatID).Scan(
		&chat.ID,
		&chat.UserID,
		&chat.Title,
		&chat.CreatedAt,
		&chat.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("chat", chatID)
		}
		return nil, fmt.Errorf("getting chat %s: %w", chatID, err)
	}
	return &chat, nil
}

func (r *chatRepo) DeleteChatsByUserID(ctx context.Context, userID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM chat WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("deleting chats for user %s: %w", userID, err)
	}
	return nil
}
