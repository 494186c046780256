package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"webui-accounts/internal/apperror"
	"webui-accounts/internal/auth"
	"webui-accounts/internal/model"
	"webui-accounts/internal/pubsub"
	"webui-accounts/internal/repository"

	"github.com/rs/zerolog"
)

// SharedIDPrefix marks a synthetic user id that actually names a shared chat;
// it is resolved to the chat's owner.
const SharedIDPrefix = "shared-"

// ProfileUpdate is the admin-editable slice of an account. Password, when
// set, is rehashed into the auth record.
type ProfileUpdate struct {
	Name            string
	CellPhone       string
	Email           string
	ProfileImageURL string
	Password        *string
}

// UserService implements the account operations and their authorization
// rules.
type UserService interface {
	Register(ctx context.Context, id, name, cellPhone, email string, oauthSub *string) (*model.User, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetUsers(ctx context.Context, skip, limit int) ([]model.User, error)
	CountUsers(ctx context.Context) (int64, error)

	// GetPublicProfile resolves a plain user id or a "shared-<chatId>"
	// pseudo-id to the account to display.
	GetPublicProfile(ctx context.Context, id string) (*model.User, error)

	UpdateRole(ctx context.Context, caller *model.User, targetID, role string) (*model.User, error)

	GetSettings(ctx context.Context, userID string) (*model.UserSettings, error)
	UpdateSettings(ctx context.Context, userID string, settings *model.UserSettings) (*model.UserSettings, error)
	GetInfo(ctx context.Context, userID string) (map[string]any, error)
	MergeInfo(ctx context.Context, userID string, fragment map[string]any) (map[string]any, error)

	UpdateProfile(ctx context.Context, targetID string, update ProfileUpdate) (*model.User, error)
	UpdateBalanceAmount(ctx context.Context, targetID, amount string) (*model.User, error)
	UpdateProfileImage(ctx context.Context, userID, profileImageURL string) (*model.User, error)

	Delete(ctx context.Context, caller *model.User, targetID string) error

	GenerateAPIKey(ctx context.Context, userID string) (string, error)
	GetAPIKey(ctx context.Context, userID string) (string, error)
	RevokeAPIKey(ctx context.Context, userID string) error
}

type userService struct {
	userRepo    repository.UserRepository
	chatRepo    repository.ChatRepository
	authRepo    repository.AuthRepository
	hasher      *auth.PasswordHasher
	publisher   pubsub.Publisher // nil disables event publishing
	eventsTopic string
	logger      zerolog.Logger
}

// NewUserService wires the account service. publisher may be nil when event
// publishing is disabled (no GCP project configured).
func NewUserService(
	userRepo repository.UserRepository,
	chatRepo repository.ChatRepository,
	authRepo repository.AuthRepository,
	hasher *auth.PasswordHasher,
	publisher pubsub.Publisher,
	eventsTopic string,
	logger zerolog.Logger,
) UserService {
	return &userService{
		userRepo:    userRepo,
		chatRepo:    chatRepo,
		authRepo:    authRepo,
		hasher:      hasher,
		publisher:   publisher,
		eventsTopic: eventsTopic,
		logger:      logger.With().Str("service", "UserService").Logger(),
	}
}

func (s *userService) Register(ctx context.Context, id, name, cellPhone, email string, oauthSub *string) (*model.User, error) {
	return s.userRepo.InsertUser(ctx, id, name, cellPhone, strings.ToLower(email), oauthSub)
}

func (s *userService) GetByID(ctx context.Context, id string) (*model.User, error) {
	return s.userRepo.GetUserByID(ctx, id)
}

func (s *userService) GetUsers(ctx context.Context, skip, limit int) ([]model.User, error) {
	return s.userRepo.GetUsers(ctx, skip, limit)
}

func (s *userService) CountUsers(ctx context.Context) (int64, error) {
	return s.userRepo.CountUsers(ctx)
}

func (s *userService) GetPublicProfile(ctx context.Context, id string) (*model.User, error) {
	if strings.HasPrefix(id, SharedIDPrefix) {
		chat, err := s.chatRepo.GetChatByID(ctx, strings.TrimPrefix(id, SharedIDPrefix))
		if err != nil {
			return nil, err
		}
		id = chat.UserID
	}
	return s.userRepo.GetUserByID(ctx, id)
}

// UpdateRole enforces the role-change policy: an account may never change its
// own role, except the bootstrap (earliest-created) account; and nobody else
// may change the bootstrap account's role, so the root admin cannot be
// demoted or locked out.
func (s *userService) UpdateRole(ctx context.Context, caller *model.User, targetID, role string) (*model.User, error) {
	first, err := s.userRepo.GetFirstUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving bootstrap user: %w", err)
	}
	if caller.ID == targetID && caller.ID != first.ID {
		return nil, apperror.Forbidden("changing your own role is not allowed")
	}
	if targetID == first.ID && caller.ID != first.ID {
		return nil, apperror.Forbidden("the bootstrap admin account is protected")
	}
	return s.userRepo.UpdateUserRoleByID(ctx, targetID, role)
}

func (s *userService) GetSettings(ctx context.Context, userID string) (*model.UserSettings, error) {
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user.Settings, nil
}

func (s *userService) UpdateSettings(ctx context.Context, userID string, settings *model.UserSettings) (*model.UserSettings, error) {
	user, err := s.userRepo.UpdateUserByID(ctx, userID, map[string]any{"settings": settings})
	if err != nil {
		return nil, err
	}
	return user.Settings, nil
}

func (s *userService) GetInfo(ctx context.Context, userID string) (map[string]any, error) {
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user.Info, nil
}

// MergeInfo shallow-merges the posted fragment into the stored info map;
// posted keys win, untouched keys survive.
func (s *userService) MergeInfo(ctx context.Context, userID string, fragment map[string]any) (map[string]any, error) {
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	merged := make(map[string]any, len(user.Info)+len(fragment))
	for k, v := range user.Info {
		merged[k] = v
	}
	for k, v := range fragment {
		merged[k] = v
	}
	updated, err := s.userRepo.UpdateUserByID(ctx, userID, map[string]any{"info": merged})
	if err != nil {
		return nil, err
	}
	return updated.Info, nil
}

func (s *userService) UpdateProfile(ctx context.Context, targetID string, update ProfileUpdate) (*model.User, error) {
	user, err := s.userRepo.GetUserByID(ctx, targetID)
	if err != nil {
		return nil, err
	}

	if update.CellPhone != user.CellPhone {
		existing, err := s.userRepo.GetUserByCellPhone(ctx, update.CellPhone)
		if err != nil && !errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		if existing != nil && existing.ID != targetID {
			return nil, apperror.Conflict("cell phone number is already registered to another account")
		}
	}

	if update.Password != nil && *update.Password != "" {
		hashed, err := s.hasher.Hash(*update.Password)
		if err != nil {
			return nil, err
		}
		if err := s.authRepo.UpdatePasswordHashByID(ctx, targetID, hashed); err != nil {
			return nil, err
		}
	}

	if err := s.authRepo.UpdateCellPhoneByID(ctx, targetID, update.CellPhone); err != nil {
		return nil, err
	}

	return s.userRepo.UpdateUserByID(ctx, targetID, map[string]any{
		"name":              update.Name,
		"cell_phone":        update.CellPhone,
		"email":             strings.ToLower(update.Email),
		"profile_image_url": update.ProfileImageURL,
	})
}

// UpdateBalanceAmount rewrites settings.ui.balance.amount. It is the typed
// replacement for the balance mutation that used to ride along with profile
// updates.
func (s *userService) UpdateBalanceAmount(ctx context.Context, targetID, amount string) (*model.User, error) {
	user, err := s.userRepo.GetUserByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if user.Settings == nil || !user.Settings.SetBalanceAmount(amount) {
		return nil, apperror.ValidationFailed("user settings carry no balance object")
	}
	return s.userRepo.UpdateUserByID(ctx, targetID, map[string]any{"settings": user.Settings})
}

func (s *userService) UpdateProfileImage(ctx context.Context, userID, profileImageURL string) (*model.User, error) {
	return s.userRepo.UpdateProfileImageURLByID(ctx, userID, profileImageURL)
}

func (s *userService) Delete(ctx context.Context, caller *model.User, targetID string) error {
	if caller.ID == targetID {
		return apperror.Forbidden("deleting your own account is not allowed")
	}
	if err := s.userRepo.DeleteUserByID(ctx, targetID); err != nil {
		return err
	}
	s.publishAccountEvent(ctx, "account.user.deleted", targetID)
	return nil
}

func (s *userService) GenerateAPIKey(ctx context.Context, userID string) (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating api key: %w", err)
	}
	apiKey := model.APIKeyPrefix + hex.EncodeToString(raw)
	if err := s.userRepo.UpdateUserAPIKeyByID(ctx, userID, apiKey); err != nil {
		return "", err
	}
	return apiKey, nil
}

func (s *userService) GetAPIKey(ctx context.Context, userID string) (string, error) {
	apiKey, err := s.userRepo.GetUserAPIKeyByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if apiKey == nil {
		return "", apperror.NotFound("api key for user", userID)
	}
	return *apiKey, nil
}

func (s *userService) RevokeAPIKey(ctx context.Context, userID string) error {
	return s.userRepo.UpdateUserAPIKeyByID(ctx, userID, "")
}

type accountEvent struct {
	Type       string `json:"type"`
	UserID     string `json:"user_id"`
	OccurredAt int64  `json:"occurred_at"`
}

// publishAccountEvent is best effort: downstream consumers reconcile from the
// database, so a failed publish is logged and swallowed.
func (s *userService) publishAccountEvent(ctx context.Context, eventType, userID string) {
	if s.publisher == nil {
		return
	}
	payload, err := json.Marshal(accountEvent{Type: eventType, UserID: userID, OccurredAt: time.Now().Unix()})
	if err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("Failed to marshal account event")
		return
	}
	if _, err := s.publisher.Publish(ctx, s.eventsTopic, payload); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Str("user_id", userID).Msg("Failed to publish account event")
	}
}
