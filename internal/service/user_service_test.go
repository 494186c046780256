package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"webui-accounts/internal/apperror"
	"webui-accounts/internal/auth"
	"webui-accounts/internal/model"

	"github.com/rs/zerolog"
)

// fakeUserRepo is an in-memory UserRepository. It mirrors the store's
// contract: lookups return apperror.ErrNotFound for absent rows, updates
// return the fresh row.
type fakeUserRepo struct {
	mu      sync.Mutex
	users   map[string]*model.User
	counter int64
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func (f *fakeUserRepo) InsertUser(ctx context.Context, id, name, cellPhone, email string, oauthSub *string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counter++
	u := &model.User{
		ID:              id,
		Name:            name,
		CellPhone:       cellPhone,
		Email:           email,
		Role:            model.RolePending,
		ProfileImageURL: model.DefaultProfileImageURL,
		// monotonic counter stands in for created_at so ordering is stable
		CreatedAt:    f.counter,
		UpdatedAt:    f.counter,
		LastActiveAt: f.counter,
		OAuthSub:     oauthSub,
	}
	f.users[id] = u
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) lookup(match func(*model.User) bool, label string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if match(u) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("user", label)
}

func (f *fakeUserRepo) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return f.lookup(func(u *model.User) bool { return u.ID == id }, id)
}

func (f *fakeUserRepo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return f.lookup(func(u *model.User) bool { return u.Email == email }, email)
}

func (f *fakeUserRepo) GetUserByCellPhone(ctx context.Context, cellPhone string) (*model.User, error) {
	return f.lookup(func(u *model.User) bool { return u.CellPhone == cellPhone }, cellPhone)
}

func (f *fakeUserRepo) GetUserByAPIKey(ctx context.Context, apiKey string) (*model.User, error) {
	return f.lookup(func(u *model.User) bool { return u.APIKey != nil && *u.APIKey == apiKey }, apiKey)
}

func (f *fakeUserRepo) GetUserByOAuthSub(ctx context.Context, sub string) (*model.User, error) {
	return f.lookup(func(u *model.User) bool { return u.OAuthSub != nil && *u.OAuthSub == sub }, sub)
}

func (f *fakeUserRepo) GetFirstUser(ctx context.Context) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var first *model.User
	for _, u := range f.users {
		if first == nil || u.CreatedAt < first.CreatedAt {
			first = u
		}
	}
	if first == nil {
		return nil, apperror.NotFound("user", "first")
	}
	copied := *first
	return &copied, nil
}

func (f *fakeUserRepo) GetUsers(ctx context.Context, skip, limit int) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

func (f *fakeUserRepo) CountUsers(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.users)), nil
}

func (f *fakeUserRepo) UpdateUserByID(ctx context.Context, id string, updates map[string]any) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	for column, value := range updates {
		switch column {
		case "name":
			u.Name = value.(string)
		case "cell_phone":
			u.CellPhone = value.(string)
		case "email":
			u.Email = value.(string)
		case "role":
			u.Role = value.(string)
		case "profile_image_url":
			u.ProfileImageURL = value.(string)
		case "settings":
			u.Settings = value.(*model.UserSettings)
		case "info":
			u.Info = value.(map[string]any)
		}
	}
	u.UpdatedAt = time.Now().Unix()
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) UpdateUserRoleByID(ctx context.Context, id, role string) (*model.User, error) {
	return f.UpdateUserByID(ctx, id, map[string]any{"role": role})
}

func (f *fakeUserRepo) UpdateProfileImageURLByID(ctx context.Context, id, profileImageURL string) (*model.User, error) {
	return f.UpdateUserByID(ctx, id, map[string]any{"profile_image_url": profileImageURL})
}

func (f *fakeUserRepo) UpdateLastActiveByID(ctx context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	u.LastActiveAt = time.Now().Unix()
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) UpdateOAuthSubByID(ctx context.Context, id, sub string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	u.OAuthSub = &sub
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) UpdateUserAPIKeyByID(ctx context.Context, id, apiKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	if apiKey == "" {
		u.APIKey = nil
	} else {
		u.APIKey = &apiKey
	}
	return nil
}

func (f *fakeUserRepo) GetUserAPIKeyByID(ctx context.Context, id string) (*string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	return u.APIKey, nil
}

func (f *fakeUserRepo) DeleteUserByID(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return apperror.NotFound("user", id)
	}
	delete(f.users, id)
	return nil
}

type fakeChatRepo struct {
	chats map[string]*model.Chat
}

func (f *fakeChatRepo) GetChatByID(ctx context.Context, chatID string) (*model.Chat, error) {
	chat, ok := f.chats[chatID]
	if !ok {
		return nil, apperror.NotFound("chat", chatID)
	}
	return chat, nil
}

func (f *fakeChatRepo) DeleteChatsByUserID(ctx context.Context, userID string) error {
	for id, chat := range f.chats {
		if chat.UserID == userID {
			delete(f.chats, id)
		}
	}
	return nil
}

type fakeAuthRepo struct {
	passwordHashes map[string]string
	cellPhones     map[string]string
}

func newFakeAuthRepo() *fakeAuthRepo {
	return &fakeAuthRepo{
		passwordHashes: make(map[string]string),
		cellPhones:     make(map[string]string),
	}
}

func (f *fakeAuthRepo) UpdatePasswordHashByID(ctx context.Context, id, passwordHash string) error {
	f.passwordHashes[id] = passwordHash
	return nil
}

func (f *fakeAuthRepo) UpdateCellPhoneByID(ctx context.Context, id, cellPhone string) error {
	f.cellPhones[id] = cellPhone
	return nil
}

// capturingPublisher records published payloads by topic.
type capturingPublisher struct {
	topics   []string
	payloads [][]byte
}

func (p *capturingPublisher) Publish(ctx context.Context, topic string, payload []byte) (string, error) {
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload)
	return "msg-1", nil
}

type userServiceFixture struct {
	svc       UserService
	userRepo  *fakeUserRepo
	chatRepo  *fakeChatRepo
	authRepo  *fakeAuthRepo
	publisher *capturingPublisher
}

func newUserServiceFixture(t *testing.T) *userServiceFixture {
	t.Helper()
	f := &userServiceFixture{
		userRepo:  newFakeUserRepo(),
		chatRepo:  &fakeChatRepo{chats: make(map[string]*model.Chat)},
		authRepo:  newFakeAuthRepo(),
		publisher: &capturingPublisher{},
	}
	f.svc = NewUserService(f.userRepo, f.chatRepo, f.authRepo, auth.NewPasswordHasher(4), f.publisher, "account_events", zerolog.Nop())
	return f
}

// seedUser registers a user and promotes it to the given role. The first
// seeded user is the bootstrap account.
func (f *userServiceFixture) seedUser(t *testing.T, id, role string) *model.User {
	t.Helper()
	u, err := f.svc.Register(context.Background(), id, "User "+id, "555-"+id, id+"@example.com", nil)
	if err != nil {
		t.Fatalf("Register(%s): %v", id, err)
	}
	if role != model.RolePending {
		u, err = f.userRepo.UpdateUserRoleByID(context.Background(), id, role)
		if err != nil {
			t.Fatalf("seeding role for %s: %v", id, err)
		}
	}
	return u
}

func TestRegisterLowercasesEmail(t *testing.T) {
	f := newUserServiceFixture(t)

	u, err := f.svc.Register(context.Background(), "u1", "Alice", "555-0001", "Alice@Example.COM", nil)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.Email != "alice@example.com" {
		t.Errorf("Email = %q, want lowercased", u.Email)
	}
	if u.Role != model.RolePending {
		t.Errorf("Role = %q, want pending", u.Role)
	}
	if u.ProfileImageURL != model.DefaultProfileImageURL {
		t.Errorf("ProfileImageURL = %q", u.ProfileImageURL)
	}

	got, err := f.svc.GetByID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.ID != "u1" {
		t.Errorf("GetByID returned %q", got.ID)
	}
}

func TestUpdateRolePolicy(t *testing.T) {
	tests := []struct {
		name          string
		callerID      string
		targetID      string
		wantForbidden bool
	}{
		{"bootstrap changes own role", "root", "root", false},
		{"bootstrap changes another role", "root", "u2", false},
		{"admin changes another role", "u2", "u3", false},
		{"admin changes own role", "u2", "u2", true},
		{"admin changes bootstrap role", "u2", "root", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newUserServiceFixture(t)
			f.seedUser(t, "root", model.RoleAdmin)
			f.seedUser(t, "u2", model.RoleAdmin)
			f.seedUser(t, "u3", model.RolePending)

			caller, err := f.userRepo.GetUserByID(context.Background(), tt.callerID)
			if err != nil {
				t.Fatalf("caller lookup: %v", err)
			}

			updated, err := f.svc.UpdateRole(context.Background(), caller, tt.targetID, model.RoleUser)
			if tt.wantForbidden {
				if !errors.Is(err, apperror.ErrForbidden) {
					t.Fatalf("err = %v, want ErrForbidden", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("UpdateRole: %v", err)
			}
			if updated.Role != model.RoleUser {
				t.Errorf("Role = %q, want user", updated.Role)
			}
		})
	}
}

func TestGetPublicProfileResolvesSharedID(t *testing.T) {
	f := newUserServiceFixture(t)
	owner := f.seedUser(t, "owner", model.RoleUser)
	f.chatRepo.chats["c1"] = &model.Chat{ID: "c1", UserID: owner.ID}

	got, err := f.svc.GetPublicProfile(context.Background(), SharedIDPrefix+"c1")
	if err != nil {
		t.Fatalf("GetPublicProfile: %v", err)
	}
	if got.ID != owner.ID {
		t.Errorf("resolved user = %q, want %q", got.ID, owner.ID)
	}

	if _, err := f.svc.GetPublicProfile(context.Background(), SharedIDPrefix+"missing"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("missing chat: err = %v, want ErrNotFound", err)
	}
}

func TestMergeInfo(t *testing.T) {
	f := newUserServiceFixture(t)
	f.seedUser(t, "u1", model.RoleUser)

	first, err := f.svc.MergeInfo(context.Background(), "u1", map[string]any{"a": "1", "b": "2"})
	if err != nil {
		t.Fatalf("MergeInfo: %v", err)
	}
	if first["a"] != "1" || first["b"] != "2" {
		t.Fatalf("first merge = %v", first)
	}

	// posted keys win, untouched keys survive
	second, err := f.svc.MergeInfo(context.Background(), "u1", map[string]any{"b": "3"})
	if err != nil {
		t.Fatalf("MergeInfo: %v", err)
	}
	if second["a"] != "1" {
		t.Errorf("untouched key lost: %v", second)
	}
	if second["b"] != "3" {
		t.Errorf("posted key did not win: %v", second)
	}
}

func TestUpdateProfileCellPhoneConflict(t *testing.T) {
	f := newUserServiceFixture(t)
	f.seedUser(t, "u1", model.RoleUser)
	f.seedUser(t, "u2", model.RoleUser)

	// u2 takes u1's phone number
	_, err := f.svc.UpdateProfile(context.Background(), "u2", ProfileUpdate{
		Name:            "User u2",
		CellPhone:       "555-u1",
		Email:           "u2@example.com",
		ProfileImageURL: model.DefaultProfileImageURL,
	})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}

	// keeping your own number is not a conflict
	if _, err := f.svc.UpdateProfile(context.Background(), "u2", ProfileUpdate{
		Name:            "Renamed",
		CellPhone:       "555-u2",
		Email:           "U2@Example.com",
		ProfileImageURL: model.DefaultProfileImageURL,
	}); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}

	got, _ := f.userRepo.GetUserByID(context.Background(), "u2")
	if got.Name != "Renamed" {
		t.Errorf("Name = %q", got.Name)
	}
	if got.Email != "u2@example.com" {
		t.Errorf("Email = %q, want lowercased", got.Email)
	}
	if f.authRepo.cellPhones["u2"] != "555-u2" {
		t.Errorf("auth cell phone = %q", f.authRepo.cellPhones["u2"])
	}
}

func TestUpdateProfileRehashesPassword(t *testing.T) {
	f := newUserServiceFixture(t)
	f.seedUser(t, "u1", model.RoleUser)

	pw := "new-password"
	if _, err := f.svc.UpdateProfile(context.Background(), "u1", ProfileUpdate{
		Name:            "User u1",
		CellPhone:       "555-u1",
		Email:           "u1@example.com",
		ProfileImageURL: model.DefaultProfileImageURL,
		Password:        &pw,
	}); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}

	hash := f.authRepo.passwordHashes["u1"]
	if hash == "" {
		t.Fatal("password hash not stored")
	}
	if hash == pw {
		t.Error("password stored in plaintext")
	}
	if err := auth.NewPasswordHasher(4).Verify(hash, pw); err != nil {
		t.Errorf("stored hash does not verify: %v", err)
	}
}

func TestUpdateProfileEmptyPasswordIsIgnored(t *testing.T) {
	f := newUserServiceFixture(t)
	f.seedUser(t, "u1", model.RoleUser)

	empty := ""
	if _, err := f.svc.UpdateProfile(context.Background(), "u1", ProfileUpdate{
		Name:            "User u1",
		CellPhone:       "555-u1",
		Email:           "u1@example.com",
		ProfileImageURL: model.DefaultProfileImageURL,
		Password:        &empty,
	}); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if _, ok := f.authRepo.passwordHashes["u1"]; ok {
		t.Error("empty password overwrote the stored hash")
	}
}

func TestUpdateBalanceAmount(t *testing.T) {
	f := newUserServiceFixture(t)
	f.seedUser(t, "u1", model.RoleUser)

	// no settings at all
	_, err := f.svc.UpdateBalanceAmount(context.Background(), "u1", "5.00")
	if !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}

	// settings with a balance object
	if _, err := f.userRepo.UpdateUserByID(context.Background(), "u1", map[string]any{
		"settings": &model.UserSettings{UI: map[string]any{
			"balance": map[string]any{"amount": "1.00"},
		}},
	}); err != nil {
		t.Fatalf("seeding settings: %v", err)
	}

	updated, err := f.svc.UpdateBalanceAmount(context.Background(), "u1", "5.00")
	if err != nil {
		t.Fatalf("UpdateBalanceAmount: %v", err)
	}
	amount, ok := updated.Settings.BalanceAmount()
	if !ok || amount != "5.00" {
		t.Errorf("balance = %q, %v; want 5.00", amount, ok)
	}
}

func TestDelete(t *testing.T) {
	f := newUserServiceFixture(t)
	admin := f.seedUser(t, "root", model.RoleAdmin)
	f.seedUser(t, "u2", model.RoleUser)

	if err := f.svc.Delete(context.Background(), admin, admin.ID); !errors.Is(err, apperror.ErrForbidden) {
		t.Fatalf("self delete: err = %v, want ErrForbidden", err)
	}

	if err := f.svc.Delete(context.Background(), admin, "u2"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.svc.GetByID(context.Background(), "u2"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("deleted user still found: %v", err)
	}

	if len(f.publisher.topics) != 1 || f.publisher.topics[0] != "account_events" {
		t.Fatalf("published topics = %v", f.publisher.topics)
	}
	var event map[string]any
	if err := json.Unmarshal(f.publisher.payloads[0], &event); err != nil {
		t.Fatalf("decoding event: %v", err)
	}
	if event["type"] != "account.user.deleted" || event["user_id"] != "u2" {
		t.Errorf("event = %v", event)
	}
}

func TestDeleteWithNilPublisher(t *testing.T) {
	f := newUserServiceFixture(t)
	svc := NewUserService(f.userRepo, f.chatRepo, f.authRepo, auth.NewPasswordHasher(4), nil, "account_events", zerolog.Nop())
	admin := f.seedUser(t, "root", model.RoleAdmin)
	f.seedUser(t, "u2", model.RoleUser)

	if err := svc.Delete(context.Background(), admin, "u2"); err != nil {
		t.Fatalf("Delete with nil publisher: %v", err)
	}
}

func TestAPIKeyLifecycle(t *testing.T) {
	f := newUserServiceFixture(t)
	f.seedUser(t, "u1", model.RoleUser)

	if _, err := f.svc.GetAPIKey(context.Background(), "u1"); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("GetAPIKey before generation: err = %v, want ErrNotFound", err)
	}

	key, err := f.svc.GenerateAPIKey(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	if !strings.HasPrefix(key, model.APIKeyPrefix) {
		t.Errorf("key %q missing prefix", key)
	}
	if len(key) != len(model.APIKeyPrefix)+32 {
		t.Errorf("key length = %d, want %d", len(key), len(model.APIKeyPrefix)+32)
	}

	got, err := f.svc.GetAPIKey(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetAPIKey: %v", err)
	}
	if got != key {
		t.Errorf("GetAPIKey = %q, want %q", got, key)
	}

	if err := f.svc.RevokeAPIKey(context.Background(), "u1"); err != nil {
		t.Fatalf("RevokeAPIKey: %v", err)
	}
	if _, err := f.svc.GetAPIKey(context.Background(), "u1"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetAPIKey after revoke: err = %v, want ErrNotFound", err)
	}
}
