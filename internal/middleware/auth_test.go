package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"webui-accounts/internal/apperror"
	"webui-accounts/internal/model"
	"webui-accounts/internal/repository"

	jwt "github.com/dgrijalva/jwt-go"
	"github.com/rs/zerolog"
)

const testSecret = "test-secret-at-least-16-chars!!"

// fakeUserRepo overrides only the lookups the middleware uses; the embedded
// interface panics on anything else.
type fakeUserRepo struct {
	repository.UserRepository
	users map[string]*model.User // by id
	keys  map[string]*model.User // by api key
}

func (f *fakeUserRepo) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	return u, nil
}

func (f *fakeUserRepo) GetUserByAPIKey(ctx context.Context, apiKey string) (*model.User, error) {
	u, ok := f.keys[apiKey]
	if !ok {
		return nil, apperror.NotFound("user", apiKey)
	}
	return u, nil
}

func (f *fakeUserRepo) UpdateLastActiveByID(ctx context.Context, id string) (*model.User, error) {
	u, err := f.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	u.LastActiveAt = time.Now().Unix()
	return u, nil
}

func signSessionToken(t *testing.T, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.StandardClaims{
		Subject:   subject,
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return signed
}

func TestAuthMiddlewareSessionToken(t *testing.T) {
	alice := &model.User{ID: "u1", Role: model.RoleUser}
	repo := &fakeUserRepo{users: map[string]*model.User{"u1": alice}}

	var got *model.User
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = SessionUser(r.Context())
	})
	handler := AuthMiddleware(testSecret, repo, zerolog.Nop())(next)

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req.Header.Set("Authorization", "Bearer "+signSessionToken(t, "u1"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got == nil || got.ID != "u1" {
		t.Fatalf("session user = %+v", got)
	}
	if got.LastActiveAt == 0 {
		t.Error("last_active_at not bumped")
	}
}

func TestAuthMiddlewareAPIKey(t *testing.T) {
	key := "sk-0123456789abcdef0123456789abcdef"
	bob := &model.User{ID: "u2", Role: model.RoleUser, APIKey: &key}
	repo := &fakeUserRepo{
		users: map[string]*model.User{"u2": bob},
		keys:  map[string]*model.User{key: bob},
	}

	var got *model.User
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = SessionUser(r.Context())
	})
	handler := AuthMiddleware(testSecret, repo, zerolog.Nop())(next)

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req.Header.Set("Authorization", "Bearer "+key)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got == nil || got.ID != "u2" {
		t.Fatalf("session user = %+v", got)
	}
}

func TestAuthMiddlewareRejections(t *testing.T) {
	repo := &fakeUserRepo{
		users: map[string]*model.User{},
		keys:  map[string]*model.User{},
	}
	handler := AuthMiddleware(testSecret, repo, zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached without valid credentials")
	}))

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic dXNlcjpwdw=="},
		{"garbage token", "Bearer not-a-jwt"},
		{"unknown api key", "Bearer sk-ffffffffffffffffffffffffffffffff"},
		{"valid token unknown user", "Bearer " + signSessionToken(t, "ghost")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/users", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}
