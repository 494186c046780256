package model

import "encoding/json"

// User roles. Role gates every endpoint: "pending" accounts exist but cannot
// call verified-user endpoints until an admin promotes them.
const (
	RolePending = "pending"
	RoleUser    = "user"
	RoleAdmin   = "admin"
)

// DefaultProfileImageURL is assigned to newly registered users.
const DefaultProfileImageURL = "/user.png"

// APIKeyPrefix marks bearer credentials that are account API keys rather
// than session tokens.
const APIKeyPrefix = "sk-"

// User represents an account row in the "user" table. Timestamps are epoch
// seconds. APIKey and OAuthSub are unique across all users when present.
type User struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	CellPhone       string `json:"cell_phone"`
	Email           string `json:"email"`
	Role            string `json:"role"`
	ProfileImageURL string `json:"profile_image_url"`

	LastActiveAt int64 `json:"last_active_at"`
	UpdatedAt    int64 `json:"updated_at"`
	CreatedAt    int64 `json:"created_at"`

	APIKey   *string        `json:"api_key,omitempty"`
	Settings *UserSettings  `json:"settings,omitempty"`
	Info     map[string]any `json:"info,omitempty"`

	OAuthSub *string `json:"oauth_sub,omitempty"`
}

// IsAdmin reports whether the user may call admin-only endpoints.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// IsVerified reports whether the user may call verified-user endpoints.
// Pending accounts are not verified.
func (u *User) IsVerified() bool {
	return u.Role == RoleUser || u.Role == RoleAdmin
}

// UserSettings is the semi-structured per-user settings blob: a conventional
// "ui" sub-map plus arbitrary top-level extra fields that clients are free to
// add. Extra fields survive a round trip through the database untouched.
type UserSettings struct {
	UI    map[string]any
	Extra map[string]any
}

func (s UserSettings) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Extra)+1)
	for k, v := range s.Extra {
		out[k] = v
	}
	ui := s.UI
	if ui == nil {
		ui = map[string]any{}
	}
	out["ui"] = ui
	return json.Marshal(out)
}

func (s *UserSettings) UnmarshalJSON(data []byte) error {
	raw := map[string]any{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if ui, ok := raw["ui"].(map[string]any); ok {
		s.UI = ui
	} else {
		s.UI = map[string]any{}
	}
	delete(raw, "ui")
	s.Extra = raw
	return nil
}

// BalanceAmount returns the nested settings.ui.balance.amount value, if the
// settings blob carries one.
func (s *UserSettings) BalanceAmount() (string, bool) {
	balance, ok := s.UI["balance"].(map[string]any)
	if !ok {
		return "", false
	}
	amount, ok := balance["amount"].(string)
	return amount, ok
}

// SetBalanceAmount overwrites settings.ui.balance.amount. It reports false
// when the settings blob has no balance object to update.
func (s *UserSettings) SetBalanceAmount(amount string) bool {
	balance, ok := s.UI["balance"].(map[string]any)
	if !ok {
		return false
	}
	balance["amount"] = amount
	return true
}
