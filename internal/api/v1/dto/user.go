package dto

// UserRoleUpdateForm changes another account's role.
type UserRoleUpdateForm struct {
	ID   string `json:"id" validate:"required"`
	Role string `json:"role" validate:"required,oneof=pending user admin"`
}

// UserUpdateForm is the admin-editable profile. Password, when present, is
// rehashed into the auth record.
type UserUpdateForm struct {
	Name            string  `json:"name" validate:"required"`
	CellPhone       string  `json:"cell_phone" validate:"required"`
	Email           string  `json:"email" validate:"required,email"`
	ProfileImageURL string  `json:"profile_image_url" validate:"required"`
	Password        *string `json:"password,omitempty"`
}

// BalanceUpdateForm rewrites the nested settings.ui.balance.amount value.
type BalanceUpdateForm struct {
	Amount string `json:"amount" validate:"required"`
}

// UserResponse is the public profile: name and avatar only.
type UserResponse struct {
	Name            string `json:"name"`
	ProfileImageURL string `json:"profile_image_url"`
}

// APIKeyResponse carries a freshly generated or stored API key.
type APIKeyResponse struct {
	APIKey string `json:"api_key"`
}

// AvatarUploadForm carries a base64-encoded profile image.
type AvatarUploadForm struct {
	ContentType string `json:"content_type" validate:"required"`
	Data        []byte `json:"data" validate:"required"`
}
