package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"webui-accounts/internal/api/v1/dto"
	"webui-accounts/internal/middleware"
	"webui-accounts/internal/model"
	"webui-accounts/internal/permissions"
	"webui-accounts/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// UserHandler owns the /users subtree. Billing endpoints live under the same
// prefix, so their requests are delegated to BillHandler from the dispatcher
// here.
type UserHandler struct {
	userService   service.UserService
	avatarService service.AvatarService
	permStore     *permissions.Store
	bills         *BillHandler
	validate      *validator.Validate
	logger        zerolog.Logger
}

func NewUserHandler(
	userService service.UserService,
	avatarService service.AvatarService,
	permStore *permissions.Store,
	bills *BillHandler,
	v *validator.Validate,
	logger zerolog.Logger,
) *UserHandler {
	return &UserHandler{
		userService:   userService,
		avatarService: avatarService,
		permStore:     permStore,
		bills:         bills,
		validate:      v,
		logger:        logger,
	}
}

// RegisterRoutes mounts v1 user and billing routes.
func (h *UserHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("/users", authMw(http.HandlerFunc(h.route)))
	mux.Handle("/users/", authMw(http.HandlerFunc(h.route)))
}

func (h *UserHandler) route(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/users")

	switch {
	case (rest == "" || rest == "/") && r.Method == http.MethodGet:
		h.getUsers(w, r)
	case rest == "/add/account_bill" && r.Method == http.MethodPost:
		h.bills.addAccountBill(w, r)
	case rest == "/get/account_bills_by_year" && r.Method == http.MethodPost:
		h.bills.getAccountBillsByYear(w, r)
	case rest == "/get/account_bills_by_year_month" && r.Method == http.MethodPost:
		h.bills.getAccountBillsByYearMonth(w, r)
	case rest == "/permissions/user":
		h.handlePermissions(w, r)
	case rest == "/update/role" && r.Method == http.MethodPost:
		h.updateRole(w, r)
	case rest == "/user/settings" && r.Method == http.MethodGet:
		h.getSessionSettings(w, r)
	case rest == "/user/settings/update" && r.Method == http.MethodPost:
		h.updateSessionSettings(w, r)
	case rest == "/user/info" && r.Method == http.MethodGet:
		h.getSessionInfo(w, r)
	case rest == "/user/info/update" && r.Method == http.MethodPost:
		h.updateSessionInfo(w, r)
	case rest == "/user/api_key":
		h.handleAPIKey(w, r)
	case rest == "/user/avatar" && r.Method == http.MethodPost:
		h.uploadAvatar(w, r)
	case strings.HasPrefix(rest, "/user/") && strings.HasSuffix(rest, "/settings") && r.Method == http.MethodGet:
		userID := strings.TrimSuffix(strings.TrimPrefix(rest, "/user/"), "/settings")
		h.getUserSettingsByID(w, r, userID)
	default:
		h.routeUserID(w, r, rest)
	}
}

// routeUserID handles the /{user_id}[...] tail of the subtree. Fixed paths
// are matched first by route, so a literal "user" segment never lands here
// with a sub-path.
func (h *UserHandler) routeUserID(w http.ResponseWriter, r *http.Request, rest string) {
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	switch {
	case len(parts) == 1 && parts[0] != "" && r.Method == http.MethodGet:
		h.getUserByID(w, r, parts[0])
	case len(parts) == 1 && parts[0] != "" && r.Method == http.MethodDelete:
		h.deleteUser(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "update" && r.Method == http.MethodPost:
		h.updateUser(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "balance" && r.Method == http.MethodPost:
		h.updateBalance(w, r, parts[0])
	default:
		http.NotFound(w, r)
	}
}

// verifiedUser extracts the session user and enforces the verified-user
// capability; it writes the response itself on failure.
func (h *UserHandler) verifiedUser(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	user, ok := middleware.SessionUser(r.Context())
	if !ok {
		http.Error(w, "Unauthorized: user not found in context", http.StatusUnauthorized)
		return nil, false
	}
	if !user.IsVerified() {
		http.Error(w, "Forbidden: account is pending approval", http.StatusForbidden)
		return nil, false
	}
	return user, true
}

// adminUser extracts the session user and enforces the admin capability.
func (h *UserHandler) adminUser(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	user, ok := middleware.SessionUser(r.Context())
	if !ok {
		http.Error(w, "Unauthorized: user not found in context", http.StatusUnauthorized)
		return nil, false
	}
	if !user.IsAdmin() {
		http.Error(w, "Forbidden: admin role required", http.StatusForbidden)
		return nil, false
	}
	return user, true
}

// getUsers godoc
// @Summary List all users
// @Description Returns every account, ordered by creation time. skip and limit are accepted for compatibility with the admin table.
// @Tags users
// @Produce json
// @Param skip query int false "Rows to skip"
// @Param limit query int false "Maximum rows to return"
// @Success 200 {array} model.User
// @Failure 403 {string} string "Forbidden: admin role required"
// @Router /users [get]
func (h *UserHandler) getUsers(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.adminUser(w, r); !ok {
		return
	}

	skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 50
	}

	users, err := h.userService.GetUsers(r.Context(), skip, limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, users, h.logger)
}

// handlePermissions godoc
// @Summary Read or replace the default user permissions
// @Tags users
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 403 {string} string "Forbidden: admin role required"
// @Router /users/permissions/user [get]
func (h *UserHandler) handlePermissions(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.adminUser(w, r); !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.permStore.Get(), h.logger)
	case http.MethodPost:
		var perms map[string]any
		if err := json.NewDecoder(r.Body).Decode(&perms); err != nil {
			http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, h.permStore.Replace(perms), h.logger)
	default:
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

// updateRole godoc
// @Summary Change an account's role
// @Description Self-changes are rejected unless the caller is the bootstrap user; the bootstrap user's role is immutable to everyone else.
// @Tags users
// @Accept json
// @Produce json
// @Param form body dto.UserRoleUpdateForm true "Role update"
// @Success 200 {object} model.User
// @Failure 403 {string} string "Forbidden"
// @Router /users/update/role [post]
func (h *UserHandler) updateRole(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.adminUser(w, r)
	if !ok {
		return
	}

	var form dto.UserRoleUpdateForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&form); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	updated, err := h.userService.UpdateRole(r.Context(), caller, form.ID, form.Role)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updated, h.logger)
}

func (h *UserHandler) getSessionSettings(w http.ResponseWriter, r *http.Request) {
	user, ok := h.verifiedUser(w, r)
	if !ok {
		return
	}
	settings, err := h.userService.GetSettings(r.Context(), user.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, settings, h.logger)
}

func (h *UserHandler) updateSessionSettings(w http.ResponseWriter, r *http.Request) {
	user, ok := h.verifiedUser(w, r)
	if !ok {
		return
	}
	var settings model.UserSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	updated, err := h.userService.UpdateSettings(r.Context(), user.ID, &settings)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updated, h.logger)
}

// getUserSettingsByID returns another account's settings; the verified-user
// capability is the only gate, matching the sharing model of the UI.
func (h *UserHandler) getUserSettingsByID(w http.ResponseWriter, r *http.Request, userID string) {
	if _, ok := h.verifiedUser(w, r); !ok {
		return
	}
	settings, err := h.userService.GetSettings(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, settings, h.logger)
}

func (h *UserHandler) getSessionInfo(w http.ResponseWriter, r *http.Request) {
	user, ok := h.verifiedUser(w, r)
	if !ok {
		return
	}
	info, err := h.userService.GetInfo(r.Context(), user.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, info, h.logger)
}

// updateSessionInfo godoc
// @Summary Merge a fragment into the caller's info map
// @Description Shallow merge: posted keys win, untouched keys survive.
// @Tags users
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /users/user/info/update [post]
func (h *UserHandler) updateSessionInfo(w http.ResponseWriter, r *http.Request) {
	user, ok := h.verifiedUser(w, r)
	if !ok {
		return
	}
	var fragment map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fragment); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	info, err := h.userService.MergeInfo(r.Context(), user.ID, fragment)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, info, h.logger)
}

func (h *UserHandler) handleAPIKey(w http.ResponseWriter, r *http.Request) {
	user, ok := h.verifiedUser(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodPost:
		apiKey, err := h.userService.GenerateAPIKey(r.Context(), user.ID)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, dto.APIKeyResponse{APIKey: apiKey}, h.logger)
	case http.MethodGet:
		apiKey, err := h.userService.GetAPIKey(r.Context(), user.ID)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, dto.APIKeyResponse{APIKey: apiKey}, h.logger)
	case http.MethodDelete:
		if err := h.userService.RevokeAPIKey(r.Context(), user.ID); err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, true, h.logger)
	default:
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

// uploadAvatar godoc
// @Summary Upload the caller's profile image
// @Description Stores the image on object storage and persists the public URL.
// @Tags users
// @Accept json
// @Produce json
// @Param form body dto.AvatarUploadForm true "Base64-encoded image"
// @Success 200 {object} model.User
// @Router /users/user/avatar [post]
func (h *UserHandler) uploadAvatar(w http.ResponseWriter, r *http.Request) {
	user, ok := h.verifiedUser(w, r)
	if !ok {
		return
	}
	var form dto.AvatarUploadForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&form); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	url, err := h.avatarService.Upload(r.Context(), user.ID, form.ContentType, form.Data)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	updated, err := h.userService.UpdateProfileImage(r.Context(), user.ID, url)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updated, h.logger)
}

// getUserByID godoc
// @Summary Public profile by id
// @Description Accepts a plain user id or a "shared-{chatId}" pseudo-id, which resolves to the chat's owner.
// @Tags users
// @Produce json
// @Param user_id path string true "User id or shared-{chatId}"
// @Success 200 {object} dto.UserResponse
// @Failure 400 {string} string "user not found"
// @Router /users/{user_id} [get]
func (h *UserHandler) getUserByID(w http.ResponseWriter, r *http.Request, userID string) {
	if _, ok := h.verifiedUser(w, r); !ok {
		return
	}
	user, err := h.userService.GetPublicProfile(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.UserResponse{
		Name:            user.Name,
		ProfileImageURL: user.ProfileImageURL,
	}, h.logger)
}

// updateUser godoc
// @Summary Admin profile edit
// @Description Rejects a phone number already registered to another account; rehashes the password when one is supplied.
// @Tags users
// @Accept json
// @Produce json
// @Param user_id path string true "User id"
// @Param form body dto.UserUpdateForm true "Profile update"
// @Success 200 {object} model.User
// @Failure 400 {string} string "cell phone number is already registered to another account"
// @Router /users/{user_id}/update [post]
func (h *UserHandler) updateUser(w http.ResponseWriter, r *http.Request, userID string) {
	if _, ok := h.adminUser(w, r); !ok {
		return
	}

	var form dto.UserUpdateForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&form); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	updated, err := h.userService.UpdateProfile(r.Context(), userID, service.ProfileUpdate{
		Name:            form.Name,
		CellPhone:       form.CellPhone,
		Email:           form.Email,
		ProfileImageURL: form.ProfileImageURL,
		Password:        form.Password,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updated, h.logger)
}

// updateBalance godoc
// @Summary Overwrite settings.ui.balance.amount
// @Tags users
// @Accept json
// @Produce json
// @Param user_id path string true "User id"
// @Param form body dto.BalanceUpdateForm true "New balance amount"
// @Success 200 {object} model.User
// @Router /users/{user_id}/balance [post]
func (h *UserHandler) updateBalance(w http.ResponseWriter, r *http.Request, userID string) {
	if _, ok := h.adminUser(w, r); !ok {
		return
	}

	var form dto.BalanceUpdateForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&form); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	updated, err := h.userService.UpdateBalanceAmount(r.Context(), userID, form.Amount)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updated, h.logger)
}

// deleteUser godoc
// @Summary Delete an account
// @Description Self-deletion is forbidden. The account's chats, auth record and bills go with it atomically.
// @Tags users
// @Produce json
// @Param user_id path string true "User id"
// @Success 200 {boolean} boolean
// @Failure 403 {string} string "deleting your own account is not allowed"
// @Router /users/{user_id} [delete]
func (h *UserHandler) deleteUser(w http.ResponseWriter, r *http.Request, userID string) {
	caller, ok := h.adminUser(w, r)
	if !ok {
		return
	}
	if err := h.userService.Delete(r.Context(), caller, userID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, true, h.logger)
}
