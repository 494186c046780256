package handler

import (
	"encoding/json"
	"net/http"

	"webui-accounts/internal/api/v1/dto"
	"webui-accounts/internal/middleware"
	"webui-accounts/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// BillHandler serves the account_bill operations under /users. Its methods
// are invoked by UserHandler's dispatcher rather than registered on the mux.
type BillHandler struct {
	billService service.BillService
	validate    *validator.Validate
	logger      zerolog.Logger
}

func NewBillHandler(billService service.BillService, v *validator.Validate, logger zerolog.Logger) *BillHandler {
	return &BillHandler{
		billService: billService,
		validate:    v,
		logger:      logger,
	}
}

// addAccountBill godoc
// @Summary Record a billing line for a user
// @Description model_id is accepted and validated with the payload but not persisted.
// @Tags bills
// @Accept json
// @Produce json
// @Param form body dto.AccountBillAddForm true "Billing line"
// @Success 200 {object} model.AccountBill
// @Failure 400 {string} string "user not found"
// @Router /users/add/account_bill [post]
func (h *BillHandler) addAccountBill(w http.ResponseWriter, r *http.Request) {
	if !sessionVerifiedUser(w, r) {
		return
	}

	var form dto.AccountBillAddForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&form); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	bill, err := h.billService.Add(r.Context(), service.BillInput{
		UserID:       form.ID,
		InputTokens:  form.InputTokens,
		OutputTokens: form.OutputTokens,
		InputCost:    form.InputCost,
		OutputCost:   form.OutputCost,
		Amount:       form.Amount,
		Year:         form.Year,
		Month:        form.Month,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, bill, h.logger)
}

// getAccountBillsByYear godoc
// @Summary List a user's bills for a year
// @Tags bills
// @Accept json
// @Produce json
// @Param form body dto.AccountBillGetForm true "User and year"
// @Success 200 {array} model.AccountBill
// @Router /users/get/account_bills_by_year [post]
func (h *BillHandler) getAccountBillsByYear(w http.ResponseWriter, r *http.Request) {
	if !sessionVerifiedUser(w, r) {
		return
	}

	var form dto.AccountBillGetForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&form); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	bills, err := h.billService.GetByYear(r.Context(), form.ID, form.Year)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, bills, h.logger)
}

// getAccountBillsByYearMonth godoc
// @Summary List a user's bills for a year and month
// @Tags bills
// @Accept json
// @Produce json
// @Param form body dto.AccountBillGetByMonthForm true "User, year and month"
// @Success 200 {array} model.AccountBill
// @Router /users/get/account_bills_by_year_month [post]
func (h *BillHandler) getAccountBillsByYearMonth(w http.ResponseWriter, r *http.Request) {
	if !sessionVerifiedUser(w, r) {
		return
	}

	var form dto.AccountBillGetByMonthForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&form); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	bills, err := h.billService.GetByYearMonth(r.Context(), form.ID, form.Year, form.Month)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, bills, h.logger)
}

// sessionVerifiedUser is the shared verified-user gate for bill endpoints.
func sessionVerifiedUser(w http.ResponseWriter, r *http.Request) bool {
	user, found := middleware.SessionUser(r.Context())
	if !found {
		http.Error(w, "Unauthorized: user not found in context", http.StatusUnauthorized)
		return false
	}
	if !user.IsVerified() {
		http.Error(w, "Forbidden: account is pending approval", http.StatusForbidden)
		return false
	}
	return true
}
