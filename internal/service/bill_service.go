package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"webui-accounts/internal/apperror"
	"webui-accounts/internal/model"
	"webui-accounts/internal/pubsub"
	"webui-accounts/internal/repository"

	"github.com/rs/zerolog"
)

// BillInput is a validated billing line before insertion. Token counts and
// monetary values stay text, the way the upstream billing pipeline emits
// them.
type BillInput struct {
	UserID       string
	InputTokens  string
	OutputTokens string
	InputCost    string
	OutputCost   string
	Amount       string
	Year         int64
	Month        int64
}

// BillService records and queries token-usage billing lines.
type BillService interface {
	Add(ctx context.Context, in BillInput) (*model.AccountBill, error)
	GetByYear(ctx context.Context, userID string, year int64) ([]model.AccountBill, error)
	GetByYearMonth(ctx context.Context, userID string, year, month int64) ([]model.AccountBill, error)
}

type billService struct {
	billRepo    repository.BillRepository
	userRepo    repository.UserRepository
	publisher   pubsub.Publisher // nil disables event publishing
	eventsTopic string
	logger      zerolog.Logger
}

// NewBillService wires the billing service.
func NewBillService(
	billRepo repository.BillRepository,
	userRepo repository.UserRepository,
	publisher pubsub.Publisher,
	eventsTopic string,
	logger zerolog.Logger,
) BillService {
	return &billService{
		billRepo:    billRepo,
		userRepo:    userRepo,
		publisher:   publisher,
		eventsTopic: eventsTopic,
		logger:      logger.With().Str("service", "BillService").Logger(),
	}
}

func (s *billService) Add(ctx context.Context, in BillInput) (*model.AccountBill, error) {
	// account_bill carries a foreign key to the user; surface a clean
	// not-found instead of an FK violation.
	if _, err := s.userRepo.GetUserByID(ctx, in.UserID); err != nil {
		return nil, err
	}
	if in.Month < 1 || in.Month > 12 {
		return nil, apperror.ValidationFailed(fmt.Sprintf("month %d is out of range", in.Month))
	}

	bill, err := s.billRepo.AddAccountBill(ctx, &model.AccountBill{
		ID:           in.UserID,
		ExpenseTime:  time.Now().Unix(),
		InputTokens:  in.InputTokens,
		OutputTokens: in.OutputTokens,
		InputCost:    in.InputCost,
		OutputCost:   in.OutputCost,
		Amount:       in.Amount,
		Year:         in.Year,
		Month:        in.Month,
	})
	if err != nil {
		return nil, err
	}

	s.publishBillEvent(ctx, bill)
	return bill, nil
}

func (s *billService) GetByYear(ctx context.Context, userID string, year int64) ([]model.AccountBill, error) {
	bills, err := s.billRepo.GetAccountBillsByYear(ctx, userID, year)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}
	return bills, nil
}

func (s *billService) GetByYearMonth(ctx context.Context, userID string, year, month int64) ([]model.AccountBill, error) {
	bills, err := s.billRepo.GetAccountBillsByYearMonth(ctx, userID, year, month)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}
	return bills, nil
}

type billEvent struct {
	Type        string `json:"type"`
	UserID      string `json:"user_id"`
	ExpenseTime int64  `json:"expense_time"`
	Amount      string `json:"amount"`
}

func (s *billService) publishBillEvent(ctx context.Context, bill *model.AccountBill) {
	if s.publisher == nil {
		return
	}
	payload, err := json.Marshal(billEvent{
		Type:        "account.bill.recorded",
		UserID:      bill.ID,
		ExpenseTime: bill.ExpenseTime,
		Amount:      bill.Amount,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to marshal bill event")
		return
	}
	if _, err := s.publisher.Publish(ctx, s.eventsTopic, payload); err != nil {
		s.logger.Error().Err(err).Str("user_id", bill.ID).Msg("Failed to publish bill event")
	}
}
