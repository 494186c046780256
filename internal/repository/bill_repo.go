package repository

import (
	"context"
	"fmt"

	"webui-accounts/internal/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

// BillRepository maps token-usage billing lines onto the account_bill table.
// Bills are append-only: rows are never updated or deleted individually.
type BillRepository interface {
	AddAccountBill(ctx context.Context, bill *model.AccountBill) (*model.AccountBill, error)
	GetAccountBillsByYear(ctx context.Context, id string, year int64) ([]model.AccountBill, error)
	GetAccountBillsByYearMonth(ctx context.Context, id string, year, month int64) ([]model.AccountBill, error)
}

const billColumns = `id, expense_time, input_tokens, output_tokens, input_cost, output_cost, amount, year, month`

type billRepo struct {
	pool *pgxpool.Pool
}

// NewBillRepo creates a new BillRepository.
func NewBillRepo(pool *pgxpool.Pool) BillRepository {
	return &billRepo{pool: pool}
}

func (r *billRepo) AddAccountBill(ctx context.Context, bill *model.AccountBill) (*model.AccountBill, error) {
	query := fmt.Sprintf(`
		INSERT INTO account_bill (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING %s
	`, billColumns, billColumns)
	var out model.AccountBill
	err := r.pool.QueryRow(ctx, query,
		bill.ID,
		bill.ExpenseTime,
		bill.InputTokens,
		bill.OutputTokens,
		bill.InputCost,
		bill.OutputCost,
		bill.Amount,
		bill.Year,
		bill.Month,
	).Scan(
		&out.ID,
		&out.ExpenseTime,
		&out.InputTokens,
		&out.OutputTokens,
		&out.InputCost,
		&out.OutputCost,
		&out.Amount,
		&out.Year,
		&out.Month,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting account bill for user %s: %w", bill.ID, err)
	}
	return &out, nil
}

func (r *billRepo) GetAccountBillsByYear(ctx context.Context, id string, year int64) ([]model.AccountBill, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM account_bill
		WHERE id = $1 AND year = $2
		ORDER BY expense_time
	`, billColumns)
	return r.queryBills(ctx, query, id, year)
}

func (r *billRepo) GetAccountBillsByYearMonth(ctx context.Context, id string, year, month int64) ([]model.AccountBill, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM account_bill
		WHERE id = $1 AND year = $2 AND month = $3
		ORDER BY expense_time
	`, billColumns)
	return r.queryBills(ctx, query, id, year, month)
}

func (r *billRepo) queryBills(ctx context.Context, query string, args ...any) ([]model.AccountBill, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying account bills: %w", err)
	}
	defer rows.Close()

	bills := []model.AccountBill{}
	for rows.Next() {
		var b model.AccountBill
		if err := rows.Scan(
			&b.ID,
			&b.ExpenseTime,
			&b.InputTokens,
			&b.OutputTokens,
			&b.InputCost,
			&b.OutputCost,
			&b.Amount,
			&b.Year,
			&b.Month,
		); err != nil {
			return nil, fmt.Errorf("scanning account bill row: %w", err)
		}
		bills = append(bills, b)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating account bill rows: %w", err)
	}
	return bills, nil
}
