package model

// AccountBill is one token-usage billing line in the account_bill table.
// The composite key is (ID, ExpenseTime). Token counts and monetary values
// are stored as text, matching the upstream billing pipeline. Year and Month
// are denormalized from ExpenseTime for query convenience.
type AccountBill struct {
	ID           string `json:"id"`
	ExpenseTime  int64  `json:"expense_time"`
	InputTokens  string `json:"input_tokens"`
	OutputTokens string `json:"output_tokens"`
	InputCost    string `json:"input_cost"`
	OutputCost   string `json:"output_cost"`
	Amount       string `json:"amount"`
	Year         int64  `json:"year"`
	Month        int64  `json:"month"`
}
