package dto

// AccountBillAddForm records one token-usage billing line. ModelID is
// accepted for compatibility with the chat backend's payload but the
// account_bill row does not store it.
type AccountBillAddForm struct {
	ID           string `json:"id" validate:"required"`
	ModelID      string `json:"model_id"`
	InputTokens  string `json:"input_tokens" validate:"required"`
	OutputTokens string `json:"output_tokens" validate:"required"`
	InputCost    string `json:"input_cost" validate:"required"`
	OutputCost   string `json:"output_cost" validate:"required"`
	Amount       string `json:"amount" validate:"required"`
	Year         int64  `json:"year" validate:"required"`
	Month        int64  `json:"month" validate:"required,min=1,max=12"`
}

// AccountBillGetForm selects a user's bills for a year.
type AccountBillGetForm struct {
	ID   string `json:"id" validate:"required"`
	Year int64  `json:"year" validate:"required"`
}

// AccountBillGetByMonthForm selects a user's bills for a year and month.
type AccountBillGetByMonthForm struct {
	ID    string `json:"id" validate:"required"`
	Year  int64  `json:"year" validate:"required"`
	Month int64  `json:"month" validate:"required,min=1,max=12"`
}

// PubSubPushEnvelope is the JSON body Google Pub/Sub delivers to a push
// endpoint. Data arrives base64-encoded and decodes transparently.
type PubSubPushEnvelope struct {
	Message struct {
		Data      []byte `json:"data"`
		MessageID string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// UsageEvent is the payload the chat backend publishes for every metered
// completion; it becomes an account_bill row.
type UsageEvent struct {
	UserID       string `json:"user_id" validate:"required"`
	ModelID      string `json:"model_id"`
	InputTokens  string `json:"input_tokens" validate:"required"`
	OutputTokens string `json:"output_tokens" validate:"required"`
	InputCost    string `json:"input_cost" validate:"required"`
	OutputCost   string `json:"output_cost" validate:"required"`
	Amount       string `json:"amount" validate:"required"`
	Year         int64  `json:"year" validate:"required"`
	Month        int64  `json:"month" validate:"required,min=1,max=12"`
}
