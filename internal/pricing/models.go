package pricing

import "time"

// Trip is one crossing as recorded by the ledger. A trip is open until
// exit_at is set; amount and payment state are filled at exit time.
type Trip struct {
	ID               string     `json:"id" db:"id"`
	EntryTollboothID string     `json:"entry_tollbooth_id" db:"entry_tollbooth_id"`
	ExitTollboothID  *string    `json:"exit_tollbooth_id,omitempty" db:"exit_tollbooth_id"`
	TicketID         *string    `json:"ticket_id,omitempty" db:"ticket_id"`
	TelepassID       *string    `json:"telepass_id,omitempty" db:"telepass_id"`
	Plate            string     `json:"plate" db:"plate"`
	EntryAt          time.Time  `json:"entry_at" db:"entry_at"`
	ExitAt           *time.Time `json:"exit_at,omitempty" db:"exit_at"`
	AmountCents      *int       `json:"amount_cents,omitempty" db:"amount_cents"`
	Currency         string     `json:"currency" db:"currency"`
	Paid             bool       `json:"paid" db:"paid"`
}

// Debt statuses.
const (
	DebtStatusOpen = "OPEN"
	DebtStatusPaid = "PAID"
)

// TelepassDebt is a deferred payment created when a telepass exit completes.
type TelepassDebt struct {
	ID          string    `json:"id" db:"id"`
	TelepassID  string    `json:"telepass_id" db:"telepass_id"`
	TripID      string    `json:"trip_id" db:"trip_id"`
	AmountCents int       `json:"amount_cents" db:"amount_cents"`
	Currency    string    `json:"currency" db:"currency"`
	Status      string    `json:"status" db:"status"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Fare prices one directed entry/exit tollbooth pair.
type Fare struct {
	ID               string    `json:"id" db:"id"`
	EntryTollboothID string    `json:"entry_tollbooth_id" db:"entry_tollbooth_id"`
	ExitTollboothID  string    `json:"exit_tollbooth_id" db:"exit_tollbooth_id"`
	AmountCents      int       `json:"amount_cents" db:"amount_cents"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

type Tollbooth struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type CreateTollboothRequest struct {
	ID   string `json:"id" binding:"required"`
	Name string `json:"name" binding:"required"`
}

type CreateFareRequest struct {
	EntryTollboothID string `json:"entry_tollbooth_id" binding:"required"`
	ExitTollboothID  string `json:"exit_tollbooth_id" binding:"required"`
	AmountCents      int    `json:"amount_cents" binding:"required,min=0"`
}

type CalculateResponse struct {
	AmountCents int    `json:"amount_cents"`
	Currency    string `json:"currency"`
}

type PaymentSummary struct {
	OpenDebtCents  int    `json:"open_debt_cents"`
	CollectedCents int    `json:"collected_cents"`
	Currency       string `json:"currency"`
}
