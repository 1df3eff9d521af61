package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Request DTOs

// InitiateRedirectRequest: Amount is optional; when present it must match the
// appointment amount.
type InitiateRedirectRequest struct {
	Amount *decimal.Decimal `json:"amount,omitempty"`
}

type InitiatePushRequest struct {
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	PhoneNumber string           `json:"phone_number" validate:"omitempty,min=8,max=20"`
}

// SettlementCallbackRequest is the shape both rails deliver settlement in
type SettlementCallbackRequest struct {
	SessionID     string          `json:"session_id" validate:"omitempty,max=100"`
	AppointmentID uuid.UUID       `json:"appointment_id" validate:"required"`
	TransactionID string          `json:"transaction_id" validate:"required,max=100"`
	Amount        decimal.Decimal `json:"amount" validate:"gte=0"`
	Status        string          `json:"status" validate:"required,oneof=completed failed"`
}

// Response DTOs

type RedirectSessionResponse struct {
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
}

type PushInitiatedResponse struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	PhoneNumber   string    `json:"phone_number"`
	Status        string    `json:"status"`
}

type PaymentResponse struct {
	ID            uuid.UUID       `json:"id"`
	AppointmentID uuid.UUID       `json:"appointment_id"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	TransactionID string          `json:"transaction_id"`
	Rail          string          `json:"rail"`
	ReviewReason  string          `json:"review_reason,omitempty"`
	RefundOf      *uuid.UUID      `json:"refund_of,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type PaymentListResponse struct {
	Payments []PaymentResponse `json:"payments"`
	Total    int               `json:"total"`
}

// SettlementResponse reports what a confirmation did to the ledger
type SettlementResponse struct {
	Payment        PaymentResponse `json:"payment"`
	Duplicate      bool            `json:"duplicate"`
	PaidFlipped    bool            `json:"paid_flipped"`
	AmountMismatch bool            `json:"amount_mismatch"`
}
