package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus represents the status of a payment ledger row
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// PaymentRail identifies which initiation path produced the settlement
type PaymentRail string

const (
	PaymentRailRedirect PaymentRail = "redirect"
	PaymentRailPush     PaymentRail = "push"
)

func (r PaymentRail) IsValid() bool {
	return r == PaymentRailRedirect || r == PaymentRailPush
}

// Review reasons attached to settlements that need manual reconciliation
const (
	ReviewReasonAmountMismatch     = "amount_mismatch"
	ReviewReasonDoubleSettlement   = "double_settlement"
	ReviewReasonAppointmentInvalid = "appointment_cancelled"
)

// Payment is an append-only ledger row. A refund is a new row, never an update.
//
// Constraints (see migrations): unique (transaction_id, status), and at most one
// completed row per appointment.
type Payment struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	AppointmentID uuid.UUID       `gorm:"type:uuid;not null;index" json:"appointment_id"`
	Amount        decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Status        PaymentStatus   `gorm:"type:varchar(20);not null;index" json:"status"`
	TransactionID string          `gorm:"type:varchar(100);not null" json:"transaction_id"`
	Rail          PaymentRail     `gorm:"type:varchar(20);not null" json:"rail"`
	ReviewReason  string          `gorm:"type:varchar(100)" json:"review_reason,omitempty"`
	RefundOf      *uuid.UUID      `gorm:"type:uuid" json:"refund_of,omitempty"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (Payment) TableName() string {
	return "payments"
}

// NeedsReview reports whether the row was flagged for manual reconciliation
func (p *Payment) NeedsReview() bool {
	return p.ReviewReason != ""
}

// AddReviewReason appends a reason, keeping earlier ones
func (p *Payment) AddReviewReason(reason string) {
	if p.ReviewReason == "" {
		p.ReviewReason = reason
		return
	}
	p.ReviewReason = strings.Join([]string{p.ReviewReason, reason}, ",")
}

// IsRefundable reports whether an admin may issue a refund against this row.
// Flagged pending rows are captured funds awaiting reconciliation.
func (p *Payment) IsRefundable() bool {
	if p.Status == PaymentStatusCompleted {
		return true
	}
	return p.Status == PaymentStatusPending && p.NeedsReview()
}
