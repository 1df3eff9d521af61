package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Request DTOs

type CreateAppointmentRequest struct {
	DoctorID        uuid.UUID `json:"doctor_id" validate:"required"`
	AppointmentDate string    `json:"appointment_date" validate:"required"` // Format: YYYY-MM-DD
	TimeSlot        string    `json:"time_slot" validate:"required,max=20"`
}

type TransitionStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=Pending Confirmed Completed Cancelled"`
}

type OverrideAmountRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"gt=0"`
}

// Response DTOs

type AppointmentResponse struct {
	ID              uuid.UUID       `json:"id"`
	PatientID       uuid.UUID       `json:"patient_id"`
	DoctorID        uuid.UUID       `json:"doctor_id"`
	AppointmentDate string          `json:"appointment_date"`
	TimeSlot        string          `json:"time_slot"`
	Status          string          `json:"status"`
	Amount          decimal.Decimal `json:"amount"`
	Paid            bool            `json:"paid"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type AppointmentListResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
	Total        int                   `json:"total"`
}
