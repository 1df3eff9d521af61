package dto

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type DoctorProfileResponse struct {
	STRNumber       string          `json:"str_number"`
	Specialization  string          `json:"specialization"`
	Biography       string          `json:"biography,omitempty"`
	ConsultationFee decimal.Decimal `json:"consultation_fee"`
}

// DoctorResponse is the public listing patients book against
type DoctorResponse struct {
	ID              uuid.UUID       `json:"id"`
	FullName        string          `json:"full_name"`
	Specialization  string          `json:"specialization"`
	Biography       string          `json:"biography,omitempty"`
	ConsultationFee decimal.Decimal `json:"consultation_fee"`
}

type DoctorListResponse struct {
	Doctors []DoctorResponse `json:"doctors"`
	Total   int              `json:"total"`
}
