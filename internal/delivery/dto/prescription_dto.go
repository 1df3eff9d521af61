package dto

import (
	"time"

	"github.com/google/uuid"
)

// Request DTOs

type MedicineRequest struct {
	Name         string `json:"name" validate:"required,max=200"`
	Dosage       string `json:"dosage" validate:"required,max=100"`
	Instructions string `json:"instructions" validate:"omitempty,max=500"`
}

type CreatePrescriptionRequest struct {
	Medicines []MedicineRequest `json:"medicines" validate:"required,min=1,dive"`
	Notes     string            `json:"notes" validate:"omitempty"`
}

// Response DTOs

type MedicineResponse struct {
	Name         string `json:"name"`
	Dosage       string `json:"dosage"`
	Instructions string `json:"instructions,omitempty"`
}

type PrescriptionResponse struct {
	ID            uuid.UUID          `json:"id"`
	AppointmentID uuid.UUID          `json:"appointment_id"`
	DoctorID      uuid.UUID          `json:"doctor_id"`
	PatientID     uuid.UUID          `json:"patient_id"`
	Medicines     []MedicineResponse `json:"medicines"`
	Notes         string             `json:"notes,omitempty"`
	IssuedAt      time.Time          `json:"issued_at"`
}

type PrescriptionListResponse struct {
	Prescriptions []PrescriptionResponse `json:"prescriptions"`
	Total         int                    `json:"total"`
}
