package dto

import (
	"github.com/google/uuid"
)

// PatientProfileResponse represents patient profile data in responses
type PatientProfileResponse struct {
	UserID      uuid.UUID `json:"user_id"`
	NIK         string    `json:"nik"`
	PhoneNumber string    `json:"phone_number,omitempty"`
	DateOfBirth string    `json:"date_of_birth"`
	Gender      string    `json:"gender"`
	Address     string    `json:"address,omitempty"`
}
