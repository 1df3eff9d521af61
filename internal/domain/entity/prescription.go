package entity

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrMedicinesRequired = errors.New("at least one medicine is required")
	ErrInvalidMedicine   = errors.New("medicine name and dosage are required")
)

// Medicine is one line of a prescription
type Medicine struct {
	Name         string `json:"name"`
	Dosage       string `json:"dosage"`
	Instructions string `json:"instructions,omitempty"`
}

// Medicines is stored as a JSONB array
type Medicines []Medicine

// Validate rejects an empty list and any entry with a blank name or dosage
func (m Medicines) Validate() error {
	if len(m) == 0 {
		return ErrMedicinesRequired
	}
	for i, med := range m {
		if strings.TrimSpace(med.Name) == "" || strings.TrimSpace(med.Dosage) == "" {
			return fmt.Errorf("%w: entry %d", ErrInvalidMedicine, i)
		}
	}
	return nil
}

// Value returns json value, implement driver.Valuer interface
func (m Medicines) Value() (driver.Value, error) {
	if m == nil {
		return "[]", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan scan value into Medicines, implements sql.Scanner interface
func (m *Medicines) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New(fmt.Sprint("Failed to unmarshal medicines value:", value))
	}

	var result []Medicine
	if err := json.Unmarshal(bytes, &result); err != nil {
		return err
	}
	*m = result
	return nil
}

// Prescription is a clinical record issued for a completed appointment.
// Rows are immutable; an edit is a delete followed by a new issue.
type Prescription struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	AppointmentID uuid.UUID `gorm:"type:uuid;not null;index" json:"appointment_id"`
	DoctorID      uuid.UUID `gorm:"type:uuid;not null;index" json:"doctor_id"`
	PatientID     uuid.UUID `gorm:"type:uuid;not null;index" json:"patient_id"`
	Medicines     Medicines `gorm:"type:jsonb;not null" json:"medicines"`
	Notes         string    `gorm:"type:text" json:"notes,omitempty"`
	IssuedAt      time.Time `gorm:"autoCreateTime" json:"issued_at"`
}

func (Prescription) TableName() string {
	return "prescriptions"
}
