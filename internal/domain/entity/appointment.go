package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AppointmentStatus represents the lifecycle state of an appointment
type AppointmentStatus string

const (
	AppointmentStatusPending   AppointmentStatus = "Pending"
	AppointmentStatusConfirmed AppointmentStatus = "Confirmed"
	AppointmentStatusCompleted AppointmentStatus = "Completed"
	AppointmentStatusCancelled AppointmentStatus = "Cancelled"
)

// appointmentTransitions lists the legal edges of the status graph.
// Completed and Cancelled have no outgoing edges.
var appointmentTransitions = map[AppointmentStatus][]AppointmentStatus{
	AppointmentStatusPending:   {AppointmentStatusConfirmed, AppointmentStatusCancelled},
	AppointmentStatusConfirmed: {AppointmentStatusCompleted, AppointmentStatusCancelled},
}

// IsValid checks the status is one of the known states
func (s AppointmentStatus) IsValid() bool {
	switch s {
	case AppointmentStatusPending, AppointmentStatusConfirmed, AppointmentStatusCompleted, AppointmentStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no transition may leave this status
func (s AppointmentStatus) IsTerminal() bool {
	return s == AppointmentStatusCompleted || s == AppointmentStatusCancelled
}

// CanTransitionTo reports whether s -> next is an edge of the status graph
func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	for _, allowed := range appointmentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AmountEditableStatuses are the states in which the appointment amount is not yet frozen
var AmountEditableStatuses = []AppointmentStatus{AppointmentStatusPending, AppointmentStatusConfirmed}

// Appointment is a patient consultation with a doctor.
// Paid is only ever set by payment settlement, never by a status write.
type Appointment struct {
	ID              uuid.UUID         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	PatientID       uuid.UUID         `gorm:"type:uuid;not null;index" json:"patient_id"`
	DoctorID        uuid.UUID         `gorm:"type:uuid;not null;index" json:"doctor_id"`
	AppointmentDate time.Time         `gorm:"type:date;not null;index" json:"appointment_date"`
	TimeSlot        string            `gorm:"type:varchar(20);not null" json:"time_slot"`
	Status          AppointmentStatus `gorm:"type:varchar(20);not null;default:'Pending';index" json:"status"`
	Amount          decimal.Decimal   `gorm:"type:numeric(12,2);not null" json:"amount"`
	Paid            bool              `gorm:"not null;default:false" json:"paid"`
	CreatedAt       time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Appointment) TableName() string {
	return "appointments"
}

// IsPending checks if appointment is in pending status
func (a *Appointment) IsPending() bool {
	return a.Status == AppointmentStatusPending
}

// IsCompleted checks if appointment is completed
func (a *Appointment) IsCompleted() bool {
	return a.Status == AppointmentStatusCompleted
}

// IsCancelled checks if appointment is cancelled
func (a *Appointment) IsCancelled() bool {
	return a.Status == AppointmentStatusCancelled
}

// IsAmountFrozen reports whether the financial figure can no longer change
func (a *Appointment) IsAmountFrozen() bool {
	return a.Status.IsTerminal()
}

// IsPayable reports whether a patient may still start a payment
func (a *Appointment) IsPayable() bool {
	return !a.Paid && !a.Status.IsTerminal()
}

// BelongsTo reports whether the user is the patient or the assigned doctor
func (a *Appointment) BelongsTo(userID uuid.UUID) bool {
	return a.PatientID == userID || a.DoctorID == userID
}
