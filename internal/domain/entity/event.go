package entity

import "time"

// Domain event types published after a successful commit
const (
	EventAppointmentStatusChanged = "appointment.status_changed"
	EventAppointmentPaid          = "appointment.paid"
	EventPaymentFlagged           = "payment.flagged"
	EventPaymentRefunded          = "payment.refunded"
	EventPrescriptionIssued       = "prescription.issued"
)

// DomainEvent is a fact about an aggregate. Key is the aggregate ID and is
// used as the partition key so events for one appointment stay ordered.
type DomainEvent struct {
	Type       string                 `json:"type"`
	Key        string                 `json:"key"`
	OccurredAt time.Time              `json:"occurred_at"`
	Payload    map[string]interface{} `json:"payload"`
}

func NewDomainEvent(eventType, key string, payload map[string]interface{}) DomainEvent {
	return DomainEvent{
		Type:       eventType,
		Key:        key,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}
