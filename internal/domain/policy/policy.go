// Package policy is the role gate: a single predicate table deciding which
// actor may perform which action on which target. It performs no I/O.
package policy

import (
	"errors"
	"fmt"
	"time"

	"go-clinic-appointment/internal/domain/entity"

	"github.com/google/uuid"
)

// Action tags a state-mutating (or protected read) operation
type Action string

const (
	ActionCreateAppointment  Action = "create_appointment"
	ActionTransitionStatus   Action = "transition_status"
	ActionOverrideAmount     Action = "override_amount"
	ActionDeleteAppointment  Action = "delete_appointment"
	ActionCreatePrescription Action = "create_prescription"
	ActionInitiatePayment    Action = "initiate_payment"

	ActionListAppointments   Action = "list_appointments"
	ActionViewAppointment    Action = "view_appointment"
	ActionViewPayments       Action = "view_payments"
	ActionRefundPayment      Action = "refund_payment"
	ActionViewPrescription   Action = "view_prescription"
	ActionDeletePrescription Action = "delete_prescription"
)

// DenialKind tells the caller how to remediate a denial
type DenialKind string

const (
	// KindNotAllowed: role or ownership mismatch. Do not retry.
	KindNotAllowed DenialKind = "not_allowed"
	// KindNotPossible: the target's current state forbids it. Refresh state.
	KindNotPossible DenialKind = "not_possible"
	// KindReauthenticate: the credential expired.
	KindReauthenticate DenialKind = "reauthenticate"
)

// Sentinels matched by errors.Is against a *DenialError of the same kind
var (
	ErrNotAllowed     = errors.New("not allowed")
	ErrNotPossible    = errors.New("not possible in current state")
	ErrReauthenticate = errors.New("credential expired, re-authenticate")
)

// Target is the entity an action applies to. Fields not relevant to the
// action are ignored.
type Target struct {
	Appointment  *entity.Appointment
	Prescription *entity.Prescription
	// PatientID is who a new appointment is booked for
	PatientID uuid.UUID
	// NewStatus is the requested status for transition_status
	NewStatus entity.AppointmentStatus
}

// Decision is the outcome of Authorize
type Decision struct {
	Allowed bool
	Kind    DenialKind
	Reason  string
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(kind DenialKind, reason string) Decision {
	return Decision{Kind: kind, Reason: reason}
}

// Err converts a denial into a *DenialError; nil when allowed
func (d Decision) Err(action Action) error {
	if d.Allowed {
		return nil
	}
	return &DenialError{Action: action, Kind: d.Kind, Reason: d.Reason}
}

// DenialError is returned by usecases when the role gate refuses an action
type DenialError struct {
	Action Action
	Kind   DenialKind
	Reason string
}

func (e *DenialError) Error() string {
	return fmt.Sprintf("%s denied (%s): %s", e.Action, e.Kind, e.Reason)
}

func (e *DenialError) Is(target error) bool {
	switch target {
	case ErrNotAllowed:
		return e.Kind == KindNotAllowed
	case ErrNotPossible:
		return e.Kind == KindNotPossible
	case ErrReauthenticate:
		return e.Kind == KindReauthenticate
	}
	return false
}

// Authorize evaluates the rule table. Credential expiry is checked before any
// rule and denies every action.
func Authorize(actor entity.Actor, action Action, target Target, now time.Time) Decision {
	if actor.IsExpired(now) {
		return deny(KindReauthenticate, "credential has expired")
	}

	switch action {
	case ActionCreateAppointment:
		return authorizeCreateAppointment(actor, target)
	case ActionTransitionStatus:
		return authorizeTransition(actor, target)
	case ActionOverrideAmount:
		return authorizeOverrideAmount(actor, target)
	case ActionDeleteAppointment:
		if !actor.IsAdmin() {
			return deny(KindNotAllowed, "only an admin may delete appointments")
		}
		return allow()
	case ActionCreatePrescription:
		return authorizeCreatePrescription(actor, target)
	case ActionInitiatePayment:
		return authorizeInitiatePayment(actor, target)
	case ActionListAppointments:
		// Scoping to the actor's own rows happens in the store query
		switch actor.Role {
		case entity.RoleAdmin, entity.RoleDoctor, entity.RolePatient:
			return allow()
		}
		return deny(KindNotAllowed, "unknown role")
	case ActionViewAppointment, ActionViewPayments, ActionViewPrescription:
		return authorizeView(actor, target)
	case ActionRefundPayment:
		if !actor.IsAdmin() {
			return deny(KindNotAllowed, "only an admin may refund payments")
		}
		return allow()
	case ActionDeletePrescription:
		return authorizeDeletePrescription(actor, target)
	}

	return deny(KindNotAllowed, fmt.Sprintf("unknown action %q", action))
}

func authorizeCreateAppointment(actor entity.Actor, target Target) Decision {
	if !actor.IsPatient() {
		return deny(KindNotAllowed, "only patients may book appointments")
	}
	if target.PatientID != actor.ID {
		return deny(KindNotAllowed, "patients may only book appointments for themselves")
	}
	return allow()
}

func authorizeTransition(actor entity.Actor, target Target) Decision {
	appt := target.Appointment
	if appt == nil {
		return deny(KindNotPossible, "appointment does not exist")
	}

	switch actor.Role {
	case entity.RoleAdmin:
		return allow()

	case entity.RoleDoctor:
		if appt.DoctorID != actor.ID {
			return deny(KindNotAllowed, "doctors may only update their own appointments")
		}
		if target.NewStatus != entity.AppointmentStatusCompleted {
			return deny(KindNotAllowed, "doctors may only mark appointments as completed")
		}
		if appt.Status != entity.AppointmentStatusConfirmed {
			return deny(KindNotPossible, "only confirmed appointments can be completed")
		}
		return allow()

	case entity.RolePatient:
		if target.NewStatus != entity.AppointmentStatusCancelled {
			return deny(KindNotAllowed, "patients may only cancel appointments")
		}
		if appt.PatientID != actor.ID {
			return deny(KindNotAllowed, "appointment does not belong to you")
		}
		if appt.Status != entity.AppointmentStatusPending {
			return deny(KindNotPossible, "only pending appointments can be cancelled by the patient")
		}
		return allow()
	}

	return deny(KindNotAllowed, "unknown role")
}

func authorizeOverrideAmount(actor entity.Actor, target Target) Decision {
	if !actor.IsAdmin() {
		return deny(KindNotAllowed, "only an admin may override the amount")
	}
	if target.Appointment == nil {
		return deny(KindNotPossible, "appointment does not exist")
	}
	if target.Appointment.IsAmountFrozen() {
		return deny(KindNotPossible, fmt.Sprintf("amount is frozen once the appointment is %s", target.Appointment.Status))
	}
	return allow()
}

// Role is checked first, then status, then ownership, so any doctor asking for
// a prescription on an unfinished appointment learns it is not eligible yet.
func authorizeCreatePrescription(actor entity.Actor, target Target) Decision {
	if !actor.IsDoctor() {
		return deny(KindNotAllowed, "only doctors may issue prescriptions")
	}
	appt := target.Appointment
	if appt == nil {
		return deny(KindNotPossible, "appointment does not exist")
	}
	if appt.Status != entity.AppointmentStatusCompleted {
		return deny(KindNotPossible, "prescriptions require a completed appointment")
	}
	if appt.DoctorID != actor.ID {
		return deny(KindNotAllowed, "only the assigned doctor may issue a prescription")
	}
	return allow()
}

func authorizeInitiatePayment(actor entity.Actor, target Target) Decision {
	if !actor.IsPatient() {
		return deny(KindNotAllowed, "only patients may pay for appointments")
	}
	appt := target.Appointment
	if appt == nil {
		return deny(KindNotPossible, "appointment does not exist")
	}
	if appt.PatientID != actor.ID {
		return deny(KindNotAllowed, "appointment does not belong to you")
	}
	if appt.Paid {
		return deny(KindNotPossible, "appointment is already paid")
	}
	if appt.Status.IsTerminal() {
		return deny(KindNotPossible, fmt.Sprintf("cannot pay for a %s appointment", appt.Status))
	}
	return allow()
}

func authorizeView(actor entity.Actor, target Target) Decision {
	if actor.IsAdmin() {
		return allow()
	}
	if target.Appointment == nil {
		return deny(KindNotPossible, "appointment does not exist")
	}
	if !target.Appointment.BelongsTo(actor.ID) {
		return deny(KindNotAllowed, "appointment does not belong to you")
	}
	return allow()
}

func authorizeDeletePrescription(actor entity.Actor, target Target) Decision {
	if !actor.IsDoctor() {
		return deny(KindNotAllowed, "only doctors may delete prescriptions")
	}
	if target.Prescription == nil {
		return deny(KindNotPossible, "prescription does not exist")
	}
	if target.Prescription.DoctorID != actor.ID {
		return deny(KindNotAllowed, "only the issuing doctor may delete a prescription")
	}
	return allow()
}
