package policy_test

import (
	"errors"
	"testing"
	"time"

	"go-clinic-appointment/internal/domain/entity"
	"go-clinic-appointment/internal/domain/policy"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func actor(role string, id uuid.UUID) entity.Actor {
	return entity.Actor{ID: id, Role: role, ExpiresAt: now.Add(time.Hour)}
}

func appointment(patientID, doctorID uuid.UUID, status entity.AppointmentStatus) *entity.Appointment {
	return &entity.Appointment{
		ID:        uuid.New(),
		PatientID: patientID,
		DoctorID:  doctorID,
		Status:    status,
	}
}

var allStatuses = []entity.AppointmentStatus{
	entity.AppointmentStatusPending,
	entity.AppointmentStatusConfirmed,
	entity.AppointmentStatusCompleted,
	entity.AppointmentStatusCancelled,
}

func TestAuthorize_ExpiredCredentialDeniesEverything(t *testing.T) {
	admin := entity.Actor{ID: uuid.New(), Role: entity.RoleAdmin, ExpiresAt: now.Add(-time.Second)}
	appt := appointment(uuid.New(), uuid.New(), entity.AppointmentStatusPending)

	actions := []policy.Action{
		policy.ActionCreateAppointment,
		policy.ActionTransitionStatus,
		policy.ActionOverrideAmount,
		policy.ActionDeleteAppointment,
		policy.ActionCreatePrescription,
		policy.ActionInitiatePayment,
		policy.ActionRefundPayment,
	}
	for _, action := range actions {
		d := policy.Authorize(admin, action, policy.Target{Appointment: appt}, now)
		assert.False(t, d.Allowed, action)
		assert.Equal(t, policy.KindReauthenticate, d.Kind, action)
		assert.True(t, errors.Is(d.Err(action), policy.ErrReauthenticate), action)
	}
}

func TestAuthorize_ZeroExpiryIsExpired(t *testing.T) {
	d := policy.Authorize(entity.Actor{ID: uuid.New(), Role: entity.RoleAdmin}, policy.ActionDeleteAppointment, policy.Target{}, now)
	assert.Equal(t, policy.KindReauthenticate, d.Kind)
}

func TestAuthorize_CreateAppointment(t *testing.T) {
	patientID := uuid.New()

	d := policy.Authorize(actor(entity.RolePatient, patientID), policy.ActionCreateAppointment, policy.Target{PatientID: patientID}, now)
	assert.True(t, d.Allowed)

	d = policy.Authorize(actor(entity.RolePatient, patientID), policy.ActionCreateAppointment, policy.Target{PatientID: uuid.New()}, now)
	assert.False(t, d.Allowed)
	assert.Equal(t, policy.KindNotAllowed, d.Kind)

	for _, role := range []string{entity.RoleDoctor, entity.RoleAdmin} {
		id := uuid.New()
		d = policy.Authorize(actor(role, id), policy.ActionCreateAppointment, policy.Target{PatientID: id}, now)
		assert.False(t, d.Allowed, role)
	}
}

func TestAuthorize_PatientCanNeverConfirm(t *testing.T) {
	patientID := uuid.New()
	for _, status := range allStatuses {
		for _, owner := range []uuid.UUID{patientID, uuid.New()} {
			appt := appointment(owner, uuid.New(), status)
			d := policy.Authorize(actor(entity.RolePatient, patientID), policy.ActionTransitionStatus,
				policy.Target{Appointment: appt, NewStatus: entity.AppointmentStatusConfirmed}, now)
			assert.False(t, d.Allowed, "status=%s", status)
		}
	}
}

func TestAuthorize_TransitionRules(t *testing.T) {
	patientID := uuid.New()
	doctorID := uuid.New()

	tests := []struct {
		name    string
		actor   entity.Actor
		status  entity.AppointmentStatus
		next    entity.AppointmentStatus
		allowed bool
		kind    policy.DenialKind
	}{
		{"admin any", actor(entity.RoleAdmin, uuid.New()), entity.AppointmentStatusPending, entity.AppointmentStatusConfirmed, true, ""},
		{"doctor completes own confirmed", actor(entity.RoleDoctor, doctorID), entity.AppointmentStatusConfirmed, entity.AppointmentStatusCompleted, true, ""},
		{"doctor completes pending", actor(entity.RoleDoctor, doctorID), entity.AppointmentStatusPending, entity.AppointmentStatusCompleted, false, policy.KindNotPossible},
		{"doctor confirms", actor(entity.RoleDoctor, doctorID), entity.AppointmentStatusPending, entity.AppointmentStatusConfirmed, false, policy.KindNotAllowed},
		{"other doctor completes", actor(entity.RoleDoctor, uuid.New()), entity.AppointmentStatusConfirmed, entity.AppointmentStatusCompleted, false, policy.KindNotAllowed},
		{"patient cancels own pending", actor(entity.RolePatient, patientID), entity.AppointmentStatusPending, entity.AppointmentStatusCancelled, true, ""},
		{"patient cancels own confirmed", actor(entity.RolePatient, patientID), entity.AppointmentStatusConfirmed, entity.AppointmentStatusCancelled, false, policy.KindNotPossible},
		{"patient cancels other", actor(entity.RolePatient, uuid.New()), entity.AppointmentStatusPending, entity.AppointmentStatusCancelled, false, policy.KindNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appt := appointment(patientID, doctorID, tt.status)
			d := policy.Authorize(tt.actor, policy.ActionTransitionStatus, policy.Target{Appointment: appt, NewStatus: tt.next}, now)
			assert.Equal(t, tt.allowed, d.Allowed)
			if !tt.allowed {
				assert.Equal(t, tt.kind, d.Kind)
				assert.NotEmpty(t, d.Reason)
			}
		})
	}
}

func TestAuthorize_OverrideAmount(t *testing.T) {
	admin := actor(entity.RoleAdmin, uuid.New())
	for _, status := range allStatuses {
		appt := appointment(uuid.New(), uuid.New(), status)
		d := policy.Authorize(admin, policy.ActionOverrideAmount, policy.Target{Appointment: appt}, now)
		if status.IsTerminal() {
			assert.False(t, d.Allowed, status)
			assert.Equal(t, policy.KindNotPossible, d.Kind)
		} else {
			assert.True(t, d.Allowed, status)
		}
	}

	appt := appointment(uuid.New(), uuid.New(), entity.AppointmentStatusPending)
	for _, role := range []string{entity.RoleDoctor, entity.RolePatient} {
		d := policy.Authorize(actor(role, appt.PatientID), policy.ActionOverrideAmount, policy.Target{Appointment: appt}, now)
		assert.Equal(t, policy.KindNotAllowed, d.Kind, role)
	}
}

func TestAuthorize_DeleteAppointmentAdminOnly(t *testing.T) {
	appt := appointment(uuid.New(), uuid.New(), entity.AppointmentStatusPending)
	assert.True(t, policy.Authorize(actor(entity.RoleAdmin, uuid.New()), policy.ActionDeleteAppointment, policy.Target{Appointment: appt}, now).Allowed)
	assert.False(t, policy.Authorize(actor(entity.RolePatient, appt.PatientID), policy.ActionDeleteAppointment, policy.Target{Appointment: appt}, now).Allowed)
	assert.False(t, policy.Authorize(actor(entity.RoleDoctor, appt.DoctorID), policy.ActionDeleteAppointment, policy.Target{Appointment: appt}, now).Allowed)
}

func TestAuthorize_CreatePrescription(t *testing.T) {
	doctorID := uuid.New()
	for _, status := range []entity.AppointmentStatus{entity.AppointmentStatusPending, entity.AppointmentStatusConfirmed} {
		appt := appointment(uuid.New(), doctorID, status)
		d := policy.Authorize(actor(entity.RoleDoctor, doctorID), policy.ActionCreatePrescription, policy.Target{Appointment: appt}, now)
		assert.Equal(t, policy.KindNotPossible, d.Kind, status)
	}

	completed := appointment(uuid.New(), doctorID, entity.AppointmentStatusCompleted)
	assert.True(t, policy.Authorize(actor(entity.RoleDoctor, doctorID), policy.ActionCreatePrescription, policy.Target{Appointment: completed}, now).Allowed)

	d := policy.Authorize(actor(entity.RoleDoctor, uuid.New()), policy.ActionCreatePrescription, policy.Target{Appointment: completed}, now)
	assert.Equal(t, policy.KindNotAllowed, d.Kind)

	d = policy.Authorize(actor(entity.RoleAdmin, uuid.New()), policy.ActionCreatePrescription, policy.Target{Appointment: completed}, now)
	assert.Equal(t, policy.KindNotAllowed, d.Kind)
}

func TestAuthorize_InitiatePayment(t *testing.T) {
	patientID := uuid.New()
	patient := actor(entity.RolePatient, patientID)

	appt := appointment(patientID, uuid.New(), entity.AppointmentStatusPending)
	assert.True(t, policy.Authorize(patient, policy.ActionInitiatePayment, policy.Target{Appointment: appt}, now).Allowed)

	appt.Status = entity.AppointmentStatusConfirmed
	assert.True(t, policy.Authorize(patient, policy.ActionInitiatePayment, policy.Target{Appointment: appt}, now).Allowed)

	appt.Paid = true
	d := policy.Authorize(patient, policy.ActionInitiatePayment, policy.Target{Appointment: appt}, now)
	assert.Equal(t, policy.KindNotPossible, d.Kind)

	appt.Paid = false
	appt.Status = entity.AppointmentStatusCancelled
	d = policy.Authorize(patient, policy.ActionInitiatePayment, policy.Target{Appointment: appt}, now)
	assert.Equal(t, policy.KindNotPossible, d.Kind)

	other := appointment(uuid.New(), uuid.New(), entity.AppointmentStatusPending)
	d = policy.Authorize(patient, policy.ActionInitiatePayment, policy.Target{Appointment: other}, now)
	assert.Equal(t, policy.KindNotAllowed, d.Kind)

	d = policy.Authorize(actor(entity.RoleAdmin, uuid.New()), policy.ActionInitiatePayment, policy.Target{Appointment: appt}, now)
	assert.Equal(t, policy.KindNotAllowed, d.Kind)
}

func TestAuthorize_ViewAndPrescriptionDelete(t *testing.T) {
	patientID, doctorID := uuid.New(), uuid.New()
	appt := appointment(patientID, doctorID, entity.AppointmentStatusCompleted)

	assert.True(t, policy.Authorize(actor(entity.RolePatient, patientID), policy.ActionViewAppointment, policy.Target{Appointment: appt}, now).Allowed)
	assert.True(t, policy.Authorize(actor(entity.RoleDoctor, doctorID), policy.ActionViewPayments, policy.Target{Appointment: appt}, now).Allowed)
	assert.True(t, policy.Authorize(actor(entity.RoleAdmin, uuid.New()), policy.ActionViewPrescription, policy.Target{Appointment: appt}, now).Allowed)
	assert.False(t, policy.Authorize(actor(entity.RolePatient, uuid.New()), policy.ActionViewAppointment, policy.Target{Appointment: appt}, now).Allowed)

	rx := &entity.Prescription{ID: uuid.New(), DoctorID: doctorID}
	assert.True(t, policy.Authorize(actor(entity.RoleDoctor, doctorID), policy.ActionDeletePrescription, policy.Target{Prescription: rx}, now).Allowed)
	assert.False(t, policy.Authorize(actor(entity.RoleDoctor, uuid.New()), policy.ActionDeletePrescription, policy.Target{Prescription: rx}, now).Allowed)
	assert.False(t, policy.Authorize(actor(entity.RoleAdmin, uuid.New()), policy.ActionDeletePrescription, policy.Target{Prescription: rx}, now).Allowed)
}

func TestDenialError(t *testing.T) {
	err := policy.Decision{Kind: policy.KindNotPossible, Reason: "frozen"}.Err(policy.ActionOverrideAmount)
	require.Error(t, err)

	var denial *policy.DenialError
	require.True(t, errors.As(err, &denial))
	assert.Equal(t, policy.ActionOverrideAmount, denial.Action)
	assert.True(t, errors.Is(err, policy.ErrNotPossible))
	assert.False(t, errors.Is(err, policy.ErrNotAllowed))
	assert.Contains(t, err.Error(), "frozen")

	assert.NoError(t, policy.Decision{Allowed: true}.Err(policy.ActionOverrideAmount))
}

func TestAuthorize_ListAppointments(t *testing.T) {
	for _, role := range []string{entity.RoleAdmin, entity.RoleDoctor, entity.RolePatient} {
		assert.True(t, policy.Authorize(actor(role, uuid.New()), policy.ActionListAppointments, policy.Target{}, now).Allowed, role)
	}

	d := policy.Authorize(actor("nurse", uuid.New()), policy.ActionListAppointments, policy.Target{}, now)
	assert.False(t, d.Allowed)
	assert.Equal(t, policy.KindNotAllowed, d.Kind)
}
