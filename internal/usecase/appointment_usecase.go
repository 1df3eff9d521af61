package usecase

import (
	"context"
	"errors"
	"time"

	"go-clinic-appointment/internal/converter"
	"go-clinic-appointment/internal/delivery/dto"
	"go-clinic-appointment/internal/domain/entity"
	"go-clinic-appointment/internal/domain/policy"
	"go-clinic-appointment/internal/domain/repository"
	"go-clinic-appointment/internal/infrastructure/metrics"
	"go-clinic-appointment/internal/service"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrAppointmentNotFound     = errors.New("appointment not found")
	ErrInvalidTransition       = errors.New("invalid status transition")
	ErrInvalidStatus           = errors.New("unknown appointment status")
	ErrAppointmentStateChanged = errors.New("appointment was changed by someone else, refresh and retry")
	ErrInvalidAmount           = errors.New("amount must be greater than zero")
	ErrAppointmentDateInPast   = errors.New("appointment date cannot be in the past")
	ErrDoctorNotFound          = service.ErrDoctorNotFound
)

type AppointmentUsecase interface {
	CreateAppointment(ctx context.Context, actor entity.Actor, req *dto.CreateAppointmentRequest) (*dto.AppointmentResponse, error)
	GetAppointment(ctx context.Context, actor entity.Actor, id uuid.UUID) (*dto.AppointmentResponse, error)
	ListMyAppointments(ctx context.Context, actor entity.Actor) (*dto.AppointmentListResponse, error)
	TransitionStatus(ctx context.Context, actor entity.Actor, id uuid.UUID, req *dto.TransitionStatusRequest) (*dto.AppointmentResponse, error)
	OverrideAmount(ctx context.Context, actor entity.Actor, id uuid.UUID, req *dto.OverrideAmountRequest) (*dto.AppointmentResponse, error)
	DeleteAppointment(ctx context.Context, actor entity.Actor, id uuid.UUID) error
}

type appointmentUsecase struct {
	log              *logrus.Logger
	tx               repository.Transactor
	appointmentRepo  repository.AppointmentRepository
	paymentRepo      repository.PaymentRepository
	prescriptionRepo repository.PrescriptionRepository
	fees             service.FeeSchedule
	audit            service.AuditService
	publisher        service.EventPublisher
	metrics          *metrics.Metrics
	gate             gate
}

func NewAppointmentUsecase(
	log *logrus.Logger,
	tx repository.Transactor,
	appointmentRepo repository.AppointmentRepository,
	paymentRepo repository.PaymentRepository,
	prescriptionRepo repository.PrescriptionRepository,
	fees service.FeeSchedule,
	audit service.AuditService,
	publisher service.EventPublisher,
	m *metrics.Metrics,
) AppointmentUsecase {
	return &appointmentUsecase{
		log:              log,
		tx:               tx,
		appointmentRepo:  appointmentRepo,
		paymentRepo:      paymentRepo,
		prescriptionRepo: prescriptionRepo,
		fees:             fees,
		audit:            audit,
		publisher:        publisher,
		metrics:          m,
		gate:             newGate(log, m),
	}
}

func (u *appointmentUsecase) CreateAppointment(ctx context.Context, actor entity.Actor, req *dto.CreateAppointmentRequest) (*dto.AppointmentResponse, error) {
	if err := u.gate.authorize(actor, policy.ActionCreateAppointment, policy.Target{PatientID: actor.ID}); err != nil {
		return nil, err
	}

	date, err := time.Parse("2006-01-02", req.AppointmentDate)
	if err != nil {
		return nil, ErrInvalidDateFormat
	}
	today := u.gate.now().UTC().Truncate(24 * time.Hour)
	if date.Before(today) {
		return nil, ErrAppointmentDateInPast
	}

	amount, err := u.fees.FeeFor(ctx, req.DoctorID)
	if err != nil {
		if errors.Is(err, service.ErrDoctorNotFound) {
			return nil, ErrDoctorNotFound
		}
		u.log.Warnf("Failed to look up consultation fee: %+v", err)
		return nil, err
	}

	appointment := &entity.Appointment{
		PatientID:       actor.ID,
		DoctorID:        req.DoctorID,
		AppointmentDate: date,
		TimeSlot:        req.TimeSlot,
		Status:          entity.AppointmentStatusPending,
		Amount:          amount,
		Paid:            false,
	}

	err = u.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := u.appointmentRepo.Create(ctx, appointment); err != nil {
			u.log.Warnf("Failed to create appointment: %+v", err)
			return err
		}
		return u.audit.LogCreate(ctx, &actor.ID, entity.AuditActionAppointmentCreate, "appointment", appointment.ID.String(),
			converter.AppointmentToResponse(appointment))
	})
	if err != nil {
		return nil, err
	}

	if u.metrics != nil {
		u.metrics.AppointmentsCreated.Inc()
	}
	u.log.Infof("Appointment %s booked by patient %s with doctor %s", appointment.ID, actor.ID, appointment.DoctorID)

	return converter.AppointmentToResponse(appointment), nil
}

func (u *appointmentUsecase) GetAppointment(ctx context.Context, actor entity.Actor, id uuid.UUID) (*dto.AppointmentResponse, error) {
	appointment, err := u.appointmentRepo.FindByID(ctx, id)
	if err != nil {
		u.log.Warnf("Failed to find appointment: %+v", err)
		return nil, err
	}
	if appointment == nil {
		return nil, ErrAppointmentNotFound
	}

	if err := u.gate.authorize(actor, policy.ActionViewAppointment, policy.Target{Appointment: appointment}); err != nil {
		return nil, err
	}

	return converter.AppointmentToResponse(appointment), nil
}

func (u *appointmentUsecase) ListMyAppointments(ctx context.Context, actor entity.Actor) (*dto.AppointmentListResponse, error) {
	if err := u.gate.authorize(actor, policy.ActionListAppointments, policy.Target{}); err != nil {
		return nil, err
	}

	appointments, err := u.appointmentRepo.FindByActor(ctx, actor)
	if err != nil {
		u.log.Warnf("Failed to list appointments: %+v", err)
		return nil, err
	}

	return &dto.AppointmentListResponse{
		Appointments: converter.AppointmentsToResponses(appointments),
		Total:        len(appointments),
	}, nil
}

// TransitionStatus moves an appointment along the status graph. Leaving a
// terminal state is rejected before the role gate is consulted, so it reads as
// an invalid transition for every caller.
func (u *appointmentUsecase) TransitionStatus(ctx context.Context, actor entity.Actor, id uuid.UUID, req *dto.TransitionStatusRequest) (*dto.AppointmentResponse, error) {
	newStatus := entity.AppointmentStatus(req.Status)
	if !newStatus.IsValid() {
		return nil, ErrInvalidStatus
	}

	var (
		updated   *entity.Appointment
		oldStatus entity.AppointmentStatus
	)
	err := u.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		appointment, err := u.appointmentRepo.FindByID(ctx, id)
		if err != nil {
			u.log.Warnf("Failed to find appointment: %+v", err)
			return err
		}
		if appointment == nil {
			return ErrAppointmentNotFound
		}
		if appointment.Status.IsTerminal() {
			return ErrInvalidTransition
		}

		if err := u.gate.authorize(actor, policy.ActionTransitionStatus, policy.Target{
			Appointment: appointment,
			NewStatus:   newStatus,
		}); err != nil {
			return err
		}

		if !appointment.Status.CanTransitionTo(newStatus) {
			return ErrInvalidTransition
		}

		rows, err := u.appointmentRepo.UpdateStatus(ctx, id, appointment.Status, newStatus)
		if err != nil {
			u.log.Warnf("Failed to update appointment status: %+v", err)
			return err
		}
		if rows == 0 {
			return ErrAppointmentStateChanged
		}
		oldStatus = appointment.Status

		if err := u.audit.LogUpdate(ctx, &actor.ID, entity.AuditActionAppointmentStatus, "appointment", id.String(),
			string(oldStatus), string(newStatus)); err != nil {
			return err
		}

		updated, err = u.appointmentRepo.FindByID(ctx, id)
		if err != nil {
			u.log.Warnf("Failed to reload appointment: %+v", err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	if u.metrics != nil {
		u.metrics.StatusTransitions.WithLabelValues(string(newStatus)).Inc()
	}
	u.log.Infof("Appointment %s moved %s -> %s by %s %s", id, oldStatus, newStatus, actor.Role, actor.ID)
	publish(ctx, u.log, u.publisher, entity.NewDomainEvent(entity.EventAppointmentStatusChanged, id.String(), map[string]interface{}{
		"from":     string(oldStatus),
		"to":       string(newStatus),
		"actor_id": actor.ID.String(),
	}))

	return converter.AppointmentToResponse(updated), nil
}

func (u *appointmentUsecase) OverrideAmount(ctx context.Context, actor entity.Actor, id uuid.UUID, req *dto.OverrideAmountRequest) (*dto.AppointmentResponse, error) {
	var updated *entity.Appointment
	err := u.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		appointment, err := u.appointmentRepo.FindByID(ctx, id)
		if err != nil {
			u.log.Warnf("Failed to find appointment: %+v", err)
			return err
		}
		if appointment == nil {
			return ErrAppointmentNotFound
		}

		if err := u.gate.authorize(actor, policy.ActionOverrideAmount, policy.Target{Appointment: appointment}); err != nil {
			return err
		}
		if !req.Amount.IsPositive() {
			return ErrInvalidAmount
		}

		// The conditional update re-checks the status, so a concurrent move
		// to Completed or Cancelled leaves the amount untouched.
		rows, err := u.appointmentRepo.UpdateAmount(ctx, id, req.Amount)
		if err != nil {
			u.log.Warnf("Failed to update appointment amount: %+v", err)
			return err
		}
		if rows == 0 {
			return ErrAppointmentStateChanged
		}

		if err := u.audit.LogUpdate(ctx, &actor.ID, entity.AuditActionAppointmentAmount, "appointment", id.String(),
			appointment.Amount.StringFixed(2), req.Amount.StringFixed(2)); err != nil {
			return err
		}

		updated, err = u.appointmentRepo.FindByID(ctx, id)
		if err != nil {
			u.log.Warnf("Failed to reload appointment: %+v", err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	u.log.Infof("Appointment %s amount overridden to %s by admin %s", id, req.Amount.StringFixed(2), actor.ID)
	return converter.AppointmentToResponse(updated), nil
}

// DeleteAppointment hard-deletes the appointment. Payments and prescriptions
// referencing it are kept; the audit entry records the deleted row and how
// many records were left behind.
func (u *appointmentUsecase) DeleteAppointment(ctx context.Context, actor entity.Actor, id uuid.UUID) error {
	if err := u.gate.authorize(actor, policy.ActionDeleteAppointment, policy.Target{}); err != nil {
		return err
	}

	return u.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		appointment, err := u.appointmentRepo.FindByID(ctx, id)
		if err != nil {
			u.log.Warnf("Failed to find appointment: %+v", err)
			return err
		}
		if appointment == nil {
			return ErrAppointmentNotFound
		}

		payments, err := u.paymentRepo.FindByAppointmentID(ctx, id)
		if err != nil {
			u.log.Warnf("Failed to find payments: %+v", err)
			return err
		}
		prescriptions, err := u.prescriptionRepo.FindByAppointmentID(ctx, id)
		if err != nil {
			u.log.Warnf("Failed to find prescriptions: %+v", err)
			return err
		}

		rows, err := u.appointmentRepo.Delete(ctx, id)
		if err != nil {
			u.log.Warnf("Failed to delete appointment: %+v", err)
			return err
		}
		if rows == 0 {
			return ErrAppointmentNotFound
		}

		if len(payments) > 0 || len(prescriptions) > 0 {
			u.log.Warnf("Appointment %s deleted with %d payment(s) and %d prescription(s) retained", id, len(payments), len(prescriptions))
		}

		return u.audit.LogDelete(ctx, &actor.ID, entity.AuditActionAppointmentDelete, "appointment", id.String(), map[string]interface{}{
			"appointment":            converter.AppointmentToResponse(appointment),
			"retained_payments":      len(payments),
			"retained_prescriptions": len(prescriptions),
		})
	})
}
