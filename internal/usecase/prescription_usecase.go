package usecase

import (
	"context"
	"errors"
	"fmt"

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
	ErrPrescriptionNotFound = errors.New("prescription not found")
	ErrInvalidMedicines     = errors.New("invalid medicines")
)

type PrescriptionUsecase interface {
	CreatePrescription(ctx context.Context, actor entity.Actor, appointmentID uuid.UUID, req *dto.CreatePrescriptionRequest) (*dto.PrescriptionResponse, error)
	GetByAppointment(ctx context.Context, actor entity.Actor, appointmentID uuid.UUID) (*dto.PrescriptionListResponse, error)
	DeletePrescription(ctx context.Context, actor entity.Actor, id uuid.UUID) error
}

type prescriptionUsecase struct {
	log              *logrus.Logger
	tx               repository.Transactor
	appointmentRepo  repository.AppointmentRepository
	prescriptionRepo repository.PrescriptionRepository
	audit            service.AuditService
	publisher        service.EventPublisher
	metrics          *metrics.Metrics
	gate             gate
}

func NewPrescriptionUsecase(
	log *logrus.Logger,
	tx repository.Transactor,
	appointmentRepo repository.AppointmentRepository,
	prescriptionRepo repository.PrescriptionRepository,
	audit service.AuditService,
	publisher service.EventPublisher,
	m *metrics.Metrics,
) PrescriptionUsecase {
	return &prescriptionUsecase{
		log:              log,
		tx:               tx,
		appointmentRepo:  appointmentRepo,
		prescriptionRepo: prescriptionRepo,
		audit:            audit,
		publisher:        publisher,
		metrics:          m,
		gate:             newGate(log, m),
	}
}

// CreatePrescription re-reads the appointment so the status check is made
// against persisted state, not what the caller last saw.
func (u *prescriptionUsecase) CreatePrescription(ctx context.Context, actor entity.Actor, appointmentID uuid.UUID, req *dto.CreatePrescriptionRequest) (*dto.PrescriptionResponse, error) {
	appointment, err := u.appointmentRepo.FindByID(ctx, appointmentID)
	if err != nil {
		u.log.Warnf("Failed to find appointment: %+v", err)
		return nil, err
	}
	if appointment == nil {
		return nil, ErrAppointmentNotFound
	}

	if err := u.gate.authorize(actor, policy.ActionCreatePrescription, policy.Target{Appointment: appointment}); err != nil {
		return nil, err
	}

	medicines := converter.MedicinesFromRequest(req.Medicines)
	if err := medicines.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMedicines, err)
	}

	prescription := &entity.Prescription{
		AppointmentID: appointment.ID,
		DoctorID:      appointment.DoctorID,
		PatientID:     appointment.PatientID,
		Medicines:     medicines,
		Notes:         req.Notes,
	}

	err = u.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := u.prescriptionRepo.Create(ctx, prescription); err != nil {
			u.log.Warnf("Failed to create prescription: %+v", err)
			return err
		}
		return u.audit.LogCreate(ctx, &actor.ID, entity.AuditActionPrescriptionCreate, "prescription", prescription.ID.String(), converter.PrescriptionToResponse(prescription))
	})
	if err != nil {
		return nil, err
	}

	if u.metrics != nil {
		u.metrics.PrescriptionsIssued.Inc()
	}
	u.log.Infof("Prescription %s issued for appointment %s", prescription.ID, appointment.ID)
	publish(ctx, u.log, u.publisher, entity.NewDomainEvent(entity.EventPrescriptionIssued, appointment.ID.String(), map[string]interface{}{
		"prescription_id": prescription.ID.String(),
		"doctor_id":       prescription.DoctorID.String(),
		"patient_id":      prescription.PatientID.String(),
		"medicines":       len(prescription.Medicines),
	}))

	return converter.PrescriptionToResponse(prescription), nil
}

func (u *prescriptionUsecase) GetByAppointment(ctx context.Context, actor entity.Actor, appointmentID uuid.UUID) (*dto.PrescriptionListResponse, error) {
	appointment, err := u.appointmentRepo.FindByID(ctx, appointmentID)
	if err != nil {
		u.log.Warnf("Failed to find appointment: %+v", err)
		return nil, err
	}
	if appointment == nil && !actor.IsAdmin() {
		return nil, ErrAppointmentNotFound
	}

	if err := u.gate.authorize(actor, policy.ActionViewPrescription, policy.Target{Appointment: appointment}); err != nil {
		return nil, err
	}

	prescriptions, err := u.prescriptionRepo.FindByAppointmentID(ctx, appointmentID)
	if err != nil {
		u.log.Warnf("Failed to list prescriptions: %+v", err)
		return nil, err
	}

	return &dto.PrescriptionListResponse{
		Prescriptions: converter.PrescriptionsToResponses(prescriptions),
		Total:         len(prescriptions),
	}, nil
}

func (u *prescriptionUsecase) DeletePrescription(ctx context.Context, actor entity.Actor, id uuid.UUID) error {
	prescription, err := u.prescriptionRepo.FindByID(ctx, id)
	if err != nil {
		u.log.Warnf("Failed to find prescription: %+v", err)
		return err
	}
	if prescription == nil {
		return ErrPrescriptionNotFound
	}

	if err := u.gate.authorize(actor, policy.ActionDeletePrescription, policy.Target{Prescription: prescription}); err != nil {
		return err
	}

	return u.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		rows, err := u.prescriptionRepo.Delete(ctx, id)
		if err != nil {
			u.log.Warnf("Failed to delete prescription: %+v", err)
			return err
		}
		if rows == 0 {
			return ErrPrescriptionNotFound
		}
		return u.audit.LogDelete(ctx, &actor.ID, entity.AuditActionPrescriptionDelete, "prescription", id.String(), converter.PrescriptionToResponse(prescription))
	})
}
