package repository

import (
	"context"

	"go-clinic-appointment/internal/domain/entity"

	"github.com/google/uuid"
)

type PrescriptionRepository interface {
	Create(ctx context.Context, prescription *entity.Prescription) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Prescription, error)
	FindByAppointmentID(ctx context.Context, appointmentID uuid.UUID) ([]entity.Prescription, error)
	Delete(ctx context.Context, id uuid.UUID) (int64, error)
}
