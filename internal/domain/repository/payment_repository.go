package repository

import (
	"context"

	"go-clinic-appointment/internal/domain/entity"

	"github.com/google/uuid"
)

type PaymentRepository interface {
	Create(ctx context.Context, payment *entity.Payment) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Payment, error)
	FindByTransactionID(ctx context.Context, transactionID string, status entity.PaymentStatus) (*entity.Payment, error)
	FindByAppointmentID(ctx context.Context, appointmentID uuid.UUID) ([]entity.Payment, error)
}
