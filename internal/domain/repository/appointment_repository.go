package repository

import (
	"context"

	"go-clinic-appointment/internal/domain/entity"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AppointmentRepository persists appointments. Status, amount and paid writes
// are conditional updates; the returned row count is the compare-and-set result.
type AppointmentRepository interface {
	Create(ctx context.Context, appointment *entity.Appointment) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Appointment, error)
	FindByActor(ctx context.Context, actor entity.Actor) ([]entity.Appointment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to entity.AppointmentStatus) (int64, error)
	UpdateAmount(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (int64, error)
	MarkPaid(ctx context.Context, id uuid.UUID) (int64, error)
	Delete(ctx context.Context, id uuid.UUID) (int64, error)
}
