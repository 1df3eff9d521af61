package repository

import (
	"context"
	"errors"

	"go-clinic-appointment/internal/domain/entity"
	domainRepo "go-clinic-appointment/internal/domain/repository"
	"go-clinic-appointment/internal/infrastructure/database"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type paymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) domainRepo.PaymentRepository {
	return &paymentRepository{db: db}
}

// Create inserts a ledger row. Unique violations on (transaction_id, status)
// or on the one-completed-per-appointment index are returned unchanged.
func (r *paymentRepository) Create(ctx context.Context, payment *entity.Payment) error {
	return database.Conn(ctx, r.db).Create(payment).Error
}

func (r *paymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Payment, error) {
	var payment entity.Payment
	err := database.Conn(ctx, r.db).Where("id = ?", id).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepository) FindByTransactionID(ctx context.Context, transactionID string, status entity.PaymentStatus) (*entity.Payment, error) {
	var payment entity.Payment
	err := database.Conn(ctx, r.db).
		Where("transaction_id = ? AND status = ?", transactionID, status).
		First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepository) FindByAppointmentID(ctx context.Context, appointmentID uuid.UUID) ([]entity.Payment, error) {
	var payments []entity.Payment
	err := database.Conn(ctx, r.db).
		Where("appointment_id = ?", appointmentID).
		Order("created_at ASC").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}
