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

type prescriptionRepository struct {
	db *gorm.DB
}

func NewPrescriptionRepository(db *gorm.DB) domainRepo.PrescriptionRepository {
	return &prescriptionRepository{db: db}
}

func (r *prescriptionRepository) Create(ctx context.Context, prescription *entity.Prescription) error {
	return database.Conn(ctx, r.db).Create(prescription).Error
}

func (r *prescriptionRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Prescription, error) {
	var prescription entity.Prescription
	err := database.Conn(ctx, r.db).Where("id = ?", id).First(&prescription).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &prescription, nil
}

func (r *prescriptionRepository) FindByAppointmentID(ctx context.Context, appointmentID uuid.UUID) ([]entity.Prescription, error) {
	var prescriptions []entity.Prescription
	err := database.Conn(ctx, r.db).
		Where("appointment_id = ?", appointmentID).
		Order("issued_at ASC").
		Find(&prescriptions).Error
	if err != nil {
		return nil, err
	}
	return prescriptions, nil
}

func (r *prescriptionRepository) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	result := database.Conn(ctx, r.db).Where("id = ?", id).Delete(&entity.Prescription{})
	return result.RowsAffected, result.Error
}
