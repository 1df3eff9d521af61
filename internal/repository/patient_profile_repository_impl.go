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

type patientProfileRepository struct {
	db *gorm.DB
}

func NewPatientProfileRepository(db *gorm.DB) domainRepo.PatientProfileRepository {
	return &patientProfileRepository{db: db}
}

func (r *patientProfileRepository) Create(ctx context.Context, profile *entity.PatientProfile) error {
	return database.Conn(ctx, r.db).Omit("User").Create(profile).Error
}

func (r *patientProfileRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*entity.PatientProfile, error) {
	var profile entity.PatientProfile
	err := database.Conn(ctx, r.db).Where("user_id = ?", userID).First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &profile, nil
}
