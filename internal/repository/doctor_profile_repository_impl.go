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

type doctorProfileRepository struct {
	db *gorm.DB
}

func NewDoctorProfileRepository(db *gorm.DB) domainRepo.DoctorProfileRepository {
	return &doctorProfileRepository{db: db}
}

func (r *doctorProfileRepository) Create(ctx context.Context, profile *entity.DoctorProfile) error {
	return database.Conn(ctx, r.db).Omit("User").Create(profile).Error
}

func (r *doctorProfileRepository) FindByUserID(ctx context.Context, doctorID uuid.UUID) (*entity.DoctorProfile, error) {
	var profile entity.DoctorProfile
	err := database.Conn(ctx, r.db).Preload("User").Where("user_id = ?", doctorID).First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &profile, nil
}

func (r *doctorProfileRepository) FindAll(ctx context.Context) ([]entity.DoctorProfile, error) {
	var profiles []entity.DoctorProfile
	err := database.Conn(ctx, r.db).Preload("User").
		Joins("JOIN users ON users.id = doctor_profiles.user_id AND users.is_active = ?", true).
		Order("specialization ASC").
		Find(&profiles).Error
	if err != nil {
		return nil, err
	}
	return profiles, nil
}
