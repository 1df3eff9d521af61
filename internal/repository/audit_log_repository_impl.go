package repository

import (
	"context"
	"errors"

	"go-clinic-appointment/internal/domain/entity"
	domainRepo "go-clinic-appointment/internal/domain/repository"
	"go-clinic-appointment/internal/infrastructure/database"

	"gorm.io/gorm"
)

type auditLogRepository struct {
	db *gorm.DB
}

func NewAuditLogRepository(db *gorm.DB) domainRepo.AuditLogRepository {
	return &auditLogRepository{db: db}
}

func (r *auditLogRepository) Create(ctx context.Context, log *entity.AuditLog) error {
	return database.Conn(ctx, r.db).Omit("User").Create(log).Error
}

func (r *auditLogRepository) FindAll(ctx context.Context) ([]entity.AuditLog, error) {
	var logs []entity.AuditLog
	err := database.Conn(ctx, r.db).Preload("User.Role").Order("created_at DESC").Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}

func (r *auditLogRepository) FindByID(ctx context.Context, id int64) (*entity.AuditLog, error) {
	var log entity.AuditLog
	err := database.Conn(ctx, r.db).Preload("User.Role").Where("id = ?", id).First(&log).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &log, nil
}
