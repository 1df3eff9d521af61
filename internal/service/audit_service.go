package service

import (
	"context"

	"go-clinic-appointment/internal/domain/entity"
	"go-clinic-appointment/internal/domain/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AuditService writes audit entries. Called with a transactional ctx, the
// entry commits or rolls back with the change it describes.
type AuditService interface {
	LogCreate(ctx context.Context, userID *uuid.UUID, action string, entityName string, entityID string, newValue interface{}) error
	LogUpdate(ctx context.Context, userID *uuid.UUID, action string, entityName string, entityID string, oldValue, newValue interface{}) error
	LogDelete(ctx context.Context, userID *uuid.UUID, action string, entityName string, entityID string, oldValue interface{}) error
}

type auditService struct {
	log       *logrus.Logger
	auditRepo repository.AuditLogRepository
}

func NewAuditService(log *logrus.Logger, auditRepo repository.AuditLogRepository) AuditService {
	return &auditService{
		log:       log,
		auditRepo: auditRepo,
	}
}

func (s *auditService) LogCreate(ctx context.Context, userID *uuid.UUID, action string, entityName string, entityID string, newValue interface{}) error {
	return s.write(ctx, userID, action, entityName, entityID, nil, newValue)
}

func (s *auditService) LogUpdate(ctx context.Context, userID *uuid.UUID, action string, entityName string, entityID string, oldValue, newValue interface{}) error {
	return s.write(ctx, userID, action, entityName, entityID, oldValue, newValue)
}

func (s *auditService) LogDelete(ctx context.Context, userID *uuid.UUID, action string, entityName string, entityID string, oldValue interface{}) error {
	return s.write(ctx, userID, action, entityName, entityID, oldValue, nil)
}

func (s *auditService) write(ctx context.Context, userID *uuid.UUID, action, entityName, entityID string, oldValue, newValue interface{}) error {
	auditLog := &entity.AuditLog{
		UserID: userID,
		Action: action,
		Metadata: entity.JSON{
			"entity":    entityName,
			"entity_id": entityID,
			"old_value": oldValue,
			"new_value": newValue,
		},
	}

	if err := s.auditRepo.Create(ctx, auditLog); err != nil {
		s.log.Warnf("Failed to create audit log: %+v", err)
		return err
	}

	return nil
}
