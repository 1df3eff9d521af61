package repository

import (
	"context"

	"go-clinic-appointment/internal/domain/entity"
)

type RoleRepository interface {
	FindByName(ctx context.Context, name string) (*entity.Role, error)
}
