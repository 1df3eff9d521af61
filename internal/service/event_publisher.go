package service

import (
	"context"

	"go-clinic-appointment/internal/domain/entity"
)

// EventPublisher hands committed domain events to the broker
type EventPublisher interface {
	Publish(ctx context.Context, event entity.DomainEvent) error
	Close(ctx context.Context) error
}
