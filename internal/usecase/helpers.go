package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"go-clinic-appointment/internal/domain/entity"
	"go-clinic-appointment/internal/domain/policy"
	"go-clinic-appointment/internal/infrastructure/metrics"
	"go-clinic-appointment/internal/service"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
)

// Constraint names from the initial migration
const (
	constraintPaymentTransactionStatus = "uq_payments_transaction_status"
	constraintPaymentOneCompleted      = "uq_payments_one_completed"
)

// gate consults the role gate and records denials
type gate struct {
	log     *logrus.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func newGate(log *logrus.Logger, m *metrics.Metrics) gate {
	return gate{log: log, metrics: m, now: time.Now}
}

func (g gate) authorize(actor entity.Actor, action policy.Action, target policy.Target) error {
	decision := policy.Authorize(actor, action, target, g.now())
	if decision.Allowed {
		return nil
	}

	if g.metrics != nil {
		g.metrics.PolicyDenials.WithLabelValues(string(action), string(decision.Kind)).Inc()
	}
	g.log.Infof("Denied %s for %s %s: %s", action, actor.Role, actor.ID, decision.Reason)

	return decision.Err(action)
}

// publish hands an event to the broker after commit. Failures are logged only.
func publish(ctx context.Context, log *logrus.Logger, publisher service.EventPublisher, event entity.DomainEvent) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, event); err != nil {
		log.Warnf("Failed to publish %s event: %+v", event.Type, err)
	}
}

// isDuplicateKeyError checks if the error is a PostgreSQL unique violation
// on a constraint whose name contains constraintName
func isDuplicateKeyError(err error, constraintName string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// PostgreSQL error code 23505 = unique_violation
		if pgErr.Code == "23505" && strings.Contains(strings.ToLower(pgErr.ConstraintName), strings.ToLower(constraintName)) {
			return true
		}
	}
	return false
}

// isForeignKeyError checks if the error is a PostgreSQL foreign key violation
// containing the specified constraint name
func isForeignKeyError(err error, constraintName string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// PostgreSQL error code 23503 = foreign_key_violation
		if pgErr.Code == "23503" && strings.Contains(strings.ToLower(pgErr.ConstraintName), strings.ToLower(constraintName)) {
			return true
		}
	}
	return false
}
