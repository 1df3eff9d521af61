package repository

import (
	"context"
	"errors"

	"go-clinic-appointment/internal/domain/entity"
	domainRepo "go-clinic-appointment/internal/domain/repository"
	"go-clinic-appointment/internal/infrastructure/database"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type appointmentRepository struct {
	db *gorm.DB
}

func NewAppointmentRepository(db *gorm.DB) domainRepo.AppointmentRepository {
	return &appointmentRepository{db: db}
}

func (r *appointmentRepository) Create(ctx context.Context, appointment *entity.Appointment) error {
	return database.Conn(ctx, r.db).Create(appointment).Error
}

func (r *appointmentRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Appointment, error) {
	var appointment entity.Appointment
	err := database.Conn(ctx, r.db).Where("id = ?", id).First(&appointment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &appointment, nil
}

// FindByActor lists what the actor may see: own bookings for a patient,
// assigned appointments for a doctor, everything for an admin.
func (r *appointmentRepository) FindByActor(ctx context.Context, actor entity.Actor) ([]entity.Appointment, error) {
	query := database.Conn(ctx, r.db).Model(&entity.Appointment{})
	switch actor.Role {
	case entity.RolePatient:
		query = query.Where("patient_id = ?", actor.ID)
	case entity.RoleDoctor:
		query = query.Where("doctor_id = ?", actor.ID)
	case entity.RoleAdmin:
	default:
		return []entity.Appointment{}, nil
	}

	var appointments []entity.Appointment
	err := query.Order("appointment_date DESC, created_at DESC").Find(&appointments).Error
	if err != nil {
		return nil, err
	}
	return appointments, nil
}

// UpdateStatus moves the appointment from -> to only if it is still in from.
// Returns affected rows: 1 = success, 0 = someone else changed it first.
func (r *appointmentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to entity.AppointmentStatus) (int64, error) {
	result := database.Conn(ctx, r.db).Model(&entity.Appointment{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	return result.RowsAffected, result.Error
}

// UpdateAmount rewrites the amount only while the status still allows it
func (r *appointmentRepository) UpdateAmount(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (int64, error) {
	result := database.Conn(ctx, r.db).Model(&entity.Appointment{}).
		Where("id = ? AND status IN ?", id, entity.AmountEditableStatuses).
		Update("amount", amount)
	return result.RowsAffected, result.Error
}

// MarkPaid flips paid false -> true. 0 rows means it was already paid.
func (r *appointmentRepository) MarkPaid(ctx context.Context, id uuid.UUID) (int64, error) {
	result := database.Conn(ctx, r.db).Model(&entity.Appointment{}).
		Where("id = ? AND paid = ?", id, false).
		Update("paid", true)
	return result.RowsAffected, result.Error
}

func (r *appointmentRepository) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	result := database.Conn(ctx, r.db).Where("id = ?", id).Delete(&entity.Appointment{})
	return result.RowsAffected, result.Error
}
