package service

import (
	"context"
	"errors"

	"go-clinic-appointment/internal/domain/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrDoctorNotFound = errors.New("doctor not found")

// FeeSchedule prices a new appointment
type FeeSchedule interface {
	FeeFor(ctx context.Context, doctorID uuid.UUID) (decimal.Decimal, error)
}

type profileFeeSchedule struct {
	doctorProfileRepo repository.DoctorProfileRepository
	defaultFee        decimal.Decimal
}

// NewProfileFeeSchedule uses the doctor's consultation fee, falling back to
// defaultFee when the profile has none set.
func NewProfileFeeSchedule(doctorProfileRepo repository.DoctorProfileRepository, defaultFee decimal.Decimal) FeeSchedule {
	return &profileFeeSchedule{
		doctorProfileRepo: doctorProfileRepo,
		defaultFee:        defaultFee,
	}
}

func (s *profileFeeSchedule) FeeFor(ctx context.Context, doctorID uuid.UUID) (decimal.Decimal, error) {
	profile, err := s.doctorProfileRepo.FindByUserID(ctx, doctorID)
	if err != nil {
		return decimal.Zero, err
	}
	if profile == nil || !profile.User.IsActive {
		return decimal.Zero, ErrDoctorNotFound
	}
	if profile.ConsultationFee.IsPositive() {
		return profile.ConsultationFee, nil
	}
	return s.defaultFee, nil
}
