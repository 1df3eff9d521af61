package usecase

import (
	"context"

	"go-clinic-appointment/internal/converter"
	"go-clinic-appointment/internal/delivery/dto"
	"go-clinic-appointment/internal/domain/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type DoctorUsecase interface {
	ListDoctors(ctx context.Context) (*dto.DoctorListResponse, error)
	GetDoctor(ctx context.Context, doctorID uuid.UUID) (*dto.DoctorResponse, error)
}

type doctorUsecase struct {
	log               *logrus.Logger
	doctorProfileRepo repository.DoctorProfileRepository
}

func NewDoctorUsecase(log *logrus.Logger, doctorProfileRepo repository.DoctorProfileRepository) DoctorUsecase {
	return &doctorUsecase{
		log:               log,
		doctorProfileRepo: doctorProfileRepo,
	}
}

func (u *doctorUsecase) ListDoctors(ctx context.Context) (*dto.DoctorListResponse, error) {
	profiles, err := u.doctorProfileRepo.FindAll(ctx)
	if err != nil {
		u.log.Warnf("Failed to list doctors: %+v", err)
		return nil, err
	}

	return &dto.DoctorListResponse{
		Doctors: converter.DoctorProfilesToResponses(profiles),
		Total:   len(profiles),
	}, nil
}

func (u *doctorUsecase) GetDoctor(ctx context.Context, doctorID uuid.UUID) (*dto.DoctorResponse, error) {
	profile, err := u.doctorProfileRepo.FindByUserID(ctx, doctorID)
	if err != nil {
		u.log.Warnf("Failed to find doctor profile: %+v", err)
		return nil, err
	}
	if profile == nil || !profile.User.IsActive {
		return nil, ErrDoctorNotFound
	}

	return converter.DoctorProfileToResponse(profile), nil
}
