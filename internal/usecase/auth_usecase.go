package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"go-clinic-appointment/internal/converter"
	"go-clinic-appointment/internal/delivery/dto"
	"go-clinic-appointment/internal/domain/entity"
	"go-clinic-appointment/internal/domain/repository"
	"go-clinic-appointment/internal/service"
	"go-clinic-appointment/pkg/jwt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailAlreadyExists = errors.New("email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserInactive       = errors.New("user account is inactive")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrTokenExpired       = jwt.ErrTokenExpired
	ErrTokenRevoked       = errors.New("token has been revoked")
	ErrUserNotFound       = errors.New("user not found")
	ErrRoleNotFound       = errors.New("role not found")
	ErrNIKAlreadyExists   = errors.New("NIK already exists")
	ErrSTRAlreadyExists   = errors.New("STR number already exists")
	ErrInvalidDateFormat  = errors.New("invalid date format, use YYYY-MM-DD")
)

type AuthUsecase interface {
	RegisterPatient(ctx context.Context, req *dto.RegisterPatientRequest) (*dto.UserResponse, error)
	RegisterDoctor(ctx context.Context, req *dto.RegisterDoctorRequest) (*dto.UserResponse, error)
	RegisterAdmin(ctx context.Context, req *dto.RegisterAdminRequest) (*dto.UserResponse, error)
	Login(ctx context.Context, req *dto.LoginRequest) (*dto.TokenResponse, error)
	Logout(ctx context.Context, userID uuid.UUID, accessTokenID, refreshToken string) error
	RefreshToken(ctx context.Context, req *dto.RefreshTokenRequest) (*dto.TokenResponse, error)
	GetCurrentUser(ctx context.Context, userID uuid.UUID) (*dto.UserResponse, error)
	Authenticate(ctx context.Context, accessToken string) (*entity.Actor, string, error)
}

type authUsecase struct {
	log                *logrus.Logger
	tx                 repository.Transactor
	userRepo           repository.UserRepository
	roleRepo           repository.RoleRepository
	doctorProfileRepo  repository.DoctorProfileRepository
	patientProfileRepo repository.PatientProfileRepository
	jwtService         *jwt.JWTService
	tokens             service.TokenStore
	audit              service.AuditService
}

func NewAuthUsecase(
	log *logrus.Logger,
	tx repository.Transactor,
	userRepo repository.UserRepository,
	roleRepo repository.RoleRepository,
	doctorProfileRepo repository.DoctorProfileRepository,
	patientProfileRepo repository.PatientProfileRepository,
	jwtService *jwt.JWTService,
	tokens service.TokenStore,
	audit service.AuditService,
) AuthUsecase {
	return &authUsecase{
		log:                log,
		tx:                 tx,
		userRepo:           userRepo,
		roleRepo:           roleRepo,
		doctorProfileRepo:  doctorProfileRepo,
		patientProfileRepo: patientProfileRepo,
		jwtService:         jwtService,
		tokens:             tokens,
		audit:              audit,
	}
}

// createUser resolves the role by name and inserts the user row. Must run
// inside a transaction so the profile and audit entry share its fate.
func (u *authUsecase) createUser(ctx context.Context, email, password, fullName, roleName string) (*entity.User, error) {
	role, err := u.roleRepo.FindByName(ctx, roleName)
	if err != nil {
		u.log.Warnf("Failed to find role: %+v", err)
		return nil, err
	}
	if role == nil {
		return nil, ErrRoleNotFound
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		u.log.Warnf("Failed to hash password: %+v", err)
		return nil, err
	}

	user := &entity.User{
		Email:    strings.ToLower(strings.TrimSpace(email)),
		Password: string(hashedPassword),
		FullName: fullName,
		RoleID:   role.ID,
		Role:     *role,
		IsActive: true,
	}

	if err := u.userRepo.Create(ctx, user); err != nil {
		if isDuplicateKeyError(err, "email") {
			return nil, ErrEmailAlreadyExists
		}
		if isForeignKeyError(err, "role") {
			return nil, ErrRoleNotFound
		}
		u.log.Warnf("Failed to create user: %+v", err)
		return nil, err
	}

	return user, nil
}

func (u *authUsecase) RegisterPatient(ctx context.Context, req *dto.RegisterPatientRequest) (*dto.UserResponse, error) {
	dob, err := time.Parse("2006-01-02", req.DateOfBirth)
	if err != nil {
		return nil, ErrInvalidDateFormat
	}

	var user *entity.User
	err = u.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		user, err = u.createUser(ctx, req.Email, req.Password, req.FullName, entity.RolePatient)
		if err != nil {
			return err
		}

		user.PatientProfile = &entity.PatientProfile{
			UserID:      user.ID,
			NIK:         req.NIK,
			PhoneNumber: req.PhoneNumber,
			DateOfBirth: dob,
			Gender:      req.Gender,
			Address:     req.Address,
		}
		if err := u.patientProfileRepo.Create(ctx, user.PatientProfile); err != nil {
			if isDuplicateKeyError(err, "nik") {
				return ErrNIKAlreadyExists
			}
			u.log.Warnf("Failed to create patient profile: %+v", err)
			return err
		}

		return u.audit.LogCreate(ctx, &user.ID, entity.AuditActionUserRegister, "user", user.ID.String(), converter.UserToResponse(user))
	})
	if err != nil {
		return nil, err
	}

	return converter.UserToResponse(user), nil
}

func (u *authUsecase) RegisterDoctor(ctx context.Context, req *dto.RegisterDoctorRequest) (*dto.UserResponse, error) {
	var user *entity.User
	err := u.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		user, err = u.createUser(ctx, req.Email, req.Password, req.FullName, entity.RoleDoctor)
		if err != nil {
			return err
		}

		user.DoctorProfile = &entity.DoctorProfile{
			UserID:          user.ID,
			STRNumber:       req.STRNumber,
			Specialization:  req.Specialization,
			Biography:       req.Biography,
			ConsultationFee: req.ConsultationFee,
		}
		if err := u.doctorProfileRepo.Create(ctx, user.DoctorProfile); err != nil {
			if isDuplicateKeyError(err, "str_number") {
				return ErrSTRAlreadyExists
			}
			u.log.Warnf("Failed to create doctor profile: %+v", err)
			return err
		}

		return u.audit.LogCreate(ctx, &user.ID, entity.AuditActionUserRegister, "user", user.ID.String(), converter.UserToResponse(user))
	})
	if err != nil {
		return nil, err
	}

	return converter.UserToResponse(user), nil
}

func (u *authUsecase) RegisterAdmin(ctx context.Context, req *dto.RegisterAdminRequest) (*dto.UserResponse, error) {
	var user *entity.User
	err := u.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		user, err = u.createUser(ctx, req.Email, req.Password, req.FullName, entity.RoleAdmin)
		if err != nil {
			return err
		}
		return u.audit.LogCreate(ctx, nil, entity.AuditActionUserRegister, "user", user.ID.String(), converter.UserToResponse(user))
	})
	if err != nil {
		return nil, err
	}

	u.log.Infof("Admin %s created", user.Email)
	return converter.UserToResponse(user), nil
}

// issueTokens signs a token pair carrying the role and records both in the store
func (u *authUsecase) issueTokens(ctx context.Context, userID uuid.UUID, email, role string) (*dto.TokenResponse, error) {
	accessToken, accessTokenID, err := u.jwtService.GenerateAccessToken(userID, email, role)
	if err != nil {
		u.log.Warnf("Failed to generate access token: %+v", err)
		return nil, err
	}

	refreshToken, refreshTokenID, err := u.jwtService.GenerateRefreshToken(userID, email, role)
	if err != nil {
		u.log.Warnf("Failed to generate refresh token: %+v", err)
		return nil, err
	}

	if err := u.tokens.Store(ctx, userID, jwt.AccessToken, accessTokenID, u.jwtService.GetAccessExpiry()); err != nil {
		u.log.Warnf("Failed to store access token in Redis: %+v", err)
		return nil, err
	}

	if err := u.tokens.Store(ctx, userID, jwt.RefreshToken, refreshTokenID, u.jwtService.GetRefreshExpiry()); err != nil {
		u.log.Warnf("Failed to store refresh token in Redis: %+v", err)
		return nil, err
	}

	return &dto.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(u.jwtService.GetAccessExpiry().Seconds()),
	}, nil
}

func (u *authUsecase) Login(ctx context.Context, req *dto.LoginRequest) (*dto.TokenResponse, error) {
	user, err := u.userRepo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		u.log.Warnf("Failed to find user by email: %+v", err)
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, ErrUserInactive
	}

	tokens, err := u.issueTokens(ctx, user.ID, user.Email, user.RoleName())
	if err != nil {
		return nil, err
	}

	if err := u.audit.LogCreate(ctx, &user.ID, entity.AuditActionUserLogin, "user", user.ID.String(), map[string]interface{}{
		"email": user.Email,
	}); err != nil {
		u.log.Warnf("Failed to audit login: %+v", err)
	}

	return tokens, nil
}

// Logout revokes the presented access token and, when given, the refresh
// token belonging to the same user.
func (u *authUsecase) Logout(ctx context.Context, userID uuid.UUID, accessTokenID, refreshToken string) error {
	if err := u.tokens.Revoke(ctx, userID, jwt.AccessToken, accessTokenID); err != nil {
		u.log.Warnf("Failed to delete access token: %+v", err)
		return err
	}

	if refreshToken != "" {
		claims, err := u.jwtService.ValidateToken(refreshToken)
		if err == nil && claims.TokenType == jwt.RefreshToken && claims.UserID == userID {
			if err := u.tokens.Revoke(ctx, userID, jwt.RefreshToken, claims.TokenID); err != nil {
				u.log.Warnf("Failed to delete refresh token: %+v", err)
				return err
			}
		}
	}

	if err := u.audit.LogCreate(ctx, &userID, entity.AuditActionUserLogout, "user", userID.String(), nil); err != nil {
		u.log.Warnf("Failed to audit logout: %+v", err)
	}

	return nil
}

func (u *authUsecase) RefreshToken(ctx context.Context, req *dto.RefreshTokenRequest) (*dto.TokenResponse, error) {
	claims, err := u.jwtService.ValidateToken(req.RefreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != jwt.RefreshToken {
		return nil, ErrInvalidToken
	}

	exists, err := u.tokens.Exists(ctx, claims.UserID, jwt.RefreshToken, claims.TokenID)
	if err != nil {
		u.log.Warnf("Failed to check refresh token in Redis: %+v", err)
		return nil, err
	}
	if !exists {
		return nil, ErrTokenRevoked
	}

	// Role is re-read so a deactivated user cannot keep rotating tokens
	user, err := u.userRepo.FindByID(ctx, claims.UserID)
	if err != nil {
		u.log.Warnf("Failed to find user by ID: %+v", err)
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}

	if err := u.tokens.Revoke(ctx, claims.UserID, jwt.RefreshToken, claims.TokenID); err != nil {
		u.log.Warnf("Failed to delete old refresh token: %+v", err)
		return nil, err
	}

	return u.issueTokens(ctx, user.ID, user.Email, user.RoleName())
}

func (u *authUsecase) GetCurrentUser(ctx context.Context, userID uuid.UUID) (*dto.UserResponse, error) {
	user, err := u.userRepo.FindByID(ctx, userID)
	if err != nil {
		u.log.Warnf("Failed to find user by ID: %+v", err)
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	return converter.UserToResponse(user), nil
}

// Authenticate resolves a bearer access token into the calling actor and the
// token id. Expired tokens return ErrTokenExpired so the caller can ask for
// re-authentication.
func (u *authUsecase) Authenticate(ctx context.Context, accessToken string) (*entity.Actor, string, error) {
	claims, err := u.jwtService.ValidateToken(accessToken)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, "", ErrTokenExpired
		}
		return nil, "", ErrInvalidToken
	}
	if claims.TokenType != jwt.AccessToken {
		return nil, "", ErrInvalidToken
	}

	exists, err := u.tokens.Exists(ctx, claims.UserID, jwt.AccessToken, claims.TokenID)
	if err != nil {
		u.log.Warnf("Failed to check token validity: %+v", err)
		return nil, "", err
	}
	if !exists {
		return nil, "", ErrTokenRevoked
	}

	return &entity.Actor{
		ID:        claims.UserID,
		Role:      claims.Role,
		ExpiresAt: claims.ExpiresAtTime(),
	}, claims.TokenID, nil
}
