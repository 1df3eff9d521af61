package usecase

import (
	"context"
	"testing"
	"time"

	"go-clinic-appointment/config"
	"go-clinic-appointment/internal/delivery/dto"
	"go-clinic-appointment/internal/domain/entity"
	"go-clinic-appointment/internal/service"
	"go-clinic-appointment/pkg/jwt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthUsecase(t *testing.T, store *memStore, accessExpiry time.Duration) (AuthUsecase, *memTokenStore) {
	t.Helper()
	log := testLogger()
	tokens := &memTokenStore{tokens: map[string]bool{}}
	jwtService := jwt.NewJWTService(config.JWTConfig{
		Secret:        "test-secret",
		AccessExpiry:  accessExpiry,
		RefreshExpiry: 24 * time.Hour,
	})
	uc := NewAuthUsecase(log, store, memUserRepo{store}, memRoleRepo{}, memDoctorProfileRepo{store},
		memPatientProfileRepo{store}, jwtService, tokens, service.NewAuditService(log, memAuditLogRepo{store}))
	return uc, tokens
}

func patientRegistration(email, nik string) *dto.RegisterPatientRequest {
	return &dto.RegisterPatientRequest{
		Email:       email,
		Password:    "secret123",
		FullName:    "Siti Aminah",
		NIK:         nik,
		PhoneNumber: "+628111222333",
		DateOfBirth: "1990-05-17",
		Gender:      entity.GenderFemale,
	}
}

func TestRegisterPatient(t *testing.T) {
	store := newMemStore()
	uc, _ := newAuthUsecase(t, store, 15*time.Minute)
	ctx := context.Background()

	user, err := uc.RegisterPatient(ctx, patientRegistration("Siti@Example.com", "3201000000000009"))
	require.NoError(t, err)
	assert.Equal(t, "siti@example.com", user.Email)
	assert.Equal(t, entity.RolePatient, user.Role)
	require.NotNil(t, user.PatientProfile)
	assert.Equal(t, "1990-05-17", user.PatientProfile.DateOfBirth)
	assert.Contains(t, store.auditActions(), entity.AuditActionUserRegister)

	_, err = uc.RegisterPatient(ctx, patientRegistration("siti@example.com", "3201000000000010"))
	assert.ErrorIs(t, err, ErrEmailAlreadyExists)

	bad := patientRegistration("other@example.com", "3201000000000011")
	bad.DateOfBirth = "17/05/1990"
	_, err = uc.RegisterPatient(ctx, bad)
	assert.ErrorIs(t, err, ErrInvalidDateFormat)
}

func TestRegisterPatient_DuplicateNIKRollsBackUser(t *testing.T) {
	store := newMemStore()
	uc, _ := newAuthUsecase(t, store, 15*time.Minute)
	ctx := context.Background()

	_, err := uc.RegisterPatient(ctx, patientRegistration("a@example.com", "3201000000000001"))
	require.NoError(t, err)

	_, err = uc.RegisterPatient(ctx, patientRegistration("b@example.com", "3201000000000001"))
	assert.ErrorIs(t, err, ErrNIKAlreadyExists)

	// b@example.com was rolled back with its profile
	_, err = uc.RegisterPatient(ctx, patientRegistration("b@example.com", "3201000000000002"))
	assert.NoError(t, err)
}

func TestRegisterDoctor(t *testing.T) {
	store := newMemStore()
	uc, _ := newAuthUsecase(t, store, 15*time.Minute)
	ctx := context.Background()

	req := &dto.RegisterDoctorRequest{
		Email:           "dr.andi@example.com",
		Password:        "secret123",
		FullName:        "Dr. Andi",
		STRNumber:       "STR-42",
		Specialization:  "Cardiology",
		ConsultationFee: decimal.NewFromInt(250),
	}
	user, err := uc.RegisterDoctor(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, entity.RoleDoctor, user.Role)
	require.NotNil(t, user.DoctorProfile)
	assert.True(t, user.DoctorProfile.ConsultationFee.Equal(decimal.NewFromInt(250)))

	req.Email = "dr.budi@example.com"
	_, err = uc.RegisterDoctor(ctx, req)
	assert.ErrorIs(t, err, ErrSTRAlreadyExists)
}

func TestLoginAndAuthenticate(t *testing.T) {
	store := newMemStore()
	uc, _ := newAuthUsecase(t, store, 15*time.Minute)
	ctx := context.Background()

	registered, err := uc.RegisterPatient(ctx, patientRegistration("login@example.com", "3201000000000003"))
	require.NoError(t, err)

	_, err = uc.Login(ctx, &dto.LoginRequest{Email: "nobody@example.com", Password: "secret123"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = uc.Login(ctx, &dto.LoginRequest{Email: "login@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	tokens, err := uc.Login(ctx, &dto.LoginRequest{Email: "login@example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, int64(900), tokens.ExpiresIn)

	actor, tokenID, err := uc.Authenticate(ctx, tokens.AccessToken)
	require.NoError(t, err)
	assert.NotEmpty(t, tokenID)
	assert.Equal(t, registered.ID, actor.ID)
	assert.Equal(t, entity.RolePatient, actor.Role)
	assert.False(t, actor.IsExpired(time.Now()))

	_, _, err = uc.Authenticate(ctx, tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, _, err = uc.Authenticate(ctx, "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	current, err := uc.GetCurrentUser(ctx, actor.ID)
	require.NoError(t, err)
	assert.Equal(t, "login@example.com", current.Email)
	require.NotNil(t, current.PatientProfile)

	_, err = uc.GetCurrentUser(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestLogin_InactiveUser(t *testing.T) {
	store := newMemStore()
	uc, _ := newAuthUsecase(t, store, 15*time.Minute)
	ctx := context.Background()

	registered, err := uc.RegisterPatient(ctx, patientRegistration("off@example.com", "3201000000000004"))
	require.NoError(t, err)

	store.mu.Lock()
	u := store.data.users[registered.ID]
	u.IsActive = false
	store.data.users[registered.ID] = u
	store.mu.Unlock()

	_, err = uc.Login(ctx, &dto.LoginRequest{Email: "off@example.com", Password: "secret123"})
	assert.ErrorIs(t, err, ErrUserInactive)
}

func TestAuthenticate_ExpiredToken(t *testing.T) {
	store := newMemStore()
	uc, _ := newAuthUsecase(t, store, -time.Minute)
	ctx := context.Background()

	_, err := uc.RegisterPatient(ctx, patientRegistration("late@example.com", "3201000000000005"))
	require.NoError(t, err)

	tokens, err := uc.Login(ctx, &dto.LoginRequest{Email: "late@example.com", Password: "secret123"})
	require.NoError(t, err)

	_, _, err = uc.Authenticate(ctx, tokens.AccessToken)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestLogoutAndRefresh(t *testing.T) {
	store := newMemStore()
	uc, _ := newAuthUsecase(t, store, 15*time.Minute)
	ctx := context.Background()

	_, err := uc.RegisterPatient(ctx, patientRegistration("cycle@example.com", "3201000000000006"))
	require.NoError(t, err)

	first, err := uc.Login(ctx, &dto.LoginRequest{Email: "cycle@example.com", Password: "secret123"})
	require.NoError(t, err)

	rotated, err := uc.RefreshToken(ctx, &dto.RefreshTokenRequest{RefreshToken: first.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, rotated.RefreshToken)

	_, err = uc.RefreshToken(ctx, &dto.RefreshTokenRequest{RefreshToken: first.RefreshToken})
	assert.ErrorIs(t, err, ErrTokenRevoked)

	actor, tokenID, err := uc.Authenticate(ctx, rotated.AccessToken)
	require.NoError(t, err)

	require.NoError(t, uc.Logout(ctx, actor.ID, tokenID, rotated.RefreshToken))

	_, _, err = uc.Authenticate(ctx, rotated.AccessToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	_, err = uc.RefreshToken(ctx, &dto.RefreshTokenRequest{RefreshToken: rotated.RefreshToken})
	assert.ErrorIs(t, err, ErrTokenRevoked)

	assert.Contains(t, store.auditActions(), entity.AuditActionUserLogout)
}

func TestRegisterAdmin(t *testing.T) {
	store := newMemStore()
	uc, _ := newAuthUsecase(t, store, 15*time.Minute)

	admin, err := uc.RegisterAdmin(context.Background(), &dto.RegisterAdminRequest{
		Email:    "root@clinic.test",
		Password: "supersecret",
		FullName: "Clinic Admin",
	})
	require.NoError(t, err)
	assert.Equal(t, entity.RoleAdmin, admin.Role)
}
