package usecase

import (
	"context"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"go-clinic-appointment/internal/domain/entity"
	"go-clinic-appointment/internal/domain/provider"
	"go-clinic-appointment/internal/infrastructure/metrics"
	"go-clinic-appointment/internal/service"
	"go-clinic-appointment/pkg/jwt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// memData is everything a transaction can roll back
type memData struct {
	appointments  map[uuid.UUID]entity.Appointment
	payments      []entity.Payment
	prescriptions map[uuid.UUID]entity.Prescription
	auditLogs     []entity.AuditLog
	users         map[uuid.UUID]entity.User
	doctors       map[uuid.UUID]entity.DoctorProfile
	patients      map[uuid.UUID]entity.PatientProfile
}

func (d memData) clone() memData {
	c := memData{
		appointments:  make(map[uuid.UUID]entity.Appointment, len(d.appointments)),
		payments:      append([]entity.Payment(nil), d.payments...),
		prescriptions: make(map[uuid.UUID]entity.Prescription, len(d.prescriptions)),
		auditLogs:     append([]entity.AuditLog(nil), d.auditLogs...),
		users:         make(map[uuid.UUID]entity.User, len(d.users)),
		doctors:       make(map[uuid.UUID]entity.DoctorProfile, len(d.doctors)),
		patients:      make(map[uuid.UUID]entity.PatientProfile, len(d.patients)),
	}
	for k, v := range d.appointments {
		c.appointments[k] = v
	}
	for k, v := range d.prescriptions {
		c.prescriptions[k] = v
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.doctors {
		c.doctors[k] = v
	}
	for k, v := range d.patients {
		c.patients[k] = v
	}
	return c
}

// memStore is an in-memory stand-in for Postgres. Transactions are
// serialized and roll back by restoring a snapshot.
type memStore struct {
	mu   sync.Mutex
	txMu sync.Mutex
	data memData
	snap *memData

	// beforePaymentCreate runs before the unique checks of every payment
	// insert, outside the data lock
	beforePaymentCreate func(p *entity.Payment)
}

func newMemStore() *memStore {
	return &memStore{data: memData{
		appointments:  map[uuid.UUID]entity.Appointment{},
		prescriptions: map[uuid.UUID]entity.Prescription{},
		users:         map[uuid.UUID]entity.User{},
		doctors:       map[uuid.UUID]entity.DoctorProfile{},
		patients:      map[uuid.UUID]entity.PatientProfile{},
	}}
}

type txKey struct{}

func (s *memStore) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snap := s.data.clone()
	s.snap = &snap
	s.mu.Unlock()

	err := fn(context.WithValue(ctx, txKey{}, true))

	s.mu.Lock()
	if err != nil {
		s.data = *s.snap
	}
	s.snap = nil
	s.mu.Unlock()
	return err
}

// commitPayment inserts a row as if another connection had committed it
func (s *memStore) commitPayment(p entity.Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	s.data.payments = append(s.data.payments, p)
	if s.snap != nil {
		s.snap.payments = append(s.snap.payments, p)
	}
}

func (s *memStore) appointment(id uuid.UUID) entity.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.appointments[id]
}

func (s *memStore) putAppointment(a entity.Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.appointments[a.ID] = a
}

func (s *memStore) paymentsFor(appointmentID uuid.UUID) []entity.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.Payment
	for _, p := range s.data.payments {
		if p.AppointmentID == appointmentID {
			out = append(out, p)
		}
	}
	return out
}

func (s *memStore) auditActions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.data.auditLogs))
	for i, l := range s.data.auditLogs {
		out[i] = l.Action
	}
	return out
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint}
}

// Appointments

type memAppointmentRepo struct{ s *memStore }

func (r memAppointmentRepo) Create(ctx context.Context, a *entity.Appointment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	r.s.data.appointments[a.ID] = *a
	return nil
}

func (r memAppointmentRepo) FindByID(ctx context.Context, id uuid.UUID) (*entity.Appointment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.data.appointments[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (r memAppointmentRepo) FindByActor(ctx context.Context, actor entity.Actor) ([]entity.Appointment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []entity.Appointment
	for _, a := range r.s.data.appointments {
		switch {
		case actor.IsAdmin(),
			actor.IsPatient() && a.PatientID == actor.ID,
			actor.IsDoctor() && a.DoctorID == actor.ID:
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r memAppointmentRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to entity.AppointmentStatus) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.data.appointments[id]
	if !ok || a.Status != from {
		return 0, nil
	}
	a.Status = to
	r.s.data.appointments[id] = a
	return 1, nil
}

func (r memAppointmentRepo) UpdateAmount(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.data.appointments[id]
	if !ok || a.IsAmountFrozen() {
		return 0, nil
	}
	a.Amount = amount
	r.s.data.appointments[id] = a
	return 1, nil
}

func (r memAppointmentRepo) MarkPaid(ctx context.Context, id uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.data.appointments[id]
	if !ok || a.Paid {
		return 0, nil
	}
	a.Paid = true
	r.s.data.appointments[id] = a
	return 1, nil
}

func (r memAppointmentRepo) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.data.appointments[id]; !ok {
		return 0, nil
	}
	delete(r.s.data.appointments, id)
	return 1, nil
}

// Payments

type memPaymentRepo struct{ s *memStore }

func (r memPaymentRepo) Create(ctx context.Context, p *entity.Payment) error {
	if hook := r.s.beforePaymentCreate; hook != nil {
		hook(p)
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.data.payments {
		if existing.TransactionID == p.TransactionID && existing.Status == p.Status {
			return uniqueViolation(constraintPaymentTransactionStatus)
		}
		if p.Status == entity.PaymentStatusCompleted && existing.Status == entity.PaymentStatusCompleted &&
			existing.AppointmentID == p.AppointmentID {
			return uniqueViolation(constraintPaymentOneCompleted)
		}
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = time.Now()
	r.s.data.payments = append(r.s.data.payments, *p)
	return nil
}

func (r memPaymentRepo) FindByID(ctx context.Context, id uuid.UUID) (*entity.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.data.payments {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, nil
}

func (r memPaymentRepo) FindByTransactionID(ctx context.Context, transactionID string, status entity.PaymentStatus) (*entity.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.data.payments {
		if p.TransactionID == transactionID && p.Status == status {
			return &p, nil
		}
	}
	return nil, nil
}

func (r memPaymentRepo) FindByAppointmentID(ctx context.Context, appointmentID uuid.UUID) ([]entity.Payment, error) {
	return r.s.paymentsFor(appointmentID), nil
}

// Prescriptions

type memPrescriptionRepo struct{ s *memStore }

func (r memPrescriptionRepo) Create(ctx context.Context, p *entity.Prescription) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.IssuedAt = time.Now()
	r.s.data.prescriptions[p.ID] = *p
	return nil
}

func (r memPrescriptionRepo) FindByID(ctx context.Context, id uuid.UUID) (*entity.Prescription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.data.prescriptions[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r memPrescriptionRepo) FindByAppointmentID(ctx context.Context, appointmentID uuid.UUID) ([]entity.Prescription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []entity.Prescription
	for _, p := range r.s.data.prescriptions {
		if p.AppointmentID == appointmentID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r memPrescriptionRepo) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.data.prescriptions[id]; !ok {
		return 0, nil
	}
	delete(r.s.data.prescriptions, id)
	return 1, nil
}

// Audit logs

type memAuditLogRepo struct{ s *memStore }

func (r memAuditLogRepo) Create(ctx context.Context, l *entity.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l.ID = int64(len(r.s.data.auditLogs) + 1)
	l.CreatedAt = time.Now()
	r.s.data.auditLogs = append(r.s.data.auditLogs, *l)
	return nil
}

func (r memAuditLogRepo) FindAll(ctx context.Context) ([]entity.AuditLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]entity.AuditLog(nil), r.s.data.auditLogs...), nil
}

func (r memAuditLogRepo) FindByID(ctx context.Context, id int64) (*entity.AuditLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, l := range r.s.data.auditLogs {
		if l.ID == id {
			return &l, nil
		}
	}
	return nil, nil
}

// Users, roles and profiles

type memUserRepo struct{ s *memStore }

func (r memUserRepo) Create(ctx context.Context, u *entity.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.data.users {
		if existing.Email == u.Email {
			return uniqueViolation("users_email_key")
		}
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	stored := *u
	stored.DoctorProfile = nil
	stored.PatientProfile = nil
	r.s.data.users[u.ID] = stored
	return nil
}

func (r memUserRepo) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.data.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, nil
}

func (r memUserRepo) FindByID(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.data.users[id]
	if !ok {
		return nil, nil
	}
	if p, ok := r.s.data.doctors[id]; ok {
		u.DoctorProfile = &p
	}
	if p, ok := r.s.data.patients[id]; ok {
		u.PatientProfile = &p
	}
	return &u, nil
}

type memRoleRepo struct{}

func (memRoleRepo) FindByName(ctx context.Context, name string) (*entity.Role, error) {
	switch name {
	case entity.RoleAdmin:
		return &entity.Role{ID: entity.RoleIDAdmin, RoleName: name}, nil
	case entity.RoleDoctor:
		return &entity.Role{ID: entity.RoleIDDoctor, RoleName: name}, nil
	case entity.RolePatient:
		return &entity.Role{ID: entity.RoleIDPatient, RoleName: name}, nil
	}
	return nil, nil
}

type memDoctorProfileRepo struct{ s *memStore }

func (r memDoctorProfileRepo) Create(ctx context.Context, p *entity.DoctorProfile) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.data.doctors {
		if existing.STRNumber == p.STRNumber {
			return uniqueViolation("doctor_profiles_str_number_key")
		}
	}
	r.s.data.doctors[p.UserID] = *p
	return nil
}

func (r memDoctorProfileRepo) FindByUserID(ctx context.Context, userID uuid.UUID) (*entity.DoctorProfile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.data.doctors[userID]
	if !ok {
		return nil, nil
	}
	p.User = r.s.data.users[userID]
	return &p, nil
}

func (r memDoctorProfileRepo) FindAll(ctx context.Context) ([]entity.DoctorProfile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []entity.DoctorProfile
	for id, p := range r.s.data.doctors {
		u := r.s.data.users[id]
		if !u.IsActive {
			continue
		}
		p.User = u
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Specialization < out[j].Specialization })
	return out, nil
}

type memPatientProfileRepo struct{ s *memStore }

func (r memPatientProfileRepo) Create(ctx context.Context, p *entity.PatientProfile) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.data.patients {
		if existing.NIK == p.NIK {
			return uniqueViolation("patient_profiles_nik_key")
		}
	}
	r.s.data.patients[p.UserID] = *p
	return nil
}

func (r memPatientProfileRepo) FindByUserID(ctx context.Context, userID uuid.UUID) (*entity.PatientProfile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.data.patients[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// Redis-backed stores

type memSessionStore struct {
	mu       sync.Mutex
	sessions map[string]service.RedirectSession
}

func (s *memSessionStore) Save(ctx context.Context, session service.RedirectSession, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.SessionID] = session
	return nil
}

func (s *memSessionStore) Get(ctx context.Context, sessionID string) (*service.RedirectSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return &session, nil
}

func (s *memSessionStore) has(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[sessionID]
	return ok
}

func (s *memSessionStore) Consume(ctx context.Context, sessionID string) (*service.RedirectSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	delete(s.sessions, sessionID)
	return &session, nil
}

type memTokenStore struct {
	mu     sync.Mutex
	tokens map[string]bool
}

func (s *memTokenStore) key(userID uuid.UUID, tokenType jwt.TokenType, tokenID string) string {
	return string(tokenType) + ":" + userID.String() + ":" + tokenID
}

func (s *memTokenStore) Store(ctx context.Context, userID uuid.UUID, tokenType jwt.TokenType, tokenID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[s.key(userID, tokenType, tokenID)] = true
	return nil
}

func (s *memTokenStore) Exists(ctx context.Context, userID uuid.UUID, tokenType jwt.TokenType, tokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens[s.key(userID, tokenType, tokenID)], nil
}

func (s *memTokenStore) Revoke(ctx context.Context, userID uuid.UUID, tokenType jwt.TokenType, tokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, s.key(userID, tokenType, tokenID))
	return nil
}

// Providers and broker

type mockRedirectProvider struct{ mock.Mock }

func (m *mockRedirectProvider) OpenSession(ctx context.Context, req provider.RedirectSessionRequest) (*provider.RedirectSession, error) {
	args := m.Called(ctx, req)
	if s, ok := args.Get(0).(*provider.RedirectSession); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockPushProvider struct{ mock.Mock }

func (m *mockPushProvider) Push(ctx context.Context, req provider.PushRequest) error {
	return m.Called(ctx, req).Error(0)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []entity.DomainEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, event entity.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close(ctx context.Context) error {
	return nil
}

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

// harness wires every usecase against one memStore

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type harness struct {
	store     *memStore
	metrics   *metrics.Metrics
	publisher *recordingPublisher
	redirect  *mockRedirectProvider
	push      *mockPushProvider
	sessions  *memSessionStore

	appointments  *appointmentUsecase
	payments      *paymentUsecase
	prescriptions *prescriptionUsecase

	admin   entity.Actor
	doctor  entity.Actor
	patient entity.Actor
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func actorFor(role string) entity.Actor {
	return entity.Actor{ID: uuid.New(), Role: role, ExpiresAt: testNow.Add(time.Hour)}
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		store:     newMemStore(),
		metrics:   metrics.New(prometheus.NewRegistry()),
		publisher: &recordingPublisher{},
		redirect:  &mockRedirectProvider{},
		push:      &mockPushProvider{},
		sessions:  &memSessionStore{sessions: map[string]service.RedirectSession{}},
		admin:     actorFor(entity.RoleAdmin),
		doctor:    actorFor(entity.RoleDoctor),
		patient:   actorFor(entity.RolePatient),
	}

	log := testLogger()
	s := h.store
	s.data.users[h.doctor.ID] = entity.User{ID: h.doctor.ID, FullName: "Dr. Sari", RoleID: entity.RoleIDDoctor, IsActive: true}
	s.data.doctors[h.doctor.ID] = entity.DoctorProfile{UserID: h.doctor.ID, STRNumber: "STR-1", Specialization: "General", ConsultationFee: decimal.NewFromInt(150)}
	s.data.users[h.patient.ID] = entity.User{ID: h.patient.ID, FullName: "Budi", RoleID: entity.RoleIDPatient, IsActive: true}
	s.data.patients[h.patient.ID] = entity.PatientProfile{UserID: h.patient.ID, NIK: "3201000000000001", PhoneNumber: "+628123456789"}

	audit := service.NewAuditService(log, memAuditLogRepo{s})
	fees := service.NewProfileFeeSchedule(memDoctorProfileRepo{s}, decimal.NewFromInt(100))

	h.appointments = NewAppointmentUsecase(log, s, memAppointmentRepo{s}, memPaymentRepo{s}, memPrescriptionRepo{s},
		fees, audit, h.publisher, h.metrics).(*appointmentUsecase)
	h.payments = NewPaymentUsecase(log, s, memAppointmentRepo{s}, memPaymentRepo{s}, memPatientProfileRepo{s},
		h.redirect, h.push, h.sessions, audit, h.publisher, h.metrics, PaymentConfig{
			RedirectReturnURL: "https://clinic.test/payments/return",
			SessionTTL:        time.Hour,
		}).(*paymentUsecase)
	h.prescriptions = NewPrescriptionUsecase(log, s, memAppointmentRepo{s}, memPrescriptionRepo{s},
		audit, h.publisher, h.metrics).(*prescriptionUsecase)

	fixed := func() time.Time { return testNow }
	h.appointments.gate.now = fixed
	h.payments.gate.now = fixed
	h.prescriptions.gate.now = fixed

	return h
}

// seedAppointment stores an appointment for the harness patient and doctor
func (h *harness) seedAppointment(status entity.AppointmentStatus, paid bool) entity.Appointment {
	a := entity.Appointment{
		ID:              uuid.New(),
		PatientID:       h.patient.ID,
		DoctorID:        h.doctor.ID,
		AppointmentDate: testNow.AddDate(0, 0, 2).Truncate(24 * time.Hour),
		TimeSlot:        "09:00-09:30",
		Status:          status,
		Amount:          decimal.NewFromInt(150),
		Paid:            paid,
	}
	h.store.putAppointment(a)
	return a
}

func requireDenied(t *testing.T, err error, kind error) {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, kind)
}

func serviceSession(id string, a entity.Appointment) service.RedirectSession {
	return service.RedirectSession{SessionID: id, AppointmentID: a.ID, Amount: a.Amount}
}
