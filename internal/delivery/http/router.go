package http

import (
	"net/http"

	"go-clinic-appointment/internal/delivery/http/handler"
	"go-clinic-appointment/internal/delivery/http/middleware"
	"go-clinic-appointment/internal/domain/entity"

	"github.com/gorilla/mux"
)

type Router struct {
	router              *mux.Router
	authHandler         *handler.AuthHandler
	doctorHandler       *handler.DoctorHandler
	appointmentHandler  *handler.AppointmentHandler
	paymentHandler      *handler.PaymentHandler
	prescriptionHandler *handler.PrescriptionHandler
	auditLogHandler     *handler.AuditLogHandler
	authMiddleware      *middleware.AuthMiddleware
	corsMiddleware      *middleware.CORSMiddleware
	metricsHandler      http.Handler
}

func NewRouter(
	authHandler *handler.AuthHandler,
	doctorHandler *handler.DoctorHandler,
	appointmentHandler *handler.AppointmentHandler,
	paymentHandler *handler.PaymentHandler,
	prescriptionHandler *handler.PrescriptionHandler,
	auditLogHandler *handler.AuditLogHandler,
	authMiddleware *middleware.AuthMiddleware,
	corsMiddleware *middleware.CORSMiddleware,
	metricsHandler http.Handler,
) *Router {
	return &Router{
		router:              mux.NewRouter(),
		authHandler:         authHandler,
		doctorHandler:       doctorHandler,
		appointmentHandler:  appointmentHandler,
		paymentHandler:      paymentHandler,
		prescriptionHandler: prescriptionHandler,
		auditLogHandler:     auditLogHandler,
		authMiddleware:      authMiddleware,
		corsMiddleware:      corsMiddleware,
		metricsHandler:      metricsHandler,
	}
}

func (r *Router) Setup() *mux.Router {
	if r.metricsHandler != nil {
		r.router.Handle("/metrics", r.metricsHandler).Methods(http.MethodGet)
	}

	// API versioning
	api := r.router.PathPrefix("/api/v1").Subrouter()

	// Health check
	api.HandleFunc("/health", r.healthCheck).Methods(http.MethodGet)

	// Auth routes (public)
	auth := api.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/register/patient", r.authHandler.RegisterPatient).Methods(http.MethodPost)
	auth.HandleFunc("/login", r.authHandler.Login).Methods(http.MethodPost)
	auth.HandleFunc("/refresh-token", r.authHandler.RefreshToken).Methods(http.MethodPost)

	// Auth routes (protected)
	authProtected := api.PathPrefix("/auth").Subrouter()
	authProtected.Use(r.authMiddleware.Authenticate)
	authProtected.HandleFunc("/logout", r.authHandler.Logout).Methods(http.MethodPost)
	authProtected.HandleFunc("/me", r.authHandler.GetCurrentUser).Methods(http.MethodGet)

	// Doctor directory (public)
	api.HandleFunc("/doctors", r.doctorHandler.ListDoctors).Methods(http.MethodGet)
	api.HandleFunc("/doctors/{id}", r.doctorHandler.GetDoctor).Methods(http.MethodGet)

	// Provider callbacks, authenticated by HMAC signature instead of a bearer token
	payments := api.PathPrefix("/payments").Subrouter()
	payments.HandleFunc("/redirect/return", r.paymentHandler.RedirectReturn).Methods(http.MethodPost)
	payments.HandleFunc("/push/callback", r.paymentHandler.PushCallback).Methods(http.MethodPost)

	// Appointments (any authenticated role; the role gate decides per target)
	appointments := api.PathPrefix("/appointments").Subrouter()
	appointments.Use(r.authMiddleware.Authenticate)
	appointments.Handle("", middleware.RequirePatient(http.HandlerFunc(r.appointmentHandler.CreateAppointment))).Methods(http.MethodPost)
	appointments.HandleFunc("", r.appointmentHandler.GetMyAppointments).Methods(http.MethodGet)
	appointments.HandleFunc("/{id}", r.appointmentHandler.GetAppointment).Methods(http.MethodGet)
	appointments.HandleFunc("/{id}/status", r.appointmentHandler.TransitionStatus).Methods(http.MethodPatch)
	appointments.HandleFunc("/{id}/payments", r.paymentHandler.GetByAppointment).Methods(http.MethodGet)
	appointments.Handle("/{id}/payments/redirect", middleware.RequirePatient(http.HandlerFunc(r.paymentHandler.InitiateRedirect))).Methods(http.MethodPost)
	appointments.Handle("/{id}/payments/push", middleware.RequirePatient(http.HandlerFunc(r.paymentHandler.InitiatePush))).Methods(http.MethodPost)
	appointments.Handle("/{id}/prescriptions", middleware.RequireDoctor(http.HandlerFunc(r.prescriptionHandler.CreatePrescription))).Methods(http.MethodPost)
	appointments.HandleFunc("/{id}/prescriptions", r.prescriptionHandler.GetByAppointment).Methods(http.MethodGet)

	prescriptions := api.PathPrefix("/prescriptions").Subrouter()
	prescriptions.Use(r.authMiddleware.Authenticate)
	prescriptions.Use(middleware.RequireRole(entity.RoleDoctor))
	prescriptions.HandleFunc("/{id}", r.prescriptionHandler.DeletePrescription).Methods(http.MethodDelete)

	// Admin routes (protected - admin only)
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(r.authMiddleware.Authenticate)
	admin.Use(middleware.RequireAdmin)
	admin.HandleFunc("/doctors", r.authHandler.RegisterDoctor).Methods(http.MethodPost)
	admin.HandleFunc("/appointments/{id}/amount", r.appointmentHandler.OverrideAmount).Methods(http.MethodPatch)
	admin.HandleFunc("/appointments/{id}", r.appointmentHandler.DeleteAppointment).Methods(http.MethodDelete)
	admin.HandleFunc("/payments/{id}/refund", r.paymentHandler.Refund).Methods(http.MethodPost)
	admin.HandleFunc("/audit-logs", r.auditLogHandler.GetAllAuditLogs).Methods(http.MethodGet)
	admin.HandleFunc("/audit-logs/{id}", r.auditLogHandler.GetAuditLog).Methods(http.MethodGet)

	// Add CORS middleware
	r.router.Use(r.corsMiddleware.Handle)

	return r.router
}

func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status": "ok"}`))
}
