package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-clinic-appointment/config"
	deliveryHttp "go-clinic-appointment/internal/delivery/http"
	"go-clinic-appointment/internal/delivery/http/handler"
	"go-clinic-appointment/internal/delivery/http/middleware"
	"go-clinic-appointment/internal/infrastructure/cache"
	"go-clinic-appointment/internal/infrastructure/database"
	"go-clinic-appointment/internal/infrastructure/gateway"
	"go-clinic-appointment/internal/infrastructure/messaging"
	"go-clinic-appointment/internal/infrastructure/metrics"
	"go-clinic-appointment/internal/repository"
	"go-clinic-appointment/internal/service"
	"go-clinic-appointment/internal/usecase"
	"go-clinic-appointment/pkg/jwt"
	"go-clinic-appointment/pkg/validator"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// App holds all dependencies for the application
type App struct {
	Config      *config.Config
	Log         *logrus.Logger
	DB          *gorm.DB
	RedisClient *redis.Client
	Publisher   service.EventPublisher
	Metrics     *metrics.Metrics
	Server      *http.Server

	AuthUsecase usecase.AuthUsecase
}

// New creates a new App instance with all dependencies initialized
func New(configPath string) (*App, error) {
	app := &App{}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	app.Config = cfg

	app.Log = NewLogger(cfg.App)
	app.Log.Info("Configuration loaded successfully")

	db, err := database.NewPostgresConnection(cfg.DB, cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	app.DB = db
	app.Log.Info("Database connected successfully")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	app.RedisClient = redisClient
	app.Log.Info("Redis connected successfully")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app.Metrics = metrics.New(registry)

	publisher, err := newPublisher(cfg.Kafka, app.Log, app.Metrics)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to create event publisher: %w", err)
	}
	app.Publisher = publisher

	app.Server = app.initializeServer()

	return app, nil
}

// NewLogger configures a logrus logger from the app config
func NewLogger(cfg config.AppConfig) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	return log
}

// newPublisher uses Kafka when brokers are configured and logs events otherwise
func newPublisher(cfg config.KafkaConfig, log *logrus.Logger, m *metrics.Metrics) (service.EventPublisher, error) {
	if len(cfg.Brokers) == 0 {
		log.Warn("KAFKA_BROKERS not set, domain events will only be logged")
		return messaging.NewLogPublisher(log), nil
	}
	publisher, err := messaging.NewKafkaPublisher(cfg.Brokers, cfg.Topic, log, m)
	if err != nil {
		return nil, err
	}
	log.Infof("Publishing domain events to Kafka topic %s", cfg.Topic)
	return publisher, nil
}

// initializeServer creates and configures the HTTP server
func (app *App) initializeServer() *http.Server {
	cfg := app.Config
	log := app.Log
	db := app.DB

	jwtService := jwt.NewJWTService(cfg.JWT)
	customValidator := validator.NewValidator()
	tx := database.NewGormTransactor(db)

	// Repositories
	userRepo := repository.NewUserRepository(db)
	roleRepo := repository.NewRoleRepository(db)
	doctorProfileRepo := repository.NewDoctorProfileRepository(db)
	patientProfileRepo := repository.NewPatientProfileRepository(db)
	appointmentRepo := repository.NewAppointmentRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	prescriptionRepo := repository.NewPrescriptionRepository(db)
	auditLogRepo := repository.NewAuditLogRepository(db)

	// Services
	auditService := service.NewAuditService(log, auditLogRepo)
	tokenStore := service.NewRedisTokenStore(app.RedisClient)
	sessionStore := service.NewRedisSessionStore(app.RedisClient)
	feeSchedule := service.NewProfileFeeSchedule(doctorProfileRepo, cfg.Fee.DefaultConsultationFee)

	// Payment rails
	redirectGateway := gateway.NewRedirectGateway(
		cfg.Payment.RedirectBaseURL,
		cfg.Payment.RedirectSecret,
		cfg.Payment.ProviderTimeout,
		gateway.NewBreaker(gateway.DefaultBreakerConfig("redirect"), log, app.Metrics),
		app.Metrics,
	)
	pushGateway := gateway.NewPushGateway(
		cfg.Payment.PushBaseURL,
		cfg.Payment.PushSecret,
		cfg.Payment.ProviderTimeout,
		gateway.NewBreaker(gateway.DefaultBreakerConfig("push"), log, app.Metrics),
		app.Metrics,
	)

	// Usecases
	authUsecase := usecase.NewAuthUsecase(log, tx, userRepo, roleRepo, doctorProfileRepo, patientProfileRepo, jwtService, tokenStore, auditService)
	doctorUsecase := usecase.NewDoctorUsecase(log, doctorProfileRepo)
	appointmentUsecase := usecase.NewAppointmentUsecase(log, tx, appointmentRepo, paymentRepo, prescriptionRepo, feeSchedule, auditService, app.Publisher, app.Metrics)
	paymentUsecase := usecase.NewPaymentUsecase(log, tx, appointmentRepo, paymentRepo, patientProfileRepo,
		redirectGateway, pushGateway, sessionStore, auditService, app.Publisher, app.Metrics,
		usecase.PaymentConfig{
			RedirectReturnURL: cfg.Payment.RedirectReturnURL,
			SessionTTL:        cfg.Payment.SessionTTL,
		})
	prescriptionUsecase := usecase.NewPrescriptionUsecase(log, tx, appointmentRepo, prescriptionRepo, auditService, app.Publisher, app.Metrics)
	auditLogUsecase := usecase.NewAuditLogUsecase(log, auditLogRepo)
	app.AuthUsecase = authUsecase

	// Handlers
	authHandler := handler.NewAuthHandler(authUsecase, customValidator)
	doctorHandler := handler.NewDoctorHandler(doctorUsecase)
	appointmentHandler := handler.NewAppointmentHandler(appointmentUsecase, customValidator)
	paymentHandler := handler.NewPaymentHandler(log, paymentUsecase, customValidator, handler.CallbackSecrets{
		Redirect: cfg.Payment.RedirectSecret,
		Push:     cfg.Payment.PushSecret,
	})
	prescriptionHandler := handler.NewPrescriptionHandler(prescriptionUsecase, customValidator)
	auditLogHandler := handler.NewAuditLogHandler(auditLogUsecase)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(log, authUsecase)
	corsMiddleware := middleware.NewCORSMiddleware()

	router := deliveryHttp.NewRouter(
		authHandler,
		doctorHandler,
		appointmentHandler,
		paymentHandler,
		prescriptionHandler,
		auditLogHandler,
		authMiddleware,
		corsMiddleware,
		app.Metrics.Handler(),
	)

	return &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.App.Port),
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
}

// Run starts the HTTP server and blocks until a shutdown signal arrives
func (app *App) Run() error {
	errCh := make(chan error, 1)
	go func() {
		app.Log.Infof("Server starting on port %s", app.Config.App.Port)
		app.Log.Infof("Environment: %s", app.Config.App.Env)
		if err := app.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		app.Close()
		return fmt.Errorf("failed to start server: %w", err)
	case <-quit:
	}

	app.Log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.Server.Shutdown(ctx); err != nil {
		app.Log.Errorf("Server forced to shutdown: %v", err)
	}

	app.Close()

	app.Log.Info("Server shutdown complete")
	return nil
}

// Close flushes the publisher and closes database and redis connections
func (app *App) Close() {
	if app.Publisher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := app.Publisher.Close(ctx); err != nil {
			app.Log.Warnf("Failed to flush event publisher: %v", err)
		}
		cancel()
	}

	if app.DB != nil {
		sqlDB, err := app.DB.DB()
		if err == nil {
			sqlDB.Close()
		}
	}

	if app.RedisClient != nil {
		app.RedisClient.Close()
	}
}
