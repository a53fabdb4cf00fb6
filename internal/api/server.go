package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scorecast/scorecast/internal/predict"
	"github.com/scorecast/scorecast/internal/schema"
)

// Repository is the CRUD surface the handlers need.
type Repository interface {
	Ping(ctx context.Context) error

	CreateStudent(ctx context.Context, s schema.Student) (schema.Student, error)
	ListStudents(ctx context.Context, skip, limit int) ([]schema.Student, error)
	GetStudent(ctx context.Context, id int64) (schema.Student, error)
	UpdateStudent(ctx context.Context, id int64, patch schema.StudentPatch) (schema.Student, error)
	DeleteStudent(ctx context.Context, id int64) error

	CreateAcademic(ctx context.Context, studentID int64, a schema.AcademicRecord) (schema.AcademicRecord, error)
	GetAcademic(ctx context.Context, studentID int64) (schema.AcademicRecord, error)
	UpdateAcademic(ctx context.Context, studentID int64, patch schema.AcademicPatch) (schema.AcademicRecord, error)

	CreateEnvironmental(ctx context.Context, studentID int64, e schema.EnvironmentalFactors) (schema.EnvironmentalFactors, error)
	GetEnvironmental(ctx context.Context, studentID int64) (schema.EnvironmentalFactors, error)
	UpdateEnvironmental(ctx context.Context, studentID int64, patch schema.EnvironmentalPatch) (schema.EnvironmentalFactors, error)

	CreateComplete(ctx context.Context, c schema.CompleteStudent) (schema.CompleteStudent, error)
	GetComplete(ctx context.Context, id int64) (schema.CompleteStudent, error)

	CreatePrediction(ctx context.Context, p schema.Prediction) (schema.Prediction, error)
	ListPredictions(ctx context.Context, studentID int64) ([]schema.Prediction, error)
}

// Predictor scores a joined student record.
type Predictor interface {
	PredictFor(rec schema.CompleteStudent) (predict.Result, error)
	Version() string
}

// Server is the REST API server.
type Server struct {
	repo      Repository
	predictor Predictor
	gatherer  prometheus.Gatherer
	logger    *slog.Logger
	port      int
	devMode   bool
	now       func() time.Time
	server    *http.Server
}

// Option configures the API server.
type Option func(*Server)

// WithPredictor enables the prediction endpoints.
func WithPredictor(p Predictor) Option {
	return func(s *Server) {
		s.predictor = p
	}
}

// WithMetrics exposes g at /api/metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithDevMode enables CORS for development.
func WithDevMode(dev bool) Option {
	return func(s *Server) {
		s.devMode = dev
	}
}

// New creates a new API server.
func New(repo Repository, logger *slog.Logger, port int, opts ...Option) *Server {
	s := &Server{
		repo:   repo,
		logger: logger,
		port:   port,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the routed gin engine.
func (s *Server) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(s.logger))
	if s.devMode {
		router.Use(cors())
	}
	s.registerRoutes(router)
	return router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting API server", "port", s.port, "dev_mode", s.devMode)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) registerRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.GET("/health", s.handleHealth)
	if s.gatherer != nil {
		api.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	students := api.Group("/students")
	students.POST("", s.handleCreateStudent)
	students.GET("", s.handleListStudents)
	students.POST("/complete", s.handleCreateComplete)
	students.GET("/:id", s.handleGetStudent)
	students.PUT("/:id", s.handleUpdateStudent)
	students.DELETE("/:id", s.handleDeleteStudent)
	students.GET("/:id/complete", s.handleGetComplete)

	students.POST("/:id/academic", s.handleCreateAcademic)
	students.GET("/:id/academic", s.handleGetAcademic)
	students.PUT("/:id/academic", s.handleUpdateAcademic)

	students.POST("/:id/environmental", s.handleCreateEnvironmental)
	students.GET("/:id/environmental", s.handleGetEnvironmental)
	students.PUT("/:id/environmental", s.handleUpdateEnvironmental)

	students.POST("/:id/predictions", s.handleCreatePrediction)
	students.GET("/:id/predictions", s.handleListPredictions)
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.repo.Ping(c.Request.Context()); err != nil {
		s.logger.Warn("health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "degraded", Database: "unavailable"})
		return
	}
	resp := HealthResponse{Status: "ok", Database: "connected"}
	if s.predictor != nil {
		resp.ModelVersion = s.predictor.Version()
	}
	c.JSON(http.StatusOK, resp)
}
