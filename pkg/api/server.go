// Package api provides the HTTP surface of the KRAI document processing
// pipeline: upload intake, per-stage retry, and status/health endpoints.
//
// Grounded on the teacher's pkg/api/server.go (route registration, body size
// limit, /health shape) and pkg/api/handlers.go (gin.Context-based handlers,
// gin.H JSON envelopes, Server as the receiver for every route).
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/krai-project/krai/pkg/aiservice"
	"github.com/krai-project/krai/pkg/objectstore"
	"github.com/krai-project/krai/pkg/pipeline"
)

// uploadStagingDir is where POST /upload writes the submitted file before
// handing it to the queue. A worker reads from the same path, so the
// directory must be shared across every process in a deployment (a mounted
// volume, not a container-local tmpfs).
const uploadStagingDir = "/var/lib/krai/uploads"

// Server is the KRAI HTTP API server.
type Server struct {
	engine      *gin.Engine
	httpServer  *http.Server
	pool        *pgxpool.Pool
	queue       *pipeline.QueueStore
	pipeline    *pipeline.Pipeline
	docs        *documentStore
	objectStore *objectstore.Store
	aiService   *aiservice.Service
	logger      *slog.Logger
	stagingDir  string
}

// NewServer constructs a Server and registers its routes. pool is used
// directly for document reads; queue is the same QueueStore the worker pool
// claims rows from, so a freshly enqueued document is visible to both; pl
// is used for the retry endpoint's RunSingleStage call.
func NewServer(
	pool *pgxpool.Pool,
	queue *pipeline.QueueStore,
	pl *pipeline.Pipeline,
	objectStore *objectstore.Store,
	aiService *aiservice.Service,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	e := gin.New()
	e.Use(gin.Recovery())

	s := &Server{
		engine:      e,
		pool:        pool,
		queue:       queue,
		pipeline:    pl,
		docs:        &documentStore{pool: pool},
		objectStore: objectStore,
		aiService:   aiService,
		logger:      logger,
		stagingDir:  uploadStagingDir,
	}

	s.setupRoutes()
	return s
}

// setupRoutes registers every API route. Middleware runs in the order
// gin.Recovery (added in NewServer), security headers, then the body size
// limit; health is unauthenticated and outside any versioned group, the
// rest under /api/v1.
func (s *Server) setupRoutes() {
	s.engine.Use(securityHeaders())
	s.engine.Use(bodyLimit(32 << 20)) // 32 MiB, comfortably above a typical service manual PDF

	s.engine.GET("/health", s.handleHealth)

	v1 := s.engine.Group("/api/v1")
	v1.POST("/upload", s.handleUpload)
	v1.GET("/documents/:id", s.handleGetDocument)
	v1.GET("/documents/:id/stages", s.handleGetStages)
	v1.POST("/documents/:id/stages/:stage/retry", s.handleRetryStage)
}

// Start starts the HTTP server on addr (blocking), mirroring the teacher's
// Server.Start.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.engine,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Engine exposes the underlying gin.Engine, used by tests that want to
// drive requests with httptest without a listening socket.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

const healthCheckTimeout = 5 * time.Second
