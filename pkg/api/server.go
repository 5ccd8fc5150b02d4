// Package api is the HTTP surface: task submission and lifecycle, progress,
// restart planning, vector store tools, and the answer endpoint.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/docpipe/docpipe/pkg/embedding"
	"github.com/docpipe/docpipe/pkg/llm"
	"github.com/docpipe/docpipe/pkg/pipeline"
	"github.com/docpipe/docpipe/pkg/registry"
	"github.com/docpipe/docpipe/pkg/vector"
)

// Ingestor is the slice of the orchestrator the handlers drive.
type Ingestor interface {
	Submit(requests []pipeline.Request) ([]string, error)
	Cancel(taskID string) error
	CancelAll() []string
}

// VectorAdmin is the slice of the vector client the tool handlers use.
type VectorAdmin interface {
	ListCollections(ctx context.Context) ([]string, error)
	GetCollection(ctx context.Context, name string) (vector.CollectionInfo, bool, error)
	CreateCollection(ctx context.Context, name string, dimension int) error
	DeleteCollection(ctx context.Context, name string) error
	Search(ctx context.Context, collection string, vec []float32, category string, limit int, threshold float32) ([]vector.SearchHit, error)
	DeleteBySource(ctx context.Context, collection, source string) error
}

// Completer answers questions through a resolved LLM endpoint.
type Completer interface {
	Complete(ctx context.Context, ep llm.Endpoint, prompt string) (string, error)
}

// Server holds the handler dependencies.
type Server struct {
	store      *registry.Store
	ingestor   Ingestor
	vectors    VectorAdmin
	embedder   embedding.Embedder
	completer  Completer
	answerEP   llm.Endpoint
	collection string
	registry   *prometheus.Registry
	logger     *slog.Logger
}

// Config wires a Server.
type Config struct {
	Store      *registry.Store
	Ingestor   Ingestor
	Vectors    VectorAdmin
	Embedder   embedding.Embedder
	Completer  Completer
	AnswerEP   llm.Endpoint
	Collection string
	Registry   *prometheus.Registry
	Logger     *slog.Logger
}

// NewServer creates the API server.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:      cfg.Store,
		ingestor:   cfg.Ingestor,
		vectors:    cfg.Vectors,
		embedder:   cfg.Embedder,
		completer:  cfg.Completer,
		answerEP:   cfg.AnswerEP,
		collection: cfg.Collection,
		registry:   cfg.Registry,
		logger:     logger.With("component", "api"),
	}
}

// Handler builds the gin engine with all routes mounted.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger))

	r.GET("/health", s.Health)
	if s.registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/api/v1")
	{
		v1.POST("/ingest", s.Ingest)
		v1.GET("/tasks", s.ListTasks)
		v1.GET("/tasks/:id", s.GetTask)
		v1.GET("/tasks/:id/details", s.GetTaskDetails)
		v1.POST("/tasks/:id/cancel", s.CancelTask)
		v1.POST("/tasks/cancel", s.CancelAllTasks)
		v1.POST("/tasks/cleanup", s.CleanupTasks)
		v1.GET("/progress", s.Progress)
		v1.POST("/restart-plan", s.RestartPlan)

		v1.GET("/vectors/collections", s.ListCollections)
		v1.POST("/vectors/search", s.SearchVectors)
		v1.POST("/vectors/remove", s.RemoveVectors)
		v1.POST("/vectors/reset", s.ResetCollection)

		v1.POST("/answer", s.Answer)
	}
	return r
}

// Health reports liveness and the vector store's reachability.
func (s *Server) Health(c *gin.Context) {
	status := "healthy"
	vectorStore := "ok"
	code := http.StatusOK
	if _, err := s.vectors.ListCollections(c.Request.Context()); err != nil {
		status = "degraded"
		vectorStore = err.Error()
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "vector_store": vectorStore})
}
