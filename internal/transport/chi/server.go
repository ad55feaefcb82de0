package chi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	gochi "github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Khogao/archi-query-master-sub000/internal/domain"
	logpkg "github.com/Khogao/archi-query-master-sub000/internal/logger"
	"github.com/Khogao/archi-query-master-sub000/internal/metrics"
	healthuc "github.com/Khogao/archi-query-master-sub000/internal/usecase/health"
	ingestuc "github.com/Khogao/archi-query-master-sub000/internal/usecase/ingest"
	usageuc "github.com/Khogao/archi-query-master-sub000/internal/usecase/usage"
)

// maxDocumentBytes caps the JSON body of a document upload.
const maxDocumentBytes = 16 << 20

// QueryService answers RAG queries.
type QueryService interface {
	Query(ctx context.Context, q domain.Query) domain.Response
	QueryStream(ctx context.Context, q domain.Query, onChunk func(domain.StreamChunk)) domain.Response
}

// ProviderRegistry exposes the LLM provider manager.
type ProviderRegistry interface {
	Get(name string) (domain.Provider, error)
	GetAvailableProviders(ctx context.Context) []domain.ProviderStatus
	SetProvider(name string) error
	CurrentName() string
}

// DocumentService indexes and removes documents.
type DocumentService interface {
	Ingest(ctx context.Context, doc domain.Document) (ingestuc.Result, error)
	DeleteDocument(ctx context.Context, id string) error
	DeleteFolder(ctx context.Context, id string) error
}

// UsageService reports token budgets.
type UsageService interface {
	GetReport(ctx context.Context, period usageuc.Period) usageuc.Report
}

// HealthService aggregates component health.
type HealthService interface {
	Check(ctx context.Context) healthuc.Report
}

// Server holds the HTTP handlers of the query API.
type Server struct {
	rag       QueryService
	providers ProviderRegistry
	documents DocumentService
	usage     UsageService
	health    HealthService
	logger    *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(
	rag QueryService,
	providers ProviderRegistry,
	documents DocumentService,
	usage UsageService,
	health HealthService,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		rag:       rag,
		providers: providers,
		documents: documents,
		usage:     usage,
		health:    health,
		logger:    logger,
	}
}

// Router builds the chi router with the middleware chain and all routes.
func (s *Server) Router(apiKeys []string) http.Handler {
	r := gochi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(s.logger))
	r.Use(BearerAuthMiddleware(apiKeys))
	r.Use(metrics.Middleware())

	r.Get("/health", s.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r gochi.Router) {
		r.Post("/query", s.Query)
		r.Post("/query/stream", s.QueryStream)
		r.Get("/providers", s.ListProviders)
		r.Put("/providers/current", s.SetCurrentProvider)
		r.Post("/documents", s.CreateDocument)
		r.Delete("/documents/{id}", s.DeleteDocument)
		r.Delete("/folders/{id}", s.DeleteFolder)
		r.Get("/usage", s.GetUsage)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeBadRequest, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed")
	})
	return r
}

// Query handles POST /api/v1/query.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	q, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}

	resp := s.rag.Query(r.Context(), q)
	status := http.StatusOK
	if resp.Error != "" {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, resp)
}

// QueryStream handles POST /api/v1/query/stream. Every fragment is sent as a
// "chunk" event; the final response follows as a "result" event.
func (s *Server) QueryStream(w http.ResponseWriter, r *http.Request) {
	q, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}

	log := logpkg.FromContextOr(r.Context(), s.logger)
	sse := newSSEWriter(w)
	broken := false
	resp := s.rag.QueryStream(r.Context(), q, func(c domain.StreamChunk) {
		if broken {
			return
		}
		if err := sse.Event("chunk", c); err != nil {
			broken = true
			log.Warn("Stream client gone", zap.Error(err))
		}
	})
	if broken {
		return
	}
	if err := sse.Event("result", resp); err != nil {
		log.Warn("Stream client gone", zap.Error(err))
	}
}

// decodeQuery parses and validates a query body. Unknown providers are rejected
// up front so they map to 404 instead of a failed answer.
func (s *Server) decodeQuery(w http.ResponseWriter, r *http.Request) (domain.Query, bool) {
	var q domain.Query
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return q, false
	}
	if strings.TrimSpace(q.Text) == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "query is required")
		return q, false
	}
	if q.TopK < 0 {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "top_k must not be negative")
		return q, false
	}
	if t := q.SimilarityThreshold; t != nil && (*t < -1 || *t > 1) {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "similarity_threshold must be between -1 and 1")
		return q, false
	}
	if q.Provider != "" {
		if _, err := s.providers.Get(q.Provider); err != nil {
			s.handleDomainError(w, r, err)
			return q, false
		}
	}
	return q, true
}

// providersResponse is the body of GET /api/v1/providers.
type providersResponse struct {
	Current   string                  `json:"current"`
	Providers []domain.ProviderStatus `json:"providers"`
}

// ListProviders handles GET /api/v1/providers.
func (s *Server) ListProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, providersResponse{
		Current:   s.providers.CurrentName(),
		Providers: s.providers.GetAvailableProviders(r.Context()),
	})
}

type setProviderRequest struct {
	Name string `json:"name"`
}

// SetCurrentProvider handles PUT /api/v1/providers/current.
func (s *Server) SetCurrentProvider(w http.ResponseWriter, r *http.Request) {
	var req setProviderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "name is required")
		return
	}

	if err := s.providers.SetProvider(req.Name); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"current": s.providers.CurrentName()})
}

type documentRequest struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	FolderID string `json:"folder_id"`
	Text     string `json:"text"`
}

// CreateDocument handles POST /api/v1/documents.
func (s *Server) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDocumentBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	res, err := s.documents.Ingest(r.Context(), domain.Document{
		ID:       req.ID,
		Name:     req.Name,
		FolderID: req.FolderID,
		Text:     req.Text,
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/documents/%s", res.DocumentID))
	writeJSON(w, http.StatusCreated, res)
}

// DeleteDocument handles DELETE /api/v1/documents/{id}.
func (s *Server) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.documents.DeleteDocument(r.Context(), gochi.URLParam(r, "id")); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteFolder handles DELETE /api/v1/folders/{id}.
func (s *Server) DeleteFolder(w http.ResponseWriter, r *http.Request) {
	if err := s.documents.DeleteFolder(r.Context(), gochi.URLParam(r, "id")); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetUsage handles GET /api/v1/usage?period=day|month.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	period, err := usageuc.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.usage.GetReport(r.Context(), period))
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, report)
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContextOr(r.Context(), s.logger)
	log.Warn("domain error", zap.Error(err))
	for _, h := range sentinelHandlers {
		if h(w, err) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
