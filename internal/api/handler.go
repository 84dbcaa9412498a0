// Package api provides the HTTP and websocket surface of the engine.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/khanglvm/tetris/internal/engine"
	"github.com/khanglvm/tetris/internal/storage"
	"github.com/khanglvm/tetris/internal/suggest"
	"go.uber.org/zap"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Handler serves the engine over HTTP.
type Handler struct {
	engine    *engine.Engine
	suggester *suggest.Suggester
	history   storage.Storage
	queueSize int
	logger    *zap.Logger
}

// NewHandler creates a Handler. history backs /v1/history/search; queueSize
// sizes the listener of each websocket connection.
func NewHandler(e *engine.Engine, s *suggest.Suggester, history storage.Storage, queueSize int, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		engine:    e,
		suggester: s,
		history:   history,
		queueSize: queueSize,
		logger:    logger,
	}
}

// Router builds the chi router with global middleware and every route.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	h.RegisterRoutes(r)
	r.Get("/ws/listen", h.Listen)
	return r
}

// RegisterRoutes registers the /v1 routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Post("/interpret", h.Interpret)

		r.Get("/commands", h.ListCommands)
		r.Post("/commands", h.CreateCommand)
		r.Put("/commands/{trigger}", h.UpdateCommand)
		r.Delete("/commands/{trigger}", h.DeleteCommand)

		r.Get("/suggest", h.Suggest)
		r.Get("/history/search", h.SearchHistory)

		r.Get("/learning", h.GetLearning)
		r.Put("/learning", h.PutLearning)
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// storageError maps store failures onto HTTP status codes.
func storageError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, storage.ErrDuplicateTrigger):
		Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, storage.ErrInvalidCommand):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrUnavailable):
		Error(w, http.StatusServiceUnavailable, err.Error())
	default:
		Error(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Debug("http request",
					zap.String("request_id", chiMiddleware.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
