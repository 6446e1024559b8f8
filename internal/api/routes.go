package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"progress-sync-service/internal/config"
	"progress-sync-service/internal/logger"
	"progress-sync-service/internal/queue"
	"progress-sync-service/internal/store"
	"progress-sync-service/internal/sync"
)

const maxRecordBytes = 1 << 20

type Handler struct {
	syncManager *sync.Manager
	cfg         config.ServerConfig
}

func NewHandler(manager *sync.Manager, cfg config.ServerConfig) *Handler {
	return &Handler{
		syncManager: manager,
		cfg:         cfg,
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(h.corsMiddleware())

	r.Get("/health", h.HealthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.syncManager.Gatherer(), promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(h.cfg.AuthToken))

		r.Get("/records/{owner}", h.LoadRecord)
		r.Put("/records/{owner}", h.SaveRecord)

		r.Get("/queue", h.ListQueue)
		r.Post("/queue/drain", h.DrainQueue)

		r.Post("/connectivity", h.SetConnectivity)
		r.Post("/connectivity/foreground", h.Foreground)

		r.Post("/sync/trigger", h.TriggerSync)
		r.Post("/sync/stop", h.StopSync)
		r.Get("/sync/status", h.GetSyncStatus)
	})

	return r
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) LoadRecord(w http.ResponseWriter, r *http.Request) {
	res, err := h.syncManager.Engine().Load(r.Context(), chi.URLParam(r, "owner"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, store.ErrInvalidOwner):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, store.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, err)
	case errors.Is(err, sync.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

type saveResponse struct {
	sync.SyncResult
	Error string `json:"error,omitempty"`
}

func (h *Handler) SaveRecord(w http.ResponseWriter, r *http.Request) {
	var version int64
	if v := r.URL.Query().Get("version"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, errors.New("version must be a non-negative integer"))
			return
		}
		version = parsed
	}

	var record store.Record
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRecordBytes)).Decode(&record); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res := h.syncManager.Engine().Save(r.Context(), chi.URLParam(r, "owner"), record, version)
	resp := saveResponse{SyncResult: res}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	writeJSON(w, saveStatus(res), resp)
}

func saveStatus(res sync.SyncResult) int {
	switch res.ErrorKind {
	case sync.KindNone:
		return http.StatusOK
	case sync.KindQueued:
		return http.StatusAccepted
	case sync.KindConflict:
		return http.StatusConflict
	case sync.KindInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusServiceUnavailable
	}
}

func (h *Handler) ListQueue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"entries": h.syncManager.Engine().PendingWrites()})
}

func (h *Handler) DrainQueue(w http.ResponseWriter, r *http.Request) {
	report, err := h.syncManager.Engine().Drain(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, report)
	case errors.Is(err, sync.ErrOffline):
		writeError(w, http.StatusServiceUnavailable, err)
	case errors.Is(err, queue.ErrDrainInProgress):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func (h *Handler) SetConnectivity(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Online *bool `json:"online"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Online == nil {
		writeError(w, http.StatusBadRequest, errors.New(`body must be {"online": bool}`))
		return
	}
	h.syncManager.Monitor().SetOnline(*body.Online)
	writeJSON(w, http.StatusOK, map[string]bool{"online": h.syncManager.Monitor().IsOnline()})
}

func (h *Handler) Foreground(w http.ResponseWriter, r *http.Request) {
	h.syncManager.Monitor().Foreground()
	writeJSON(w, http.StatusOK, map[string]bool{"online": h.syncManager.Monitor().IsOnline()})
}

func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if err := h.syncManager.Start(r.Context()); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func (h *Handler) StopSync(w http.ResponseWriter, r *http.Request) {
	h.syncManager.Stop()
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (h *Handler) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.syncManager.Status())
}

func (h *Handler) corsMiddleware() func(http.Handler) http.Handler {
	origins := h.cfg.CorsOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
	}).Handler
}

// AuthMiddleware requires "Authorization: Bearer <token>". An empty token
// disables the check.
func AuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") ||
				subtle.ConstantTimeCompare([]byte(header[len("Bearer "):]), []byte(token)) != 1 {
				writeError(w, http.StatusUnauthorized, errors.New("invalid auth header"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Warn("Failed to write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
