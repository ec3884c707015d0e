package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ashureev/studyplan/internal/api"
	"github.com/ashureev/studyplan/internal/domain"
	"github.com/ashureev/studyplan/internal/identity"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// defaultMaxRequestBodySize is the default maximum allowed request body size (1MB).
const defaultMaxRequestBodySize = 1 << 20 // 1MB

// Handler serves the planner operations over HTTP.
type Handler struct {
	svc         *Service
	rateLimiter *RateLimiter
	maxBody     int64
	logger      *slog.Logger
}

// NewHandler creates a handler over svc. limiter may be nil to disable
// throttling.
func NewHandler(svc *Service, limiter *RateLimiter, maxBody int64, logger *slog.Logger) *Handler {
	if maxBody <= 0 {
		maxBody = defaultMaxRequestBodySize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		svc:         svc,
		rateLimiter: limiter,
		maxBody:     maxBody,
		logger:      logger,
	}
}

// RegisterRoutes registers the planner routes. The legacy paths used by
// older clients are mounted alongside /api.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/upload", h.HandleUpload)
		r.Post("/preferences", h.HandlePreferences)
		r.Post("/chat", h.HandleChat)
		r.Post("/workflow", h.HandleWorkflow)
		r.Get("/state", h.HandleState)
		r.Get("/state/{userID}", h.HandleState)
	})

	r.Post("/upload-syllabus", h.HandleUpload)
	r.Post("/prefs", h.HandlePreferences)
	r.Post("/chat", h.HandleChat)
}

// HandleUpload handles POST /api/upload.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	var req UploadRequest
	userID, ok := h.begin(w, r, &req, func() string { return req.UserID })
	if !ok {
		return
	}

	h.logger.Info("Syllabus upload", "user_id", userID, "text_length", len(req.SyllabusText), "request_id", chiMiddleware.GetReqID(r.Context()))
	syl, err := h.svc.Upload(r.Context(), userID, req.SyllabusText)
	if err != nil {
		h.fail(w, err)
		return
	}
	api.JSON(w, http.StatusOK, Response{Success: true, SyllabusJSON: syl})
}

// HandlePreferences handles POST /api/preferences.
func (h *Handler) HandlePreferences(w http.ResponseWriter, r *http.Request) {
	var req PreferencesRequest
	userID, ok := h.begin(w, r, &req, func() string { return req.UserID })
	if !ok {
		return
	}

	h.logger.Info("Preferences submitted", "user_id", userID, "request_id", chiMiddleware.GetReqID(r.Context()))
	plan, err := h.svc.SubmitPreferences(r.Context(), userID, req.Preferences)
	if err != nil {
		h.fail(w, err)
		return
	}
	api.JSON(w, http.StatusOK, Response{Success: true, StudyPlan: plan})
}

// HandleChat handles POST /api/chat.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	userID, ok := h.begin(w, r, &req, func() string { return req.UserID })
	if !ok {
		return
	}

	h.logger.Info("Chat request", "user_id", userID, "message_length", len(req.Message), "request_id", chiMiddleware.GetReqID(r.Context()))
	res, err := h.svc.Chat(r.Context(), userID, req.Message)
	if err != nil {
		h.fail(w, err)
		return
	}
	api.JSON(w, http.StatusOK, Response{Success: true, Response: res.Response})
}

// HandleWorkflow handles POST /api/workflow.
func (h *Handler) HandleWorkflow(w http.ResponseWriter, r *http.Request) {
	var req WorkflowRequest
	userID, ok := h.begin(w, r, &req, func() string { return req.UserID })
	if !ok {
		return
	}

	h.logger.Info("Workflow request", "user_id", userID, "request_id", chiMiddleware.GetReqID(r.Context()))
	res, err := h.svc.RunComplete(r.Context(), userID, req.SyllabusText, req.Preferences)
	if err != nil {
		h.fail(w, err)
		return
	}
	api.JSON(w, http.StatusOK, Response{Success: true, SyllabusJSON: res.Syllabus, StudyPlan: res.Plan})
}

// HandleState handles GET /api/state and GET /api/state/{userID}.
func (h *Handler) HandleState(w http.ResponseWriter, r *http.Request) {
	explicit := chi.URLParam(r, "userID")
	if explicit == "" {
		explicit = r.URL.Query().Get("userId")
	}
	userID, ok := identity.Resolve(r.Context(), explicit)
	if !ok {
		h.fail(w, fmt.Errorf("%w: a valid userId is required", domain.ErrInvalidInput))
		return
	}

	rec, err := h.svc.State(r.Context(), userID)
	if err != nil {
		h.fail(w, err)
		return
	}
	api.JSON(w, http.StatusOK, rec.Snapshot())
}

// begin decodes the body into dst, resolves the user and applies the rate
// limit. It writes the error response itself and reports false on failure.
func (h *Handler) begin(w http.ResponseWriter, r *http.Request, dst any, explicit func() string) (string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large", domain.KindInvalidInput)
			return "", false
		}
		h.writeError(w, http.StatusBadRequest, "invalid request body", domain.KindInvalidInput)
		return "", false
	}

	userID, ok := identity.Resolve(r.Context(), explicit())
	if !ok {
		h.fail(w, fmt.Errorf("%w: a valid userId is required", domain.ErrInvalidInput))
		return "", false
	}

	if h.rateLimiter != nil && !h.rateLimiter.Allow(userID) {
		h.logger.Warn("Rate limit exceeded", "user_id", userID)
		h.writeError(w, http.StatusTooManyRequests, "rate limit exceeded", "")
		return "", false
	}
	return userID, true
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	h.writeError(w, api.StatusFor(err), err.Error(), domain.KindOf(err))
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, kind string) {
	api.JSON(w, status, Response{Success: false, Error: message, Kind: kind})
}
