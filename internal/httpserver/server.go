package httpserver

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"taskflow/taskflow-api/internal/audit"
	"taskflow/taskflow-api/internal/auth"
	"taskflow/taskflow-api/internal/config"
	"taskflow/taskflow-api/internal/store"
	"taskflow/taskflow-api/internal/tasks"
)

const (
	serviceName    = "taskflow-api"
	serviceVersion = "0.1.0"
	maxBodyBytes   = 1 << 20
)

type AuthService interface {
	Login(email, password string) (auth.AuthResult, error)
	Register(name, email, password string) (auth.AuthResult, error)
	Logout() error
	ValidateToken(token string) (auth.Session, error)
	UpdateProfile(userID string, upd auth.ProfileUpdate) (auth.User, error)
}

type TaskService interface {
	List(sess auth.Session, f tasks.Filter) ([]tasks.Task, error)
	Get(sess auth.Session, id string) (tasks.Task, error)
	Create(sess auth.Session, d tasks.Draft) (tasks.Task, error)
	Update(sess auth.Session, id string, p tasks.Patch) (tasks.Task, error)
	Delete(sess auth.Session, id string) error
}

type AuditLogger interface {
	Record(e audit.Event) error
}

type Deps struct {
	Auth   AuthService
	Tasks  TaskService
	Audit  AuditLogger
	Logger *slog.Logger
	// Ready reports backend health for /readyz. Nil means always ready.
	Ready func(ctx context.Context) error
}

type Server struct {
	httpServer *http.Server
}

func New(cfg config.HTTPConfig, deps Deps) *Server {
	handler := NewHandler(deps)

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      otelhttp.NewHandler(loggingMiddleware(loggerOf(deps), handler), serviceName),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		},
	}
}

func NewHandler(deps Deps) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if deps.Ready != nil {
			if err := deps.Ready(r.Context()); err != nil {
				loggerOf(deps).Warn("readiness check failed", "error", err)
				writeError(w, http.StatusServiceUnavailable, "not ready")
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	mux.HandleFunc("/v1/info", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"service": serviceName,
			"version": serviceVersion,
		})
	})

	registerAuthHandlers(mux, deps)
	registerProfileHandlers(mux, deps)
	registerTaskHandlers(mux, deps)

	return mux
}

func registerAuthHandlers(mux *http.ServeMux, deps Deps) {
	mux.HandleFunc("/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if deps.Auth == nil {
			writeError(w, http.StatusServiceUnavailable, "auth service unavailable")
			return
		}

		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if fields := requireFields(map[string]string{"email": req.Email, "password": req.Password}); fields != nil {
			writeValidation(w, fields)
			return
		}

		res, err := deps.Auth.Login(strings.TrimSpace(req.Email), req.Password)
		if err != nil {
			auditReq(deps.Audit, r, req.Email, audit.ActionLogin, "", audit.OutcomeFailure, err.Error())
			writeServiceError(w, deps, err, "login failed")
			return
		}
		auditReq(deps.Audit, r, res.User.Email, audit.ActionLogin, res.User.ID, audit.OutcomeSuccess, "")
		writeJSON(w, http.StatusOK, res)
	})

	mux.HandleFunc("/v1/auth/register", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if deps.Auth == nil {
			writeError(w, http.StatusServiceUnavailable, "auth service unavailable")
			return
		}

		var req struct {
			Name     string `json:"name"`
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if fields := requireFields(map[string]string{"name": req.Name, "email": req.Email, "password": req.Password}); fields != nil {
			writeValidation(w, fields)
			return
		}

		res, err := deps.Auth.Register(strings.TrimSpace(req.Name), strings.TrimSpace(req.Email), req.Password)
		if err != nil {
			auditReq(deps.Audit, r, req.Email, audit.ActionRegister, "", audit.OutcomeFailure, err.Error())
			writeServiceError(w, deps, err, "register failed")
			return
		}
		auditReq(deps.Audit, r, res.User.Email, audit.ActionRegister, res.User.ID, audit.OutcomeSuccess, "")
		writeJSON(w, http.StatusCreated, res)
	})

	mux.HandleFunc("/v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		session, ok := requireSession(w, r, deps.Auth)
		if !ok {
			return
		}
		if err := deps.Auth.Logout(); err != nil {
			auditReq(deps.Audit, r, session.User.Email, audit.ActionLogout, session.User.ID, audit.OutcomeFailure, err.Error())
			writeServiceError(w, deps, err, "logout failed")
			return
		}
		auditReq(deps.Audit, r, session.User.Email, audit.ActionLogout, session.User.ID, audit.OutcomeSuccess, "")
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("/v1/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		session, ok := requireSession(w, r, deps.Auth)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, session.User)
	})
}

func registerProfileHandlers(mux *http.ServeMux, deps Deps) {
	mux.HandleFunc("/v1/profile", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		session, ok := requireSession(w, r, deps.Auth)
		if !ok {
			return
		}

		var req struct {
			auth.ProfileUpdate
			ConfirmPassword string `json:"confirmPassword"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Password != nil {
			if err := auth.ValidatePassword(*req.Password, req.ConfirmPassword); err != nil {
				writeValidation(w, tasks.FieldErrors{"password": strings.TrimPrefix(err.Error(), auth.ErrWeakPassword.Error()+": ")})
				return
			}
		}

		updated, err := deps.Auth.UpdateProfile(session.User.ID, req.ProfileUpdate)
		if err != nil {
			auditReq(deps.Audit, r, session.User.Email, audit.ActionProfileUpdate, session.User.ID, audit.OutcomeFailure, err.Error())
			writeServiceError(w, deps, err, "update profile failed")
			return
		}
		auditReq(deps.Audit, r, updated.Email, audit.ActionProfileUpdate, updated.ID, audit.OutcomeSuccess, "")
		writeJSON(w, http.StatusOK, updated)
	})
}

func registerTaskHandlers(mux *http.ServeMux, deps Deps) {
	mux.HandleFunc("/v1/tasks", func(w http.ResponseWriter, r *http.Request) {
		session, ok := requireSession(w, r, deps.Auth)
		if !ok {
			return
		}
		if deps.Tasks == nil {
			writeError(w, http.StatusServiceUnavailable, "task service unavailable")
			return
		}

		switch r.Method {
		case http.MethodGet:
			q := r.URL.Query()
			items, err := deps.Tasks.List(session, tasks.Filter{
				Query:  q.Get("q"),
				Status: tasks.Status(strings.ToUpper(strings.TrimSpace(q.Get("status")))),
			})
			if err != nil {
				writeServiceError(w, deps, err, "list tasks failed")
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"items": items})
		case http.MethodPost:
			var req tasks.Draft
			if err := decodeJSON(w, r, &req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			if fields := tasks.ValidateDraft(req); fields != nil {
				writeValidation(w, fields)
				return
			}
			created, err := deps.Tasks.Create(session, req)
			if err != nil {
				auditReq(deps.Audit, r, session.User.ID, audit.ActionTaskCreate, "", audit.OutcomeFailure, err.Error())
				writeServiceError(w, deps, err, "create task failed")
				return
			}
			auditReq(deps.Audit, r, session.User.ID, audit.ActionTaskCreate, created.ID, audit.OutcomeSuccess, "")
			writeJSON(w, http.StatusCreated, created)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	})

	mux.HandleFunc("/v1/tasks/", func(w http.ResponseWriter, r *http.Request) {
		session, ok := requireSession(w, r, deps.Auth)
		if !ok {
			return
		}
		if deps.Tasks == nil {
			writeError(w, http.StatusServiceUnavailable, "task service unavailable")
			return
		}

		id := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, "/v1/tasks/"))
		if id == "" || strings.Contains(id, "/") {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}

		switch r.Method {
		case http.MethodGet:
			t, err := deps.Tasks.Get(session, id)
			if err != nil {
				writeServiceError(w, deps, err, "get task failed")
				return
			}
			writeJSON(w, http.StatusOK, t)
		case http.MethodPatch:
			var req tasks.Patch
			if err := decodeJSON(w, r, &req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			if fields := tasks.ValidatePatch(req); fields != nil {
				writeValidation(w, fields)
				return
			}
			updated, err := deps.Tasks.Update(session, id, req)
			if err != nil {
				auditReq(deps.Audit, r, session.User.ID, audit.ActionTaskUpdate, id, audit.OutcomeFailure, err.Error())
				writeServiceError(w, deps, err, "update task failed")
				return
			}
			auditReq(deps.Audit, r, session.User.ID, audit.ActionTaskUpdate, id, audit.OutcomeSuccess, "")
			writeJSON(w, http.StatusOK, updated)
		case http.MethodDelete:
			if err := deps.Tasks.Delete(session, id); err != nil {
				auditReq(deps.Audit, r, session.User.ID, audit.ActionTaskDelete, id, audit.OutcomeFailure, err.Error())
				writeServiceError(w, deps, err, "delete task failed")
				return
			}
			auditReq(deps.Audit, r, session.User.ID, audit.ActionTaskDelete, id, audit.OutcomeSuccess, "")
			w.WriteHeader(http.StatusNoContent)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	})
}

func requireSession(w http.ResponseWriter, r *http.Request, authSvc AuthService) (auth.Session, bool) {
	if authSvc == nil {
		writeError(w, http.StatusServiceUnavailable, "auth service unavailable")
		return auth.Session{}, false
	}
	token, err := extractBearerToken(r.Header.Get("Authorization"))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "missing or invalid bearer token")
		return auth.Session{}, false
	}

	session, err := authSvc.ValidateToken(token)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "invalid token")
		} else {
			writeError(w, http.StatusInternalServerError, "session lookup failed")
		}
		return auth.Session{}, false
	}
	return session, true
}

func extractBearerToken(authHeader string) (string, error) {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", fmt.Errorf("invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
}

func requireFields(values map[string]string) tasks.FieldErrors {
	fields := tasks.FieldErrors{}
	for name, v := range values {
		if strings.TrimSpace(v) == "" {
			fields[name] = strings.ToUpper(name[:1]) + name[1:] + " is required"
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeValidation(w http.ResponseWriter, fields tasks.FieldErrors) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error":  "validation failed",
		"fields": fields,
	})
}

// writeServiceError maps service sentinels to status codes. Anything
// unrecognised is logged and reported as fallback with a 500.
func writeServiceError(w http.ResponseWriter, deps Deps, err error, fallback string) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid email or password")
	case errors.Is(err, auth.ErrDuplicateAccount):
		writeError(w, http.StatusConflict, "an account with this email already exists")
	case errors.Is(err, auth.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, tasks.ErrNotFound):
		writeError(w, http.StatusNotFound, "task not found")
	case errors.Is(err, tasks.ErrUnauthorized), errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrNoSession):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, tasks.ErrInvalidInput), errors.Is(err, auth.ErrInvalidProfile), errors.Is(err, auth.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrStorageFailure):
		loggerOf(deps).Error("storage failure", "error", err)
		writeError(w, http.StatusInternalServerError, "storage failure")
	default:
		loggerOf(deps).Error(fallback, "error", err)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func loggerOf(deps Deps) *slog.Logger {
	if deps.Logger != nil {
		return deps.Logger
	}
	return slog.Default()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func loggingMiddleware(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if reqID == "" {
			reqID = newRequestID()
		}
		w.Header().Set("X-Request-Id", reqID)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, reqID))
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", reqID,
		)
	})
}

type requestIDKey struct{}

func newRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

func requestIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(requestIDKey{}).(string); ok {
		return s
	}
	return ""
}

func clientIP(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

func auditReq(a AuditLogger, r *http.Request, actor, action, target, outcome, detail string) {
	if a == nil {
		return
	}
	parts := []string{
		"ip=" + clientIP(r),
		"ua=" + strings.TrimSpace(r.UserAgent()),
	}
	if strings.TrimSpace(detail) != "" {
		parts = append(parts, "detail="+strings.TrimSpace(detail))
	}
	_ = a.Record(audit.Event{
		Actor:     actor,
		Action:    action,
		Target:    target,
		Outcome:   outcome,
		Detail:    strings.Join(parts, " | "),
		RequestID: requestIDFromContext(r.Context()),
	})
}
