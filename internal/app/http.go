package app

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"hearth/api/internal/attachments"
	"hearth/api/internal/broadcast"
	"hearth/api/internal/logging"
	"hearth/api/internal/metrics"
	"hearth/api/internal/store"
)

// Server wires the service to HTTP.
type Server struct {
	svc         *Service
	hub         *broadcast.Hub
	attachments *attachments.Service // nil disables attachment routes
	corsOrigin  string
	logger      zerolog.Logger
}

func NewServer(svc *Service, hub *broadcast.Hub, att *attachments.Service, corsOrigin string) *Server {
	return &Server{
		svc:         svc,
		hub:         hub,
		attachments: att,
		corsOrigin:  corsOrigin,
		logger:      logging.WithComponent("http"),
	}
}

func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/ready", s.handleReady).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/api/auth/signup", s.handleSignUp).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/signin", s.handleSignIn).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/signout", s.handleSignOut).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.requireSession)
	api.HandleFunc("/session", s.handleSession).Methods(http.MethodGet)
	api.HandleFunc("/search", s.handleSearch).Methods(http.MethodGet)

	api.HandleFunc("/rooms", s.handleListRooms).Methods(http.MethodGet)
	api.HandleFunc("/rooms", s.handleCreateRoom).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{roomId}", s.handleGetRoom).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{roomId}", s.handleDestroyRoom).Methods(http.MethodDelete)
	api.HandleFunc("/rooms/{roomId}/members", s.handleAddMember).Methods(http.MethodPost)

	api.HandleFunc("/rooms/{roomId}/messages", s.handlePageRoots).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{roomId}/messages", s.handleCreateMessage).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{roomId}/messages/{id}", s.handleGetMessage).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{roomId}/messages/{id}", s.handleEditMessage).Methods(http.MethodPut)
	api.HandleFunc("/rooms/{roomId}/messages/{id}", s.handleDestroyMessage).Methods(http.MethodDelete)
	api.HandleFunc("/rooms/{roomId}/messages/{id}/todo", s.handleToggleTodo).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{roomId}/messages/{id}/thread", s.handleAttach).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{roomId}/messages/{id}/thread", s.handleDetach).Methods(http.MethodDelete)
	api.HandleFunc("/rooms/{roomId}/messages/{id}/move", s.handleMove).Methods(http.MethodPost)

	api.HandleFunc("/rooms/{roomId}/threads/{rootId}/messages", s.handlePageThread).Methods(http.MethodGet)

	api.HandleFunc("/rooms/{roomId}/retirements/completed-todos", s.handleRetireCompletedTodos).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{roomId}/retirements/non-todos", s.handleRetireNonTodos).Methods(http.MethodPost)

	if s.attachments != nil {
		api.HandleFunc("/rooms/{roomId}/attachments", s.handleUploadAttachment).Methods(http.MethodPost)
		api.HandleFunc("/attachments/url", s.handleAttachmentURL).Methods(http.MethodGet)
	}

	if s.hub != nil {
		api.HandleFunc("/rooms/{roomId}/events", s.handleWebSocket).Methods(http.MethodGet)
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{s.corsOrigin},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})
	return s.requestLogger(c.Handler(r))
}

type ctxKey int

const userKey ctxKey = 0

func userFrom(ctx context.Context) store.User {
	user, _ := ctx.Value(userKey).(store.User)
	return user
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return token
	}
	// Browsers can't set headers on websocket upgrades.
	return r.URL.Query().Get("token")
}

func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.svc.UserFromToken(r.Context(), bearerToken(r))
		if err != nil {
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Websocket upgrades hijack the connection; the recorder would
		// break the upgrade handshake.
		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)
		metrics.RequestDuration.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Observe(elapsed.Seconds())
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", elapsed).
			Msg("request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errBadRequest("invalid JSON body")
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		return 0, errBadRequest("invalid " + name)
	}
	return id, nil
}

func queryInt(r *http.Request, name string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(name))
	return n
}

func queryInt64(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return 0, errBadRequest("invalid " + name)
	}
	return n, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Ready(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	if _, err := s.svc.GetRoom(r.Context(), userFrom(r.Context()).ID, roomID); err != nil {
		writeError(w, err)
		return
	}
	s.hub.HandleWebSocket(w, r, roomID)
}
