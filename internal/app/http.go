package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"blupi/api/internal/auth"
	"blupi/api/internal/authpw"
	"blupi/api/internal/board"
	"blupi/api/internal/config"
	"blupi/api/internal/export"
	"blupi/api/internal/realtime"
	"blupi/api/internal/search"
)

// maxImportBody caps uploaded CSV/PDF payloads.
const maxImportBody = 10 << 20

const (
	// Access tokens rotate, so limiter entries keyed by stale tokens are
	// garbage; sweep them once the caller has been idle this long.
	limiterIdleTTL    = 30 * time.Minute
	limiterSweepEvery = 5 * time.Minute
)

type callerLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type HTTPServer struct {
	service *Service
	hub     *realtime.Hub
	cfg     config.Config

	mu        sync.Mutex
	limiters  map[string]*callerLimiter
	lastSweep time.Time
}

func NewHTTPServer(service *Service, hub *realtime.Hub, cfg config.Config) *HTTPServer {
	return &HTTPServer{
		service:   service,
		hub:       hub,
		cfg:       cfg,
		limiters:  make(map[string]*callerLimiter),
		lastSweep: time.Now(),
	}
}

func (s *HTTPServer) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/api/ready", s.handleReady).Methods(http.MethodGet, http.MethodHead)

	r.HandleFunc("/api/auth/signup", s.handleAuthSignUp).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/signin", s.handleAuthSignIn).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/verify-email", s.handleAuthVerifyEmail).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/reset-password/request", s.handleAuthRequestReset).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/reset-password", s.handleAuthResetPassword).Methods(http.MethodPost)

	r.HandleFunc("/api/session", s.handleSession).Methods(http.MethodGet)
	r.HandleFunc("/api/session/refresh", s.handleSessionRefresh).Methods(http.MethodPost)
	r.HandleFunc("/api/session/logout", s.handleSessionLogout).Methods(http.MethodPost)

	r.HandleFunc("/api/organizations", s.handleListOrganizations).Methods(http.MethodGet)
	r.HandleFunc("/api/organizations", s.handleCreateOrganization).Methods(http.MethodPost)
	r.HandleFunc("/api/organizations/{id}/activate", s.handleActivateOrganization).Methods(http.MethodPost)
	r.HandleFunc("/api/organizations/{id}/members", s.handleListOrgMembers).Methods(http.MethodGet)
	r.HandleFunc("/api/organizations/invite", s.handleInviteOrgMember).Methods(http.MethodPost)

	r.HandleFunc("/api/projects", s.handleListProjects).Methods(http.MethodGet)
	r.HandleFunc("/api/projects", s.handleCreateProject).Methods(http.MethodPost)
	r.HandleFunc("/api/projects/{id}", s.handleGetProject).Methods(http.MethodGet)
	r.HandleFunc("/api/projects/{id}", s.handleUpdateProject).Methods(http.MethodPatch)
	r.HandleFunc("/api/projects/{id}", s.handleDeleteProject).Methods(http.MethodDelete)
	r.HandleFunc("/api/projects/{id}/members", s.handleListProjectMembers).Methods(http.MethodGet)
	r.HandleFunc("/api/projects/{id}/invite", s.handleInviteProjectMember).Methods(http.MethodPost)

	r.HandleFunc("/api/boards", s.handleListBoards).Methods(http.MethodGet)
	r.HandleFunc("/api/boards", s.handleCreateBoard).Methods(http.MethodPost)
	r.HandleFunc("/api/boards/import-csv", s.handleImportCSV).Methods(http.MethodPost)
	r.HandleFunc("/api/boards/{id}", s.handleGetBoard).Methods(http.MethodGet)
	r.HandleFunc("/api/boards/{id}", s.handleUpdateBoardMeta).Methods(http.MethodPatch)
	r.HandleFunc("/api/boards/{id}", s.handleDeleteBoard).Methods(http.MethodDelete)
	r.HandleFunc("/api/boards/{id}/content", s.handleUpdateBoardContent).Methods(http.MethodPut)
	r.HandleFunc("/api/boards/{id}/blocks", s.handleAddBlock).Methods(http.MethodPost)
	r.HandleFunc("/api/boards/{id}/blocks/{blockId}", s.handleUpdateBlock).Methods(http.MethodPatch)
	r.HandleFunc("/api/boards/{id}/blocks/{blockId}", s.handleRemoveBlock).Methods(http.MethodDelete)
	r.HandleFunc("/api/boards/{id}/public", s.handleGetBoardPublic).Methods(http.MethodGet)
	r.HandleFunc("/api/boards/{id}/public", s.handleSetBoardPublic).Methods(http.MethodPatch)
	r.HandleFunc("/api/boards/{id}/comments", s.handleListComments).Methods(http.MethodGet)
	r.HandleFunc("/api/boards/{id}/comments", s.handleCreateComment).Methods(http.MethodPost)
	r.HandleFunc("/api/boards/{id}/import-pdf-workflow", s.handleImportPDF).Methods(http.MethodPost)
	r.HandleFunc("/api/boards/{id}/export", s.handleExportBoard).Methods(http.MethodGet, http.MethodPost)

	r.HandleFunc("/api/public/boards/{token}", s.handlePublicBoard).Methods(http.MethodGet)
	r.HandleFunc("/api/public/boards/{token}/comments", s.handlePublicComment).Methods(http.MethodPost)

	r.HandleFunc("/api/notifications", s.handleListNotifications).Methods(http.MethodGet)
	r.HandleFunc("/api/notifications/read-all", s.handleMarkAllNotificationsRead).Methods(http.MethodPost)
	r.HandleFunc("/api/notifications/{id}/read", s.handleMarkNotificationRead).Methods(http.MethodPost)

	r.HandleFunc("/api/search", s.handleSearch).Methods(http.MethodGet)

	r.HandleFunc("/ws", s.handleWS)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{s.cfg.CORSOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID"},
		AllowCredentials: true,
	})

	return s.withMiddleware(c.Handler(r))
}

// Middleware

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		if r.URL.Path != "/ws" && !s.allow(r) {
			w.Header().Set("X-Request-ID", requestID)
			writeError(w, http.StatusTooManyRequests, "Too many requests")
			log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":429,"duration_ms":0}`,
				requestID, r.Method, r.URL.Path)
			return
		}

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

// allow applies per-caller rate limiting. Callers are keyed by bearer
// token when present, otherwise by remote IP, so one noisy anonymous
// client cannot starve authenticated ones.
func (s *HTTPServer) allow(r *http.Request) bool {
	if s.cfg.RateLimitPerSecond <= 0 {
		return true
	}
	key := bearerToken(r)
	if key == "" {
		key = remoteIP(r)
	}
	now := time.Now()
	s.mu.Lock()
	entry, ok := s.limiters[key]
	if !ok {
		entry = &callerLimiter{lim: rate.NewLimiter(rate.Limit(s.cfg.RateLimitPerSecond), s.cfg.RateLimitBurst)}
		s.limiters[key] = entry
	}
	entry.lastSeen = now
	if now.Sub(s.lastSweep) > limiterSweepEvery {
		for k, e := range s.limiters {
			if now.Sub(e.lastSeen) > limiterIdleTTL {
				delete(s.limiters, k)
			}
		}
		s.lastSweep = now
	}
	s.mu.Unlock()
	return entry.lim.Allow()
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// Session helpers

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "Session lookup failed")
		return Session{}, false
	}
	return session, true
}

// requireOrg resolves the caller's active organization. Every
// org-scoped endpoint goes through here, so a caller without an active
// org is rejected before any tenant data is touched.
func (s *HTTPServer) requireOrg(w http.ResponseWriter, r *http.Request) (Session, OrgContext, bool) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return Session{}, OrgContext{}, false
	}
	orgCtx, err := s.service.ActiveOrg(r.Context(), session.UserID)
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return Session{}, OrgContext{}, false
	}
	return session, orgCtx, true
}

// Health

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}
	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{"status": "error", "error": err.Error()}
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

// Auth

func (s *HTTPServer) handleAuthSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID, err := s.service.SignUp(r.Context(), body.Email, body.Password, body.DisplayName)
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"userId": userID, "verifyRequired": true})
}

func (s *HTTPServer) handleAuthSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	session, err := s.service.SignIn(r.Context(), body.Email, body.Password)
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func (s *HTTPServer) handleAuthVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.service.AuthPasswordService().VerifyEmail(r.Context(), body.Token); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"verified": true})
}

func (s *HTTPServer) handleAuthRequestReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.service.RequestPasswordReset(r.Context(), body.Email); err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	// Identical response whether or not the account exists.
	writeJSON(w, http.StatusOK, map[string]any{"requested": true})
}

func (s *HTTPServer) handleAuthResetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	err := s.service.AuthPasswordService().ResetPassword(r.Context(), authpw.ResetPasswordRequest{
		Token:       body.Token,
		NewPassword: body.NewPassword,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reset": true})
}

// Session

func sessionPayload(session Session) map[string]any {
	return map[string]any{
		"token":        session.Token,
		"refreshToken": session.RefreshToken,
		"userId":       session.UserID,
		"userName":     session.UserName,
		"expiresAt":    session.ExpiresAt.Format(time.RFC3339),
	}
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"userId":        session.UserID,
		"userName":      session.UserName,
	})
}

func (s *HTTPServer) handleSessionRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	session, err := s.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func (s *HTTPServer) handleSessionLogout(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = decodeBody(r, &body)
	if err := s.service.Logout(r.Context(), session, body.RefreshToken); err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"loggedOut": true})
}

// Organizations

func (s *HTTPServer) handleListOrganizations(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	orgs, err := s.service.ListOrganizations(r.Context(), session)
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"organizations": orgs})
}

func (s *HTTPServer) handleCreateOrganization(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	org, err := s.service.CreateOrganization(r.Context(), session, body.Name)
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusCreated, org)
}

func (s *HTTPServer) handleActivateOrganization(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	orgID := mux.Vars(r)["id"]
	if err := s.service.ActivateOrganization(r.Context(), session, orgID); err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"activated": true, "organizationId": orgID})
}

func (s *HTTPServer) handleListOrgMembers(w http.ResponseWriter, r *http.Request) {
	_, orgCtx, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	// Membership is only listable for the caller's active organization.
	if mux.Vars(r)["id"] != orgCtx.Org.ID {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	members, err := s.service.ListOrganizationMembers(r.Context(), orgCtx)
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": nonNilSlice(members)})
}

func (s *HTTPServer) handleInviteOrgMember(w http.ResponseWriter, r *http.Request) {
	session, orgCtx, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	var body struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.service.InviteOrganizationMember(r.Context(), orgCtx, session, body.Email, body.Role); err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"invited": true})
}

// Projects

func (s *HTTPServer) handleListProjects(w http.ResponseWriter, r *http.Request) {
	_, orgCtx, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	projects, err := s.service.ListProjects(r.Context(), orgCtx)
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": nonNilSlice(projects)})
}

func (s *HTTPServer) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	session, orgCtx, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	var input ProjectInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	project, err := s.service.CreateProject(r.Context(), orgCtx, session, input)
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

func (s *HTTPServer) handleGetProject(w http.ResponseWriter, r *http.Request) {
	_, orgCtx, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	project, err := s.service.GetProject(r.Context(), orgCtx, mux.Vars(r)["id"])
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (s *HTTPServer) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	_, orgCtx, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	var input ProjectInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	project, err := s.service.UpdateProject(r.Context(), orgCtx, mux.Vars(r)["id"], input)
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (s *HTTPServer) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	_, orgCtx, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	if err := s.service.DeleteProject(r.Context(), orgCtx, mux.Vars(r)["id"]); err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (s *HTTPServer) handleListProjectMembers(w http.ResponseWriter, r *http.Request) {
	_, orgCtx, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	members, err := s.service.ListProjectMembers(r.Context(), orgCtx, mux.Vars(r)["id"])
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": nonNilSlice(members)})
}

func (s *HTTPServer) handleInviteProjectMember(w http.ResponseWriter, r *http.Request) {
	session, orgCtx, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	var body struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	err := s.service.InviteProjectMember(r.Context(), orgCtx, session, mux.Vars(r)["id"], body.Email, body.Role)
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"invited": true})
}

// Boards

func (s *HTTPServer) handleListBoards(w http.ResponseWriter, r *http.Request) {
	_, orgCtx, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	boards, err := s.service.ListBoards(r.Context(), orgCtx, r.URL.Query().Get("projectId"))
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"boards": nonNilSlice(boards)})
}

func (s *HTTPServer) handleCreateBoard(w http.ResponseWriter, r *http.Request) {
	session, orgCtx, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	var input BoardInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	b, err := s.service.CreateBoard(r.Context(), orgCtx, session, input)
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *HTTPServer) handleGetBoard(w http.ResponseWriter, r *http.Request) {
	_, orgCtx, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	b, err := s.service.GetBoard(r.Context(), orgCtx, mux.Vars(r)["id"])
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *HTTPServer) handleUpdateBoardMeta(w http.ResponseWriter, r *http.Request) {
	session, orgCtx, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	var input BoardInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	b, err := s.service.UpdateBoardMeta(r.Context(), orgCtx, session, mux.Vars(r)["id"], input)
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *HTTPServer) handleDeleteBoard(w http.ResponseWriter, r *http.Request) {
	session, orgCtx, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	if err := s.service.DeleteBoard(r.Context(), orgCtx, session, mux.Vars(r)["id"]); err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (s *HTTPServer) handleUpdateBoardContent(w http.ResponseWriter, r *http.Request) {
	session, orgCtx, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	var content board.Content
	if err := decodeBody(r, &content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	b, err := s.service.UpdateBoardContent(r.Context(), orgCtx, session, mux.Vars(r)["id"], content)
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// Blocks

func (s *HTTPServer) handleAddBlock(w http.ResponseWriter, r *http.Request) {
	session, orgCtx, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	var block board.Block
	if err := decodeBody(r, &block); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	content, err := s.service.AddBlock(r.Context(), orgCtx, session, mux.Vars(r)["id"], block)
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusCreated, content)
}

func (s *HTTPServer) handleUpdateBlock(w http.ResponseWriter, r *http.Request) {
	session, orgCtx, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	var patch board.BlockPatch
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	vars := mux.Vars(r)
	content, err := s.service.UpdateBlock(r.Context(), orgCtx, session, vars["id"], vars["blockId"], patch)
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, content)
}

func (s *HTTPServer) handleRemoveBlock(w http.ResponseWriter, r *http.Request) {
	session, orgCtx, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	content, err := s.service.RemoveBlock(r.Context(), orgCtx, session, vars["id"], vars["blockId"])
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, content)
}

// Sharing

func (s *HTTPServer) handleGetBoardPublic(w http.ResponseWriter, r *http.Request) {
	_, orgCtx, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	b, err := s.service.GetBoard(r.Context(), orgCtx, mux.Vars(r)["id"])
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"isPublic":   b.IsPublic,
		"publicRole": b.PublicRole,
		"shareToken": b.ShareToken,
	})
}

func (s *HTTPServer) handleSetBoardPublic(w http.ResponseWriter, r *http.Request) {
	session, orgCtx, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	var input PublicInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	b, err := s.service.SetBoardPublic(r.Context(), orgCtx, session, mux.Vars(r)["id"], input)
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"isPublic":   b.IsPublic,
		"publicRole": b.PublicRole,
		"shareToken": b.ShareToken,
	})
}

func (s *HTTPServer) handlePublicBoard(w http.ResponseWriter, r *http.Request) {
	b, err := s.service.PublicBoard(r.Context(), mux.Vars(r)["token"])
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *HTTPServer) handlePublicComment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AuthorName string  `json:"authorName"`
		Body       string  `json:"body"`
		BlockID    *string `json:"blockId"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	comment, err := s.service.CreatePublicComment(r.Context(), mux.Vars(r)["token"], body.AuthorName, body.Body, body.BlockID)
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

// Comments

func (s *HTTPServer) handleListComments(w http.ResponseWriter, r *http.Request) {
	_, orgCtx, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	comments, err := s.service.ListComments(r.Context(), orgCtx, mux.Vars(r)["id"])
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"comments": nonNilSlice(comments)})
}

func (s *HTTPServer) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	session, orgCtx, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	var input CommentInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	comment, err := s.service.CreateComment(r.Context(), orgCtx, session, mux.Vars(r)["id"], input)
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

// Import / export

func (s *HTTPServer) handleImportCSV(w http.ResponseWriter, r *http.Request) {
	session, orgCtx, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	var body struct {
		Name      string  `json:"name"`
		CSV       string  `json:"csv"`
		ProjectID *string `json:"projectId"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	b, err := s.service.ImportCSVBoard(r.Context(), orgCtx, session, body.Name, body.CSV, body.ProjectID)
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *HTTPServer) handleImportPDF(w http.ResponseWriter, r *http.Request) {
	session, orgCtx, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxImportBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read request body")
		return
	}
	defer r.Body.Close()
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "empty PDF payload")
		return
	}
	content, err := s.service.ImportPDFWorkflow(r.Context(), orgCtx, session, mux.Vars(r)["id"], data)
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, content)
}

func (s *HTTPServer) handleExportBoard(w http.ResponseWriter, r *http.Request) {
	_, orgCtx, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	format := export.Format(r.URL.Query().Get("format"))
	if format == "" {
		format = export.FormatHTML
	}
	if format != export.FormatHTML && format != export.FormatPDF {
		writeError(w, http.StatusBadRequest, "format must be html or pdf")
		return
	}
	result, err := s.service.ExportBoard(r.Context(), orgCtx, mux.Vars(r)["id"], format)
	if err != nil {
		if errors.Is(err, export.ErrPDFDependencyMissing) {
			writeError(w, http.StatusNotImplemented, "PDF export is not available on this server")
			return
		}
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

// Notifications

func (s *HTTPServer) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	notifications, err := s.service.ListNotifications(r.Context(), session)
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": nonNilSlice(notifications)})
}

func (s *HTTPServer) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	if err := s.service.MarkNotificationRead(r.Context(), session, mux.Vars(r)["id"]); err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"read": true})
}

func (s *HTTPServer) handleMarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	if err := s.service.MarkAllNotificationsRead(r.Context(), session); err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"read": true})
}

// Search

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	_, orgCtx, ok := s.requireOrg(w, r)
	if !ok {
		return
	}
	q := search.Query{
		Text:            r.URL.Query().Get("q"),
		FilterProjectID: r.URL.Query().Get("projectId"),
	}
	switch t := r.URL.Query().Get("type"); t {
	case "":
	case "board":
		q.FilterType = search.ResultBoard
	case "comment":
		q.FilterType = search.ResultComment
	default:
		writeError(w, http.StatusBadRequest, "type must be board or comment")
		return
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			q.Limit = n
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			q.Offset = n
		}
	}
	writeJSON(w, http.StatusOK, s.service.Search(r.Context(), orgCtx, q))
}

// Realtime

func (s *HTTPServer) handleWS(w http.ResponseWriter, r *http.Request) {
	realtime.ServeWS(s.hub, w, r)
}

// Helpers

// nonNilSlice keeps empty lists as [] rather than null in JSON.
func nonNilSlice[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"message": message})
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func mapError(err error) (int, string) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Message
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "Not found"
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "Unauthorized"
	}
	if errors.Is(err, authpw.ErrInvalidCredentials) {
		return http.StatusUnauthorized, "Invalid email or password"
	}
	if errors.Is(err, board.ErrInvalid) {
		return http.StatusUnprocessableEntity, err.Error()
	}
	return http.StatusInternalServerError, "Server error"
}
