package handler

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dd-repo/hp/internal/admin"
	"github.com/dd-repo/hp/internal/models"
	"github.com/dd-repo/hp/internal/util"
)

// AdminHandler exposes the account admin panel over HTTP.
type AdminHandler struct {
	panel  *admin.Panel
	logger *zap.Logger
}

func NewAdminHandler(panel *admin.Panel, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		panel:  panel,
		logger: logger,
	}
}

// Response represents a standard API response
type Response struct {
	Success       bool                `json:"success"`
	Data          interface{}         `json:"data,omitempty"`
	Error         string              `json:"error,omitempty"`
	Message       string              `json:"message,omitempty"`
	Notifications admin.Notifications `json:"notifications,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

// notificationResponse reports the outcome of a bulk action. The action
// itself always "succeeds"; per-item problems ride in the notifications.
func notificationResponse(notes admin.Notifications) Response {
	return Response{
		Success:       !notes.HasErrors(),
		Notifications: notes,
	}
}

// RegisterRoutes registers all admin panel routes
func (h *AdminHandler) RegisterRoutes(router chi.Router) {
	router.Route("/users", func(r chi.Router) {
		r.Get("/", h.ListUsers)
		r.Put("/{username}", h.UpdateUser)
		r.Post("/{username}/block", h.BlockUser)
		r.Post("/{username}/send-registration", h.SendRegistration)
		r.Post("/actions/block", h.BlockUsers)
		r.Post("/actions/send-registration", h.SendRegistrationBatch)
	})

	router.Route("/gpg-keys", func(r chi.Router) {
		r.Get("/", h.ListGpgKeys)
		r.Post("/actions/refresh", h.RefreshKeys)
	})

	router.Route("/confirmations", func(r chi.Router) {
		r.Get("/", h.ListConfirmations)
		r.Post("/actions/resend", h.ResendConfirmations)
	})

	router.Get("/log", h.ListLog)
	router.Post("/search/reindex", h.RebuildSearchIndex)
}

// ListUsers handles the user list view with search and filters
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	rows, err := h.panel.ListUsers(r.Context(), listQueryFromRequest(r, "confirmed", "backend"))
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to list users")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(rows, ""))
}

// ListGpgKeys handles the GPG key list view
func (h *AdminHandler) ListGpgKeys(w http.ResponseWriter, r *http.Request) {
	rows, err := h.panel.ListGpgKeys(r.Context(), listQueryFromRequest(r, "revoked"))
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to list gpg keys")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(rows, ""))
}

// ListConfirmations handles the confirmation list view
func (h *AdminHandler) ListConfirmations(w http.ResponseWriter, r *http.Request) {
	rows, err := h.panel.ListConfirmations(r.Context(), listQueryFromRequest(r, "purpose"))
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to list confirmations")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(rows, ""))
}

// ListLog handles the audit log view
func (h *AdminHandler) ListLog(w http.ResponseWriter, r *http.Request) {
	rows, err := h.panel.ListLog(r.Context(), listQueryFromRequest(r))
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to list log entries")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(rows, ""))
}

// UpdateUser handles a user edit
func (h *AdminHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	var edit admin.UserEdit
	if err := json.NewDecoder(r.Body).Decode(&edit); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	user, err := h.panel.UpdateUser(r.Context(), username, edit)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to update user")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(user, "User updated"))
	h.logger.Info("User updated via admin panel",
		util.String("username", username),
		util.String("actor", actorFromRequest(r)),
	)
}

// BlockUser blocks a single account (and its duplicates)
func (h *AdminHandler) BlockUser(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	notes := h.panel.BlockUser(r.Context(), username, actorFromRequest(r), remoteIP(r))
	h.respondWithJSON(w, http.StatusOK, notificationResponse(notes))
}

// BlockUsers blocks a selection of accounts
func (h *AdminHandler) BlockUsers(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Usernames []string `json:"usernames"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	notes := h.panel.BlockUsers(r.Context(), req.Usernames, actorFromRequest(r), remoteIP(r))
	h.respondWithJSON(w, http.StatusOK, notificationResponse(notes))
}

// SendRegistration sends a registration mail to a single account
func (h *AdminHandler) SendRegistration(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	notes := h.panel.SendRegistration(r.Context(), []string{username}, baseURLFromRequest(r))
	h.respondWithJSON(w, http.StatusOK, notificationResponse(notes))
}

// SendRegistrationBatch sends registration mails to a selection of accounts
func (h *AdminHandler) SendRegistrationBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Usernames []string `json:"usernames"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	notes := h.panel.SendRegistration(r.Context(), req.Usernames, baseURLFromRequest(r))
	h.respondWithJSON(w, http.StatusOK, notificationResponse(notes))
}

// RefreshKeys refreshes a selection of GPG keys from the keyserver
func (h *AdminHandler) RefreshKeys(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Fingerprints []string `json:"fingerprints"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	notes := h.panel.RefreshKeys(r.Context(), req.Fingerprints)
	h.respondWithJSON(w, http.StatusOK, notificationResponse(notes))
}

// ResendConfirmations enqueues a resend of the selected confirmations
func (h *AdminHandler) ResendConfirmations(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Keys []string `json:"keys"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	notes := h.panel.ResendConfirmations(r.Context(), req.Keys)
	h.respondWithJSON(w, http.StatusOK, notificationResponse(notes))
}

// RebuildSearchIndex re-populates the search documents from the primary store
func (h *AdminHandler) RebuildSearchIndex(w http.ResponseWriter, r *http.Request) {
	notes := h.panel.RebuildSearchIndex(r.Context())
	h.respondWithJSON(w, http.StatusOK, notificationResponse(notes))
	h.logger.Info("Search reindex requested",
		util.String("actor", actorFromRequest(r)),
	)
}

// Helper Methods

// listQueryFromRequest builds a list query from the q parameter and the named
// filter parameters.
func listQueryFromRequest(r *http.Request, filters ...string) admin.ListQuery {
	q := admin.ListQuery{
		Search:  r.URL.Query().Get("q"),
		Filters: make(map[string]string),
	}
	for _, name := range filters {
		if value := r.URL.Query().Get(name); value != "" {
			q.Filters[name] = value
		}
	}
	return q
}

// actorFromRequest identifies the operator behind a request. Upstream auth
// injects the header.
func actorFromRequest(r *http.Request) string {
	if actor := r.Header.Get("X-Admin-User"); actor != "" {
		return actor
	}
	return "unknown"
}

// remoteIP parses the client address, already rewritten by the RealIP
// middleware.
func remoteIP(r *http.Request) net.IP {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return net.ParseIP(host)
}

// baseURLFromRequest derives the public base URL confirmation links should
// point at.
func baseURLFromRequest(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// respondWithJSON sends a JSON response
func (h *AdminHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

// respondWithError sends an error response
func (h *AdminHandler) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	h.logger.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	h.respondWithJSON(w, statusCode, errorResponse(err, message))
}

// getStatusCode determines the appropriate HTTP status code for an error
func (h *AdminHandler) getStatusCode(err error) int {
	switch {
	case errors.Is(err, models.ErrUserNotFound),
		errors.Is(err, models.ErrGpgKeyNotFound),
		errors.Is(err, models.ErrConfirmationNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrUserBlocked):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
