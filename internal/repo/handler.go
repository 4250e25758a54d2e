package repo

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"
)

// Handler serves a Client over the HTTP protocol spoken by HTTPClient.
// Paired with Memory it acts as a fixture repository service.
type Handler struct {
	client Client
	router *mux.Router
	logger *slog.Logger
}

// NewHandler creates a handler backed by c.
func NewHandler(c Client, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{client: c, router: mux.NewRouter().UseEncodedPath(), logger: logger}
	h.router.HandleFunc("/api/session", h.login).Methods(http.MethodPost)
	h.router.HandleFunc("/api/validate", h.validate).Methods(http.MethodPost)
	h.router.HandleFunc("/api/documents/{id}/checkout", h.checkout).Methods(http.MethodPost)
	h.router.HandleFunc("/api/documents/{id}/versions", h.save).Methods(http.MethodPost)
	h.router.HandleFunc("/api/documents/{id}/lock", h.unlock).Methods(http.MethodDelete)
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	sess, err := h.client.Login(r.Context(), Credentials(req))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	id := docID(r)
	force := r.URL.Query().Get("force") == "true"
	doc, err := h.client.Checkout(r.Context(), session(r), id, force)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) validate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	msgs, err := h.client.Validate(r.Context(), session(r), req.DocType, req.Content)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, validateResponse{Messages: msgs})
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request) {
	id := docID(r)
	var req saveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	res, err := h.client.Save(r.Context(), session(r), id, req.Content, req.SaveOptions)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) unlock(w http.ResponseWriter, r *http.Request) {
	id := docID(r)
	if err := h.client.Unlock(r.Context(), session(r), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// docID extracts the path-escaped document ID.
func docID(r *http.Request) DocID {
	raw := mux.Vars(r)["id"]
	if id, err := url.PathUnescape(raw); err == nil {
		return DocID(id)
	}
	return DocID(raw)
}

// session rebuilds the caller's session from the bearer token.
func session(r *http.Request) Session {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	return Session{Token: token}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var le *LockHeldError
	switch {
	case errors.As(err, &le):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Holder: le.Holder})
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
	case errors.Is(err, ErrNotLocked):
		writeJSON(w, http.StatusPreconditionFailed, errorResponse{Error: err.Error()})
	default:
		h.logger.Error("repository handler failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
