package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"quiz-competition-service/internal/app"
	"quiz-competition-service/internal/domain"
)

// APIHandler exposes the competition use cases as a small JSON API. Identity
// comes from the X-User-ID / X-User-Name headers; authentication itself is
// delegated to the gateway in front of this service.
type APIHandler struct {
	service *app.CompetitionService
}

func NewAPIHandler(service *app.CompetitionService) *APIHandler {
	return &APIHandler{service: service}
}

// Register mounts the API routes on the mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/competitions", h.create)
	mux.HandleFunc("POST /api/competitions/join", h.join)
	mux.HandleFunc("POST /api/competitions/{id}/start", h.start)
	mux.HandleFunc("POST /api/competitions/{id}/cancel", h.cancel)
	mux.HandleFunc("POST /api/competitions/{id}/decline", h.decline)
	mux.HandleFunc("GET /api/competitions/active", h.active)
	mux.HandleFunc("GET /api/competitions/{id}", h.get)
	mux.HandleFunc("GET /api/competitions/{id}/leaderboard", h.leaderboard)
	mux.HandleFunc("GET /api/competitions/{id}/results", h.results)
	mux.HandleFunc("GET /api/competitions/{id}/chat", h.chat)
	mux.HandleFunc("GET /api/history", h.history)
	mux.HandleFunc("POST /api/queue/join", h.queueJoin)
	mux.HandleFunc("POST /api/queue/leave", h.queueLeave)
}

type createRequest struct {
	Title           string                 `json:"title"`
	Description     string                 `json:"description"`
	Type            domain.CompetitionType `json:"type"`
	Preferences     domain.Preferences     `json:"preferences"`
	MaxParticipants int                    `json:"maxParticipants"`
}

func (h *APIHandler) create(w http.ResponseWriter, r *http.Request) {
	userID, userName, ok := identity(w, r)
	if !ok {
		return
	}
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Type == "" {
		req.Type = domain.CompetitionPrivate
	}
	id, err := h.service.Create(r.Context(), userID, userName, req.Title, req.Description, req.Type, req.Preferences, req.MaxParticipants)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	comp, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, comp)
}

type joinRequest struct {
	Code string `json:"code"`
}

func (h *APIHandler) join(w http.ResponseWriter, r *http.Request) {
	userID, userName, ok := identity(w, r)
	if !ok {
		return
	}
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		writeError(w, http.StatusBadRequest, "invalid join code")
		return
	}
	comp, err := h.service.Join(r.Context(), req.Code, userID, userName)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, comp)
}

func (h *APIHandler) start(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := identity(w, r)
	if !ok {
		return
	}
	comp, err := h.service.Start(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, comp)
}

func (h *APIHandler) cancel(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := identity(w, r)
	if !ok {
		return
	}
	if err := h.service.Cancel(r.Context(), r.PathValue("id"), userID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) decline(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := identity(w, r)
	if !ok {
		return
	}
	if err := h.service.Decline(r.Context(), r.PathValue("id"), userID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) active(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := identity(w, r)
	if !ok {
		return
	}
	comps, err := h.service.ActiveCompetitionsFor(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, comps)
}

func (h *APIHandler) get(w http.ResponseWriter, r *http.Request) {
	comp, err := h.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, comp)
}

func (h *APIHandler) leaderboard(w http.ResponseWriter, r *http.Request) {
	lb, err := h.service.LiveLeaderboard(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

func (h *APIHandler) results(w http.ResponseWriter, r *http.Request) {
	results, err := h.service.Results(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *APIHandler) chat(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.service.ChatHistory(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *APIHandler) history(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := identity(w, r)
	if !ok {
		return
	}
	results, err := h.service.History(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *APIHandler) queueJoin(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := identity(w, r)
	if !ok {
		return
	}
	var prefs domain.Preferences
	if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid preferences")
		return
	}
	ticket, err := h.service.JoinQueue(r.Context(), userID, prefs)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *APIHandler) queueLeave(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := identity(w, r)
	if !ok {
		return
	}
	if err := h.service.LeaveQueue(r.Context(), userID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func identity(w http.ResponseWriter, r *http.Request) (userID, userName string, ok bool) {
	userID = r.Header.Get("X-User-ID")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing X-User-ID header")
		return "", "", false
	}
	userName = r.Header.Get("X-User-Name")
	if userName == "" {
		userName = userID
	}
	return userID, userName, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorPayload{Message: msg})
}

// writeDomainError maps the structured domain errors onto HTTP statuses;
// anything unrecognized is a plain 500.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrCompetitionNotFound),
		errors.Is(err, domain.ErrParticipantNotFound),
		errors.Is(err, domain.ErrResultNotFound),
		errors.Is(err, domain.ErrTicketNotFound),
		errors.Is(err, domain.ErrQuestionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrAlreadyStarted),
		errors.Is(err, domain.ErrNotJoinable),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrTooFewParticipants):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrNotCreator):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrSessionExpired):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrGenerationFailed):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
