package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kairoshq/kairos/internal/engine"
	kairosErrors "github.com/kairoshq/kairos/internal/errors"
	"github.com/kairoshq/kairos/internal/model"
)

type errorBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

func respond(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, err error) {
	respond(w, statusFor(err), errorBody{
		Error:  err.Error(),
		Reason: kairosErrors.Reason(err),
	})
}

// statusFor maps taxonomy reason codes onto HTTP. Rejections are the
// caller's problem (422), stale transitions a lost race (409), adapter
// trouble an upstream fault (502/504).
func statusFor(err error) int {
	switch kairosErrors.Reason(err) {
	case "NOT_FOUND":
		return http.StatusNotFound
	case "INVALID_INPUT", "MALFORMED_INTENT":
		return http.StatusBadRequest
	case "LOW_QUALITY", "RECIPIENT_UNAVAILABLE", "NOT_A_CONTACT", "NO_COMMON_PLATFORM":
		return http.StatusUnprocessableEntity
	case "STALE_STATE_TRANSITION", "CONFLICT":
		return http.StatusConflict
	case "ADAPTER_TIMEOUT":
		return http.StatusGatewayTimeout
	case "ADAPTER_ERROR", "TRANSIENT":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return kairosErrors.InvalidInput("malformed JSON body")
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUpsertUser(w http.ResponseWriter, r *http.Request) {
	var user model.User
	if err := decode(r, &user); err != nil {
		respondError(w, err)
		return
	}
	if err := s.engine.UpsertUser(r.Context(), &user); err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, user)
}

func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	unified, err := s.engine.Presence(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, unified)
}

func (s *Server) handleCredibility(w http.ResponseWriter, r *http.Request) {
	cred, err := s.engine.CredibilityOf(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, cred)
}

type submitBody struct {
	RequesterID      string       `json:"requester_id"`
	RecipientID      string       `json:"recipient_id"`
	Intent           model.Intent `json:"intent"`
	ImportanceRating int          `json:"importance_rating"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var body submitBody
	if err := decode(r, &body); err != nil {
		respondError(w, err)
		return
	}

	req, err := s.engine.Submit(r.Context(), engine.SubmitInput{
		RequesterID:      body.RequesterID,
		RecipientID:      body.RecipientID,
		Intent:           body.Intent,
		ImportanceRating: body.ImportanceRating,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, req)
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := s.engine.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, req)
}

type acceptBody struct {
	ImportanceRating int `json:"importance_rating"`
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	var body acceptBody
	if err := decode(r, &body); err != nil {
		respondError(w, err)
		return
	}

	req, err := s.engine.Accept(r.Context(), chi.URLParam(r, "id"), body.ImportanceRating)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, req)
}

func (s *Server) handleDecline(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Decline(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]string{"status": string(model.RequestDeclined)})
}

type cancelBody struct {
	UserID string `json:"user_id"`
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var body cancelBody
	if err := decode(r, &body); err != nil {
		respondError(w, err)
		return
	}

	if err := s.engine.Cancel(r.Context(), chi.URLParam(r, "id"), body.UserID); err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]string{"status": string(model.RequestCancelled)})
}

type sessionEventBody struct {
	Platform string `json:"platform"`
	Handle   string `json:"handle"`
	UserID   string `json:"user_id"`
	Event    string `json:"event"`
}

// handleSessionEvent lets platform adapters push join/leave notifications
// back into the orchestrator over HTTP.
func (s *Server) handleSessionEvent(w http.ResponseWriter, r *http.Request) {
	var body sessionEventBody
	if err := decode(r, &body); err != nil {
		respondError(w, err)
		return
	}

	if err := s.orch.HandleSessionEvent(r.Context(), body.Platform, body.Handle, body.UserID, body.Event); err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, kairosErrors.InvalidInput("limit must be a positive integer"))
			return
		}
		limit = n
	}

	entries, err := s.audit.ReadAudit(limit)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, entries)
}
