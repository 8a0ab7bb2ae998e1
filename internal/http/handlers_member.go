package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"messbook/internal/core"
	"messbook/internal/ledger"
	"messbook/internal/storage"
)

type createMemberRequest struct {
	Name     string `json:"name"`
	JoinDate string `json:"join_date"`
}

type memberDateRequest struct {
	Date string `json:"date"`
}

type periodResponse struct {
	JoinDate  string `json:"join_date"`
	LeaveDate string `json:"leave_date,omitempty"`
}

type memberResponse struct {
	ID      string           `json:"id"`
	Name    string           `json:"name"`
	Active  bool             `json:"active"`
	Periods []periodResponse `json:"periods"`
}

func toMemberResponse(m core.Member, now time.Time) memberResponse {
	resp := memberResponse{
		ID:     m.ID,
		Name:   m.Name,
		Active: m.ActiveAt(now),
	}
	for _, p := range m.Periods {
		pr := periodResponse{JoinDate: p.Join.Format(dateLayout)}
		if !p.Open() {
			pr.LeaveDate = p.Leave.Format(dateLayout)
		}
		resp.Periods = append(resp.Periods, pr)
	}
	return resp
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.ledger.Members(r.Context(), userID(r.Context()))
	if err != nil {
		slog.ErrorContext(r.Context(), "List members failed", "error", err)
		internalError(w, "could not load members")
		return
	}

	now := time.Now()
	resp := make([]memberResponse, 0, len(members))
	for _, m := range members {
		resp = append(resp, toMemberResponse(m, now))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateMember(w http.ResponseWriter, r *http.Request) {
	var req createMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	joinDate, err := parseDate(req.JoinDate)
	if err != nil {
		unprocessable(w, "join_date must be formatted as YYYY-MM-DD")
		return
	}

	m, err := s.ledger.AddMember(r.Context(), userID(r.Context()), sanitizeInput(req.Name), joinDate)
	switch {
	case errors.Is(err, core.ErrEmptyName):
		unprocessable(w, "name must not be empty")
		return
	case err != nil:
		slog.ErrorContext(r.Context(), "Create member failed", "error", err)
		internalError(w, "could not create member")
		return
	}

	writeJSON(w, http.StatusCreated, toMemberResponse(m, time.Now()))
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	s.handlePeriodChange(w, r, s.ledger.Leave)
}

func (s *Server) handleRejoin(w http.ResponseWriter, r *http.Request) {
	s.handlePeriodChange(w, r, s.ledger.Rejoin)
}

func (s *Server) handlePeriodChange(w http.ResponseWriter, r *http.Request, change func(ctx context.Context, userID, memberID string, at time.Time) error) {
	var req memberDateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	at, err := parseDate(req.Date)
	if err != nil {
		unprocessable(w, "date must be formatted as YYYY-MM-DD")
		return
	}

	memberID := r.PathValue("id")
	err = change(r.Context(), userID(r.Context()), memberID, at)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		notFound(w, "member not found")
		return
	case errors.Is(err, ledger.ErrNoOpenPeriod),
		errors.Is(err, ledger.ErrAlreadyActive),
		errors.Is(err, ledger.ErrLeaveBeforeJoin),
		errors.Is(err, ledger.ErrRejoinTooEarly):
		conflict(w, err.Error())
		return
	case err != nil:
		slog.ErrorContext(r.Context(), "Period change failed", "error", err, "member_id", memberID)
		internalError(w, "could not update member")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"member_id": memberID})
}

func (s *Server) handleDeleteMember(w http.ResponseWriter, r *http.Request) {
	memberID := r.PathValue("id")
	err := s.ledger.RemoveMember(r.Context(), userID(r.Context()), memberID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		notFound(w, "member not found")
		return
	case err != nil:
		slog.ErrorContext(r.Context(), "Delete member failed", "error", err, "member_id", memberID)
		internalError(w, "could not delete member")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
