package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"messbook/internal/core"
	"messbook/internal/storage"
)

type memberBalanceResponse struct {
	MemberID      string  `json:"member_id"`
	Name          string  `json:"name"`
	SharedShare   float64 `json:"shared_share"`
	PersonalTotal float64 `json:"personal_total"`
	TotalCost     float64 `json:"total_cost"`
	Paid          float64 `json:"paid"`
	BreakfastPaid float64 `json:"breakfast_paid"`
	Net           float64 `json:"net"`
	NetDisplay    string  `json:"net_display"`
	Owes          bool    `json:"owes"`
}

type summaryResponse struct {
	TotalSharedExpense   float64                 `json:"total_shared_expense"`
	TotalPersonalExpense float64                 `json:"total_personal_expense"`
	TotalPaid            float64                 `json:"total_paid"`
	TotalBreakfastPaid   float64                 `json:"total_breakfast_paid"`
	GrandTotalDebt       float64                 `json:"grand_total_debt"`
	GrandTotalDisplay    string                  `json:"grand_total_display"`
	AveragePerPerson     float64                 `json:"average_per_person"`
	AverageDisplay       string                  `json:"average_display"`
	ActiveMemberCount    int                     `json:"active_member_count"`
	MemberBalances       []memberBalanceResponse `json:"member_balances"`
}

func (s *Server) toSummaryResponse(sum core.Summary) summaryResponse {
	resp := summaryResponse{
		TotalSharedExpense:   sum.TotalSharedExpense,
		TotalPersonalExpense: sum.TotalPersonalExpense,
		TotalPaid:            sum.TotalPaid,
		TotalBreakfastPaid:   sum.TotalBreakfastPaid,
		GrandTotalDebt:       sum.GrandTotalDebt,
		GrandTotalDisplay:    core.FormatAmount(sum.GrandTotalDebt, s.currencyCode),
		AveragePerPerson:     sum.AveragePerPerson,
		AverageDisplay:       core.FormatAmount(sum.AveragePerPerson, s.currencyCode),
		ActiveMemberCount:    sum.ActiveMemberCount,
		MemberBalances:       make([]memberBalanceResponse, 0, len(sum.MemberBalances)),
	}
	for _, mb := range sum.MemberBalances {
		resp.MemberBalances = append(resp.MemberBalances, memberBalanceResponse{
			MemberID:      mb.Member.ID,
			Name:          mb.Member.Name,
			SharedShare:   mb.SharedShare,
			PersonalTotal: mb.PersonalTotal,
			TotalCost:     mb.TotalCost,
			Paid:          mb.Paid,
			BreakfastPaid: mb.BreakfastPaid,
			Net:           float64(mb.Net),
			NetDisplay:    core.FormatAmount(float64(mb.Net), s.currencyCode),
			Owes:          mb.Net.Owes(),
		})
	}
	return resp
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.ledger.Summary(r.Context(), userID(r.Context()))
	if err != nil {
		slog.ErrorContext(r.Context(), "Summary computation failed", "error", err)
		internalError(w, "could not compute summary")
		return
	}
	writeJSON(w, http.StatusOK, s.toSummaryResponse(sum))
}

type insightResponse struct {
	Insight     string `json:"insight"`
	GeneratedAt string `json:"generated_at,omitempty"`
}

// handleInsight serves the AI budgeting note: memory cache first, then the
// copy the worker stored, then an on-demand generation as last resort.
func (s *Server) handleInsight(w http.ResponseWriter, r *http.Request) {
	uid := userID(r.Context())

	if body, ok := s.insightCache.Get(uid); ok {
		writeJSON(w, http.StatusOK, insightResponse{Insight: body})
		return
	}

	body, generatedAt, err := s.repo.GetInsight(r.Context(), uid)
	if err == nil {
		s.insightCache.Set(uid, body)
		writeJSON(w, http.StatusOK, insightResponse{
			Insight:     body,
			GeneratedAt: generatedAt.UTC().Format(time.RFC3339),
		})
		return
	}
	if !errors.Is(err, storage.ErrNotFound) {
		slog.ErrorContext(r.Context(), "Insight lookup failed", "error", err, "user_id", uid)
		internalError(w, "could not load insight")
		return
	}

	sum, err := s.ledger.Summary(r.Context(), uid)
	if err != nil {
		slog.ErrorContext(r.Context(), "Summary computation failed", "error", err)
		internalError(w, "could not compute summary")
		return
	}

	now := time.Now()
	body = s.insights.SummaryInsight(r.Context(), sum, s.currencyCode)
	if err := s.repo.SaveInsight(r.Context(), uid, body, now); err != nil {
		slog.WarnContext(r.Context(), "Failed to store insight", "error", err, "user_id", uid)
	}
	s.insightCache.Set(uid, body)

	writeJSON(w, http.StatusOK, insightResponse{
		Insight:     body,
		GeneratedAt: now.UTC().Format(time.RFC3339),
	})
}
