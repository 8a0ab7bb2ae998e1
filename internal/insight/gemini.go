// Package insight asks a generative model for a short, friendly comment on
// the mess's finances. The comment is decoration: every failure path returns
// a static string instead of an error, so the balance feature never depends
// on the model being reachable.
package insight

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	genlang "google.golang.org/api/generativelanguage/v1beta"
	"google.golang.org/api/option"

	"messbook/internal/core"
)

// Static fallbacks, one per failure mode.
const (
	FallbackNoKey = "Set GEMINI_API_KEY to get AI advice on your mess budget."
	FallbackBusy  = "The numbers add up, but the AI is busy right now. Try again later."
	FallbackEmpty = "Your mess accounts look fine. Keep it up!"
)

const requestTimeout = 10 * time.Second

// Service wraps the Generative Language API. A Service with no API key is
// valid and always answers with FallbackNoKey.
type Service struct {
	svc   *genlang.Service
	model string
}

// New creates an insight service. An empty apiKey disables remote calls
// without error.
func New(ctx context.Context, apiKey, model string) (*Service, error) {
	if apiKey == "" {
		return &Service{model: model}, nil
	}
	svc, err := genlang.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create generative language client: %w", err)
	}
	return &Service{svc: svc, model: model}, nil
}

// Enabled reports whether remote calls are configured.
func (s *Service) Enabled() bool {
	return s.svc != nil
}

// SummaryInsight returns a one-or-two sentence comment on the summary.
// It never returns an error; failures degrade to a static string.
func (s *Service) SummaryInsight(ctx context.Context, summary core.Summary, currencyCode string) string {
	if s.svc == nil {
		return FallbackNoKey
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req := &genlang.GenerateContentRequest{
		Contents: []*genlang.Content{{
			Role:  "user",
			Parts: []*genlang.Part{{Text: buildPrompt(summary, currencyCode)}},
		}},
	}

	resp, err := s.svc.Models.GenerateContent("models/"+s.model, req).Context(ctx).Do()
	if err != nil {
		slog.WarnContext(ctx, "Insight generation failed", "error", err, "model", s.model)
		return FallbackBusy
	}

	text := firstText(resp)
	if text == "" {
		return FallbackEmpty
	}
	return text
}

func buildPrompt(summary core.Summary, currencyCode string) string {
	var b strings.Builder
	b.WriteString("Analyze this shared household (mess) financial status and give warm, ")
	b.WriteString("friendly advice in one or two sentences. The mess runs a total-bill ")
	b.WriteString("system with no advance pool.\n")
	fmt.Fprintf(&b, "Total mess market expense: %s\n", core.FormatAmount(summary.TotalSharedExpense, currencyCode))
	fmt.Fprintf(&b, "Each active member's shared share: %s\n", core.FormatAmount(summary.AveragePerPerson, currencyCode))
	fmt.Fprintf(&b, "Outstanding debt overall: %s\n", core.FormatAmount(summary.GrandTotalDebt, currencyCode))
	b.WriteString("Member positions (positive means credit):\n")
	for _, mb := range summary.MemberBalances {
		fmt.Fprintf(&b, "- %s: net %s (personal spending %s)\n",
			mb.Member.Name,
			core.FormatAmount(float64(mb.Net), currencyCode),
			core.FormatAmount(mb.PersonalTotal, currencyCode))
	}
	b.WriteString("Mention if someone spends a lot on personal items or if the budget is doing great.")
	return b.String()
}

func firstText(resp *genlang.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil {
				continue
			}
			if text := strings.TrimSpace(part.Text); text != "" {
				return text
			}
		}
	}
	return ""
}
