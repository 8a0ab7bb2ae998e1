package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"messbook/internal/amqp"
	"messbook/internal/core"
	"messbook/internal/insight"
	"messbook/internal/storage"
)

// AdviceGenerator produces a short budgeting note for a computed summary.
// It never fails; on any upstream problem it returns a fallback string.
type AdviceGenerator interface {
	SummaryInsight(ctx context.Context, summary core.Summary, currencyCode string) string
}

// InsightWorker recomputes the AI budgeting note for a user whenever the
// ledger changes, and sweeps all users periodically to catch missed messages.
type InsightWorker struct {
	storage      *storage.SQLiteRepository
	advisor      AdviceGenerator
	currencyCode string
	breakfastTag string
}

func NewInsightWorker(storage *storage.SQLiteRepository, advisor AdviceGenerator, currencyCode, breakfastTag string) *InsightWorker {
	return &InsightWorker{
		storage:      storage,
		advisor:      advisor,
		currencyCode: currencyCode,
		breakfastTag: breakfastTag,
	}
}

// HandleLedgerChanged processes a single change notification from AMQP.
func (w *InsightWorker) HandleLedgerChanged(ctx context.Context, msg *amqp.LedgerChangedMessage) error {
	slog.InfoContext(ctx, "Processing ledger change",
		"user_id", msg.UserID,
		"reason", msg.Reason)

	if err := w.RefreshUser(ctx, msg.UserID); err != nil {
		return fmt.Errorf("refresh insight for user %s: %w", msg.UserID, err)
	}
	return nil
}

// RefreshUser recomputes one user's summary and stores a fresh advice note.
func (w *InsightWorker) RefreshUser(ctx context.Context, userID string) error {
	members, transactions, err := w.storage.Load(ctx, userID)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}

	summary := core.Calculate(members, transactions, core.Options{
		BreakfastTag: w.breakfastTag,
	})
	body := w.advisor.SummaryInsight(ctx, summary, w.currencyCode)

	if err := w.storage.SaveInsight(ctx, userID, body, time.Now()); err != nil {
		return fmt.Errorf("save insight: %w", err)
	}

	slog.InfoContext(ctx, "Insight refreshed",
		"user_id", userID,
		"active_members", summary.ActiveMemberCount)
	return nil
}

// RefreshAll sweeps every known user. This is the backup mechanism in case
// AMQP messages were lost or the broker was down.
func (w *InsightWorker) RefreshAll(ctx context.Context) error {
	userIDs, err := w.storage.ListUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	if len(userIDs) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Refreshing insights for all users", "count", len(userIDs))

	errorCount := 0
	for _, id := range userIDs {
		if err := w.RefreshUser(ctx, id); err != nil {
			slog.ErrorContext(ctx, "Failed to refresh insight", "user_id", id, "error", err)
			errorCount++
		}
	}

	slog.InfoContext(ctx, "Insight sweep completed",
		"total", len(userIDs),
		"errors", errorCount)
	return nil
}

// RunPeriodicRefresh blocks, sweeping all users at the given interval until
// the context is cancelled. An immediate sweep runs before the first tick.
func (w *InsightWorker) RunPeriodicRefresh(ctx context.Context, interval time.Duration) error {
	if err := w.RefreshAll(ctx); err != nil {
		slog.ErrorContext(ctx, "Initial insight sweep failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.RefreshAll(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic insight sweep failed", "error", err)
			}
		}
	}
}

var _ AdviceGenerator = (*insight.Service)(nil)
