// Package ledger orchestrates roster and transaction mutations for one
// user's mess. It owns the churn rules (leave, rejoin, cascade delete) and
// hands the resulting collections to the pure engine in internal/core.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"messbook/internal/amqp"
	"messbook/internal/core"
	"messbook/internal/log"
	"messbook/internal/storage"
)

var (
	ErrNoOpenPeriod    = errors.New("member has already left")
	ErrAlreadyActive   = errors.New("member is still active")
	ErrLeaveBeforeJoin = errors.New("leave date is before the current join date")
	ErrRejoinTooEarly  = errors.New("rejoin date must be after the last leave date")
	ErrUnknownTarget   = errors.New("target member does not exist")
)

// Service wires storage and messaging around the balance engine. The AMQP
// client may be nil; change notifications are then skipped.
type Service struct {
	repo         *storage.SQLiteRepository
	amqpClient   *amqp.Client
	breakfastTag string
}

func NewService(repo *storage.SQLiteRepository, amqpClient *amqp.Client, breakfastTag string) *Service {
	if breakfastTag == "" {
		breakfastTag = core.DefaultBreakfastTag
	}
	return &Service{
		repo:         repo,
		amqpClient:   amqpClient,
		breakfastTag: breakfastTag,
	}
}

// AddMember puts a new person on the roster with a single open period.
func (s *Service) AddMember(ctx context.Context, userID, name string, joinDate time.Time) (core.Member, error) {
	m := core.Member{
		ID:      uuid.New().String(),
		Name:    name,
		Periods: []core.Period{{Join: joinDate}},
	}
	if err := m.Validate(); err != nil {
		return core.Member{}, err
	}
	if err := s.repo.CreateMember(ctx, userID, m); err != nil {
		return core.Member{}, fmt.Errorf("create member: %w", err)
	}
	s.publishChange(ctx, userID, amqp.ReasonMemberChange)
	return m, nil
}

// Leave closes the member's open period at the given date. The member keeps
// being charged for shared costs dated up to and including that day.
func (s *Service) Leave(ctx context.Context, userID, memberID string, at time.Time) error {
	m, err := s.repo.GetMember(ctx, userID, memberID)
	if err != nil {
		return err
	}
	current, ok := m.CurrentPeriod()
	if !ok {
		return ErrNoOpenPeriod
	}
	if at.Before(current.Join) {
		return ErrLeaveBeforeJoin
	}

	m.Periods[len(m.Periods)-1].Leave = at
	if err := s.repo.ReplacePeriods(ctx, memberID, m.Periods); err != nil {
		return fmt.Errorf("close period: %w", err)
	}

	slog.InfoContext(ctx, "Member left",
		log.FieldComponent, log.ComponentLedger,
		log.FieldOperation, log.OpLeave,
		log.FieldMemberID, memberID,
		log.FieldUserID, userID,
		"leave_at", at)
	s.publishChange(ctx, userID, amqp.ReasonMemberChange)
	return nil
}

// Rejoin opens a fresh period for a member who left earlier. Historical
// transactions dated in the gap stay unattributed to them.
func (s *Service) Rejoin(ctx context.Context, userID, memberID string, at time.Time) error {
	m, err := s.repo.GetMember(ctx, userID, memberID)
	if err != nil {
		return err
	}
	if _, open := m.CurrentPeriod(); open {
		return ErrAlreadyActive
	}
	last := m.Periods[len(m.Periods)-1]
	if !at.After(last.Leave) {
		return ErrRejoinTooEarly
	}

	m.Periods = append(m.Periods, core.Period{Join: at})
	if err := s.repo.ReplacePeriods(ctx, memberID, m.Periods); err != nil {
		return fmt.Errorf("append period: %w", err)
	}

	slog.InfoContext(ctx, "Member rejoined",
		log.FieldComponent, log.ComponentLedger,
		log.FieldOperation, log.OpRejoin,
		log.FieldMemberID, memberID,
		log.FieldUserID, userID,
		"join_at", at)
	s.publishChange(ctx, userID, amqp.ReasonMemberChange)
	return nil
}

// RemoveMember deletes a member together with every personal/payment
// transaction that targets them. Shared history is untouched.
func (s *Service) RemoveMember(ctx context.Context, userID, memberID string) error {
	if err := s.repo.DeleteMember(ctx, userID, memberID); err != nil {
		return err
	}
	s.publishChange(ctx, userID, amqp.ReasonMemberChange)
	return nil
}

// Members returns the roster with full period histories.
func (s *Service) Members(ctx context.Context, userID string) ([]core.Member, error) {
	return s.repo.ListMembers(ctx, userID)
}

// AddTransaction validates and appends one financial event. Targets must
// exist on the roster at creation time; history may later orphan them.
func (s *Service) AddTransaction(ctx context.Context, userID string, t core.Transaction) (core.Transaction, error) {
	t.ID = uuid.New().String()
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if t.Kind.NeedsTarget() {
		if _, err := s.repo.GetMember(ctx, userID, t.TargetMemberID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return core.Transaction{}, ErrUnknownTarget
			}
			return core.Transaction{}, err
		}
	}
	if err := s.repo.CreateTransaction(ctx, userID, t); err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	s.publishChange(ctx, userID, amqp.ReasonTransactionChange)
	return t, nil
}

// RemoveTransaction deletes one event from the log.
func (s *Service) RemoveTransaction(ctx context.Context, userID, txID string) error {
	if err := s.repo.DeleteTransaction(ctx, userID, txID); err != nil {
		return err
	}
	s.publishChange(ctx, userID, amqp.ReasonTransactionChange)
	return nil
}

// Transactions returns the full log ordered by event date.
func (s *Service) Transactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	return s.repo.ListTransactions(ctx, userID)
}

// Summary loads both collections and runs a full recompute.
func (s *Service) Summary(ctx context.Context, userID string) (core.Summary, error) {
	return s.SummaryAt(ctx, userID, time.Now())
}

// SummaryAt recomputes the summary with an explicit "present day", used by
// tests and the worker.
func (s *Service) SummaryAt(ctx context.Context, userID string, asOf time.Time) (core.Summary, error) {
	members, txns, err := s.repo.Load(ctx, userID)
	if err != nil {
		return core.Summary{}, fmt.Errorf("load ledger: %w", err)
	}
	return core.Calculate(members, txns, core.Options{AsOf: asOf, BreakfastTag: s.breakfastTag}), nil
}

func (s *Service) publishChange(ctx context.Context, userID, reason string) {
	if s.amqpClient == nil {
		return
	}
	// Best effort: the ledger mutation already succeeded.
	if err := s.amqpClient.PublishLedgerChanged(ctx, userID, reason); err != nil {
		slog.WarnContext(ctx, "Failed to publish ledger change",
			log.FieldComponent, log.ComponentLedger,
			log.FieldOperation, log.OpPublish,
			log.FieldError, err.Error(),
			log.FieldUserID, userID)
	}
}

// Close releases the underlying resources.
func (s *Service) Close() error {
	var errs []error

	if s.repo != nil {
		if err := s.repo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %v", errs)
	}
	return nil
}
