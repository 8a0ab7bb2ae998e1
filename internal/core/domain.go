package core

import (
	"errors"
	"math"
	"strings"
	"time"
)

const (
	Shared   TransactionKind = "shared"
	Personal TransactionKind = "personal"
	Payment  TransactionKind = "payment"
)

type (
	// TransactionKind is the closed set of financial event kinds the ledger
	// understands. The engine switches over it exhaustively.
	TransactionKind string

	// Period is one continuous stretch of membership. A zero Leave means the
	// period is still open.
	Period struct {
		Join  time.Time
		Leave time.Time
	}

	// Member is one person on the mess roster. Periods are non-overlapping and
	// ordered by Join ascending; at most the last one may be open.
	Member struct {
		ID      string
		Name    string
		Periods []Period
	}

	// Transaction is a dated financial event. TargetMemberID is set for
	// Personal and Payment kinds and empty for Shared ones.
	Transaction struct {
		ID             string
		Description    string
		Amount         float64
		Kind           TransactionKind
		TargetMemberID string
		Date           time.Time
	}
)

var (
	ErrInvalidAmount    = errors.New("amount must be a positive number")
	ErrInvalidKind      = errors.New("invalid transaction kind")
	ErrEmptyName        = errors.New("empty member name")
	ErrEmptyDescription = errors.New("empty description")
	ErrMissingTarget    = errors.New("target member required for this kind")
	ErrZeroDate         = errors.New("date cannot be zero")
	ErrPeriodOrder      = errors.New("periods must be ordered and non-overlapping")
)

// IsValid reports whether the kind is one of the known variants.
func (k TransactionKind) IsValid() bool {
	switch k {
	case Shared, Personal, Payment:
		return true
	default:
		return false
	}
}

// NeedsTarget reports whether transactions of this kind must name a member.
func (k TransactionKind) NeedsTarget() bool {
	return k == Personal || k == Payment
}

// Open reports whether the period has no leave date yet.
func (p Period) Open() bool {
	return p.Leave.IsZero()
}

// Contains reports whether t falls inside the period. Both boundaries are
// inclusive: a member is still present on the day they leave.
func (p Period) Contains(t time.Time) bool {
	if p.Join.After(t) {
		return false
	}
	return p.Open() || !p.Leave.Before(t)
}

func (m Member) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return ErrEmptyName
	}
	if len(m.Periods) == 0 {
		return ErrZeroDate
	}
	return ValidatePeriods(m.Periods)
}

// ValidatePeriods checks the roster invariant: intervals ordered by join,
// non-overlapping, and only the final interval may be open.
func ValidatePeriods(periods []Period) error {
	for i, p := range periods {
		if p.Join.IsZero() {
			return ErrZeroDate
		}
		if !p.Open() && p.Leave.Before(p.Join) {
			return ErrPeriodOrder
		}
		if i > 0 {
			prev := periods[i-1]
			if prev.Open() {
				return ErrPeriodOrder
			}
			if !p.Join.After(prev.Leave) {
				return ErrPeriodOrder
			}
		}
	}
	return nil
}

func (t Transaction) Validate() error {
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if t.Amount <= 0 || math.IsNaN(t.Amount) || math.IsInf(t.Amount, 0) {
		return ErrInvalidAmount
	}
	if !t.Kind.IsValid() {
		return ErrInvalidKind
	}
	if t.Kind.NeedsTarget() && t.TargetMemberID == "" {
		return ErrMissingTarget
	}
	if t.Date.IsZero() {
		return ErrZeroDate
	}
	return nil
}
