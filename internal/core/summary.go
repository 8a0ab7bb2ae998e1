// Package core holds the mess ledger domain and the balance-calculation
// engine. The engine is a pure fold over the roster and the transaction log:
// no storage, no network, no shared state. Callers recompute the whole
// summary on every change; the data volumes of a household never justify an
// incremental variant that could drift from a full recompute.
package core

import (
	"strings"
	"time"
)

// DefaultBreakfastTag marks payments that belong to the separate breakfast
// sub-ledger rather than the general deposit pool.
const DefaultBreakfastTag = "breakfast"

// Balance is a signed net position. Positive means the member holds a credit,
// negative means the member owes the mess. The dedicated type exists so the
// sign convention cannot silently flip between call sites.
type Balance float64

// Owes reports whether the balance represents outstanding debt.
func (b Balance) Owes() bool { return b < 0 }

// MemberBalance is the per-member line of a Summary.
type MemberBalance struct {
	Member        Member
	SharedShare   float64 // time-sliced share of shared purchases
	PersonalTotal float64 // personal debts attributed in full
	TotalCost     float64 // SharedShare + PersonalTotal
	Paid          float64 // plain deposits, breakfast excluded
	BreakfastPaid float64 // breakfast-tagged deposits
	Net           Balance // Paid - TotalCost
}

// Summary is the full financial projection of a mess at a point in time.
// It is derived state: recomputed from scratch and never persisted.
type Summary struct {
	TotalSharedExpense   float64
	TotalPersonalExpense float64
	TotalPaid            float64
	TotalBreakfastPaid   float64
	GrandTotalDebt       float64
	AveragePerPerson     float64
	ActiveMemberCount    int
	MemberBalances       []MemberBalance
}

// Options tunes a Calculate call. AsOf is the "present day" used for the
// active-roster average; BreakfastTag routes matching payments to the
// breakfast accumulator.
type Options struct {
	AsOf         time.Time
	BreakfastTag string
}

// Calculate folds the roster and transaction log into a Summary.
//
// Shared transactions are split evenly across the members active on their
// date; a date nobody was active on contributes to no one. Personal and
// Payment transactions go in full to their target; targets that no longer
// exist on the roster are dropped, because the balance map is rebuilt from
// the live member list alone. The function never fails on well-formed input:
// empty roster, empty log and orphaned references all degrade to zeroes.
func Calculate(members []Member, transactions []Transaction, opts Options) Summary {
	tag := opts.BreakfastTag
	if tag == "" {
		tag = DefaultBreakfastTag
	}
	asOf := opts.AsOf
	if asOf.IsZero() {
		asOf = time.Now()
	}

	balances := make(map[string]*MemberBalance, len(members))
	ordered := make([]*MemberBalance, len(members))
	for i, m := range members {
		mb := &MemberBalance{Member: m}
		balances[m.ID] = mb
		ordered[i] = mb
	}

	s := Summary{}
	for _, tx := range transactions {
		switch tx.Kind {
		case Shared:
			s.TotalSharedExpense += tx.Amount
			active := activeMembers(members, tx.Date)
			if len(active) == 0 {
				// Nobody to charge; the amount stays unattributed.
				continue
			}
			slice := tx.Amount / float64(len(active))
			for _, m := range active {
				balances[m.ID].SharedShare += slice
			}
		case Personal:
			s.TotalPersonalExpense += tx.Amount
			if mb, ok := balances[tx.TargetMemberID]; ok {
				mb.PersonalTotal += tx.Amount
			}
		case Payment:
			if isBreakfast(tx.Description, tag) {
				s.TotalBreakfastPaid += tx.Amount
				if mb, ok := balances[tx.TargetMemberID]; ok {
					mb.BreakfastPaid += tx.Amount
				}
			} else {
				s.TotalPaid += tx.Amount
				if mb, ok := balances[tx.TargetMemberID]; ok {
					mb.Paid += tx.Amount
				}
			}
		}
	}

	for _, mb := range ordered {
		mb.TotalCost = mb.SharedShare + mb.PersonalTotal
		mb.Net = Balance(mb.Paid - mb.TotalCost)
	}

	// Breakfast deposits are a separate informational ledger; they do not
	// reduce the main debt figure.
	s.GrandTotalDebt = s.TotalSharedExpense + s.TotalPersonalExpense - s.TotalPaid

	for _, m := range members {
		if m.ActiveAt(asOf) {
			s.ActiveMemberCount++
		}
	}
	if s.ActiveMemberCount > 0 {
		s.AveragePerPerson = s.TotalSharedExpense / float64(s.ActiveMemberCount)
	}

	s.MemberBalances = make([]MemberBalance, len(ordered))
	for i, mb := range ordered {
		s.MemberBalances[i] = *mb
	}
	return s
}

func activeMembers(members []Member, t time.Time) []Member {
	var active []Member
	for _, m := range members {
		if m.ActiveAt(t) {
			active = append(active, m)
		}
	}
	return active
}

func isBreakfast(description, tag string) bool {
	return strings.Contains(strings.ToLower(description), strings.ToLower(tag))
}
