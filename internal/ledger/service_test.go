package ledger

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"messbook/internal/core"
	"messbook/internal/storage"
)

const userID = "u1"

func testService(t *testing.T) *Service {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "messbook.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	if err := repo.CreateUser(context.Background(), storage.User{
		ID: userID, Phone: "01711111111", Name: "Tester", PasswordHash: "x", CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	return NewService(repo, nil, "breakfast")
}

func day(d int) time.Time {
	return time.Date(2025, 4, d, 0, 0, 0, 0, time.UTC)
}

func approx(t *testing.T, got, want float64, what string) {
	t.Helper()
	if math.Abs(got-want) > 0.01 {
		t.Errorf("%s = %v, want %v", what, got, want)
	}
}

func TestAddMemberAndSummary(t *testing.T) {
	s := testService(t)
	ctx := context.Background()

	a, err := s.AddMember(ctx, userID, "Asif", day(1))
	if err != nil {
		t.Fatalf("add member: %v", err)
	}
	if _, err := s.AddMember(ctx, userID, "Babu", day(1)); err != nil {
		t.Fatalf("add member: %v", err)
	}

	if _, err := s.AddTransaction(ctx, userID, core.Transaction{
		Description: "market", Amount: 100, Kind: core.Shared, Date: day(5),
	}); err != nil {
		t.Fatalf("add transaction: %v", err)
	}
	if _, err := s.AddTransaction(ctx, userID, core.Transaction{
		Description: "soap", Amount: 30, Kind: core.Personal, TargetMemberID: a.ID, Date: day(6),
	}); err != nil {
		t.Fatalf("add transaction: %v", err)
	}

	sum, err := s.SummaryAt(ctx, userID, day(28))
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	approx(t, sum.TotalSharedExpense, 100, "TotalSharedExpense")
	approx(t, sum.TotalPersonalExpense, 30, "TotalPersonalExpense")
	if len(sum.MemberBalances) != 2 {
		t.Fatalf("got %d balances, want 2", len(sum.MemberBalances))
	}

	var asif core.MemberBalance
	for _, mb := range sum.MemberBalances {
		if mb.Member.ID == a.ID {
			asif = mb
		}
	}
	approx(t, asif.SharedShare, 50, "Asif.SharedShare")
	approx(t, asif.PersonalTotal, 30, "Asif.PersonalTotal")
	approx(t, asif.TotalCost, 80, "Asif.TotalCost")
}

func TestAddMemberValidation(t *testing.T) {
	s := testService(t)

	if _, err := s.AddMember(context.Background(), userID, "  ", day(1)); err != core.ErrEmptyName {
		t.Fatalf("blank name: got %v", err)
	}
	if _, err := s.AddMember(context.Background(), userID, "X", time.Time{}); err != core.ErrZeroDate {
		t.Fatalf("zero join: got %v", err)
	}
}

func TestLeaveAndRejoin(t *testing.T) {
	s := testService(t)
	ctx := context.Background()

	m, err := s.AddMember(ctx, userID, "Asif", day(1))
	if err != nil {
		t.Fatalf("add member: %v", err)
	}

	if err := s.Leave(ctx, userID, m.ID, day(10)); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if err := s.Leave(ctx, userID, m.ID, day(11)); !errors.Is(err, ErrNoOpenPeriod) {
		t.Fatalf("second leave: got %v", err)
	}
	if err := s.Rejoin(ctx, userID, m.ID, day(10)); !errors.Is(err, ErrRejoinTooEarly) {
		t.Fatalf("rejoin on the leave day: got %v", err)
	}
	if err := s.Rejoin(ctx, userID, m.ID, day(20)); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if err := s.Rejoin(ctx, userID, m.ID, day(25)); !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("rejoin while active: got %v", err)
	}

	members, err := s.Members(ctx, userID)
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members[0].Periods) != 2 {
		t.Fatalf("got %d periods, want 2", len(members[0].Periods))
	}

	// The churn shows up in the engine: charged on day 5 and 25, not 15.
	for _, tx := range []core.Transaction{
		{Description: "market", Amount: 40, Kind: core.Shared, Date: day(5)},
		{Description: "market", Amount: 60, Kind: core.Shared, Date: day(15)},
		{Description: "market", Amount: 25, Kind: core.Shared, Date: day(25)},
	} {
		if _, err := s.AddTransaction(ctx, userID, tx); err != nil {
			t.Fatalf("add transaction: %v", err)
		}
	}
	sum, err := s.SummaryAt(ctx, userID, day(28))
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	approx(t, sum.MemberBalances[0].SharedShare, 65, "SharedShare across churn")
}

func TestLeaveBeforeJoinRejected(t *testing.T) {
	s := testService(t)
	ctx := context.Background()

	m, err := s.AddMember(ctx, userID, "Asif", day(10))
	if err != nil {
		t.Fatalf("add member: %v", err)
	}
	if err := s.Leave(ctx, userID, m.ID, day(5)); !errors.Is(err, ErrLeaveBeforeJoin) {
		t.Fatalf("got %v", err)
	}
}

func TestAddTransactionUnknownTarget(t *testing.T) {
	s := testService(t)

	_, err := s.AddTransaction(context.Background(), userID, core.Transaction{
		Description: "soap", Amount: 10, Kind: core.Personal, TargetMemberID: "ghost", Date: day(1),
	})
	if !errors.Is(err, ErrUnknownTarget) {
		t.Fatalf("got %v", err)
	}
}

func TestRemoveMemberCascadesIntoSummary(t *testing.T) {
	s := testService(t)
	ctx := context.Background()

	a, _ := s.AddMember(ctx, userID, "Asif", day(1))
	b, err := s.AddMember(ctx, userID, "Babu", day(1))
	if err != nil {
		t.Fatalf("add member: %v", err)
	}

	if _, err := s.AddTransaction(ctx, userID, core.Transaction{
		Description: "market", Amount: 100, Kind: core.Shared, Date: day(5),
	}); err != nil {
		t.Fatalf("add transaction: %v", err)
	}
	if _, err := s.AddTransaction(ctx, userID, core.Transaction{
		Description: "soap", Amount: 30, Kind: core.Personal, TargetMemberID: b.ID, Date: day(6),
	}); err != nil {
		t.Fatalf("add transaction: %v", err)
	}

	if err := s.RemoveMember(ctx, userID, b.ID); err != nil {
		t.Fatalf("remove member: %v", err)
	}

	sum, err := s.SummaryAt(ctx, userID, day(28))
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	// The personal debt vanished with its target; the shared purchase stays.
	approx(t, sum.TotalPersonalExpense, 0, "TotalPersonalExpense")
	approx(t, sum.TotalSharedExpense, 100, "TotalSharedExpense")
	if len(sum.MemberBalances) != 1 || sum.MemberBalances[0].Member.ID != a.ID {
		t.Fatalf("only Asif should remain, got %+v", sum.MemberBalances)
	}
}

func TestRemoveTransaction(t *testing.T) {
	s := testService(t)
	ctx := context.Background()

	if _, err := s.AddMember(ctx, userID, "Asif", day(1)); err != nil {
		t.Fatalf("add member: %v", err)
	}
	tx, err := s.AddTransaction(ctx, userID, core.Transaction{
		Description: "market", Amount: 100, Kind: core.Shared, Date: day(5),
	})
	if err != nil {
		t.Fatalf("add transaction: %v", err)
	}

	if err := s.RemoveTransaction(ctx, userID, tx.ID); err != nil {
		t.Fatalf("remove transaction: %v", err)
	}

	sum, err := s.SummaryAt(ctx, userID, day(28))
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	approx(t, sum.TotalSharedExpense, 0, "TotalSharedExpense after delete")
}

func TestBreakfastTagFlowsThrough(t *testing.T) {
	s := testService(t)
	ctx := context.Background()

	m, err := s.AddMember(ctx, userID, "Asif", day(1))
	if err != nil {
		t.Fatalf("add member: %v", err)
	}
	if _, err := s.AddTransaction(ctx, userID, core.Transaction{
		Description: "breakfast deposit", Amount: 20, Kind: core.Payment, TargetMemberID: m.ID, Date: day(2),
	}); err != nil {
		t.Fatalf("add transaction: %v", err)
	}

	sum, err := s.SummaryAt(ctx, userID, day(28))
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	approx(t, sum.TotalBreakfastPaid, 20, "TotalBreakfastPaid")
	approx(t, sum.TotalPaid, 0, "TotalPaid")
}
