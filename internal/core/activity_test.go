package core

import (
	"testing"
	"time"
)

func TestActiveAt(t *testing.T) {
	// Left, came back: [{join:10, leave:20}, {join:30}]
	m := Member{
		ID:   "m1",
		Name: "Jamal",
		Periods: []Period{
			{Join: date(10), Leave: date(20)},
			{Join: date(30)},
		},
	}

	cases := []struct {
		at     time.Time
		active bool
	}{
		{date(5), false},  // before first join
		{date(10), true},  // join day is inclusive
		{date(15), true},  // inside first period
		{date(20), true},  // leave day is inclusive
		{date(25), false}, // the gap
		{date(30), true},  // rejoin day
		{date(31), true},  // open period extends forever
	}
	for _, tc := range cases {
		if got := m.ActiveAt(tc.at); got != tc.active {
			t.Errorf("ActiveAt(%s) = %v, want %v", tc.at.Format("01-02"), got, tc.active)
		}
	}
}

func TestCurrentPeriod(t *testing.T) {
	open := Member{Periods: []Period{{Join: date(1), Leave: date(5)}, {Join: date(10)}}}
	p, ok := open.CurrentPeriod()
	if !ok || !p.Join.Equal(date(10)) {
		t.Fatalf("expected open period joined on day 10, got %v ok=%v", p, ok)
	}

	closed := Member{Periods: []Period{{Join: date(1), Leave: date(5)}}}
	if _, ok := closed.CurrentPeriod(); ok {
		t.Fatal("fully departed member has no current period")
	}

	if _, ok := (Member{}).CurrentPeriod(); ok {
		t.Fatal("member without periods has no current period")
	}
}

func TestNormalizePeriods(t *testing.T) {
	existing := []Period{{Join: date(1), Leave: date(3)}, {Join: date(7)}}
	if got := NormalizePeriods(existing, date(99), time.Time{}); len(got) != 2 {
		t.Fatal("existing periods must win over the legacy pair")
	}

	got := NormalizePeriods(nil, date(4), date(9))
	if len(got) != 1 || !got[0].Join.Equal(date(4)) || !got[0].Leave.Equal(date(9)) {
		t.Fatalf("legacy pair not synthesized: %v", got)
	}

	open := NormalizePeriods(nil, date(4), time.Time{})
	if len(open) != 1 || !open[0].Open() {
		t.Fatalf("legacy member without leaveDate should get an open period: %v", open)
	}

	if got := NormalizePeriods(nil, time.Time{}, time.Time{}); got != nil {
		t.Fatalf("nothing to normalize should stay nil, got %v", got)
	}
}
