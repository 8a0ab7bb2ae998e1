package core

import "time"

// ActiveAt reports whether the member was on the roster at time t. A member
// is active when any of their periods contains t.
func (m Member) ActiveAt(t time.Time) bool {
	for _, p := range m.Periods {
		if p.Contains(t) {
			return true
		}
	}
	return false
}

// CurrentPeriod returns the member's open period, if any.
func (m Member) CurrentPeriod() (Period, bool) {
	if n := len(m.Periods); n > 0 && m.Periods[n-1].Open() {
		return m.Periods[n-1], true
	}
	return Period{}, false
}

// NormalizePeriods converts the legacy flat joinDate/leaveDate shape into the
// interval list used everywhere else. Existing periods win; the flat pair is
// only consulted when the list is empty. After this call no code should branch
// on the legacy fields again.
func NormalizePeriods(periods []Period, joinDate, leaveDate time.Time) []Period {
	if len(periods) > 0 {
		return periods
	}
	if joinDate.IsZero() {
		return nil
	}
	return []Period{{Join: joinDate, Leave: leaveDate}}
}
