package lease_test

import (
	"testing"
	"time"

	"github.com/haven/lease-engine/lease"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func monthlyLease(start, end string) *lease.LeaseAgreement {
	return &lease.LeaseAgreement{
		ID:         "lease-1",
		PropertyID: "prop-1",
		UnitID:     "unit-1",
		TenantID:   "tenant-1",
		StartDate:  lease.MustParseDate(start),
		EndDate:    lease.MustParseDate(end),
		Amount:     lease.MustMoney("45000"),
		Frequency:  lease.FreqMonthly,
		Status:     lease.StatusActive,
	}
}

func d(s string) lease.Date { return lease.MustParseDate(s) }

// =============================================================================
// MONTH CLAMPING TESTS
// =============================================================================

func TestAddMonthsClamped_Jan31(t *testing.T) {
	// GIVEN: January 31
	// WHEN: Adding 1 month
	// THEN: The day clamps to February's last day, not March 3

	got := d("2025-01-31").AddMonthsClamped(1)
	if !got.Equal(d("2025-02-28")) {
		t.Errorf("Jan 31 + 1 month = %s, want 2025-02-28", got)
	}
}

func TestAddMonthsClamped_LeapYear(t *testing.T) {
	got := d("2024-01-31").AddMonthsClamped(1)
	if !got.Equal(d("2024-02-29")) {
		t.Errorf("Jan 31 2024 + 1 month = %s, want 2024-02-29", got)
	}
}

func TestAddMonthsClamped_NoCumulativeDrift(t *testing.T) {
	// GIVEN: A day-31 anchor
	// WHEN: Stepping 1 then 2 months from the SAME origin
	// THEN: February clamps to 28 but March returns to 31 - the clamp never
	//       sticks, because each step measures from the original anchor

	origin := d("2025-01-31")
	if got := origin.AddMonthsClamped(1); !got.Equal(d("2025-02-28")) {
		t.Errorf("month 1 = %s, want 2025-02-28", got)
	}
	if got := origin.AddMonthsClamped(2); !got.Equal(d("2025-03-31")) {
		t.Errorf("month 2 = %s, want 2025-03-31", got)
	}
	if got := origin.AddMonthsClamped(3); !got.Equal(d("2025-04-30")) {
		t.Errorf("month 3 = %s, want 2025-04-30", got)
	}
}

func TestAddMonthsClamped_YearRollover(t *testing.T) {
	got := d("2025-11-15").AddMonthsClamped(3)
	if !got.Equal(d("2026-02-15")) {
		t.Errorf("Nov 15 + 3 months = %s, want 2026-02-15", got)
	}
}

// =============================================================================
// NEXT DUE DATE TESTS
// =============================================================================

func TestNextDueDate_FirstAnchorIsStartDate(t *testing.T) {
	// GIVEN: A monthly lease starting March 1 with no first-payment override
	// WHEN: Asking for the next due date before the term begins
	// THEN: The start date itself is the first anchor

	l := monthlyLease("2025-03-01", "2026-02-28")

	due, ok := lease.NextDueDate(l, d("2025-01-15"))
	if !ok {
		t.Fatal("expected a due date")
	}
	if !due.Equal(d("2025-03-01")) {
		t.Errorf("next due = %s, want 2025-03-01", due)
	}
}

func TestNextDueDate_FirstPaymentDateOverride(t *testing.T) {
	l := monthlyLease("2025-03-01", "2026-02-28")
	first := d("2025-03-15")
	l.FirstPaymentDate = &first

	due, ok := lease.NextDueDate(l, d("2025-03-02"))
	if !ok {
		t.Fatal("expected a due date")
	}
	if !due.Equal(d("2025-03-15")) {
		t.Errorf("next due = %s, want 2025-03-15", due)
	}
}

func TestNextDueDate_MidTerm(t *testing.T) {
	// GIVEN: A monthly lease anchored on the 1st
	// WHEN: Asking mid-month
	// THEN: The next month's anchor is returned

	l := monthlyLease("2025-03-01", "2026-02-28")

	due, ok := lease.NextDueDate(l, d("2025-05-10"))
	if !ok {
		t.Fatal("expected a due date")
	}
	if !due.Equal(d("2025-06-01")) {
		t.Errorf("next due = %s, want 2025-06-01", due)
	}
}

func TestNextDueDate_OnAnchorDay(t *testing.T) {
	// An asOf that lands exactly on an anchor returns that anchor.
	l := monthlyLease("2025-03-01", "2026-02-28")

	due, ok := lease.NextDueDate(l, d("2025-06-01"))
	if !ok {
		t.Fatal("expected a due date")
	}
	if !due.Equal(d("2025-06-01")) {
		t.Errorf("next due = %s, want 2025-06-01", due)
	}
}

func TestNextDueDate_PastEndDate(t *testing.T) {
	// GIVEN: A lease whose final anchor has passed
	// WHEN: Asking after the end date
	// THEN: No due date exists

	l := monthlyLease("2025-03-01", "2025-08-31")

	if _, ok := lease.NextDueDate(l, d("2025-09-15")); ok {
		t.Error("expected no due date past the end of the term")
	}
}

func TestNextDueDate_InactiveLease(t *testing.T) {
	l := monthlyLease("2025-03-01", "2026-02-28")
	l.Status = lease.StatusPending

	if _, ok := lease.NextDueDate(l, d("2025-05-01")); ok {
		t.Error("pending lease should have no due date")
	}

	l.Status = lease.StatusTerminated
	if _, ok := lease.NextDueDate(l, d("2025-05-01")); ok {
		t.Error("terminated lease should have no due date")
	}
}

func TestNextDueDate_Day31Lease(t *testing.T) {
	// GIVEN: A lease anchored on the 31st
	// WHEN: Walking the schedule through February
	// THEN: The February anchor clamps to the 28th, March returns to the 31st

	l := monthlyLease("2025-01-31", "2025-12-31")

	due, _ := lease.NextDueDate(l, d("2025-02-01"))
	if !due.Equal(d("2025-02-28")) {
		t.Errorf("February anchor = %s, want 2025-02-28", due)
	}
	due, _ = lease.NextDueDate(l, d("2025-03-01"))
	if !due.Equal(d("2025-03-31")) {
		t.Errorf("March anchor = %s, want 2025-03-31", due)
	}
}

func TestNextDueDate_Monotone(t *testing.T) {
	// Walking asOf forward day by day never moves the next due date backward.
	l := monthlyLease("2025-01-31", "2025-12-31")

	prev, ok := lease.NextDueDate(l, l.StartDate)
	if !ok {
		t.Fatal("expected a first due date")
	}
	asOf := l.StartDate
	for asOf.BeforeOrEqual(l.EndDate) {
		due, ok := lease.NextDueDate(l, asOf)
		if !ok {
			break
		}
		if due.Before(prev) {
			t.Fatalf("due date moved backward: %s < %s at asOf %s", due, prev, asOf)
		}
		prev = due
		asOf = asOf.AddDays(1)
	}
}

// =============================================================================
// FREQUENCY TESTS
// =============================================================================

func TestPeriodsBetween_Weekly(t *testing.T) {
	l := monthlyLease("2025-03-03", "2025-03-31")
	l.Frequency = lease.FreqWeekly

	anchors := lease.PeriodsBetween(l, d("2025-03-01"), d("2025-03-31"))
	want := []string{"2025-03-03", "2025-03-10", "2025-03-17", "2025-03-24", "2025-03-31"}
	if len(anchors) != len(want) {
		t.Fatalf("got %d anchors, want %d", len(anchors), len(want))
	}
	for i, w := range want {
		if !anchors[i].Equal(d(w)) {
			t.Errorf("anchor %d = %s, want %s", i, anchors[i], w)
		}
	}
}

func TestPeriodsBetween_Biweekly(t *testing.T) {
	l := monthlyLease("2025-03-01", "2025-04-30")
	l.Frequency = lease.FreqBiweekly

	anchors := lease.PeriodsBetween(l, d("2025-03-01"), d("2025-04-30"))
	want := []string{"2025-03-01", "2025-03-15", "2025-03-29", "2025-04-12", "2025-04-26"}
	if len(anchors) != len(want) {
		t.Fatalf("got %d anchors, want %d", len(anchors), len(want))
	}
	for i, w := range want {
		if !anchors[i].Equal(d(w)) {
			t.Errorf("anchor %d = %s, want %s", i, anchors[i], w)
		}
	}
}

func TestPeriodsBetween_Quarterly(t *testing.T) {
	l := monthlyLease("2025-01-15", "2025-12-31")
	l.Frequency = lease.FreqQuarterly

	anchors := lease.PeriodsBetween(l, d("2025-01-01"), d("2025-12-31"))
	want := []string{"2025-01-15", "2025-04-15", "2025-07-15", "2025-10-15"}
	if len(anchors) != len(want) {
		t.Fatalf("got %d anchors, want %d", len(anchors), len(want))
	}
	for i, w := range want {
		if !anchors[i].Equal(d(w)) {
			t.Errorf("anchor %d = %s, want %s", i, anchors[i], w)
		}
	}
}

func TestPeriodsBetween_StopsAtEndDate(t *testing.T) {
	// GIVEN: A lease terminated early (end date moved to June 15)
	// WHEN: Replaying anchors through December
	// THEN: No anchor exists after the end date

	l := monthlyLease("2025-03-01", "2025-06-15")

	anchors := lease.PeriodsBetween(l, d("2025-03-01"), d("2025-12-31"))
	if len(anchors) != 4 { // Mar, Apr, May, Jun 1
		t.Fatalf("got %d anchors, want 4", len(anchors))
	}
	for _, a := range anchors {
		if a.After(l.EndDate) {
			t.Errorf("anchor %s falls after the end date %s", a, l.EndDate)
		}
	}
}

func TestPeriodsBetween_IgnoresStatus(t *testing.T) {
	// Reporting replays schedules for terminated leases too.
	l := monthlyLease("2025-03-01", "2025-06-15")
	l.Status = lease.StatusTerminated

	anchors := lease.PeriodsBetween(l, d("2025-03-01"), d("2025-12-31"))
	if len(anchors) != 4 {
		t.Errorf("got %d anchors for terminated lease, want 4", len(anchors))
	}
}

func TestElapsedAnchors_ExcludesAnchorOnAsOf(t *testing.T) {
	// GIVEN: A monthly lease starting January 1
	// WHEN: Listing elapsed anchors as of March 1 - exactly on an anchor
	// THEN: Only January and February have elapsed; the March anchor is
	//       due that day, not past

	l := monthlyLease("2025-01-01", "2025-12-31")

	anchors := lease.ElapsedAnchors(l, d("2025-03-01"))
	want := []string{"2025-01-01", "2025-02-01"}
	if len(anchors) != len(want) {
		t.Fatalf("got %d anchors, want %d", len(anchors), len(want))
	}
	for i, w := range want {
		if !anchors[i].Equal(d(w)) {
			t.Errorf("anchor %d = %s, want %s", i, anchors[i], w)
		}
	}
}

// =============================================================================
// ITERATOR TESTS
// =============================================================================

func TestScheduleIterator_Reset(t *testing.T) {
	l := monthlyLease("2025-03-01", "2025-05-31")
	it := lease.NewScheduleIterator(l)

	first, _ := it.Next()
	it.Next()
	it.Reset()

	again, ok := it.Next()
	if !ok || !again.Equal(first) {
		t.Errorf("after Reset, Next = %s, want %s", again, first)
	}
}

// =============================================================================
// DATE UTILITY TESTS
// =============================================================================

func TestDaysBetween(t *testing.T) {
	if got := lease.DaysBetween(d("2025-03-01"), d("2025-03-31")); got != 30 {
		t.Errorf("DaysBetween = %d, want 30", got)
	}
	if got := lease.DaysBetween(d("2025-03-31"), d("2025-03-01")); got != -30 {
		t.Errorf("reversed DaysBetween = %d, want -30", got)
	}
}

func TestEndOfMonth(t *testing.T) {
	if got := lease.EndOfMonth(2025, time.February); !got.Equal(d("2025-02-28")) {
		t.Errorf("EndOfMonth Feb 2025 = %s, want 2025-02-28", got)
	}
	if got := lease.EndOfMonth(2024, time.February); !got.Equal(d("2024-02-29")) {
		t.Errorf("EndOfMonth Feb 2024 = %s, want 2024-02-29", got)
	}
}
