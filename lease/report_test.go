package lease_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haven/lease-engine/lease"
	"github.com/haven/lease-engine/lease/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestReporter(t *testing.T) (*lease.Reporter, *lease.Ledger, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	return lease.NewReporter(mem), lease.NewLedger(mem, mem), mem
}

func seedPropertyLease(t *testing.T, mem *store.Memory, id lease.LeaseID, unit lease.UnitID, amount string) *lease.LeaseAgreement {
	t.Helper()
	l := monthlyLease("2025-01-01", "2025-12-31")
	l.ID = id
	l.UnitID = unit
	l.Amount = lease.MustMoney(amount)
	require.NoError(t, mem.InsertLease(context.Background(), l))
	return l
}

// =============================================================================
// RENT ROLL TESTS
// =============================================================================

func TestRentRoll_DuePaidBalance(t *testing.T) {
	// GIVEN: Two leases on the property; one paid in full for June, one paid half
	// WHEN: Computing the June rent roll
	// THEN: Per-row balances and report totals reconcile

	reporter, ledger, mem := newTestReporter(t)
	ctx := context.Background()

	seedPropertyLease(t, mem, "lease-1", "unit-1", "45000")
	seedPropertyLease(t, mem, "lease-2", "unit-2", "60000")

	_, _, err := ledger.Append(ctx, "lease-1", rentDraft("45000", "2025-06-03"), "TX-1")
	require.NoError(t, err)
	_, _, err = ledger.Append(ctx, "lease-2", rentDraft("30000", "2025-06-05"), "TX-2")
	require.NoError(t, err)

	report, err := reporter.RentRoll(ctx, "prop-1", 2025, time.June)
	require.NoError(t, err)
	require.Len(t, report.Rows, 2)

	byLease := map[lease.LeaseID]lease.RentRollRow{}
	for _, row := range report.Rows {
		byLease[row.LeaseID] = row
	}
	assert.True(t, byLease["lease-1"].Balance.IsZero(), "lease-1 balance = %s", byLease["lease-1"].Balance)
	assert.True(t, byLease["lease-2"].Balance.Equal(lease.MustMoney("30000")))

	assert.True(t, report.TotalDue.Equal(lease.MustMoney("105000")))
	assert.True(t, report.TotalPaid.Equal(lease.MustMoney("75000")))
	assert.True(t, report.TotalBalance.Equal(lease.MustMoney("30000")))
}

func TestRentRoll_OverpaymentShowsAsCredit(t *testing.T) {
	// A tenant paying two months inside one month shows a negative balance.
	reporter, ledger, mem := newTestReporter(t)
	ctx := context.Background()

	seedPropertyLease(t, mem, "lease-1", "unit-1", "45000")
	_, _, err := ledger.Append(ctx, "lease-1", rentDraft("90000", "2025-06-03"), "TX-1")
	require.NoError(t, err)

	report, err := reporter.RentRoll(ctx, "prop-1", 2025, time.June)
	require.NoError(t, err)
	require.Len(t, report.Rows, 1)
	assert.True(t, report.Rows[0].Balance.Equal(lease.MustMoney("-45000")),
		"balance = %s", report.Rows[0].Balance)
}

func TestRentRoll_WeeklyLeaseMultipleAnchors(t *testing.T) {
	// GIVEN: A weekly lease anchored Monday June 2
	// WHEN: Computing the June rent roll
	// THEN: Due = 5 anchors x weekly amount (Jun 2, 9, 16, 23, 30)

	reporter, _, mem := newTestReporter(t)
	ctx := context.Background()

	l := monthlyLease("2025-06-02", "2025-12-31")
	l.ID = "lease-w"
	l.Frequency = lease.FreqWeekly
	l.Amount = lease.MustMoney("10000")
	require.NoError(t, mem.InsertLease(ctx, l))

	report, err := reporter.RentRoll(ctx, "prop-1", 2025, time.June)
	require.NoError(t, err)
	require.Len(t, report.Rows, 1)
	assert.True(t, report.Rows[0].Due.Equal(lease.MustMoney("50000")), "due = %s", report.Rows[0].Due)
}

func TestRentRoll_ExcludesPendingAndOutOfTermLeases(t *testing.T) {
	reporter, _, mem := newTestReporter(t)
	ctx := context.Background()

	pending := monthlyLease("2025-01-01", "2025-12-31")
	pending.ID = "lease-pending"
	pending.Status = lease.StatusPending
	require.NoError(t, mem.InsertLease(ctx, pending))

	past := monthlyLease("2024-01-01", "2024-12-31")
	past.ID = "lease-past"
	past.UnitID = "unit-2"
	past.Status = lease.StatusExpired
	require.NoError(t, mem.InsertLease(ctx, past))

	report, err := reporter.RentRoll(ctx, "prop-1", 2025, time.June)
	require.NoError(t, err)
	assert.Empty(t, report.Rows)
	assert.True(t, report.TotalDue.IsZero())
}

func TestRentRoll_TerminatedMidMonth(t *testing.T) {
	// GIVEN: A lease terminated June 10 (end date moved)
	// WHEN: Computing June and July rent rolls
	// THEN: The June 1 anchor still bills; July has no row

	reporter, _, mem := newTestReporter(t)
	ctx := context.Background()

	l := monthlyLease("2025-01-01", "2025-06-10")
	l.ID = "lease-t"
	l.Status = lease.StatusTerminated
	require.NoError(t, mem.InsertLease(ctx, l))

	june, err := reporter.RentRoll(ctx, "prop-1", 2025, time.June)
	require.NoError(t, err)
	require.Len(t, june.Rows, 1)
	assert.True(t, june.Rows[0].Due.Equal(lease.MustMoney("45000")))

	july, err := reporter.RentRoll(ctx, "prop-1", 2025, time.July)
	require.NoError(t, err)
	assert.Empty(t, july.Rows)
}

// =============================================================================
// ARREARS AGING TESTS
// =============================================================================

func TestArrearsAging_OutstandingAndBucket(t *testing.T) {
	// GIVEN: A 45000/month lease with two elapsed anchors and no payments
	// WHEN: Aging as of April 15
	// THEN: Outstanding 90000, aged from the oldest anchor (45 days -> 31-60)

	reporter, _, mem := newTestReporter(t)
	ctx := context.Background()

	l := monthlyLease("2025-03-01", "2026-02-28")
	l.ID = "lease-1"
	require.NoError(t, mem.InsertLease(ctx, l))

	report, err := reporter.ArrearsAging(ctx, "prop-1", lease.MustParseDate("2025-04-15"))
	require.NoError(t, err)
	require.Len(t, report.Rows, 1)

	row := report.Rows[0]
	assert.True(t, row.Outstanding.Equal(lease.MustMoney("90000")), "outstanding = %s", row.Outstanding)
	assert.Equal(t, 45, row.MaxDaysPastDue, "aged from the Mar 1 anchor")
	assert.Equal(t, lease.Bucket31To60, row.Bucket)
}

func TestArrearsAging_DueDateOnReportDateIsNotPastDue(t *testing.T) {
	// GIVEN: A 45000/month lease starting Jan 1 with no payments
	// WHEN: Aging as of March 1 - exactly on the third due date
	// THEN: Only January and February are in arrears; the March installment
	//       is due that day, not yet outstanding

	reporter, _, mem := newTestReporter(t)
	ctx := context.Background()

	l := monthlyLease("2025-01-01", "2025-12-31")
	l.ID = "lease-1"
	require.NoError(t, mem.InsertLease(ctx, l))

	report, err := reporter.ArrearsAging(ctx, "prop-1", lease.MustParseDate("2025-03-01"))
	require.NoError(t, err)
	require.Len(t, report.Rows, 1)

	row := report.Rows[0]
	assert.True(t, row.Outstanding.Equal(lease.MustMoney("90000")), "outstanding = %s", row.Outstanding)
	assert.Equal(t, 59, row.MaxDaysPastDue, "aged from the Jan 1 anchor")
	assert.Equal(t, lease.Bucket31To60, row.Bucket)
	assert.True(t, report.TotalOutstanding.Equal(lease.MustMoney("90000")))
}

func TestArrearsAging_PaymentsAllocateOldestFirst(t *testing.T) {
	// GIVEN: Three elapsed anchors and one month paid
	// WHEN: Aging
	// THEN: The payment covers the OLDEST anchor, so the age comes from the
	//       second anchor, not the first

	reporter, ledger, mem := newTestReporter(t)
	ctx := context.Background()

	l := monthlyLease("2025-03-01", "2026-02-28")
	l.ID = "lease-1"
	require.NoError(t, mem.InsertLease(ctx, l))

	_, _, err := ledger.Append(ctx, "lease-1", rentDraft("45000", "2025-03-05"), "TX-1")
	require.NoError(t, err)

	report, err := reporter.ArrearsAging(ctx, "prop-1", lease.MustParseDate("2025-05-15"))
	require.NoError(t, err)
	require.Len(t, report.Rows, 1)

	row := report.Rows[0]
	assert.True(t, row.Outstanding.Equal(lease.MustMoney("90000")))
	assert.Equal(t, 44, row.MaxDaysPastDue, "aged from the Apr 1 anchor")
	assert.Equal(t, lease.Bucket31To60, row.Bucket)
}

func TestArrearsAging_FullyPaidLeaseHasNoRow(t *testing.T) {
	reporter, ledger, mem := newTestReporter(t)
	ctx := context.Background()

	l := monthlyLease("2025-03-01", "2026-02-28")
	l.ID = "lease-1"
	require.NoError(t, mem.InsertLease(ctx, l))

	for i, day := range []string{"2025-03-01", "2025-04-01"} {
		_, _, err := ledger.Append(ctx, "lease-1", rentDraft("45000", day), "")
		require.NoError(t, err, "payment %d", i)
	}

	report, err := reporter.ArrearsAging(ctx, "prop-1", lease.MustParseDate("2025-04-15"))
	require.NoError(t, err)
	assert.Empty(t, report.Rows, "zero and credit balances produce no arrears rows")
}

func TestArrearsAging_BucketTotalsSumToTotal(t *testing.T) {
	// GIVEN: Leases of different ages across buckets
	// WHEN: Aging
	// THEN: Sum of bucket totals equals the report total

	reporter, _, mem := newTestReporter(t)
	ctx := context.Background()

	recent := monthlyLease("2025-06-01", "2026-05-31")
	recent.ID = "lease-recent"
	require.NoError(t, mem.InsertLease(ctx, recent))

	old := monthlyLease("2025-01-01", "2025-12-31")
	old.ID = "lease-old"
	old.UnitID = "unit-2"
	require.NoError(t, mem.InsertLease(ctx, old))

	report, err := reporter.ArrearsAging(ctx, "prop-1", lease.MustParseDate("2025-06-10"))
	require.NoError(t, err)
	require.Len(t, report.Rows, 2)

	sum := lease.ZeroMoney()
	for _, b := range lease.AgingBuckets {
		sum = sum.Add(report.BucketTotals[b])
	}
	assert.True(t, sum.Equal(report.TotalOutstanding),
		"bucket totals %s != total outstanding %s", sum, report.TotalOutstanding)

	// And the old lease landed past 90 days (Jan 1 anchor, 160 days).
	byLease := map[lease.LeaseID]lease.ArrearsRow{}
	for _, row := range report.Rows {
		byLease[row.LeaseID] = row
	}
	assert.Equal(t, lease.BucketOver90, byLease["lease-old"].Bucket)
	assert.Equal(t, lease.Bucket0To30, byLease["lease-recent"].Bucket)
}

func TestBucketFor_Boundaries(t *testing.T) {
	cases := []struct {
		days int
		want lease.AgingBucket
	}{
		{0, lease.Bucket0To30},
		{30, lease.Bucket0To30},
		{31, lease.Bucket31To60},
		{60, lease.Bucket31To60},
		{61, lease.Bucket61To90},
		{90, lease.Bucket61To90},
		{91, lease.BucketOver90},
		{400, lease.BucketOver90},
	}
	for _, c := range cases {
		if got := lease.BucketFor(c.days); got != c.want {
			t.Errorf("BucketFor(%d) = %s, want %s", c.days, got, c.want)
		}
	}
}

// =============================================================================
// SNAPSHOT CONSISTENCY
// =============================================================================

func TestReporter_SkipsSoftDeletedLeases(t *testing.T) {
	reporter, _, mem := newTestReporter(t)
	ctx := context.Background()

	l := monthlyLease("2025-03-01", "2026-02-28")
	l.ID = "lease-1"
	require.NoError(t, mem.InsertLease(ctx, l))
	mem.SoftDelete("lease-1")

	arrears, err := reporter.ArrearsAging(ctx, "prop-1", lease.MustParseDate("2025-06-01"))
	require.NoError(t, err)
	assert.Empty(t, arrears.Rows)

	roll, err := reporter.RentRoll(ctx, "prop-1", 2025, time.June)
	require.NoError(t, err)
	assert.Empty(t, roll.Rows)
}
