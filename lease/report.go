/*
report.go - Rent roll and arrears aging

PURPOSE:
  Point-in-time financial reports computed by replaying the ledger against
  the derived schedule. Nothing here is persisted: due amounts come from
  schedule anchors, collected amounts from ledger entries, both read through
  a single consistent snapshot (View) so a report never observes a
  half-applied payment or a half-committed lease edit.

RENT ROLL:
  Per lease active at any point in the month:
    due     = anchors falling in the month x lease amount
              (one anchor for monthly frequency, more for weekly/biweekly)
    paid    = payments with PaidAt in the month
    balance = due - paid   (negative = overpayment/credit)

ARREARS AGING:
  Per lease as of a date:
    outstanding    = all due amounts with anchor <= asOf
                     minus all payments with PaidAt <= asOf
    maxDaysPastDue = asOf - earliest unpaid anchor, in days, where payments
                     are allocated to anchors oldest-first
  Rows bucket into 0-30 / 31-60 / 61-90 / 90+ days past due, and bucket
  totals always sum to the total outstanding across rows.

SEE ALSO:
  - schedule.go: Anchor derivation
  - export.go: CSV rendering of these reports
*/
package lease

import (
	"context"
	"time"
)

// =============================================================================
// REPORT TYPES
// =============================================================================

// RentRollRow is one lease's expected vs. collected for a month.
type RentRollRow struct {
	LeaseID  LeaseID
	UnitID   UnitID
	TenantID TenantID
	Due      Money
	Paid     Money
	Balance  Money
}

// RentRoll is the per-property expected vs. collected report for a month.
type RentRoll struct {
	PropertyID PropertyID
	Year       int
	Month      time.Month
	Rows       []RentRollRow

	TotalDue     Money
	TotalPaid    Money
	TotalBalance Money
}

// AgingBucket is a days-past-due band.
type AgingBucket string

const (
	Bucket0To30  AgingBucket = "0-30"
	Bucket31To60 AgingBucket = "31-60"
	Bucket61To90 AgingBucket = "61-90"
	BucketOver90 AgingBucket = "90+"
)

// AgingBuckets lists the bands in display order.
var AgingBuckets = []AgingBucket{Bucket0To30, Bucket31To60, Bucket61To90, BucketOver90}

// BucketFor maps days past due to its band.
func BucketFor(daysPastDue int) AgingBucket {
	switch {
	case daysPastDue <= 30:
		return Bucket0To30
	case daysPastDue <= 60:
		return Bucket31To60
	case daysPastDue <= 90:
		return Bucket61To90
	default:
		return BucketOver90
	}
}

// ArrearsRow is one lease's outstanding balance and its age.
type ArrearsRow struct {
	LeaseID        LeaseID
	UnitID         UnitID
	TenantID       TenantID
	Outstanding    Money
	MaxDaysPastDue int
	Bucket         AgingBucket
}

// ArrearsReport buckets outstanding balances by days past due.
type ArrearsReport struct {
	PropertyID PropertyID
	AsOf       Date
	Rows       []ArrearsRow

	BucketTotals     map[AgingBucket]Money
	TotalOutstanding Money
}

// =============================================================================
// REPORTER
// =============================================================================

// Reporter computes reports over consistent snapshots.
type Reporter struct {
	Views ViewStore
}

func NewReporter(views ViewStore) *Reporter {
	return &Reporter{Views: views}
}

// RentRoll computes the expected vs. collected report for a property month.
func (r *Reporter) RentRoll(ctx context.Context, propertyID PropertyID, year int, month time.Month) (*RentRoll, error) {
	report := &RentRoll{
		PropertyID:   propertyID,
		Year:         year,
		Month:        month,
		TotalDue:     ZeroMoney(),
		TotalPaid:    ZeroMoney(),
		TotalBalance: ZeroMoney(),
	}

	monthStart := StartOfMonth(year, month)
	monthEnd := EndOfMonth(year, month)
	// [monthStart, nextStart) for the overlap check; anchor and payment
	// inclusion uses the equivalent day-granular [monthStart, monthEnd].
	nextStart := monthStart.AddMonthsClamped(1)

	err := r.Views.WithView(ctx, func(v View) error {
		leases, err := v.LeasesForProperty(ctx, propertyID)
		if err != nil {
			return err
		}
		for _, l := range leases {
			if !l.ActiveDuring(monthStart, nextStart) {
				continue
			}

			anchors := PeriodsBetween(l, monthStart, monthEnd)
			due := l.Amount.MulInt(int64(len(anchors)))

			payments, err := v.PaymentsForLease(ctx, l.ID)
			if err != nil {
				return err
			}
			paid := ZeroMoney()
			for _, p := range payments {
				if p.PaidAt.AfterOrEqual(monthStart) && p.PaidAt.BeforeOrEqual(monthEnd) {
					paid = paid.Add(p.Amount)
				}
			}

			if due.IsZero() && paid.IsZero() {
				continue
			}
			row := RentRollRow{
				LeaseID:  l.ID,
				UnitID:   l.UnitID,
				TenantID: l.TenantID,
				Due:      due,
				Paid:     paid,
				Balance:  due.Sub(paid),
			}
			report.Rows = append(report.Rows, row)
			report.TotalDue = report.TotalDue.Add(row.Due)
			report.TotalPaid = report.TotalPaid.Add(row.Paid)
			report.TotalBalance = report.TotalBalance.Add(row.Balance)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// ArrearsAging computes outstanding balances bucketed by days past due.
func (r *Reporter) ArrearsAging(ctx context.Context, propertyID PropertyID, asOf Date) (*ArrearsReport, error) {
	report := &ArrearsReport{
		PropertyID:       propertyID,
		AsOf:             asOf,
		BucketTotals:     make(map[AgingBucket]Money, len(AgingBuckets)),
		TotalOutstanding: ZeroMoney(),
	}
	for _, b := range AgingBuckets {
		report.BucketTotals[b] = ZeroMoney()
	}

	err := r.Views.WithView(ctx, func(v View) error {
		leases, err := v.LeasesForProperty(ctx, propertyID)
		if err != nil {
			return err
		}
		for _, l := range leases {
			if l.Status == StatusPending || l.Deleted() {
				continue
			}

			anchors := ElapsedAnchors(l, asOf)
			if len(anchors) == 0 {
				continue
			}

			payments, err := v.PaymentsForLease(ctx, l.ID)
			if err != nil {
				return err
			}
			paid := ZeroMoney()
			for _, p := range payments {
				if p.PaidAt.BeforeOrEqual(asOf) {
					paid = paid.Add(p.Amount)
				}
			}

			due := l.Amount.MulInt(int64(len(anchors)))
			outstanding := due.Sub(paid)
			if !outstanding.IsPositive() {
				continue
			}

			row := ArrearsRow{
				LeaseID:        l.ID,
				UnitID:         l.UnitID,
				TenantID:       l.TenantID,
				Outstanding:    outstanding,
				MaxDaysPastDue: daysPastDue(l, anchors, paid, asOf),
			}
			row.Bucket = BucketFor(row.MaxDaysPastDue)

			report.Rows = append(report.Rows, row)
			report.BucketTotals[row.Bucket] = report.BucketTotals[row.Bucket].Add(row.Outstanding)
			report.TotalOutstanding = report.TotalOutstanding.Add(row.Outstanding)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// daysPastDue allocates the collected total to anchors oldest-first and
// returns the age of the earliest anchor not fully covered.
func daysPastDue(l *LeaseAgreement, anchors []Date, paid Money, asOf Date) int {
	remaining := paid
	for _, anchor := range anchors {
		if remaining.GreaterThan(l.Amount) || remaining.Equal(l.Amount) {
			remaining = remaining.Sub(l.Amount)
			continue
		}
		return DaysBetween(anchor, asOf)
	}
	return 0
}
