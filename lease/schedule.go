/*
schedule.go - Billing schedule derivation from lease terms

PURPOSE:
  Derives due dates (anchors) from a lease's terms: start date, optional
  first-payment-date override, payment frequency, end date. This is a pure
  computation - nothing here touches storage, so it is safe to recompute on
  every read instead of caching a "next due date" field that could drift
  from the source terms.

ANCHOR RULES:
  - Anchor 0 is FirstPaymentDate if set, else StartDate.
  - weekly steps +7 days, biweekly +14 days.
  - monthly/quarterly/yearly step +1/+3/+12 calendar months measured from the
    ORIGINAL anchor, with day-of-month clamped to the target month's last day.
    Stepping from the original anchor (not the previous clamped anchor) means
    a day-31 lease clamps to Feb 28 and returns to Mar 31 - no cumulative
    drift toward shorter days.
  - No anchor is generated after the lease's end date. Terminating a lease
    moves the end date, so later anchors simply stop existing.

SEE ALSO:
  - report.go: Replays anchors against the ledger
  - lifecycle.go: Owns the terms the schedule reads
*/
package lease

// =============================================================================
// SCHEDULE CALCULATOR - Pure derivation of due dates
// =============================================================================

// firstAnchor returns anchor 0 for the lease.
func firstAnchor(l *LeaseAgreement) Date {
	if l.FirstPaymentDate != nil {
		return *l.FirstPaymentDate
	}
	return l.StartDate
}

// anchorAt returns the i-th anchor (i >= 0) without bounds checking against
// the lease end date.
func anchorAt(l *LeaseAgreement, i int) Date {
	first := firstAnchor(l)
	switch l.Frequency {
	case FreqWeekly:
		return first.AddDays(7 * i)
	case FreqBiweekly:
		return first.AddDays(14 * i)
	case FreqMonthly:
		return first.AddMonthsClamped(i)
	case FreqQuarterly:
		return first.AddMonthsClamped(3 * i)
	case FreqYearly:
		return first.AddMonthsClamped(12 * i)
	default:
		return first
	}
}

// NextDueDate returns the first anchor on or after asOf that still falls
// within the lease term. The second return is false when the lease is not
// active or all periods have elapsed.
func NextDueDate(l *LeaseAgreement, asOf Date) (Date, bool) {
	if l == nil || l.Status != StatusActive || l.Deleted() {
		return Date{}, false
	}
	it := NewScheduleIterator(l)
	for {
		anchor, ok := it.Next()
		if !ok {
			return Date{}, false
		}
		if anchor.AfterOrEqual(asOf) {
			return anchor, true
		}
	}
}

// PeriodsBetween returns every anchor in [from, to], in order. The sequence
// is finite: anchors never extend past the lease end date. Unlike
// NextDueDate this does not gate on status - reporting replays schedules for
// terminated and expired leases too.
func PeriodsBetween(l *LeaseAgreement, from, to Date) []Date {
	if l == nil || to.Before(from) {
		return nil
	}
	var anchors []Date
	it := NewScheduleIterator(l)
	for {
		anchor, ok := it.Next()
		if !ok || anchor.After(to) {
			return anchors
		}
		if anchor.AfterOrEqual(from) {
			anchors = append(anchors, anchor)
		}
	}
}

// ElapsedAnchors returns every anchor strictly before asOf. An anchor that
// lands on asOf is due that day, not yet elapsed, so arrears and
// missing-payment replays exclude it.
func ElapsedAnchors(l *LeaseAgreement, asOf Date) []Date {
	return PeriodsBetween(l, firstAnchor(l), asOf.AddDays(-1))
}

// =============================================================================
// SCHEDULE ITERATOR - Lazy, restartable anchor sequence
// =============================================================================

// ScheduleIterator walks a lease's anchors lazily. Restartable via Reset.
type ScheduleIterator struct {
	lease *LeaseAgreement
	next  int
}

func NewScheduleIterator(l *LeaseAgreement) *ScheduleIterator {
	return &ScheduleIterator{lease: l}
}

// Next returns the next anchor, or false once anchors pass the end date.
func (it *ScheduleIterator) Next() (Date, bool) {
	anchor := anchorAt(it.lease, it.next)
	if anchor.After(it.lease.EndDate) {
		return Date{}, false
	}
	it.next++
	return anchor, true
}

// Reset rewinds the iterator to anchor 0.
func (it *ScheduleIterator) Reset() { it.next = 0 }
