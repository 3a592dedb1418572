/*
export.go - CSV export of reports

PURPOSE:
  Renders rent roll and arrears reports as delimited text: header row, one
  row per record, comma-separated, with encoding/csv handling quoting
  (fields containing a comma/quote/newline are double-quoted, quotes doubled
  inside quoted fields).

TAX VARIANT:
  Each export has a variant that scales monetary fields by a caller-supplied
  multiplier before formatting. Purely a presentation transform - the ledger
  is never touched.
*/
package lease

import (
	"io"
	"strconv"
	"time"

	"encoding/csv"

	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// ExportRentRollCSV writes the rent roll as CSV.
func ExportRentRollCSV(w io.Writer, report *RentRoll) error {
	return exportRentRoll(w, report, one)
}

// ExportRentRollTaxCSV writes the rent roll with monetary fields scaled by
// the multiplier.
func ExportRentRollTaxCSV(w io.Writer, report *RentRoll, multiplier decimal.Decimal) error {
	return exportRentRoll(w, report, multiplier)
}

func exportRentRoll(w io.Writer, report *RentRoll, multiplier decimal.Decimal) error {
	cw := csv.NewWriter(w)

	header := []string{"lease_id", "unit_id", "tenant_id", "month", "due", "paid", "balance"}
	if err := cw.Write(header); err != nil {
		return err
	}

	monthLabel := formatMonth(report.Year, report.Month)
	for _, row := range report.Rows {
		record := []string{
			string(row.LeaseID),
			string(row.UnitID),
			string(row.TenantID),
			monthLabel,
			row.Due.Mul(multiplier).String(),
			row.Paid.Mul(multiplier).String(),
			row.Balance.Mul(multiplier).String(),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// ExportArrearsCSV writes the arrears aging report as CSV.
func ExportArrearsCSV(w io.Writer, report *ArrearsReport) error {
	return exportArrears(w, report, one)
}

// ExportArrearsTaxCSV writes the arrears report with monetary fields scaled
// by the multiplier.
func ExportArrearsTaxCSV(w io.Writer, report *ArrearsReport, multiplier decimal.Decimal) error {
	return exportArrears(w, report, multiplier)
}

func exportArrears(w io.Writer, report *ArrearsReport, multiplier decimal.Decimal) error {
	cw := csv.NewWriter(w)

	header := []string{"lease_id", "unit_id", "tenant_id", "as_of", "outstanding", "max_days_past_due", "bucket"}
	if err := cw.Write(header); err != nil {
		return err
	}

	asOf := report.AsOf.String()
	for _, row := range report.Rows {
		record := []string{
			string(row.LeaseID),
			string(row.UnitID),
			string(row.TenantID),
			asOf,
			row.Outstanding.Mul(multiplier).String(),
			strconv.Itoa(row.MaxDaysPastDue),
			string(row.Bucket),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatMonth(year int, month time.Month) string {
	return NewDate(year, month, 1).Time.Format("2006-01")
}
