package pipeline

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shaneweinberger/Finsight-V2.0/internal/domain"
)

// Date layouts tried in order when normalizing the raw date text. Statements
// in the wild mix ISO dates with US/UK slash formats and spelled-out months.
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"02/01/2006",
	"2006/01/02",
	"Jan 2, 2006",
	"2 Jan 2006",
	"02 Jan 2006",
}

// Normalize turns a batch of raw records into draft transactions. It is a
// pure function with no error path: every input row yields exactly one
// draft. The sign convention is fixed here (outflow negative, inflow
// positive) and never revisited downstream.
func Normalize(records []domain.RawRecord, now time.Time) []DraftTransaction {
	drafts := make([]DraftTransaction, 0, len(records))
	for _, rec := range records {
		drafts = append(drafts, normalizeRecord(rec, now))
	}
	return drafts
}

func normalizeRecord(rec domain.RawRecord, now time.Time) DraftTransaction {
	amount := 0.0
	if out := parseAmountText(rec.RawMoneyOut); out != 0 {
		amount = -math.Abs(out)
	} else if in := parseAmountText(rec.RawMoneyIn); in != 0 {
		amount = math.Abs(in)
	}

	ttype := domain.TypeIncome
	if amount < 0 {
		ttype = domain.TypeExpenditure
	}

	return DraftTransaction{
		ID:          rec.ID,
		Description: rec.RawDescription,
		Amount:      amount,
		Date:        parseDateText(rec.RawDate, now),
		Type:        ttype,
		Account:     rec.Account,
	}
}

// parseAmountText strips everything but digits, dots and minus signs before
// parsing, so "$1,234.56" and "1 234,56 CR" degrade gracefully. Unparseable
// text is treated as zero.
func parseAmountText(s string) float64 {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return 0
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return v
}

// parseDateText attempts a generic parse of the raw date text; on failure it
// falls back to the processing date rather than failing the record.
func parseDateText(s string, now time.Time) time.Time {
	trimmed := strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t
		}
	}
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
