package ledger

import (
	"fmt"
	"sort"
	"time"

	"slipbook/models"
)

type Summary struct {
	Income  float64 `json:"income"`
	Expense float64 `json:"expense"`
	Balance float64 `json:"balance"`
	Count   int     `json:"count"`
}

func Summarize(txs []models.Transaction) Summary {
	var s Summary
	for _, t := range txs {
		switch t.Type {
		case models.TypeIncome:
			s.Income += t.Amount
		case models.TypeExpense:
			s.Expense += t.Amount
		}
	}
	s.Balance = s.Income - s.Expense
	s.Count = len(txs)
	return s
}

// Day is one calendar cell.
type Day struct {
	Date         string               `json:"date"`
	Income       float64              `json:"income"`
	Expense      float64              `json:"expense"`
	Transactions []models.Transaction `json:"transactions"`
}

// ByDay groups transactions by their date in loc, days ascending.
func ByDay(txs []models.Transaction, loc *time.Location) []Day {
	idx := map[string]int{}
	days := []Day{}
	for _, t := range txs {
		key := t.Date.In(loc).Format(time.DateOnly)
		i, ok := idx[key]
		if !ok {
			i = len(days)
			idx[key] = i
			days = append(days, Day{Date: key})
		}
		d := &days[i]
		d.Transactions = append(d.Transactions, t)
		if t.Type == models.TypeIncome {
			d.Income += t.Amount
		} else {
			d.Expense += t.Amount
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	return days
}

// MonthRange parses YYYY-MM into a half-open [from, to) range in loc.
func MonthRange(month string, loc *time.Location) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation("2006-01", month, loc)
	if err != nil {
		return time.Time{}, time.Time{}, &ValidationError{Field: "month", Reason: fmt.Sprintf("expected YYYY-MM, got %q", month)}
	}
	return start, start.AddDate(0, 1, 0), nil
}
