// Package report builds the monthly income/expense report straight from SQL.
package report

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open connects through the pgx database/sql driver.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return db, nil
}

type CategoryTotal struct {
	Type     string
	Category string
	Total    float64
	Count    int64
}

type Row struct {
	ID          int64
	Date        time.Time
	Type        string
	Category    string
	Amount      float64
	Description string
}

type Report struct {
	Username   string
	Month      string
	Income     float64
	Expense    float64
	Count      int64
	Categories []CategoryTotal
	Rows       []Row
}

func (r Report) Balance() float64 { return r.Income - r.Expense }

// MonthBounds returns the UTC [start, end) range of a YYYY-MM month.
func MonthBounds(month string) (time.Time, time.Time, error) {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid month format, expected YYYY-MM: %w", err)
	}
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0), nil
}

// Monthly builds the report for username. With list set it also returns
// every matching transaction.
func Monthly(ctx context.Context, db *sql.DB, username, month string, list bool) (Report, error) {
	start, end, err := MonthBounds(month)
	if err != nil {
		return Report{}, err
	}
	rep := Report{Username: username, Month: month}

	var userID int64
	if err := db.QueryRowContext(ctx, `SELECT id FROM users WHERE username = $1 AND deleted_at IS NULL`, username).Scan(&userID); err != nil {
		return rep, fmt.Errorf("user %q: %w", username, err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT type, category, COALESCE(SUM(amount), 0), COUNT(*)
		FROM transactions
		WHERE user_id = $1 AND date >= $2 AND date < $3
		GROUP BY type, category
		ORDER BY type, SUM(amount) DESC`, userID, start, end)
	if err != nil {
		return rep, fmt.Errorf("query totals: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ct CategoryTotal
		if err := rows.Scan(&ct.Type, &ct.Category, &ct.Total, &ct.Count); err != nil {
			return rep, fmt.Errorf("scan totals: %w", err)
		}
		rep.add(ct)
	}
	if err := rows.Err(); err != nil {
		return rep, fmt.Errorf("rows err: %w", err)
	}

	if !list {
		return rep, nil
	}
	txRows, err := db.QueryContext(ctx, `
		SELECT id, date, type, category, amount, COALESCE(description, '')
		FROM transactions
		WHERE user_id = $1 AND date >= $2 AND date < $3
		ORDER BY date, id`, userID, start, end)
	if err != nil {
		return rep, fmt.Errorf("query rows: %w", err)
	}
	defer txRows.Close()
	for txRows.Next() {
		var r Row
		if err := txRows.Scan(&r.ID, &r.Date, &r.Type, &r.Category, &r.Amount, &r.Description); err != nil {
			return rep, fmt.Errorf("scan row: %w", err)
		}
		rep.Rows = append(rep.Rows, r)
	}
	return rep, txRows.Err()
}

func (r *Report) add(ct CategoryTotal) {
	r.Categories = append(r.Categories, ct)
	r.Count += ct.Count
	switch ct.Type {
	case "income":
		r.Income += ct.Total
	case "expense":
		r.Expense += ct.Total
	}
}

// Print writes a plain-text rendering of r.
func Print(w io.Writer, r Report) error {
	fmt.Fprintf(w, "Report for user=%s month=%s (UTC):\n", r.Username, r.Month)
	fmt.Fprintf(w, "  records=%d income=%.2f expense=%.2f balance=%.2f\n", r.Count, r.Income, r.Expense, r.Balance())
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, c := range r.Categories {
		fmt.Fprintf(tw, "  %s\t%s\t%.2f\t(%d)\n", c.Type, c.Category, c.Total, c.Count)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, row := range r.Rows {
		fmt.Fprintf(w, "%d|%s|%s|%s|%.2f|%s\n", row.ID, row.Date.Format(time.DateOnly), row.Type, row.Category, row.Amount, row.Description)
	}
	return nil
}
