package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"slipbook/process/report"
)

func main() {
	fs := ff.NewFlagSet("report")
	var (
		username = fs.StringLong("username", "admin", "username to report for")
		month    = fs.StringLong("month", time.Now().UTC().Format("2006-01"), "month to report (YYYY-MM)")
		list     = fs.BoolLong("list", "list matching rows")
		dsn      = fs.StringLong("db-dsn", "", "Postgres DSN")
	)
	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("SLIPBOOK")); err != nil {
		fmt.Fprintf(os.Stderr, "%s\nerror: %v\n", ffhelp.Flags(fs), err)
		os.Exit(2)
	}

	db, err := report.Open(*dsn)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer db.Close()

	rep, err := report.Monthly(context.Background(), db, *username, *month, *list)
	if err != nil {
		fmt.Fprintf(os.Stderr, "report failed: %v\n", err)
		os.Exit(1)
	}
	if err := report.Print(os.Stdout, rep); err != nil {
		fmt.Fprintf(os.Stderr, "print failed: %v\n", err)
		os.Exit(1)
	}
}
