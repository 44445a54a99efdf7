// Command reset_password replaces a user's password hash.
package main

import (
	"fmt"
	"os"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"slipbook/internal/database"
)

func main() {
	fs := ff.NewFlagSet("reset_password")
	var (
		username = fs.StringLong("username", "", "username to reset")
		password = fs.StringLong("password", "", "new plaintext password (min 6 chars)")
		dsn      = fs.StringLong("db-dsn", "", "Postgres DSN")
		_        = fs.StringLong("config", "", "config file (optional)")
	)
	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("SLIPBOOK"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithConfigAllowMissingFile(),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\nerror: %v\n", ffhelp.Flags(fs), err)
		os.Exit(1)
	}
	if *username == "" || *password == "" {
		fmt.Fprintf(os.Stderr, "%s\nerror: --username and --password are required\n", ffhelp.Flags(fs))
		os.Exit(2)
	}
	db, err := database.Open(*dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	if err := database.SetPassword(db, *username, *password); err != nil {
		fmt.Fprintf(os.Stderr, "reset failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("password reset for user %s\n", *username)
}
