// Command create_user adds an account to the slipbook database.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"slipbook/internal/database"
	"slipbook/models"
)

func main() {
	fs := ff.NewFlagSet("create_user")
	var (
		username = fs.StringLong("username", "", "username (required)")
		email    = fs.StringLong("email", "", "email (default <username>@localhost)")
		password = fs.StringLong("password", "", "plaintext password, min 6 chars (required)")
		admin    = fs.BoolLong("admin", "grant the administrator role")
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
	if *email == "" {
		*email = *username + "@localhost"
	}
	role := models.RoleUser
	if *admin {
		role = models.RoleAdministrator
	}

	db, err := database.Open(*dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	user, err := database.CreateUser(db, *username, *email, *password, role)
	switch {
	case errors.Is(err, database.ErrUserExists):
		fmt.Printf("user %s already exists\n", *username)
	case err != nil:
		fmt.Fprintf(os.Stderr, "create user: %v\n", err)
		os.Exit(1)
	default:
		fmt.Printf("created user %s id=%d role=%s\n", user.Username, user.ID, role)
	}
}
