package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/cloradar/cloradar/pkg/db"
	"github.com/urfave/cli/v3"
)

// MigrateCommand creates the migrate command
func MigrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply pending database migrations and show the schema status",
		Action: func(ctx context.Context, c *cli.Command) error {
			// Opening the environment applies pending migrations.
			env, err := openEnvironment(c.String("config"))
			if err != nil {
				return err
			}
			defer env.Close()
			return showMigrationStatus(os.Stdout, env.db)
		},
	}
}

// showMigrationStatus displays the applied and pending migrations of conn.
func showMigrationStatus(w io.Writer, conn *sql.DB) error {
	manager := db.NewMigrationManager(conn)
	applied, err := manager.GetAppliedMigrations()
	if err != nil {
		return err
	}
	available, err := manager.GetAvailableMigrations()
	if err != nil {
		return err
	}

	pending := 0
	fmt.Fprintf(w, "Applied migrations: %d\n", len(applied))
	for _, m := range available {
		at, ok := applied[m.Version]
		if !ok {
			pending++
			continue
		}
		fmt.Fprintf(w, "  ✓ %03d: %s (applied: %s)\n", m.Version, m.Name, at.Format("2006-01-02 15:04:05"))
	}

	fmt.Fprintf(w, "Pending migrations: %d\n", pending)
	for _, m := range available {
		if _, ok := applied[m.Version]; !ok {
			fmt.Fprintf(w, "  • %03d: %s\n", m.Version, m.Name)
		}
	}
	if pending == 0 {
		fmt.Fprintln(w, "  (none - database is up to date)")
	}
	return nil
}
