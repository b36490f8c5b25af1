// Copyright (c) 2025 Querygate Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"querygate/cli/internal/config"
	"querygate/cli/internal/logging"
)

// dbinfoCmd shows the saved connection with credentials masked.
var dbinfoCmd = &cobra.Command{
	Use:   "dbinfo",
	Short: "Show the saved database connection",
	Long: `The dbinfo command displays the saved connection with the user name and
password masked, so you can check which database commands will run against
without exposing credentials.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.DefaultPath()
		if err != nil {
			return err
		}
		store := config.NewStore(path, secrets())
		rec, err := store.Load()
		if err != nil {
			return err
		}
		if !rec.Configured() {
			pterm.Println("⚠️  No database connection configured")
			pterm.Println("   Please run: querygate connect")
			return nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "kind:        %s\n", rec.DatabaseKind)
		fmt.Fprintf(&b, "connection:  %s\n", logging.Mask(rec.Connection.URI))
		if rec.Connection.Database != "" {
			fmt.Fprintf(&b, "database:    %s\n", rec.Connection.Database)
		}
		fmt.Fprintf(&b, "credentials: %s\n", rec.CredentialSource)
		if rec.LastUpdated != nil {
			fmt.Fprintf(&b, "updated:     %s\n", rec.LastUpdated.Local().Format("2006-01-02 15:04:05"))
		}
		fmt.Fprintf(&b, "config file: %s", store.Path())

		pterm.DefaultBox.
			WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("Database Connection")).
			WithPadding(1).
			Println(b.String())
		pterm.Println()
		pterm.Println("To update this connection, run: querygate connect")
		pterm.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dbinfoCmd)
}
