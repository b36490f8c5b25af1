// Copyright (c) 2025 Querygate Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cmd implements the querygate command line: connecting a store,
// asking questions against it and inspecting its schema and health.
package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"querygate/cli/internal/dbmanager"
	"querygate/cli/internal/errors"
	"querygate/cli/internal/logging"
)

var showVersion bool

var rootCmd = &cobra.Command{
	Use:   "querygate",
	Short: "Run read-only queries against PostgreSQL, MySQL, SQLite and MongoDB",
	Long: `querygate sends questions through a safety gate before they reach your
database. Only read-only queries are executed; results are normalized into
plain records and cached per session.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Initialize()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			fmt.Printf("querygate %s\n", Version)
			return nil
		}
		return cmd.Help()
	},
}

// Execute runs the CLI. Ctrl-C cancels the running command's context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		reportError(err)
		stop()
		os.Exit(1)
	}
}

func reportError(err error) {
	switch {
	case stderrors.Is(err, dbmanager.ErrNotConfigured):
		pterm.Println("⚠️  No database connection configured")
		pterm.Println("   Please run: querygate connect")
	case errors.KindOf(err) != "":
		fmt.Fprintln(os.Stderr, logging.FormatError(err))
	default:
		fmt.Fprintln(os.Stderr, logging.PresentError("", err))
	}
}

func init() {
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "Show CLI version")
}
