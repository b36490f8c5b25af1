package cmd

import (
	"fmt"
	"sort"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"querygate/cli/internal/backend"
	"querygate/cli/internal/connhint"
	"querygate/cli/internal/errors"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the connected database and the result cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := connected(ctx)
		if err != nil {
			if errors.Is(err, errors.Connection) {
				connhint.Show(err, "connecting to the saved database")
			}
			return err
		}
		defer a.close()

		report := a.manager.Health(ctx)
		w := cmd.OutOrStdout()

		if report.Status == backend.StatusHealthy {
			pterm.Success.Printfln("%s is healthy", report.Dialect)
		} else {
			pterm.Error.Printfln("%s is unhealthy: %s", report.Dialect, report.Error)
		}

		keys := make([]string, 0, len(report.Details))
		for k := range report.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		data := pterm.TableData{}
		for _, k := range keys {
			data = append(data, []string{k, cell(report.Details[k])})
		}
		if p := report.Pool; p != nil {
			data = append(data, []string{"pool", fmt.Sprintf("%d open, %d idle, %d in use, max %d", p.Total, p.Idle, p.InUse, p.Max)})
		}
		cs := a.cache.Stats()
		data = append(data, []string{"cache", fmt.Sprintf("%s (enabled=%t)", cs.Backend, cs.Enabled)})
		out, err := pterm.DefaultTable.WithData(data).Srender()
		if err != nil {
			return err
		}
		fmt.Fprintln(w, out)

		if report.Status != backend.StatusHealthy {
			return errors.New(errors.Connection, "database is unhealthy")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
