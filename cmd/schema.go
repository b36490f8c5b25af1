package cmd

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

var (
	schemaRefresh bool
	schemaJSON    bool
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Show tables or collections of the connected database",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := connected(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		s, err := a.manager.Schema(ctx, schemaRefresh)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if schemaJSON {
			b, err := json.MarshalIndent(s, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(w, string(b))
			return nil
		}
		printSchema(w, s)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
	schemaCmd.Flags().BoolVar(&schemaRefresh, "refresh", false, "Re-read the schema instead of using the cached copy")
	schemaCmd.Flags().BoolVar(&schemaJSON, "json", false, "Print the schema as JSON")
}
