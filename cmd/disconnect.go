package cmd

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Forget the saved database connection",
	Long: `The disconnect command removes db_config.json, any connection string kept
in the OS keychain and every cached result.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.manager.Forget(ctx); err != nil {
			return err
		}
		pterm.Success.Println("Saved connection removed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(disconnectCmd)
}
