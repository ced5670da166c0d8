package main

import (
	"os"

	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <vehicle>",
	Short: "Show a vehicle's current assignment without a report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initLedger(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		eng, err := newEngine(st, cfg)
		if err != nil {
			return err
		}

		res, err := eng.Inspect(ctx, args[0])
		if err != nil {
			return err
		}
		output, _ := cmd.Flags().GetString("output")
		return writeResult(os.Stdout, res, output)
	},
}

func init() {
	inspectCmd.Flags().String("output", "table", "output format: table or json")
	rootCmd.AddCommand(inspectCmd)
}
