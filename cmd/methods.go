package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/cwbudde/optexplore/internal/opt"
	"github.com/spf13/cobra"
)

var methodsCmd = &cobra.Command{
	Use:   "methods",
	Short: "List available optimization methods",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "METHOD\tFAMILY\tNEEDS")
		fmt.Fprintln(w, "------\t------\t-----")
		for _, m := range opt.Methods() {
			fmt.Fprintf(w, "%s\t%s\t%s\n", m.Name, m.Family, m.Needs)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(methodsCmd)
}
