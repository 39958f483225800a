package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check configuration, compiler and kernel isolation support",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), configFlag)
		if err != nil {
			return err
		}
		for _, name := range a.profiles.Names() {
			fmt.Fprintf(cmd.OutOrStdout(), "profile %s: ok\n", name)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "scratch dir: %s\n", a.workspace.Dir())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(probeCmd)
}
