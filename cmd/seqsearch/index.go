package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the BLAST search index",
}

var indexEnsureCmd = &cobra.Command{
	Use:   "ensure",
	Short: "Verify the index and build it from the source FASTA when missing",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		idx := a.index(a.runner())
		if err := idx.EnsureReady(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "index ready: %s\n", idx.DBPath())
		return nil
	},
}

var indexVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that the index files exist and are readable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		idx := a.index(a.runner())
		if !idx.Verify(cmd.Context()) {
			for _, f := range idx.MissingFiles() {
				fmt.Fprintf(cmd.OutOrStdout(), "missing: %s\n", f)
			}
			return fmt.Errorf("index %s failed verification", idx.DBPath())
		}
		fmt.Fprintf(cmd.OutOrStdout(), "index ok: %s\n", idx.DBPath())
		return nil
	},
}

func init() {
	indexCmd.AddCommand(indexEnsureCmd)
	indexCmd.AddCommand(indexVerifyCmd)
}
