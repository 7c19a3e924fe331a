package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/seqsearch/internal/config"
)

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Inspect the reference identity table",
}

var identityLoadCmd = &cobra.Command{
	Use:   "load [header...]",
	Short: "Load the identity table and optionally resolve hit headers against it",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		if a.cfg.Identity.Driver == config.IdentityNone {
			return fmt.Errorf("identity driver is %q, nothing to load", a.cfg.Identity.Driver)
		}

		m, _, _ := a.mapper(cmd.Context())
		if !m.Loaded() {
			return fmt.Errorf("identity table could not be loaded, see log")
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "loaded %d identity records\n", m.Size())
		for _, header := range args {
			rec := m.Resolve(m.ExtractAccession(header))
			fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", rec.Accession, rec.ID, rec.GeneName, rec.ProteinName)
		}
		return nil
	},
}

func init() {
	identityCmd.AddCommand(identityLoadCmd)
}
