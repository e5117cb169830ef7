package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newAudiencesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "audiences",
		Short: "List the configured audiences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t := newTable(cmd)
			t.AppendHeader(table.Row{"NAME", "SCOPE", "BASE URL"})

			for _, d := range a.cfg.Descriptors() {
				base := d.BaseURL
				if base == "" {
					base = "-"
				}
				t.AppendRow(table.Row{d.Name, d.Scope, base})
			}

			t.Render()
			return nil
		},
	}
}

func newTable(cmd *cobra.Command) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	return t
}
