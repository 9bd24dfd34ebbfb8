package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MrWong99/murmur/pkg/voice"
)

func newVoicesCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "voices",
		Short: "Print the voice table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			p, err := voice.NewPolicy(cfg.Voices.Table())
			if err != nil {
				return err
			}
			return printVoices(cmd.OutOrStdout(), p)
		},
	}
}

// printVoices writes one row per mode: its state, then the male and female
// voice IDs.
func printVoices(w io.Writer, p *voice.Policy) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODE\tSTATE\tMALE\tFEMALE")
	for _, e := range p.Catalogue() {
		state := "enabled"
		if !e.Enabled {
			state = "disabled"
		}
		if e.Default {
			state += " (default)"
		}
		male, female := "-", "-"
		if e.Male != nil {
			male = e.Male.ID
		}
		if e.Female != nil {
			female = e.Female.ID
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Mode, state, male, female)
	}
	return tw.Flush()
}
