package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

func newVoicesCmd(a *app) *cobra.Command {
	var silent bool

	cmd := &cobra.Command{
		Use:   "voices",
		Short: "List the voices of the configured speech program",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			synth, err := a.synthesizer(silent)
			if err != nil {
				return err
			}
			defer synth.Close()

			voices := synth.Voices()
			if len(voices) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No voices reported.")
				return nil
			}
			t := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("ID", "NAME", "LANGUAGE")
			for _, v := range voices {
				t.Row(v.ID, v.Name, v.Language)
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return nil
		}),
	}
	cmd.Flags().BoolVar(&silent, "silent", false, "list the voices of the silent synthesizer")
	return cmd
}
