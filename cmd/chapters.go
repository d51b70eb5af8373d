package cmd

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

func newChaptersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chapters BOOK",
		Short: "List the chapters of a book",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			book, err := resolveBook(ctx, a.store, args[0])
			if err != nil {
				return err
			}
			chapters, err := a.store.GetChapters(ctx, book.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s by %s\n", book.Title, book.Author)
			if len(chapters) == 0 {
				fmt.Fprintln(out, "No chapters.")
				return nil
			}

			t := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("#", "TITLE", "SENTENCES", "SOURCE")
			for i, ch := range chapters {
				t.Row(strconv.Itoa(i+1), ch.Title, strconv.Itoa(len(ch.Sentences)), ch.SourceRef)
			}
			fmt.Fprintln(out, t.Render())
			return nil
		}),
	}
}
