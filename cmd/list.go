package cmd

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/metcalfc/narr/internal/store"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List books in the library",
		Args:    cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			books, err := a.store.ListBooks(ctx)
			if err != nil {
				return err
			}
			if len(books) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Library is empty. Add books with: narr import FILE.epub")
				return nil
			}

			t := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("ID", "TITLE", "AUTHOR", "CHAPTERS", "POSITION")
			for _, b := range books {
				where := "-"
				pos, err := a.store.GetPosition(ctx, b.ID)
				switch {
				case err == nil:
					where = fmt.Sprintf("ch %d, s %d", pos.ChapterIndex+1, pos.SentenceIndex+1)
				case !errors.Is(err, store.ErrNotFound):
					return err
				}
				t.Row(shortID(b.ID), b.Title, b.Author, strconv.Itoa(b.ChapterCount), where)
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return nil
		}),
	}
}
