package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "remove BOOK",
		Aliases: []string{"rm"},
		Short:   "Remove a book, its chapters and its position",
		Args:    cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			book, err := resolveBook(ctx, a.store, args[0])
			if err != nil {
				return err
			}
			if err := a.store.DeleteBook(ctx, book.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s [%s]\n", book.Title, shortID(book.ID))
			return nil
		}),
	}
}
