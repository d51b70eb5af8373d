package cmd

import (
	"fmt"
	"time"

	"github.com/metcalfc/narr/internal/models"
	"github.com/metcalfc/narr/internal/store"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newPositionCmd(a *app) *cobra.Command {
	var reset bool

	cmd := &cobra.Command{
		Use:   "position BOOK",
		Short: "Show or reset the listening position of a book",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			book, err := resolveBook(ctx, a.store, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if reset {
				err := a.store.PutPosition(ctx, &models.Position{BookID: book.ID, UpdatedAt: time.Now()})
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: position reset to the beginning\n", book.Title)
				return nil
			}

			pos, err := a.store.GetPosition(ctx, book.ID)
			if errors.Is(err, store.ErrNotFound) {
				fmt.Fprintf(out, "%s: not started\n", book.Title)
				return nil
			}
			if err != nil {
				return err
			}

			chapters, err := a.store.GetChapters(ctx, book.ID)
			if err != nil {
				return err
			}
			if len(chapters) == 0 {
				fmt.Fprintf(out, "%s: no chapters\n", book.Title)
				return nil
			}
			p := pos.Clamp(chapters)
			ch := chapters[p.ChapterIndex]
			fmt.Fprintf(out, "%s: chapter %d/%d (%s), sentence %d/%d\n",
				book.Title, p.ChapterIndex+1, len(chapters), ch.Title,
				p.SentenceIndex+1, len(ch.Sentences))
			return nil
		}),
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "move the position back to the beginning")
	return cmd
}
