package cmd

import (
	"fmt"

	"github.com/metcalfc/narr/internal/library"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE...",
		Short: "Import EPUB files into the library",
		Args:  cobra.MinimumNArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			im := a.importer()

			failed := 0
			for _, path := range args {
				report, err := im.ImportFile(cmd.Context(), path)
				if err != nil {
					failed++
					a.log.Error("import failed", zap.String("file", path), zap.Error(err))
					fmt.Fprintf(out, "✗ %s: %v\n", path, err)
					continue
				}

				fmt.Fprintf(out, "✓ %s [%s] %d chapters\n",
					report.Book.Title, shortID(report.Book.ID), len(report.Chapters))
				for _, w := range report.Warnings {
					fmt.Fprintf(out, "    warning: %v\n", w)
				}
				if !report.Narratable() {
					fmt.Fprintln(out, "    no narratable chapters")
				}
			}

			if failed > 0 {
				return errors.Errorf("%d of %d imports failed", failed, len(args))
			}
			return nil
		}),
	}
}

func (a *app) importer() *library.Importer {
	return library.NewImporter(a.store,
		library.WithLogger(a.log),
		library.WithWorkers(a.cfg.Import.Workers))
}
