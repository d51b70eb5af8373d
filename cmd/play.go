package cmd

import (
	"context"
	"os"
	"time"

	"github.com/metcalfc/narr/internal/config"
	"github.com/metcalfc/narr/internal/models"
	"github.com/metcalfc/narr/internal/narration"
	"github.com/metcalfc/narr/internal/speech"
	"github.com/metcalfc/narr/internal/tui"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type synthesizer interface {
	narration.Synthesizer
	Close() error
}

func newPlayCmd(a *app) *cobra.Command {
	var silent, fresh bool

	cmd := &cobra.Command{
		Use:   "play BOOK|FILE",
		Short: "Narrate a book, importing it first when given a file",
		Long: `Narrate a book from the library, resuming where you stopped. BOOK may be an
ID, a unique ID prefix or a title. A path to an EPUB file is imported first.`,
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{fileLogsOnly: "true"},
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			book, err := a.bookOrImport(ctx, args[0])
			if err != nil {
				return err
			}
			chapters, err := a.store.GetChapters(ctx, book.ID)
			if err != nil {
				return err
			}

			if fresh {
				err := a.store.PutPosition(ctx, &models.Position{BookID: book.ID, UpdatedAt: time.Now()})
				if err != nil {
					return err
				}
			}

			synth, err := a.synthesizer(silent)
			if err != nil {
				return err
			}
			defer synth.Close()

			n := a.cfg.Narration
			engine := narration.New(a.store, synth,
				narration.WithLogger(a.log),
				narration.WithWatchdog(n.Watchdog),
				narration.WithPersistInterval(n.PersistInterval),
				narration.WithSpeakOptions(narration.SpeakOptions{
					Voice: n.Voice,
					Rate:  n.Rate,
					Pitch: n.Pitch,
				}))
			defer func() {
				if err := engine.Destroy(); err != nil && !errors.Is(err, narration.ErrDestroyed) {
					a.log.Warn("failed to close narration", zap.Error(err))
				}
			}()

			if err := engine.Open(ctx, book.ID); err != nil {
				return err
			}
			if err := engine.Play(); err != nil {
				return err
			}
			return tui.Run(engine, book, chapters, a.log)
		}),
	}
	cmd.Flags().BoolVar(&silent, "silent", false, "pace through the text without audio")
	cmd.Flags().BoolVar(&fresh, "fresh", false, "start from the beginning")
	return cmd
}

func (a *app) bookOrImport(ctx context.Context, ref string) (*models.Book, error) {
	if info, err := os.Stat(ref); err == nil && !info.IsDir() {
		report, err := a.importer().ImportFile(ctx, ref)
		if err != nil {
			return nil, err
		}
		return report.Book, nil
	}
	return resolveBook(ctx, a.store, ref)
}

func (a *app) synthesizer(silent bool) (synthesizer, error) {
	n := a.cfg.Narration
	if silent || n.Synth == config.SynthSilent {
		return speech.NewTimed(n.SilentWPM), nil
	}
	synth, err := speech.NewCommand(n.Command,
		speech.WithCommandLogger(a.log),
		speech.WithMaxTextLength(n.MaxTextLength))
	if errors.Is(err, speech.ErrNoSynthesizer) {
		return nil, errors.Wrap(err, "use --silent to narrate without audio")
	}
	return synth, err
}
