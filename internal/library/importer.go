package library

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/metcalfc/narr/internal/archive"
	"github.com/metcalfc/narr/internal/epub"
	"github.com/metcalfc/narr/internal/models"
	"github.com/metcalfc/narr/internal/reader"
	"github.com/metcalfc/narr/internal/store"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrNoText marks a content document that yielded no sentences.
var ErrNoText = errors.New("no narratable text")

// Report is the outcome of importing one container. Warnings are the
// non-fatal failures met on the way, in spine order.
type Report struct {
	Book     *models.Book
	Chapters []*models.Chapter
	Warnings []error
}

// Narratable reports whether the book has at least one chapter.
func (r *Report) Narratable() bool {
	return len(r.Chapters) > 0
}

// Importer turns containers into persisted books and chapters.
type Importer struct {
	store   store.Store
	log     *zap.Logger
	workers int
	now     func() time.Time
}

// Option configures an Importer.
type Option func(*Importer)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(im *Importer) { im.log = log }
}

// WithWorkers bounds how many content documents are extracted at once.
func WithWorkers(n int) Option {
	return func(im *Importer) {
		if n > 0 {
			im.workers = n
		}
	}
}

// WithClock overrides the import timestamp source.
func WithClock(now func() time.Time) Option {
	return func(im *Importer) { im.now = now }
}

// NewImporter returns an importer that persists into s.
func NewImporter(s store.Store, opts ...Option) *Importer {
	im := &Importer{
		store:   s,
		log:     zap.NewNop(),
		workers: runtime.NumCPU(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(im)
	}
	im.log = im.log.Named("import")
	return im
}

// ImportFile reads and imports the container at filename.
func (im *Importer) ImportFile(ctx context.Context, filename string) (*Report, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if abs, err := filepath.Abs(filename); err == nil {
		filename = abs
	}
	return im.Import(ctx, filename, data)
}

// Import runs the pipeline and persists the book and its chapters. Only an
// unreadable container is an error; everything else becomes a warning.
func (im *Importer) Import(ctx context.Context, source string, data []byte) (*Report, error) {
	report, err := im.Process(ctx, source, data)
	if err != nil {
		return nil, err
	}

	if err := im.store.PutBook(ctx, report.Book); err != nil {
		return nil, errors.Wrap(err, "failed to store book")
	}
	if err := im.store.PutChapters(ctx, report.Book.ID, report.Chapters); err != nil {
		return nil, errors.Wrap(err, "failed to store chapters")
	}

	im.log.Info("imported book",
		zap.String("book_id", report.Book.ID),
		zap.String("title", report.Book.Title),
		zap.Int("chapters", len(report.Chapters)),
		zap.Int("warnings", len(report.Warnings)))
	return report, nil
}

// Process runs the pipeline without persisting anything.
func (im *Importer) Process(ctx context.Context, source string, data []byte) (*Report, error) {
	if !archive.IsZip(data) {
		return nil, errors.Wrapf(archive.ErrContainerCorrupt, "%s: detected %s", source, archive.Sniff(data))
	}
	r, err := archive.FromBytes(data)
	if err != nil {
		return nil, errors.Wrap(err, source)
	}
	defer r.Close()

	bookID := ContentHash(data)
	log := im.log.With(zap.String("book_id", bookID), zap.String("source", source))

	report := &Report{
		Book: &models.Book{
			ID:         bookID,
			Title:      strings.TrimSuffix(filepath.Base(source), filepath.Ext(source)),
			SourcePath: source,
			ImportedAt: im.now(),
		},
		Chapters: []*models.Chapter{},
	}
	warn := func(err error) {
		log.Warn("import warning", zap.Error(err))
		report.Warnings = append(report.Warnings, err)
	}

	pkg, err := loadPackage(r)
	if err != nil {
		// The book is still added so it shows up in the library.
		warn(err)
		return report, nil
	}

	if pkg.Title != "" {
		report.Book.Title = pkg.Title
	}
	report.Book.Author = pkg.Author
	if pkg.CoverPath != "" && r.Has(pkg.CoverPath) {
		report.Book.CoverRef = pkg.CoverPath
		report.Book.CoverMediaType = coverMediaType(r, pkg)
	}

	nav, err := epub.LoadNavigation(r, pkg)
	if err != nil {
		warn(errors.Wrap(err, "navigation"))
	}

	narratable := pkg.Narratable()
	sentences, docWarnings, err := im.extractAll(ctx, r, narratable)
	if err != nil {
		return nil, err
	}
	for _, w := range docWarnings {
		if w != nil {
			warn(w)
		}
	}

	report.Chapters = Assemble(bookID, narratable, nav, sentences)
	report.Book.ChapterCount = len(report.Chapters)
	return report, nil
}

func loadPackage(r *archive.Reader) (*epub.Package, error) {
	opfPath, err := epub.RootfilePath(r)
	if err != nil {
		return nil, err
	}
	data, err := r.ReadEntry(opfPath)
	if err != nil {
		return nil, errors.Wrapf(epub.ErrPackageParse, "read %s: %v", opfPath, err)
	}
	return epub.ParsePackage(opfPath, data)
}

// extractAll tokenizes every narratable document concurrently. Results and
// warnings are indexed by spine position so output order never depends on
// scheduling.
func (im *Importer) extractAll(ctx context.Context, r *archive.Reader, items []epub.SpineItem) ([][]string, []error, error) {
	sentences := make([][]string, len(items))
	warnings := make([]error, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.workers)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if !isDocument(item.MediaType) {
				warnings[i] = errors.Errorf("%s: unsupported media type %q", item.Path, item.MediaType)
				return nil
			}
			markup, err := r.ReadEntry(item.Path)
			if err != nil {
				warnings[i] = errors.Wrapf(err, "document %s", item.ID)
				return nil
			}
			sentences[i] = reader.Tokenize(reader.Extract(markup))
			if len(sentences[i]) == 0 {
				warnings[i] = errors.Wrapf(ErrNoText, "document %s", item.ID)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, errors.WithStack(err)
	}
	return sentences, warnings, nil
}

func isDocument(mediaType string) bool {
	switch strings.ToLower(mediaType) {
	case "", "application/xhtml+xml", "text/html", "application/xml", "text/xml":
		return true
	}
	return false
}

func coverMediaType(r *archive.Reader, pkg *epub.Package) string {
	if pkg.CoverMediaType != "" {
		return pkg.CoverMediaType
	}
	data, err := r.ReadEntry(pkg.CoverPath)
	if err != nil {
		return ""
	}
	return mimetype.Detect(data).String()
}
