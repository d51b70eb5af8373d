// Package narration drives a text-to-speech synthesizer through a book one
// sentence at a time and keeps the listening position durable.
//
// All engine state is owned by a single reducer goroutine. Commands,
// synthesizer signals and watchdog timeouts are processed there one at a
// time. Every request carries a generation token; signals and timers for any
// other generation are dropped, which is what keeps a late "ended" from
// moving the cursor after a stop.
package narration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/metcalfc/narr/internal/models"
	"github.com/metcalfc/narr/internal/store"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrDestroyed is returned by every call made after Destroy.
var ErrDestroyed = errors.New("narration: engine destroyed")

const (
	DefaultWatchdogTimeout = 30 * time.Second
	DefaultPersistInterval = 2 * time.Second

	noChaptersWarning = "no chapters found"
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithWatchdog sets how long a request may go without any signal.
func WithWatchdog(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.watchdog = d
		}
	}
}

// WithPersistInterval sets the minimum time between throttled position writes.
func WithPersistInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.persistInterval = d
		}
	}
}

// WithSpeakOptions sets the voice parameters passed to every request.
func WithSpeakOptions(opts SpeakOptions) Option {
	return func(e *Engine) { e.speakOpts = opts }
}

type request struct {
	gen    uint64
	handle Handle
	chunks []string
	next   int
	timer  *time.Timer
}

type command struct {
	fn    func() <-chan struct{}
	reply chan (<-chan struct{})
}

// Engine is one narration session. It is safe for concurrent use.
type Engine struct {
	store           store.Store
	synth           Synthesizer
	log             *zap.Logger
	watchdog        time.Duration
	persistInterval time.Duration
	speakOpts       SpeakOptions

	cmds     chan command
	timeouts chan uint64
	done     chan struct{}
	destroy  sync.Once
	wg       sync.WaitGroup

	notifier  *notifier
	persister *persister

	// Reducer-owned state.
	state       State
	bookID      string
	chapters    []*models.Chapter
	chapter     int
	sentence    int
	warning     string
	gen         uint64
	loadGen     uint64
	active      *request
	touched     bool
	failChapter int
	failStreak  int
}

// New starts an engine. Call Destroy to release it.
func New(s store.Store, synth Synthesizer, opts ...Option) *Engine {
	e := &Engine{
		store:           s,
		synth:           synth,
		log:             zap.NewNop(),
		watchdog:        DefaultWatchdogTimeout,
		persistInterval: DefaultPersistInterval,
		cmds:            make(chan command),
		timeouts:        make(chan uint64),
		done:            make(chan struct{}),
		failChapter:     -1,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.Named("narration")
	e.notifier = newNotifier()
	e.persister = newPersister(s, e.log, e.persistInterval)

	e.wg.Add(3)
	go e.run()
	go func() {
		defer e.wg.Done()
		e.notifier.run(e.done)
	}()
	go func() {
		defer e.wg.Done()
		e.persister.run(e.done)
	}()
	return e
}

// Subscribe registers fn for every render. Callbacks run on a dedicated
// goroutine in transition order and may call back into the engine, except
// for Destroy.
func (e *Engine) Subscribe(fn func(Render)) (unsubscribe func()) {
	return e.notifier.subscribe(fn)
}

// Status returns the current render.
func (e *Engine) Status() Render {
	var r Render
	if err := e.exec(func() <-chan struct{} {
		r = e.snapshot()
		return nil
	}); err != nil {
		return Render{State: Idle}
	}
	return r
}

// Open loads the chapters and last position of a book. Any book already open
// is halted and its position flushed first.
func (e *Engine) Open(ctx context.Context, bookID string) error {
	var token uint64
	err := e.exec(func() <-chan struct{} {
		e.halt()
		wait := e.flushIfTouched()

		e.loadGen++
		token = e.loadGen
		e.state = Loading
		e.bookID = bookID
		e.chapters = nil
		e.chapter, e.sentence = 0, 0
		e.warning = ""
		e.touched = false
		e.failChapter, e.failStreak = -1, 0
		e.emit()
		return wait
	})
	if err != nil {
		return err
	}

	chapters, pos, loadErr := e.load(ctx, bookID)

	err = e.exec(func() <-chan struct{} {
		if token != e.loadGen {
			return nil
		}
		if loadErr != nil {
			e.state = Error
			e.warning = loadErr.Error()
			e.emit()
			return nil
		}

		e.chapters = chapters
		e.state = Stopped
		if len(chapters) == 0 {
			e.warning = noChaptersWarning
		} else {
			p := pos.Clamp(chapters)
			e.chapter, e.sentence = p.ChapterIndex, p.SentenceIndex
		}
		e.emit()
		return nil
	})
	if err != nil {
		return err
	}
	return loadErr
}

func (e *Engine) load(ctx context.Context, bookID string) ([]*models.Chapter, models.Position, error) {
	pos := models.Position{BookID: bookID}

	if _, err := e.store.GetBook(ctx, bookID); err != nil {
		return nil, pos, errors.Wrap(err, "load book")
	}
	chapters, err := e.store.GetChapters(ctx, bookID)
	if err != nil {
		return nil, pos, errors.Wrap(err, "load chapters")
	}

	saved, err := e.store.GetPosition(ctx, bookID)
	switch {
	case err == nil:
		pos = *saved
	case errors.Is(err, store.ErrNotFound):
	default:
		// A lost position is not worth refusing playback over.
		e.log.Warn("failed to load position", zap.String("book_id", bookID), zap.Error(err))
	}
	return chapters, pos, nil
}

// Play starts or resumes narration at the cursor.
func (e *Engine) Play() error {
	return e.exec(func() <-chan struct{} {
		if e.state != Stopped && e.state != Paused {
			return nil
		}
		if len(e.chapters) == 0 {
			return nil
		}
		e.touched = true
		e.state = Playing
		e.warning = ""
		e.emit()
		e.issue()
		return nil
	})
}

// Pause stops the in-flight request and keeps the cursor.
func (e *Engine) Pause() error {
	return e.exec(func() <-chan struct{} {
		if e.state != Playing {
			return nil
		}
		e.halt()
		e.state = Paused
		e.emit()
		return e.persister.flush(e.position())
	})
}

// Stop halts narration and persists the cursor before returning.
func (e *Engine) Stop() error {
	return e.exec(func() <-chan struct{} {
		if e.state != Playing && e.state != Paused {
			return nil
		}
		e.halt()
		e.state = Stopped
		e.emit()
		return e.persister.flush(e.position())
	})
}

// Rewind moves to the first sentence of the current chapter.
func (e *Engine) Rewind() error {
	return e.exec(func() <-chan struct{} {
		if !e.state.Ready() || len(e.chapters) == 0 {
			return nil
		}
		if e.sentence == 0 && e.state != Playing {
			return nil
		}
		e.moveTo(e.chapter, 0)
		return nil
	})
}

// Forward moves to the first sentence of the next chapter. It is a no-op in
// the last chapter.
func (e *Engine) Forward() error {
	return e.exec(func() <-chan struct{} {
		if !e.state.Ready() || e.chapter >= len(e.chapters)-1 {
			return nil
		}
		e.moveTo(e.chapter+1, 0)
		return nil
	})
}

// Seek moves the cursor, clamped to valid indices, keeping the play or pause
// state. Seeking to the current cursor does nothing.
func (e *Engine) Seek(chapter, sentence int) error {
	return e.exec(func() <-chan struct{} {
		if !e.state.Ready() || len(e.chapters) == 0 {
			return nil
		}
		p := models.Position{ChapterIndex: chapter, SentenceIndex: sentence}.Clamp(e.chapters)
		if p.ChapterIndex == e.chapter && p.SentenceIndex == e.sentence {
			return nil
		}
		e.moveTo(p.ChapterIndex, p.SentenceIndex)
		return nil
	})
}

// Destroy cancels any request, flushes the position and stops the engine.
// Every later call returns ErrDestroyed.
func (e *Engine) Destroy() error {
	err := ErrDestroyed
	e.destroy.Do(func() {
		err = e.exec(func() <-chan struct{} {
			e.halt()
			wait := e.flushIfTouched()
			e.state = Idle
			e.bookID = ""
			e.chapters = nil
			e.chapter, e.sentence = 0, 0
			e.warning = ""
			e.emit()
			return wait
		})
		close(e.done)
		e.wg.Wait()
	})
	return err
}

func (e *Engine) exec(fn func() <-chan struct{}) error {
	reply := make(chan (<-chan struct{}), 1)
	select {
	case e.cmds <- command{fn: fn, reply: reply}:
	case <-e.done:
		return ErrDestroyed
	}

	var wait <-chan struct{}
	select {
	case wait = <-reply:
	case <-e.done:
		return ErrDestroyed
	}
	if wait != nil {
		<-wait
	}
	return nil
}

func (e *Engine) run() {
	defer e.wg.Done()

	signals := e.synth.Signals()
	for {
		select {
		case cmd := <-e.cmds:
			cmd.reply <- cmd.fn()
		case sig, ok := <-signals:
			if !ok {
				signals = nil
				continue
			}
			e.onSignal(sig)
		case gen := <-e.timeouts:
			e.onTimeout(gen)
		case <-e.done:
			return
		}
	}
}

func (e *Engine) onSignal(sig Signal) {
	req := e.active
	if req == nil || sig.Handle != req.handle {
		e.log.Debug("dropping stale signal",
			zap.Uint64("handle", uint64(sig.Handle)),
			zap.Stringer("kind", sig.Kind))
		return
	}

	switch sig.Kind {
	case SignalStarted, SignalProgress:
		e.armWatchdog()
	case SignalError:
		err := sig.Err
		if err == nil {
			err = errors.New("synthesizer reported an error")
		}
		e.onFailure(err)
	case SignalEnded:
		req.timer.Stop()
		req.next++
		if req.next < len(req.chunks) {
			if err := e.startChunk(); err != nil {
				e.onFailure(err)
			}
			return
		}
		e.active = nil
		e.failStreak = 0
		e.advance()
	}
}

func (e *Engine) onTimeout(gen uint64) {
	if e.active == nil || e.active.gen != gen {
		return
	}
	e.onFailure(errors.Errorf("no signal within %s", e.watchdog))
}

func (e *Engine) onFailure(err error) {
	e.halt()
	if !e.recordFailure(err) {
		return
	}
	e.advance()
}

// advance moves past the sentence just finished and narrates the next one,
// or completes the book.
func (e *Engine) advance() {
	c, s, ok := e.next(e.chapter, e.sentence+1)
	if !ok {
		e.complete()
		return
	}
	e.chapter, e.sentence = c, s
	e.emit()
	e.persister.update(e.position())
	e.issue()
}

// issue requests the sentence at the cursor. Requests the synthesizer
// refuses outright count as failed sentences.
func (e *Engine) issue() {
	for e.state == Playing {
		c, s, ok := e.next(e.chapter, e.sentence)
		if !ok {
			e.complete()
			return
		}
		if c != e.chapter || s != e.sentence {
			e.chapter, e.sentence = c, s
			e.emit()
		}

		text := e.chapters[e.chapter].Sentences[e.sentence]
		chunks := Chunk(text, e.synth.MaxTextLength())
		if len(chunks) == 0 {
			chunks = []string{text}
		}
		e.active = &request{chunks: chunks}
		err := e.startChunk()
		if err == nil {
			return
		}

		e.active = nil
		if !e.recordFailure(err) {
			return
		}
		c, s, ok = e.next(e.chapter, e.sentence+1)
		if !ok {
			e.complete()
			return
		}
		e.chapter, e.sentence = c, s
		e.emit()
	}
}

func (e *Engine) startChunk() error {
	req := e.active
	e.gen++
	req.gen = e.gen
	h, err := e.synth.Speak(req.chunks[req.next], e.speakOpts)
	if err != nil {
		return errors.Wrap(err, "speak")
	}
	req.handle = h
	e.armWatchdog()
	return nil
}

func (e *Engine) armWatchdog() {
	req := e.active
	if req.timer != nil {
		req.timer.Stop()
	}
	gen := req.gen
	req.timer = time.AfterFunc(e.watchdog, func() {
		select {
		case e.timeouts <- gen:
		case <-e.done:
		}
	})
}

// halt cancels the outstanding request, if any, and retires its generation.
func (e *Engine) halt() {
	if req := e.active; req != nil {
		if req.timer != nil {
			req.timer.Stop()
		}
		e.synth.Cancel(req.handle)
		e.active = nil
	}
	e.gen++
}

// recordFailure logs a skipped sentence. It returns false, after entering the
// error state, once every sentence of the chapter has failed in a row.
func (e *Engine) recordFailure(err error) bool {
	e.log.Warn("skipping sentence",
		zap.String("book_id", e.bookID),
		zap.Int("chapter", e.chapter),
		zap.Int("sentence", e.sentence),
		zap.Error(err))

	if e.failChapter != e.chapter {
		e.failChapter, e.failStreak = e.chapter, 0
	}
	e.failStreak++
	e.warning = fmt.Sprintf("skipped sentence %d: %v", e.sentence+1, err)

	if e.failStreak >= len(e.chapters[e.chapter].Sentences) {
		e.active = nil
		e.state = Error
		e.warning = fmt.Sprintf("narration failed for every sentence of chapter %d: %v", e.chapter+1, err)
		e.emit()
		e.persister.flush(e.position())
		return false
	}
	return true
}

// complete stops at the final sentence once the book has been narrated.
func (e *Engine) complete() {
	e.active = nil
	e.state = Stopped
	e.emit()
	e.persister.flush(e.position())
}

// moveTo sets the cursor, restarting narration when playing.
func (e *Engine) moveTo(chapter, sentence int) {
	playing := e.state == Playing
	e.halt()
	e.touched = true
	e.chapter, e.sentence = chapter, sentence
	e.failChapter, e.failStreak = -1, 0
	e.emit()
	e.persister.update(e.position())
	if playing {
		e.issue()
	}
}

// next returns the first narratable cursor at or after (chapter, sentence),
// skipping empty chapters.
func (e *Engine) next(chapter, sentence int) (int, int, bool) {
	for c := chapter; c < len(e.chapters); c++ {
		if sentence < len(e.chapters[c].Sentences) {
			return c, sentence, true
		}
		sentence = 0
	}
	return 0, 0, false
}

func (e *Engine) flushIfTouched() <-chan struct{} {
	if !e.touched || e.bookID == "" || len(e.chapters) == 0 {
		return nil
	}
	return e.persister.flush(e.position())
}

func (e *Engine) position() models.Position {
	return models.Position{BookID: e.bookID, ChapterIndex: e.chapter, SentenceIndex: e.sentence}
}

func (e *Engine) emit() {
	e.notifier.publish(e.snapshot())
}

func (e *Engine) snapshot() Render {
	r := Render{
		State:         e.state,
		BookID:        e.bookID,
		ChapterIndex:  e.chapter,
		SentenceIndex: e.sentence,
		TotalChapters: len(e.chapters),
		Warning:       e.warning,
	}
	if e.chapter < len(e.chapters) {
		ch := e.chapters[e.chapter]
		r.ChapterTitle = ch.Title
		if e.sentence < len(ch.Sentences) {
			r.SentenceText = ch.Sentences[e.sentence]
		}
	}
	return r
}
