package narration

import (
	"context"
	"sync"
	"time"

	"github.com/metcalfc/narr/internal/models"
	"github.com/metcalfc/narr/internal/store"
	"go.uber.org/zap"
)

const writeTimeout = 5 * time.Second

// persister writes positions off the reducer goroutine. Updates are
// coalesced and throttled to one write per interval with a trailing write;
// flushes write immediately. Failed writes stay pending and are retried with
// the next update.
type persister struct {
	store    store.Store
	log      *zap.Logger
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	latest  *models.Position
	flushes []chan struct{}
	wake    chan struct{}
}

func newPersister(s store.Store, log *zap.Logger, interval time.Duration) *persister {
	return &persister{
		store:    s,
		log:      log,
		interval: interval,
		now:      time.Now,
		wake:     make(chan struct{}, 1),
	}
}

// update records a new position for a throttled write. It never blocks.
func (p *persister) update(pos models.Position) {
	p.mu.Lock()
	p.latest = &pos
	p.mu.Unlock()
	p.poke()
}

// flush records pos and returns a channel closed once it has been written
// or the write has failed.
func (p *persister) flush(pos models.Position) <-chan struct{} {
	done := make(chan struct{})
	p.mu.Lock()
	p.latest = &pos
	p.flushes = append(p.flushes, done)
	p.mu.Unlock()
	p.poke()
	return done
}

func (p *persister) poke() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *persister) run(stop <-chan struct{}) {
	var (
		pending   *models.Position
		written   *models.Position
		lastWrite time.Time
		timer     *time.Timer
		timerC    <-chan time.Time
	)

	write := func() {
		if timer != nil {
			timer.Stop()
			timer, timerC = nil, nil
		}
		if pending == nil {
			return
		}
		if written != nil && samePosition(*written, *pending) {
			pending = nil
			return
		}

		pos := *pending
		pos.UpdatedAt = p.now()
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := p.store.PutPosition(ctx, &pos)
		cancel()
		lastWrite = p.now()
		if err != nil {
			p.log.Warn("failed to persist position",
				zap.String("book_id", pos.BookID),
				zap.Int("chapter", pos.ChapterIndex),
				zap.Int("sentence", pos.SentenceIndex),
				zap.Error(err))
			return
		}
		written, pending = &pos, nil
	}

	take := func() []chan struct{} {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.latest != nil {
			pending, p.latest = p.latest, nil
		}
		flushes := p.flushes
		p.flushes = nil
		return flushes
	}

	for {
		select {
		case <-p.wake:
			flushes := take()
			if len(flushes) > 0 {
				write()
				for _, done := range flushes {
					close(done)
				}
				continue
			}
			if pending == nil {
				continue
			}
			if wait := p.interval - p.now().Sub(lastWrite); wait <= 0 {
				write()
			} else if timer == nil {
				timer = time.NewTimer(wait)
				timerC = timer.C
			}
		case <-timerC:
			timer, timerC = nil, nil
			write()
		case <-stop:
			for _, done := range take() {
				defer close(done)
			}
			write()
			return
		}
	}
}

func samePosition(a, b models.Position) bool {
	return a.BookID == b.BookID && a.ChapterIndex == b.ChapterIndex && a.SentenceIndex == b.SentenceIndex
}
