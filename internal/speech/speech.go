// Package speech provides narration.Synthesizer implementations.
package speech

import (
	"sync"

	"github.com/metcalfc/narr/internal/narration"
)

const signalBuffer = 64

// outbox hands out handles and delivers signals until closed.
type outbox struct {
	mu      sync.Mutex
	next    narration.Handle
	signals chan narration.Signal
	closed  chan struct{}
	once    sync.Once
}

func newOutbox() *outbox {
	return &outbox{
		signals: make(chan narration.Signal, signalBuffer),
		closed:  make(chan struct{}),
	}
}

func (o *outbox) handle() narration.Handle {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.next++
	return o.next
}

// send blocks until the signal is taken or the outbox is closed.
func (o *outbox) send(sig narration.Signal) {
	select {
	case o.signals <- sig:
	case <-o.closed:
	}
}

func (o *outbox) close() {
	o.once.Do(func() { close(o.closed) })
}
