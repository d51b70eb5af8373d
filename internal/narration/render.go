package narration

import (
	"sort"
	"sync"
)

// State is the engine lifecycle state.
type State int

const (
	Idle State = iota
	Loading
	Stopped
	Playing
	Paused
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Error:
		return "error"
	}
	return "unknown"
}

// Ready reports whether transport commands apply in this state.
func (s State) Ready() bool {
	return s == Stopped || s == Playing || s == Paused
}

// Render is the snapshot delivered to subscribers on every transition.
type Render struct {
	State         State
	BookID        string
	ChapterIndex  int
	SentenceIndex int
	TotalChapters int
	ChapterTitle  string
	SentenceText  string
	// Warning carries the latest recoverable problem, if any.
	Warning string
}

// notifier delivers renders in order on its own goroutine so that callbacks
// may call back into the engine.
type notifier struct {
	mu     sync.Mutex
	queue  []Render
	subs   map[int]func(Render)
	nextID int
	wake   chan struct{}
}

func newNotifier() *notifier {
	return &notifier{
		subs: make(map[int]func(Render)),
		wake: make(chan struct{}, 1),
	}
}

func (n *notifier) subscribe(fn func(Render)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.nextID
	n.nextID++
	n.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
		})
	}
}

// publish never blocks.
func (n *notifier) publish(r Render) {
	n.mu.Lock()
	n.queue = append(n.queue, r)
	n.mu.Unlock()

	select {
	case n.wake <- struct{}{}:
	default:
	}
}

// run delivers until stop is closed, then drains what is left.
func (n *notifier) run(stop <-chan struct{}) {
	for {
		select {
		case <-n.wake:
			n.deliver()
		case <-stop:
			n.deliver()
			return
		}
	}
}

func (n *notifier) deliver() {
	for {
		n.mu.Lock()
		if len(n.queue) == 0 {
			n.mu.Unlock()
			return
		}
		r := n.queue[0]
		n.queue = n.queue[1:]
		ids := make([]int, 0, len(n.subs))
		for id := range n.subs {
			ids = append(ids, id)
		}
		fns := make([]func(Render), 0, len(ids))
		sort.Ints(ids)
		for _, id := range ids {
			fns = append(fns, n.subs[id])
		}
		n.mu.Unlock()

		for _, fn := range fns {
			fn(r)
		}
	}
}
