package speech

import (
	"sync"
	"time"
	"unicode"

	"github.com/metcalfc/narr/internal/narration"
)

// DefaultWPM is the pace Timed uses when a request names no rate.
const DefaultWPM = 300

// Delay returns how long one word takes at wpm words per minute.
func Delay(wpm int) time.Duration {
	if wpm <= 0 {
		wpm = DefaultWPM
	}
	return time.Duration(60.0/float64(wpm)*1000) * time.Millisecond
}

// Timed is a silent synthesizer. It "speaks" each request at a fixed
// words-per-minute pace and reports a progress signal per word, which makes
// narration usable without audio.
type Timed struct {
	*outbox
	wpm int

	mu      sync.Mutex
	running map[narration.Handle]chan struct{}
}

// NewTimed returns a Timed pacing at wpm when requests carry no rate.
func NewTimed(wpm int) *Timed {
	if wpm <= 0 {
		wpm = DefaultWPM
	}
	return &Timed{
		outbox:  newOutbox(),
		wpm:     wpm,
		running: make(map[narration.Handle]chan struct{}),
	}
}

func (t *Timed) Speak(text string, opts narration.SpeakOptions) (narration.Handle, error) {
	rate := opts.Rate
	if rate <= 0 {
		rate = t.wpm
	}
	starts := wordStarts(text)

	h := t.handle()
	cancel := make(chan struct{})
	t.mu.Lock()
	t.running[h] = cancel
	t.mu.Unlock()

	go func() {
		defer func() {
			t.mu.Lock()
			delete(t.running, h)
			t.mu.Unlock()
			t.send(narration.Signal{Handle: h, Kind: narration.SignalEnded})
		}()

		t.send(narration.Signal{Handle: h, Kind: narration.SignalStarted})
		ticker := time.NewTicker(Delay(rate))
		defer ticker.Stop()
		for _, at := range starts {
			select {
			case <-ticker.C:
			case <-cancel:
				return
			case <-t.closed:
				return
			}
			t.send(narration.Signal{Handle: h, Kind: narration.SignalProgress, CharIndex: at})
		}
	}()
	return h, nil
}

func (t *Timed) Cancel(h narration.Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cancel, ok := t.running[h]; ok {
		close(cancel)
		delete(t.running, h)
	}
}

func (t *Timed) Signals() <-chan narration.Signal { return t.signals }

func (t *Timed) Voices() []narration.Voice {
	return []narration.Voice{{ID: "silent", Name: "Silent", Language: "und"}}
}

func (t *Timed) MaxTextLength() int { return 0 }

// Close stops every request.
func (t *Timed) Close() error {
	t.close()
	return nil
}

// wordStarts returns the rune offset of each word in text.
func wordStarts(text string) []int {
	var starts []int
	inWord := false
	for i, r := range []rune(text) {
		space := unicode.IsSpace(r)
		if !space && !inWord {
			starts = append(starts, i)
		}
		inWord = !space
	}
	return starts
}
