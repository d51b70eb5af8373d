package narration

// Handle identifies one speak request. Handles are unique per synthesizer.
type Handle uint64

// SignalKind is the type of a synthesizer notification.
type SignalKind int

const (
	// SignalStarted is sent when audio for a request begins.
	SignalStarted SignalKind = iota
	// SignalProgress is a non-terminal boundary notification.
	SignalProgress
	// SignalEnded is the terminal signal of a request that completed.
	SignalEnded
	// SignalError is the terminal signal of a request that failed.
	SignalError
)

func (k SignalKind) String() string {
	switch k {
	case SignalStarted:
		return "started"
	case SignalProgress:
		return "progress"
	case SignalEnded:
		return "ended"
	case SignalError:
		return "error"
	}
	return "unknown"
}

// Terminal reports whether no further signals follow for the request.
func (k SignalKind) Terminal() bool {
	return k == SignalEnded || k == SignalError
}

// Signal is one asynchronous notification about a request.
type Signal struct {
	Handle Handle
	Kind   SignalKind
	// CharIndex is the offset reached, for progress signals.
	CharIndex int
	Err       error
}

// Voice describes a voice the synthesizer offers.
type Voice struct {
	ID       string
	Name     string
	Language string
}

// SpeakOptions are passed through to the synthesizer unchanged.
type SpeakOptions struct {
	Voice string
	// Rate is words per minute; zero means the synthesizer default.
	Rate  int
	Pitch int
}

// Synthesizer is the text-to-speech capability the engine drives.
//
// Speak must return without waiting for the request to finish, and signals
// must be delivered on the Signals channel in order. Exactly one terminal
// signal follows each accepted request, even after Cancel, which is best
// effort.
type Synthesizer interface {
	Speak(text string, opts SpeakOptions) (Handle, error)
	Cancel(h Handle)
	Signals() <-chan Signal
	Voices() []Voice
	// MaxTextLength is the longest text, in runes, one request accepts.
	// Zero means unlimited.
	MaxTextLength() int
}
