package speech

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/metcalfc/narr/internal/narration"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrNoSynthesizer is returned when no speech command can be found.
var ErrNoSynthesizer = errors.New("no speech synthesizer found (install espeak-ng)")

// DefaultMaxTextLength bounds the text passed in one invocation.
const DefaultMaxTextLength = 4000

// DefaultHeartbeat is how often a running request reports progress. It is
// shorter than the smallest watchdog the engine accepts.
const DefaultHeartbeat = 500 * time.Millisecond

const waitDelay = time.Second

// Candidates are the commands NewCommand looks for, in order.
var Candidates = []string{"espeak-ng", "espeak", "say"}

// ArgsFunc builds the argument list for one request.
type ArgsFunc func(text string, opts narration.SpeakOptions) []string

// CommandOption configures a Command.
type CommandOption func(*Command)

// WithCommandLogger sets the logger.
func WithCommandLogger(log *zap.Logger) CommandOption {
	return func(c *Command) { c.log = log }
}

// WithArgs overrides how arguments are built for the program.
func WithArgs(fn ArgsFunc) CommandOption {
	return func(c *Command) { c.args = fn }
}

// WithMaxTextLength overrides DefaultMaxTextLength.
func WithMaxTextLength(n int) CommandOption {
	return func(c *Command) { c.maxLen = n }
}

// WithHeartbeat overrides DefaultHeartbeat.
func WithHeartbeat(d time.Duration) CommandOption {
	return func(c *Command) { c.heartbeat = d }
}

// Command speaks each request by running an external program. Cancelling a
// request kills its process.
type Command struct {
	*outbox
	path      string
	args      ArgsFunc
	log       *zap.Logger
	maxLen    int
	heartbeat time.Duration

	mu      sync.Mutex
	running map[narration.Handle]context.CancelFunc
}

// NewCommand returns a synthesizer for program, or for the first of
// Candidates on PATH when program is empty.
func NewCommand(program string, opts ...CommandOption) (*Command, error) {
	path, err := lookup(program)
	if err != nil {
		return nil, err
	}

	c := &Command{
		outbox:    newOutbox(),
		path:      path,
		args:      argsFor(path),
		log:       zap.NewNop(),
		maxLen:    DefaultMaxTextLength,
		heartbeat: DefaultHeartbeat,
		running:   make(map[narration.Handle]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.Named("speech")
	return c, nil
}

func lookup(program string) (string, error) {
	if program != "" {
		path, err := exec.LookPath(program)
		if err != nil {
			return "", errors.Wrapf(err, "speech command %q", program)
		}
		return path, nil
	}
	for _, name := range Candidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", ErrNoSynthesizer
}

func argsFor(path string) ArgsFunc {
	if filepath.Base(path) == "say" {
		return SayArgs
	}
	return ESpeakArgs
}

// ESpeakArgs builds arguments for espeak and espeak-ng.
func ESpeakArgs(text string, opts narration.SpeakOptions) []string {
	var args []string
	if opts.Voice != "" {
		args = append(args, "-v", opts.Voice)
	}
	if opts.Rate > 0 {
		args = append(args, "-s", strconv.Itoa(opts.Rate))
	}
	if opts.Pitch > 0 {
		args = append(args, "-p", strconv.Itoa(opts.Pitch))
	}
	return append(args, "--", text)
}

// SayArgs builds arguments for the macOS say command, which has no pitch
// flag.
func SayArgs(text string, opts narration.SpeakOptions) []string {
	var args []string
	if opts.Voice != "" {
		args = append(args, "-v", opts.Voice)
	}
	if opts.Rate > 0 {
		args = append(args, "-r", strconv.Itoa(opts.Rate))
	}
	return append(args, "--", text)
}

// Speak starts the program and returns once it is running.
func (c *Command) Speak(text string, opts narration.SpeakOptions) (narration.Handle, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, c.path, c.args(text, opts)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	if err := cmd.Start(); err != nil {
		cancel()
		return 0, errors.Wrapf(err, "start %s", filepath.Base(c.path))
	}

	h := c.handle()
	c.mu.Lock()
	c.running[h] = cancel
	c.mu.Unlock()

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	go func() {
		c.send(narration.Signal{Handle: h, Kind: narration.SignalStarted})
		err := c.wait(h, exited)

		c.mu.Lock()
		delete(c.running, h)
		c.mu.Unlock()
		cancelled := ctx.Err() != nil
		cancel()

		switch {
		case err == nil || cancelled:
			c.send(narration.Signal{Handle: h, Kind: narration.SignalEnded})
		default:
			c.log.Debug("speech command failed",
				zap.Uint64("handle", uint64(h)),
				zap.String("stderr", strings.TrimSpace(stderr.String())),
				zap.Error(err))
			c.send(narration.Signal{
				Handle: h,
				Kind:   narration.SignalError,
				Err:    errors.Wrap(err, filepath.Base(c.path)),
			})
		}
	}()
	return h, nil
}

// wait reports progress for h on every heartbeat until its process exits.
// Espeak and say give no word boundaries, so CharIndex stays zero.
func (c *Command) wait(h narration.Handle, exited <-chan error) error {
	if c.heartbeat <= 0 {
		return <-exited
	}
	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case err := <-exited:
			return err
		case <-ticker.C:
			c.send(narration.Signal{Handle: h, Kind: narration.SignalProgress})
		}
	}
}

// Cancel kills the process of h if it is still running.
func (c *Command) Cancel(h narration.Handle) {
	c.mu.Lock()
	cancel, ok := c.running[h]
	c.mu.Unlock()
	if ok {
		cancel()
	}
}

// Signals implements narration.Synthesizer.
func (c *Command) Signals() <-chan narration.Signal { return c.signals }

// MaxTextLength implements narration.Synthesizer.
func (c *Command) MaxTextLength() int { return c.maxLen }

// Voices lists the voices the program reports. Errors yield an empty list.
func (c *Command) Voices() []narration.Voice {
	var args []string
	parse := ParseESpeakVoices
	if filepath.Base(c.path) == "say" {
		args, parse = []string{"-v", "?"}, ParseSayVoices
	} else {
		args = []string{"--voices"}
	}

	out, err := exec.Command(c.path, args...).Output()
	if err != nil {
		c.log.Warn("failed to list voices", zap.Error(err))
		return nil
	}
	return parse(out)
}

// Close kills every running process and stops signal delivery.
func (c *Command) Close() error {
	c.mu.Lock()
	for _, cancel := range c.running {
		cancel()
	}
	c.mu.Unlock()
	c.close()
	return nil
}

// ParseESpeakVoices reads the table printed by "espeak-ng --voices".
//
//	Pty Language       Age/Gender VoiceName          File                 Other Languages
//	 5  af              --/M      Afrikaans          gmw/af
func ParseESpeakVoices(out []byte) []narration.Voice {
	var voices []narration.Voice
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 5 || fields[0] == "Pty" {
			continue
		}
		voices = append(voices, narration.Voice{
			ID:       fields[4],
			Name:     fields[3],
			Language: fields[1],
		})
	}
	return voices
}

// ParseSayVoices reads the list printed by "say -v ?".
//
//	Alex                en_US    # Most people recognize me by my voice.
func ParseSayVoices(out []byte) []narration.Voice {
	var voices []narration.Voice
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		name := strings.Join(fields[:len(fields)-1], " ")
		voices = append(voices, narration.Voice{
			ID:       name,
			Name:     name,
			Language: fields[len(fields)-1],
		})
	}
	return voices
}
