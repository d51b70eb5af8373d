package speech

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/metcalfc/narr/internal/models"
	"github.com/metcalfc/narr/internal/narration"
	"github.com/metcalfc/narr/internal/store/memstore"
	"github.com/metcalfc/narr/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, signals <-chan narration.Signal) narration.Signal {
	t.Helper()
	select {
	case sig := <-signals:
		return sig
	case <-time.After(5 * time.Second):
		t.Fatal("no signal received")
		return narration.Signal{}
	}
}

func TestDelay(t *testing.T) {
	assert.Equal(t, 200*time.Millisecond, Delay(300))
	assert.Equal(t, 100*time.Millisecond, Delay(600))
	assert.Equal(t, Delay(DefaultWPM), Delay(0))
}

func TestWordStarts(t *testing.T) {
	assert.Equal(t, []int{0, 5, 9}, wordStarts("The  cat sat."))
	assert.Equal(t, []int{1, 7}, wordStarts(" naïve café"))
	assert.Nil(t, wordStarts("   "))
}

func TestTimedSignals(t *testing.T) {
	synth := NewTimed(300)
	defer synth.Close()

	h, err := synth.Speak("One two three", narration.SpeakOptions{Rate: 60000})
	require.NoError(t, err)

	var kinds []narration.SignalKind
	var offsets []int
	for {
		sig := receive(t, synth.Signals())
		assert.Equal(t, h, sig.Handle)
		kinds = append(kinds, sig.Kind)
		if sig.Kind == narration.SignalProgress {
			offsets = append(offsets, sig.CharIndex)
		}
		if sig.Kind.Terminal() {
			break
		}
	}

	assert.Equal(t, []narration.SignalKind{
		narration.SignalStarted,
		narration.SignalProgress,
		narration.SignalProgress,
		narration.SignalProgress,
		narration.SignalEnded,
	}, kinds)
	assert.Equal(t, []int{0, 4, 8}, offsets)
}

func TestTimedCancel(t *testing.T) {
	synth := NewTimed(1)
	defer synth.Close()

	h, err := synth.Speak("a very slow sentence", narration.SpeakOptions{})
	require.NoError(t, err)
	assert.Equal(t, narration.SignalStarted, receive(t, synth.Signals()).Kind)

	synth.Cancel(h)
	sig := receive(t, synth.Signals())
	assert.Equal(t, h, sig.Handle)
	assert.Equal(t, narration.SignalEnded, sig.Kind)

	// Cancelling twice or an unknown handle is harmless.
	synth.Cancel(h)
	synth.Cancel(h + 100)
}

func TestTimedHandlesAreUnique(t *testing.T) {
	synth := NewTimed(60000)
	defer synth.Close()

	a, err := synth.Speak("a", narration.SpeakOptions{})
	require.NoError(t, err)
	b, err := synth.Speak("b", narration.SpeakOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestArgs(t *testing.T) {
	opts := narration.SpeakOptions{Voice: "en-us", Rate: 180, Pitch: 40}
	assert.Equal(t,
		[]string{"-v", "en-us", "-s", "180", "-p", "40", "--", "-dash first"},
		ESpeakArgs("-dash first", opts))
	assert.Equal(t,
		[]string{"-v", "en-us", "-r", "180", "--", "Hello."},
		SayArgs("Hello.", opts))
	assert.Equal(t, []string{"--", "Hello."}, ESpeakArgs("Hello.", narration.SpeakOptions{}))
}

func TestParseESpeakVoices(t *testing.T) {
	out := []byte(`Pty Language       Age/Gender VoiceName          File                 Other Languages
 5  af              --/M      Afrikaans          gmw/af
 2  en-us           --/M      English_(America)  gmw/en-US            (en 3)
`)
	assert.Equal(t, []narration.Voice{
		{ID: "gmw/af", Name: "Afrikaans", Language: "af"},
		{ID: "gmw/en-US", Name: "English_(America)", Language: "en-us"},
	}, ParseESpeakVoices(out))
}

func TestParseSayVoices(t *testing.T) {
	out := []byte(`Alex                en_US    # Most people recognize me by my voice.
Bad News            en_US    # The light you see at the end of the tunnel is the headlamp.
`)
	assert.Equal(t, []narration.Voice{
		{ID: "Alex", Name: "Alex", Language: "en_US"},
		{ID: "Bad News", Name: "Bad News", Language: "en_US"},
	}, ParseSayVoices(out))
}

func shell(t *testing.T, script string, opts ...CommandOption) *Command {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	opts = append([]CommandOption{WithArgs(func(string, narration.SpeakOptions) []string {
		return []string{"-c", script}
	})}, opts...)
	c, err := NewCommand("sh", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCommandEnded(t *testing.T) {
	c := shell(t, "exit 0")

	h, err := c.Speak("hello", narration.SpeakOptions{})
	require.NoError(t, err)

	assert.Equal(t, narration.SignalStarted, receive(t, c.Signals()).Kind)
	sig := receive(t, c.Signals())
	assert.Equal(t, h, sig.Handle)
	assert.Equal(t, narration.SignalEnded, sig.Kind)
}

func TestCommandError(t *testing.T) {
	c := shell(t, "echo broken >&2; exit 3")

	_, err := c.Speak("hello", narration.SpeakOptions{})
	require.NoError(t, err)

	receive(t, c.Signals())
	sig := receive(t, c.Signals())
	assert.Equal(t, narration.SignalError, sig.Kind)
	assert.Error(t, sig.Err)
}

func TestCommandCancel(t *testing.T) {
	c := shell(t, "exec sleep 30")

	h, err := c.Speak("hello", narration.SpeakOptions{})
	require.NoError(t, err)
	receive(t, c.Signals())

	c.Cancel(h)
	sig := receive(t, c.Signals())
	assert.Equal(t, h, sig.Handle)
	assert.Equal(t, narration.SignalEnded, sig.Kind)
}

func TestCommandHeartbeat(t *testing.T) {
	c := shell(t, "exec sleep 30", WithHeartbeat(20*time.Millisecond))

	h, err := c.Speak("hello", narration.SpeakOptions{})
	require.NoError(t, err)
	assert.Equal(t, narration.SignalStarted, receive(t, c.Signals()).Kind)

	sig := receive(t, c.Signals())
	assert.Equal(t, h, sig.Handle)
	assert.Equal(t, narration.SignalProgress, sig.Kind)

	c.Cancel(h)
	for {
		sig = receive(t, c.Signals())
		if sig.Kind != narration.SignalProgress {
			break
		}
	}
	assert.Equal(t, narration.SignalEnded, sig.Kind)
}

func TestCommandOutlivesWatchdog(t *testing.T) {
	c := shell(t, "exec sleep 1", WithHeartbeat(50*time.Millisecond))

	ctx := context.Background()
	s := memstore.New()
	require.NoError(t, s.PutBook(ctx, storetest.Book("book", time.Now())))
	require.NoError(t, s.PutChapters(ctx, "book", []*models.Chapter{
		storetest.Chapter("book", 0, "A long sentence that takes a while to say.", "Next."),
	}))

	e := narration.New(s, c, narration.WithWatchdog(300*time.Millisecond))
	t.Cleanup(func() { _ = e.Destroy() })
	require.NoError(t, e.Open(ctx, "book"))
	require.NoError(t, e.Play())

	require.Eventually(t, func() bool {
		return e.Status().SentenceIndex == 1
	}, 5*time.Second, 20*time.Millisecond)
	r := e.Status()
	assert.NotEqual(t, narration.Error, r.State)
	assert.Empty(t, r.Warning)
}

func TestNewCommandUnknownProgram(t *testing.T) {
	_, err := NewCommand("definitely-not-a-speech-program")
	assert.Error(t, err)
}
