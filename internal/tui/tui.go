// Package tui is the terminal player for a narration engine.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/metcalfc/narr/internal/models"
	"github.com/metcalfc/narr/internal/narration"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Padding(0, 1)

	sentenceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Align(lipgloss.Center)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555"))

	pausedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFAA00")).
			Bold(true)

	completeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00")).
			Bold(true)
)

// Controller is the part of narration.Engine the player drives.
type Controller interface {
	Play() error
	Pause() error
	Stop() error
	Rewind() error
	Forward() error
	Seek(chapter, sentence int) error
	Status() narration.Render
	Subscribe(fn func(narration.Render)) (unsubscribe func())
}

type renderMsg narration.Render

type model struct {
	ctrl     Controller
	log      *zap.Logger
	book     *models.Book
	counts   []int
	render   narration.Render
	complete bool
	err      error

	help     help.Model
	progress progress.Model
	quitting bool
	width    int
	height   int
}

func newModel(ctrl Controller, book *models.Book, chapters []*models.Chapter, log *zap.Logger) model {
	counts := make([]int, len(chapters))
	for i, ch := range chapters {
		counts[i] = len(ch.Sentences)
	}
	return model{
		ctrl:     ctrl,
		log:      log,
		book:     book,
		counts:   counts,
		render:   ctrl.Status(),
		help:     help.New(),
		progress: progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		width:    80,
		height:   24,
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.progress.Width = max(msg.Width-4, 10)
		return m, nil

	case renderMsg:
		prev := m.render
		m.render = narration.Render(msg)
		if m.render.State == narration.Playing {
			m.complete = false
		} else if prev.State == narration.Playing && m.render.State == narration.Stopped && m.atEnd() {
			m.complete = true
		}
		return m, nil
	}

	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var err error
	switch {
	case key.Matches(msg, keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil

	case key.Matches(msg, keys.PlayPause):
		if m.render.State == narration.Playing {
			err = m.ctrl.Pause()
		} else {
			err = m.ctrl.Play()
		}

	case key.Matches(msg, keys.Stop):
		err = m.ctrl.Stop()

	case key.Matches(msg, keys.PrevSentence):
		if c, s, ok := m.step(-1); ok {
			err = m.ctrl.Seek(c, s)
		}

	case key.Matches(msg, keys.NextSentence):
		if c, s, ok := m.step(1); ok {
			err = m.ctrl.Seek(c, s)
		}

	case key.Matches(msg, keys.Rewind):
		err = m.ctrl.Rewind()

	case key.Matches(msg, keys.Forward):
		err = m.ctrl.Forward()
	}

	if err != nil {
		m.log.Warn("player command failed", zap.String("key", msg.String()), zap.Error(err))
		m.err = err
		if errors.Is(err, narration.ErrDestroyed) {
			m.quitting = true
			return m, tea.Quit
		}
	}
	return m, nil
}

// step returns the sentence delta sentences away from the cursor, crossing
// chapter boundaries and skipping empty chapters.
func (m model) step(delta int) (int, int, bool) {
	c, s := m.render.ChapterIndex, m.render.SentenceIndex+delta
	for c >= 0 && c < len(m.counts) {
		if s >= 0 && s < m.counts[c] {
			return c, s, true
		}
		if s < 0 {
			c--
			if c >= 0 {
				s = m.counts[c] - 1
			}
			continue
		}
		c++
		s = 0
	}
	return 0, 0, false
}

func (m model) atEnd() bool {
	_, _, ok := m.step(1)
	return !ok
}

// fraction is how far through the book the cursor is, by sentence.
func (m model) fraction() float64 {
	total, done := 0, 0
	for i, n := range m.counts {
		total += n
		switch {
		case i < m.render.ChapterIndex:
			done += n
		case i == m.render.ChapterIndex:
			done += min(m.render.SentenceIndex, n)
		}
	}
	if total == 0 {
		return 0
	}
	return float64(done) / float64(total)
}

func (m model) View() string {
	if m.quitting {
		return ""
	}

	r := m.render
	var sb strings.Builder

	title := m.book.Title
	if m.book.Author != "" {
		title += " · " + m.book.Author
	}
	sb.WriteString(titleStyle.Render(title))
	sb.WriteString("\n")

	state := ""
	switch r.State {
	case narration.Paused:
		state = pausedStyle.Render(" [PAUSED]")
	case narration.Stopped:
		state = pausedStyle.Render(" [STOPPED]")
	case narration.Error:
		state = warningStyle.Render(" [ERROR]")
	}

	status := "No chapters"
	if r.TotalChapters > 0 {
		sentences := 0
		if r.ChapterIndex < len(m.counts) {
			sentences = m.counts[r.ChapterIndex]
		}
		status = fmt.Sprintf("Chapter %d/%d · %s | Sentence %d/%d",
			r.ChapterIndex+1, r.TotalChapters, r.ChapterTitle,
			min(r.SentenceIndex+1, sentences), sentences)
	}
	sb.WriteString(statusStyle.Render(status))
	sb.WriteString(state)
	sb.WriteString("\n\n")

	body := r.SentenceText
	if m.complete {
		body = completeStyle.Render("Narration complete!")
	}
	sb.WriteString(sentenceStyle.Width(max(m.width-4, 10)).Render(body))
	sb.WriteString("\n\n")

	sb.WriteString(m.progress.ViewAs(m.fraction()))
	sb.WriteString("\n")

	if r.Warning != "" {
		sb.WriteString(warningStyle.Render(r.Warning))
		sb.WriteString("\n")
	} else if m.err != nil {
		sb.WriteString(warningStyle.Render(m.err.Error()))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(m.help.View(keys))
	return sb.String()
}

// Run shows the player until the user quits. The caller owns ctrl and should
// destroy it afterwards.
func Run(ctrl Controller, book *models.Book, chapters []*models.Chapter, log *zap.Logger, opts ...tea.ProgramOption) error {
	if log == nil {
		log = zap.NewNop()
	}
	m := newModel(ctrl, book, chapters, log.Named("tui"))
	p := tea.NewProgram(m, append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)...)

	unsubscribe := ctrl.Subscribe(func(r narration.Render) {
		p.Send(renderMsg(r))
	})
	defer unsubscribe()

	if _, err := p.Run(); err != nil {
		return errors.Wrap(err, "run player")
	}
	return nil
}
