package timer

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"tally.dev/internal/log"
)

var logger = log.New("timer")

var (
	ErrAlreadyRunning = errors.New("a timer is already running")
	ErrEmptyTitle     = errors.New("timer title cannot be empty")
)

type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
)

// State is what the host UI sees. Title and ElapsedSeconds are nil while idle.
type State struct {
	Active         bool    `json:"active"`
	Title          *string `json:"title"`
	ElapsedSeconds *uint64 `json:"elapsed_seconds"`
}

// Session is a finished run of the timer.
type Session struct {
	Title     string        `json:"title"`
	StartedAt time.Time     `json:"startedAt"`
	StoppedAt time.Time     `json:"stoppedAt"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Timer is the single owner of the tracking state. It is either idle, or running
// with a title and a start time.
type Timer struct {
	clock clock.Clock

	m         sync.Mutex
	status    Status
	title     string
	startedAt time.Time
}

func New(clk clock.Clock) *Timer {
	if clk == nil {
		clk = clock.New()
	}

	return &Timer{
		clock:  clk,
		status: StatusIdle,
	}
}

func (t *Timer) State() State {
	t.m.Lock()
	defer t.m.Unlock()

	if t.status != StatusRunning {
		return State{}
	}

	title := t.title
	elapsed := uint64(t.elapsed() / time.Second)

	return State{
		Active:         true,
		Title:          &title,
		ElapsedSeconds: &elapsed,
	}
}

// Requires caller to take the lock
func (t *Timer) elapsed() time.Duration {
	elapsed := t.clock.Since(t.startedAt)
	if elapsed < 0 {
		// the wall clock went backwards
		return 0
	}
	return elapsed
}

func (t *Timer) Start(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrEmptyTitle
	}

	t.m.Lock()
	defer t.m.Unlock()

	if t.status == StatusRunning {
		return ErrAlreadyRunning
	}

	t.status = StatusRunning
	t.title = title
	t.startedAt = t.clock.Now()

	logger.Debug("Timer started", log.Ctx{
		"title": title,
	})

	return nil
}

// Stop returns the session that just ended. Stopping an idle timer does
// nothing, and reports false.
func (t *Timer) Stop() (Session, bool) {
	t.m.Lock()
	defer t.m.Unlock()

	if t.status != StatusRunning {
		return Session{}, false
	}

	session := Session{
		Title:     t.title,
		StartedAt: t.startedAt,
		StoppedAt: t.clock.Now(),
		Elapsed:   t.elapsed(),
	}

	t.status = StatusIdle
	t.title = ""
	t.startedAt = time.Time{}

	logger.Debug("Timer stopped", log.Ctx{
		"title":   session.Title,
		"elapsed": session.Elapsed.String(),
	})

	return session, true
}
