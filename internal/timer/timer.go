// Package timer records how long each lifecycle step takes.
package timer

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	units "github.com/docker/go-units"
	json "github.com/goccy/go-json"
)

// Step is a finished timing entry.
type Step struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"-"`
	Seconds  float64       `json:"seconds"`
}

// Timer measures named, sequential steps.
type Timer struct {
	now func() time.Time

	mu      sync.Mutex
	current string
	started time.Time
	steps   []Step
}

// New returns a Timer using the wall clock.
func New() *Timer {
	return &Timer{now: time.Now}
}

// NewWithClock returns a Timer reading time from now.
func NewWithClock(now func() time.Time) *Timer {
	return &Timer{now: now}
}

// Start begins a step, stopping the running one first.
func (t *Timer) Start(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
	t.current = name
	t.started = t.now()
}

// Stop ends the running step. It is a no-op when nothing runs.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *Timer) stopLocked() {
	if t.current == "" {
		return
	}
	d := t.now().Sub(t.started)
	t.steps = append(t.steps, Step{Name: t.current, Duration: d, Seconds: d.Seconds()})
	t.current = ""
}

// Steps returns the finished steps in order.
func (t *Timer) Steps() []Step {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Step, len(t.steps))
	copy(out, t.steps)
	return out
}

// Total sums the finished steps.
func (t *Timer) Total() time.Duration {
	var total time.Duration
	for _, s := range t.Steps() {
		total += s.Duration
	}
	return total
}

// Result prints one line per step followed by the total.
func (t *Timer) Result(w io.Writer) error {
	for _, s := range t.Steps() {
		if _, err := fmt.Fprintf(w, "%s: %s\n", s.Name, format(s.Duration)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "Total: %s\n", format(t.Total()))
	return err
}

func format(d time.Duration) string {
	return fmt.Sprintf("%.3fs (%s)", d.Seconds(), units.HumanDuration(d))
}

type report struct {
	Steps        []Step  `json:"steps"`
	TotalSeconds float64 `json:"totalSeconds"`
}

// WriteJSON stores the timings as a JSON report at path.
func (t *Timer) WriteJSON(path string) error {
	steps := t.Steps()
	if steps == nil {
		steps = []Step{}
	}
	data, err := json.MarshalIndent(report{Steps: steps, TotalSeconds: t.Total().Seconds()}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode timing report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write timing report %s: %w", path, err)
	}
	return nil
}
