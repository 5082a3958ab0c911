// Package voice implements hands-free input capture: a speech recognizer
// paired with a microphone level sampler, with silence detection.
package voice

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/raphaelgruber/triage-go/internal/metrics"
)

// Phase is the capture lifecycle state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRequesting
	PhaseListening
	PhaseSilent
	PhaseError
)

// SilenceHint is shown while the silence window has elapsed with no
// sound above the noise floor.
const SilenceHint = "No sound detected?"

var (
	// ErrUnsupported is returned when no recognizer is available.
	ErrUnsupported = errors.New("voice capture not supported")

	// ErrAlreadyListening is returned when capture is already active.
	ErrAlreadyListening = errors.New("capture already active")
)

// Result is one recognizer emission. Interim results carry the current
// hypothesis; final results are appended to the pending buffer.
type Result struct {
	Transcript string
	Final      bool
	Err        error
}

// Recognizer converts speech to text. Start blocks until the capture
// device is acquired, which is where permission prompts happen.
type Recognizer interface {
	Start(ctx context.Context) (<-chan Result, error)
	Stop()
}

// LevelSampler reports the current microphone energy in the range 0..255.
type LevelSampler interface {
	Level() int
}

// Options tune the capture controller.
type Options struct {
	// SilenceWindow is how long the level may sit at or below the noise
	// floor before the controller reports silence. Default 4s.
	SilenceWindow time.Duration

	// SampleInterval is how often the level is sampled. Default 100ms.
	SampleInterval time.Duration

	// NoiseFloor is the highest level still counted as silence. Default 1.
	NoiseFloor int
}

func (o *Options) defaults() {
	if o.SilenceWindow <= 0 {
		o.SilenceWindow = 4 * time.Second
	}
	if o.SampleInterval <= 0 {
		o.SampleInterval = 100 * time.Millisecond
	}
	if o.NoiseFloor <= 0 {
		o.NoiseFloor = 1
	}
}

// Controller runs one capture at a time. Final transcripts accumulate in
// a pending buffer until drained into the input line.
type Controller struct {
	rec     Recognizer
	sampler LevelSampler
	opts    Options

	collector *metrics.Collector
	logger    *slog.Logger

	mu      sync.Mutex
	phase   Phase
	pending []string
	interim string
	lastErr error
	energy  int
	cancel  context.CancelFunc
	done    chan struct{}
	started time.Time
	notify  func()
}

// NewController creates a capture controller. rec may be nil, in which
// case Start reports ErrUnsupported. sampler may be nil to disable
// silence detection.
func NewController(rec Recognizer, sampler LevelSampler, opts Options, collector *metrics.Collector, logger *slog.Logger) *Controller {
	opts.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		rec:       rec,
		sampler:   sampler,
		opts:      opts,
		collector: collector,
		logger:    logger,
	}
}

// SetNotify registers a repaint callback. Must be set before Start.
func (c *Controller) SetNotify(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify = fn
}

// Start acquires the recognizer and begins listening. The phase passes
// through Requesting while the device is acquired; a refusal lands in
// Error with the cause retained.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.rec == nil {
		c.mu.Unlock()
		return ErrUnsupported
	}
	if c.cancel != nil {
		c.mu.Unlock()
		return ErrAlreadyListening
	}
	c.phase = PhaseRequesting
	c.lastErr = nil
	c.started = time.Now()
	c.mu.Unlock()
	c.emit()

	capCtx, cancel := context.WithCancel(ctx)

	results, err := c.rec.Start(capCtx)
	if err != nil {
		cancel()
		c.mu.Lock()
		c.phase = PhaseError
		c.lastErr = err
		c.mu.Unlock()
		c.emit()
		return err
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.phase = PhaseListening
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()
	c.emit()

	go c.run(capCtx, results, done)
	return nil
}

// Stop tears down the capture pair: the recognizer and the level loop
// always stop together.
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	c.rec.Stop()
	<-done
}

// run consumes recognizer results and samples the level until the
// capture context ends or the recognizer closes its channel.
func (c *Controller) run(ctx context.Context, results <-chan Result, done chan struct{}) {
	ticker := time.NewTicker(c.opts.SampleInterval)
	defer ticker.Stop()

	deadline := time.Now().Add(c.opts.SilenceWindow)

	defer func() {
		c.mu.Lock()
		cancel := c.cancel
		c.cancel = nil
		c.done = nil
		if c.phase != PhaseError {
			c.phase = PhaseIdle
		}
		c.energy = 0
		c.interim = ""
		started := c.started
		c.mu.Unlock()

		// Exits driven by the recognizer (error, channel close) must
		// still cancel the capture context so nothing tied to it leaks.
		if cancel != nil {
			cancel()
		}

		if c.collector != nil {
			c.collector.RecordTiming(metrics.OpVoiceCapture, time.Since(started))
		}
		c.emit()
		close(done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case res, ok := <-results:
			if !ok {
				return
			}
			if res.Err != nil {
				c.logger.Error("recognizer error", "error", res.Err)
				c.mu.Lock()
				c.phase = PhaseError
				c.lastErr = res.Err
				c.mu.Unlock()
				c.emit()
				return
			}

			c.mu.Lock()
			if res.Final {
				if t := strings.TrimSpace(res.Transcript); t != "" {
					c.pending = append(c.pending, t)
				}
				c.interim = ""
			} else {
				c.interim = res.Transcript
			}
			if c.phase == PhaseSilent {
				c.phase = PhaseListening
			}
			c.mu.Unlock()
			deadline = time.Now().Add(c.opts.SilenceWindow)
			c.emit()

		case <-ticker.C:
			if c.sampler == nil {
				continue
			}
			level := c.sampler.Level()

			c.mu.Lock()
			c.energy = level
			if level > c.opts.NoiseFloor {
				deadline = time.Now().Add(c.opts.SilenceWindow)
				if c.phase == PhaseSilent {
					c.phase = PhaseListening
				}
			} else if time.Now().After(deadline) && c.phase == PhaseListening {
				c.phase = PhaseSilent
			}
			c.mu.Unlock()
			c.emit()
		}
	}
}

// Drain returns the accumulated final transcripts joined by single
// spaces and clears the buffer.
func (c *Controller) Drain() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	text := strings.Join(c.pending, " ")
	c.pending = c.pending[:0]
	return text
}

// Pending returns the buffered transcripts without clearing them.
func (c *Controller) Pending() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Join(c.pending, " ")
}

// Interim returns the current non-final hypothesis, if any.
func (c *Controller) Interim() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interim
}

// Phase returns the current capture phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Energy returns the last sampled microphone level.
func (c *Controller) Energy() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.energy
}

// Err returns the last recognizer or acquisition error.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Hint returns the silence hint while the phase is Silent, otherwise "".
func (c *Controller) Hint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == PhaseSilent {
		return SilenceHint
	}
	return ""
}

// emit invokes the repaint callback if one is registered.
func (c *Controller) emit() {
	c.mu.Lock()
	notify := c.notify
	c.mu.Unlock()
	if notify != nil {
		notify()
	}
}
