// Package scope implements the acquisition core of a two-channel
// differential capture instrument: a timed sampling loop over four hardware
// lines, an edge-trigger state machine with pre/post-trigger windows, and an
// independently scheduled dispatcher that publishes timebase-scaled display
// windows to a sink.
package scope

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"dualscope/internal/ring"
)

const (
	divisionsPerScreen = 10
	minWindowSamples   = 500
	idleBackoff        = 100 * time.Microsecond
	autoRearmGrace     = 0.2 // seconds a frozen capture stays up before re-arming

	// MinTimebase and MaxTimebase bound SetTimebase, in seconds per division.
	MinTimebase = 0.00001
	MaxTimebase = 10.0

	// maxPlausiblePeriod caps the periods the analyzer will believe, so
	// sparse data cannot produce spurious sub-hertz estimates.
	maxPlausiblePeriod = 10.0
)

// AcquisitionConfig holds the tunable parameters of one session.
type AcquisitionConfig struct {
	SamplingRate       int           // samples per second
	BufferCapacity     int           // main buffer depth in samples
	PreTriggerSamples  int           // pre-trigger stage capacity
	PostTriggerSamples int           // post-trigger fill quota
	StreamInterval     time.Duration // dispatcher cadence
	Timebase           float64       // seconds per display division
	AmplitudeScale     float64
	ChannelMode        ChannelMode
}

func (c AcquisitionConfig) validate() error {
	if c.SamplingRate <= 0 {
		return &ConfigError{Field: "sampling rate", Reason: "must be positive"}
	}
	if c.BufferCapacity <= 0 {
		return &ConfigError{Field: "buffer capacity", Reason: "must be positive"}
	}
	if c.PreTriggerSamples <= 0 {
		return &ConfigError{Field: "pre-trigger samples", Reason: "must be positive"}
	}
	if c.PostTriggerSamples <= 0 {
		return &ConfigError{Field: "post-trigger samples", Reason: "must be positive"}
	}
	if c.StreamInterval <= 0 {
		return &ConfigError{Field: "stream interval", Reason: "must be positive"}
	}
	if c.Timebase < MinTimebase || c.Timebase > MaxTimebase {
		return &ConfigError{Field: "timebase", Reason: "out of range"}
	}
	return nil
}

// Session owns one acquisition run: the two loops, the shared buffers and
// the trigger engine. All shared state is guarded by a single mutex; the
// two loops never block on each other beyond it.
type Session struct {
	logger *zap.Logger
	lines  LineSource
	clock  Clock
	sink   Sink

	mu      sync.Mutex
	cfg     AcquisitionConfig
	trig    *triggerEngine
	ch1Main *ring.Buffer[int8]
	ch2Main *ring.Buffer[int8]
	tsMain  *ring.Buffer[float64]
	fault   error
	shownAt float64 // when the current frozen capture was first emitted

	acquiring bool
	stop      chan struct{}
	stopOnce  *sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewSession validates cfg and builds a session around the injected
// capabilities. The hardware is not claimed until Start.
func NewSession(cfg AcquisitionConfig, lines LineSource, sink Sink, clock Clock, logger *zap.Logger) (*Session, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.ChannelMode == 0 {
		cfg.ChannelMode = ModeBoth
	}
	if cfg.AmplitudeScale == 0 {
		cfg.AmplitudeScale = 1.0
	}
	s := &Session{
		logger:  logger,
		lines:   lines,
		clock:   clock,
		sink:    sink,
		cfg:     cfg,
		ch1Main: ring.New[int8](cfg.BufferCapacity),
		ch2Main: ring.New[int8](cfg.BufferCapacity),
		tsMain:  ring.New[float64](cfg.BufferCapacity),
	}
	s.trig = newTriggerEngine(TriggerConfig{
		Channel: CH1,
		Edge:    RisingEdge,
		Timeout: 5.0,
	}, cfg.PreTriggerSamples, cfg.PostTriggerSamples)
	return s, nil
}

// Start claims the hardware and launches the acquisition and dispatch loops.
// Returns ErrAlreadyAcquiring if a run is active, or a HardwareError if the
// line source cannot be claimed.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.acquiring {
		s.mu.Unlock()
		return ErrAlreadyAcquiring
	}
	if err := s.lines.Open(); err != nil {
		s.mu.Unlock()
		return &HardwareError{Err: err}
	}
	s.acquiring = true
	s.fault = nil
	s.shownAt = 0
	s.clearBuffersLocked()
	s.trig.disarm()
	s.stop = make(chan struct{})
	s.stopOnce = new(sync.Once)
	s.done = make(chan struct{})
	rate := s.cfg.SamplingRate
	depth := s.cfg.BufferCapacity
	s.mu.Unlock()

	s.wg.Add(2)
	go s.acquireLoop()
	go s.dispatchLoop()

	// The hardware is released only after both loops have confirmed exit, so
	// claim/release stays scoped to the whole session.
	go func() {
		s.wg.Wait()
		if err := s.lines.Close(); err != nil {
			s.logger.Warn("[session] error releasing line source", zap.Error(err))
		}
		s.mu.Lock()
		s.acquiring = false
		s.mu.Unlock()
		close(s.done)
	}()

	s.logger.Info("[session] acquisition started",
		zap.Int("samplingRate", rate),
		zap.Int("bufferCapacity", depth),
	)
	return nil
}

// Stop terminates both loops cooperatively and releases the hardware. The
// last committed buffers remain queryable. Returns ErrNotAcquiring if no run
// is active.
func (s *Session) Stop() error {
	s.mu.Lock()
	if !s.acquiring {
		s.mu.Unlock()
		return ErrNotAcquiring
	}
	done := s.done
	s.mu.Unlock()

	s.signalStop()
	<-done
	s.logger.Info("[session] acquisition stopped")
	return nil
}

func (s *Session) signalStop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}

// fail records an IoFault and aborts the session. Called from the
// acquisition loop; the supervisor goroutine releases the hardware once both
// loops have exited.
func (s *Session) fail(err error) {
	fault := &IoFault{Err: err}
	s.mu.Lock()
	s.fault = fault
	s.mu.Unlock()
	s.logger.Error("[session] aborting acquisition", zap.Error(fault))
	s.signalStop()
}

// ConfigureTrigger replaces the trigger configuration. Enabling arms the
// engine immediately; disabling returns to continuous mode. Invalid
// parameters are rejected with a ConfigError and no state changes.
func (s *Session) ConfigureTrigger(cfg TriggerConfig) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trig.cfg = cfg
	if cfg.Enabled {
		s.trig.arm(s.clock.Now())
		s.shownAt = 0
	} else {
		s.trig.disarm()
	}
	s.logger.Info("[session] trigger configured",
		zap.Bool("enabled", cfg.Enabled),
		zap.String("channel", cfg.Channel.String()),
		zap.String("edge", cfg.Edge.String()),
		zap.Int8("level", cfg.Level),
		zap.Float64("timeoutSeconds", cfg.Timeout),
	)
	return nil
}

// Arm forces the engine into the armed state, clearing both the stage and
// the main buffers so the next capture starts clean.
func (s *Session) Arm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trig.arm(s.clock.Now())
	s.clearBuffersLocked()
	s.shownAt = 0
}

// Disarm returns the engine to continuous mode.
func (s *Session) Disarm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trig.disarm()
}

// SetTimebase sets the display timebase in seconds per division, clamped to
// [MinTimebase, MaxTimebase].
func (s *Session) SetTimebase(secondsPerDivision float64) {
	if secondsPerDivision < MinTimebase {
		secondsPerDivision = MinTimebase
	}
	if secondsPerDivision > MaxTimebase {
		secondsPerDivision = MaxTimebase
	}
	s.mu.Lock()
	s.cfg.Timebase = secondsPerDivision
	s.mu.Unlock()
}

// SetAmplitudeScale sets the display amplitude scaling factor.
func (s *Session) SetAmplitudeScale(factor float64) {
	s.mu.Lock()
	s.cfg.AmplitudeScale = factor
	s.mu.Unlock()
}

// SetChannelMode selects which channels the emitted windows advertise.
func (s *Session) SetChannelMode(mode ChannelMode) error {
	if mode != ModeCh1 && mode != ModeCh2 && mode != ModeBoth {
		return &ConfigError{Field: "channel mode", Reason: "must be ch1, ch2 or both"}
	}
	s.mu.Lock()
	s.cfg.ChannelMode = mode
	s.mu.Unlock()
	return nil
}

// Status is a point-in-time summary of the session.
type Status struct {
	Acquiring      bool
	TriggerState   string
	TriggerEnabled bool
	TriggerChannel string
	TriggerEdge    string
	TriggerLevel   int8
	SamplingRate   int
	Timebase       float64
	AmplitudeScale float64
	ChannelMode    string
	BufferFill     int
	BufferCapacity int
	PreTriggerFill int
	Captures       uint64
	Timeouts       uint64
	LastFault      string
}

// Status reports the current state of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Acquiring:      s.acquiring,
		TriggerState:   s.trig.state.String(),
		TriggerEnabled: s.trig.cfg.Enabled,
		TriggerChannel: s.trig.cfg.Channel.String(),
		TriggerEdge:    s.trig.cfg.Edge.String(),
		TriggerLevel:   s.trig.cfg.Level,
		SamplingRate:   s.cfg.SamplingRate,
		Timebase:       s.cfg.Timebase,
		AmplitudeScale: s.cfg.AmplitudeScale,
		ChannelMode:    s.cfg.ChannelMode.String(),
		BufferFill:     s.ch1Main.Len(),
		BufferCapacity: s.ch1Main.Cap(),
		PreTriggerFill: s.trig.preCh1.Len(),
		Captures:       s.trig.captures,
		Timeouts:       s.trig.timeouts,
	}
	if s.fault != nil {
		st.LastFault = s.fault.Error()
	}
	return st
}

func (s *Session) clearBuffersLocked() {
	s.ch1Main.Clear()
	s.ch2Main.Clear()
	s.tsMain.Clear()
}
