package scope

import (
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// fakeLines is a scriptable LineSource.
type fakeLines struct {
	mu      sync.Mutex
	state   LineState
	openErr error
	readErr error
	opens   int
	closes  int
}

func (f *fakeLines) Open() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	f.opens++
	return nil
}

func (f *fakeLines) ReadLines() (LineState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return LineState{}, f.readErr
	}
	return f.state, nil
}

func (f *fakeLines) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeLines) setReadErr(err error) {
	f.mu.Lock()
	f.readErr = err
	f.mu.Unlock()
}

// stepClock only moves when a test moves it.
type stepClock struct {
	mu  sync.Mutex
	now float64
}

func (c *stepClock) Now() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Set(v float64) {
	c.mu.Lock()
	c.now = v
	c.mu.Unlock()
}

// autoClock advances by step on every Now call, so the acquisition loop
// believes a full sampling interval has passed each iteration.
type autoClock struct {
	mu   sync.Mutex
	now  float64
	step float64
}

func (c *autoClock) Now() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += c.step
	return c.now
}

// captureSink records every published window.
type captureSink struct {
	mu   sync.Mutex
	wins []Window
}

func (cs *captureSink) Publish(w Window) {
	cs.mu.Lock()
	cs.wins = append(cs.wins, w)
	cs.mu.Unlock()
}

func (cs *captureSink) count() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.wins)
}

func (cs *captureSink) last() (Window, bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if len(cs.wins) == 0 {
		return Window{}, false
	}
	return cs.wins[len(cs.wins)-1], true
}

func testConfig() AcquisitionConfig {
	return AcquisitionConfig{
		SamplingRate:       10000,
		BufferCapacity:     1000,
		PreTriggerSamples:  10,
		PostTriggerSamples: 10,
		StreamInterval:     5 * time.Millisecond,
		Timebase:           0.001,
	}
}

func newTestSession(t *testing.T, cfg AcquisitionConfig, lines LineSource, snk Sink, clk Clock) *Session {
	t.Helper()
	if lines == nil {
		lines = &fakeLines{}
	}
	if snk == nil {
		snk = &captureSink{}
	}
	if clk == nil {
		clk = &stepClock{}
	}
	s, err := NewSession(cfg, lines, snk, clk, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSessionLifecycle(t *testing.T) {
	lines := &fakeLines{state: LineState{Ch1Pos: true}}
	snk := &captureSink{}
	clk := &autoClock{step: 1.0 / 10000}
	s := newTestSession(t, testConfig(), lines, snk, clk)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(); !errors.Is(err, ErrAlreadyAcquiring) {
		t.Errorf("second Start = %v, want ErrAlreadyAcquiring", err)
	}

	waitFor(t, "samples to accumulate", func() bool {
		return s.Status().BufferFill > 100
	})
	waitFor(t, "a published window", func() bool {
		return snk.count() > 0
	})

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := s.Stop(); !errors.Is(err, ErrNotAcquiring) {
		t.Errorf("second Stop = %v, want ErrNotAcquiring", err)
	}

	lines.mu.Lock()
	opens, closes := lines.opens, lines.closes
	lines.mu.Unlock()
	if opens != 1 || closes != 1 {
		t.Errorf("hardware claimed %d times, released %d times, want 1/1", opens, closes)
	}

	st := s.Status()
	if st.Acquiring {
		t.Error("status still reports acquiring after Stop")
	}
	if st.BufferFill == 0 {
		t.Error("last committed buffers should remain queryable after Stop")
	}

	win, ok := snk.last()
	if !ok {
		t.Fatal("no window published")
	}
	if len(win.Ch1) != len(win.Ch2) || len(win.Ch1) != len(win.Timestamps) {
		t.Errorf("published window not aligned: ch1=%d ch2=%d ts=%d",
			len(win.Ch1), len(win.Ch2), len(win.Timestamps))
	}
}

func TestSessionBufferAlignment(t *testing.T) {
	lines := &fakeLines{state: LineState{Ch1Pos: true, Ch2Neg: true}}
	clk := &autoClock{step: 1.0 / 10000}
	s := newTestSession(t, testConfig(), lines, nil, clk)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	// spot-check the invariant repeatedly while the producer is running
	for i := 0; i < 100; i++ {
		s.mu.Lock()
		n1, n2, n3 := s.ch1Main.Len(), s.ch2Main.Len(), s.tsMain.Len()
		s.mu.Unlock()
		if n1 != n2 || n1 != n3 {
			t.Fatalf("buffers misaligned: ch1=%d ch2=%d ts=%d", n1, n2, n3)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSessionHardwareUnavailable(t *testing.T) {
	lines := &fakeLines{openErr: errors.New("gpio chip busy")}
	s := newTestSession(t, testConfig(), lines, nil, nil)

	err := s.Start()
	var hw *HardwareError
	if !errors.As(err, &hw) {
		t.Fatalf("Start = %v, want HardwareError", err)
	}
	if s.Status().Acquiring {
		t.Error("session must not begin when the hardware cannot be claimed")
	}
}

func TestSessionIoFaultAbortsSession(t *testing.T) {
	lines := &fakeLines{}
	clk := &autoClock{step: 1.0 / 10000}
	s := newTestSession(t, testConfig(), lines, nil, clk)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "samples to accumulate", func() bool {
		return s.Status().BufferFill > 10
	})

	lines.setReadErr(errors.New("line driver gone"))

	waitFor(t, "session abort", func() bool {
		return !s.Status().Acquiring
	})

	st := s.Status()
	if st.LastFault == "" {
		t.Error("fault not surfaced in status")
	}
	var fault *IoFault
	s.mu.Lock()
	recorded := s.fault
	s.mu.Unlock()
	if !errors.As(recorded, &fault) {
		t.Errorf("recorded fault %v, want IoFault", recorded)
	}

	lines.mu.Lock()
	closes := lines.closes
	lines.mu.Unlock()
	if closes != 1 {
		t.Errorf("hardware released %d times after abort, want 1", closes)
	}

	if err := s.Stop(); !errors.Is(err, ErrNotAcquiring) {
		t.Errorf("Stop after abort = %v, want ErrNotAcquiring", err)
	}
}

func TestConfigureTriggerValidation(t *testing.T) {
	s := newTestSession(t, testConfig(), nil, nil, nil)

	cases := []struct {
		name string
		cfg  TriggerConfig
	}{
		{"bad channel", TriggerConfig{Enabled: true, Channel: 7, Edge: RisingEdge, Timeout: 1}},
		{"bad edge", TriggerConfig{Enabled: true, Channel: CH1, Edge: 9, Timeout: 1}},
		{"bad level", TriggerConfig{Enabled: true, Channel: CH1, Edge: RisingEdge, Level: 2, Timeout: 1}},
		{"bad timeout", TriggerConfig{Enabled: true, Channel: CH1, Edge: RisingEdge, Timeout: 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := s.ConfigureTrigger(tc.cfg)
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("ConfigureTrigger = %v, want ConfigError", err)
			}
			if st := s.Status(); st.TriggerState != "disarmed" {
				t.Errorf("state mutated by rejected config: %s", st.TriggerState)
			}
		})
	}
}

func TestSessionRestartStartsClean(t *testing.T) {
	lines := &fakeLines{state: LineState{Ch1Pos: true}}
	clk := &autoClock{step: 1.0 / 10000}
	s := newTestSession(t, testConfig(), lines, nil, clk)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "samples to accumulate", func() bool {
		return s.Status().BufferFill > 10
	})
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if err := s.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer s.Stop()

	// the restart must not inherit the previous run's samples; the fill we
	// observe now must be attributable to the new run alone
	st := s.Status()
	if st.LastFault != "" {
		t.Errorf("restart inherited fault %q", st.LastFault)
	}
	lines.mu.Lock()
	opens := lines.opens
	lines.mu.Unlock()
	if opens != 2 {
		t.Errorf("hardware claimed %d times across two runs, want 2", opens)
	}
}
