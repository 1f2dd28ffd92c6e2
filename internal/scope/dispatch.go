package scope

import (
	"time"

	"go.uber.org/zap"
)

// Window is a read-only, point-in-time copy of the visible span of the
// capture, scaled by the timebase. Both channel slices and the timestamps
// are index-aligned.
type Window struct {
	Ch1          []int8      `json:"ch1"`
	Ch2          []int8      `json:"ch2"`
	Timestamps   []float64   `json:"timestamps"`
	Timebase     float64     `json:"timebase"`
	SamplingRate int         `json:"sampling_rate"`
	Scale        float64     `json:"scale"`
	ChannelMode  string      `json:"channel_mode"`
	TriggerState string      `json:"trigger_state"`
	Ch1Measure   Measurement `json:"ch1_measure"`
	Ch2Measure   Measurement `json:"ch2_measure"`
}

// Sink receives emitted display windows. Publish is fire-and-forget: the
// dispatcher never retries and never blocks on delivery confirmation.
type Sink interface {
	Publish(Window)
}

// dispatchLoop is the consumer: on its own cadence it snapshots a display
// window from the shared buffers and hands it to the sink. It also owns the
// auto-rearm transition out of a shown capture, so re-arm timing stays tied
// to display timing.
func (s *Session) dispatchLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.StreamInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			s.logger.Info("[dispatch] exiting from stream loop")
			return
		case <-ticker.C:
		}

		win, ok := s.emitTick()
		if !ok {
			continue
		}
		s.sink.Publish(win)
	}
}

// emitTick produces the window for one dispatcher tick, or reports that
// nothing should be emitted. The analyzer runs outside the lock.
func (s *Session) emitTick() (Window, bool) {
	win, ok := s.snapshotWindow()
	if !ok {
		return Window{}, false
	}
	s.annotate(&win)
	return win, true
}

// snapshotWindow copies the most recent timebase-worth of samples under the
// session mutex. While a capture is armed or still filling, nothing is
// emitted: the viewer keeps the last frozen image instead of a partial one.
func (s *Session) snapshotWindow() (Window, bool) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.trig.state {
	case TriggerArmed, TriggerCaptured:
		return Window{}, false
	case TriggerDisplayed:
		if s.shownAt != 0 && now-s.shownAt > autoRearmGrace {
			// the frozen capture has been on screen long enough; re-arm for
			// the next one
			s.trig.arm(now)
			s.clearBuffersLocked()
			s.shownAt = 0
			s.logger.Info("[dispatch] auto-rearmed trigger", zap.Float64("at", now))
			return Window{}, false
		}
	}

	n := s.ch1Main.Len()
	if n == 0 {
		return Window{}, false
	}

	target := int(s.cfg.Timebase * divisionsPerScreen * float64(s.cfg.SamplingRate))
	if target < minWindowSamples {
		target = minWindowSamples
	}
	if target > n {
		target = n
	}

	win := Window{
		Ch1:          s.ch1Main.Tail(target),
		Ch2:          s.ch2Main.Tail(target),
		Timestamps:   s.tsMain.Tail(target),
		Timebase:     s.cfg.Timebase,
		SamplingRate: s.cfg.SamplingRate,
		Scale:        s.cfg.AmplitudeScale,
		ChannelMode:  s.cfg.ChannelMode.String(),
		TriggerState: s.trig.state.String(),
	}
	if s.trig.state == TriggerDisplayed && s.shownAt == 0 {
		s.shownAt = now
	}
	return win, true
}

func (s *Session) annotate(win *Window) {
	a := Analyzer{
		SamplingInterval: 1.0 / float64(win.SamplingRate),
		MaxPeriod:        maxPlausiblePeriod,
	}
	win.Ch1Measure = a.Analyze(win.Ch1, win.Timestamps)
	win.Ch2Measure = a.Analyze(win.Ch2, win.Timestamps)
}
