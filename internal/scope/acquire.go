package scope

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// acquireLoop is the producer: it paces itself to the sampling interval,
// reads the four lines, forms the two differential values and commits the
// sample under the session mutex. A read error aborts the whole session.
func (s *Session) acquireLoop() {
	defer s.wg.Done()

	interval := 1.0 / float64(s.cfg.SamplingRate)
	last := s.clock.Now()

	for {
		select {
		case <-s.stop:
			s.logger.Info("[acquire] exiting from sampling loop")
			return
		default:
		}

		now := s.clock.Now()
		if now-last < interval {
			// missed deadlines are acceptable jitter; alignment matters,
			// exact cadence does not
			time.Sleep(idleBackoff)
			continue
		}

		state, err := s.lines.ReadLines()
		if err != nil {
			s.fail(errors.Wrap(err, "reading input lines"))
			return
		}

		ch1 := Differential(state.Ch1Pos, state.Ch1Neg)
		ch2 := Differential(state.Ch2Pos, state.Ch2Neg)
		s.commit(ch1, ch2, now)
		last = now
	}
}

// commit routes one sample through the trigger engine into the buffers. The
// three main buffers are only ever appended to together here, which is what
// keeps the channels index-aligned for every reader.
func (s *Session) commit(ch1, ch2 int8, now float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dest, event := s.trig.observe(ch1, ch2, now)

	switch event {
	case triggerFired:
		carried := s.trig.drainStage(s.ch1Main, s.ch2Main, s.tsMain)
		s.logger.Info("[acquire] trigger fired",
			zap.String("channel", s.trig.cfg.Channel.String()),
			zap.String("edge", s.trig.cfg.Edge.String()),
			zap.Int("preTriggerSamples", carried),
			zap.Float64("at", now),
		)
	case triggerTimedOut:
		s.logger.Warn("[acquire] trigger timeout, disarmed",
			zap.String("channel", s.trig.cfg.Channel.String()),
			zap.Float64("timeoutSeconds", s.trig.cfg.Timeout),
		)
	case captureFilled:
		s.logger.Info("[acquire] post-trigger window filled",
			zap.Int("postTriggerSamples", s.trig.postQuota),
		)
	}

	switch dest {
	case routeMain:
		s.ch1Main.Push(ch1)
		s.ch2Main.Push(ch2)
		s.tsMain.Push(now)
	case routePretrigger:
		s.trig.stage(ch1, ch2, now)
	case routeDrop:
	}
}
