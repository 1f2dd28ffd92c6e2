package scope

import (
	"fmt"

	"dualscope/internal/ring"
)

// TriggerState is the capture phase of the trigger engine.
type TriggerState int

const (
	// TriggerDisarmed streams every sample to the main buffers (continuous
	// mode).
	TriggerDisarmed TriggerState = iota
	// TriggerArmed waits for the configured edge; samples accumulate in the
	// pre-trigger stage only.
	TriggerArmed
	// TriggerCaptured fills the post-trigger quota into the main buffers.
	TriggerCaptured
	// TriggerDisplayed holds a frozen capture; new samples are dropped until
	// the dispatcher re-arms.
	TriggerDisplayed
)

func (s TriggerState) String() string {
	switch s {
	case TriggerDisarmed:
		return "disarmed"
	case TriggerArmed:
		return "armed"
	case TriggerCaptured:
		return "captured"
	case TriggerDisplayed:
		return "displayed"
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// Channel selects one of the two logical differential channels.
type Channel int

const (
	CH1 Channel = iota + 1
	CH2
)

func (c Channel) String() string {
	if c == CH2 {
		return "ch2"
	}
	return "ch1"
}

// ParseChannel maps "ch1"/"ch2" to a Channel.
func ParseChannel(s string) (Channel, error) {
	switch s {
	case "ch1":
		return CH1, nil
	case "ch2":
		return CH2, nil
	}
	return 0, &ConfigError{Field: "trigger channel", Reason: fmt.Sprintf("%q is not ch1 or ch2", s)}
}

// Edge selects the transition direction the trigger fires on.
type Edge int

const (
	RisingEdge Edge = iota + 1
	FallingEdge
)

func (e Edge) String() string {
	if e == FallingEdge {
		return "falling"
	}
	return "rising"
}

// ParseEdge maps "rising"/"falling" to an Edge.
func ParseEdge(s string) (Edge, error) {
	switch s {
	case "rising":
		return RisingEdge, nil
	case "falling":
		return FallingEdge, nil
	}
	return 0, &ConfigError{Field: "trigger edge", Reason: fmt.Sprintf("%q is not rising or falling", s)}
}

// ChannelMode selects which channels the viewer displays.
type ChannelMode int

const (
	ModeCh1 ChannelMode = iota + 1
	ModeCh2
	ModeBoth
)

func (m ChannelMode) String() string {
	switch m {
	case ModeCh1:
		return "ch1"
	case ModeCh2:
		return "ch2"
	}
	return "both"
}

// ParseChannelMode maps "ch1"/"ch2"/"both" to a ChannelMode.
func ParseChannelMode(s string) (ChannelMode, error) {
	switch s {
	case "ch1":
		return ModeCh1, nil
	case "ch2":
		return ModeCh2, nil
	case "both":
		return ModeBoth, nil
	}
	return 0, &ConfigError{Field: "channel mode", Reason: fmt.Sprintf("%q is not ch1, ch2 or both", s)}
}

// TriggerConfig describes the edge the engine watches for. Level is carried
// for the viewer but does not shift the edge thresholds: the comparison is
// always against the 0/1 differential levels.
type TriggerConfig struct {
	Enabled bool
	Channel Channel
	Edge    Edge
	Level   int8
	Timeout float64 // seconds armed before giving up
}

func (c TriggerConfig) validate() error {
	if c.Channel != CH1 && c.Channel != CH2 {
		return &ConfigError{Field: "trigger channel", Reason: "must be ch1 or ch2"}
	}
	if c.Edge != RisingEdge && c.Edge != FallingEdge {
		return &ConfigError{Field: "trigger edge", Reason: "must be rising or falling"}
	}
	if c.Level < -1 || c.Level > 1 {
		return &ConfigError{Field: "trigger level", Reason: "must be -1, 0 or 1"}
	}
	if c.Timeout <= 0 {
		return &ConfigError{Field: "trigger timeout", Reason: "must be positive"}
	}
	return nil
}

// route is the destination the engine picks for one sample.
type route int

const (
	routeDrop route = iota
	routePretrigger
	routeMain
)

// triggerEvent reports a state transition caused by one observed sample.
type triggerEvent int

const (
	triggerNone triggerEvent = iota
	triggerFired
	triggerTimedOut
	captureFilled
)

// triggerEngine watches one channel's differential stream for the configured
// edge and decides which buffer each sample lands in. All methods must be
// called with the session mutex held.
type triggerEngine struct {
	cfg   TriggerConfig
	state TriggerState

	armTime   float64
	prevCh1   int8
	prevCh2   int8
	postCount int
	postQuota int

	preCh1 *ring.Buffer[int8]
	preCh2 *ring.Buffer[int8]
	preTS  *ring.Buffer[float64]

	captures uint64
	timeouts uint64
}

func newTriggerEngine(cfg TriggerConfig, preCapacity, postQuota int) *triggerEngine {
	return &triggerEngine{
		cfg:       cfg,
		postQuota: postQuota,
		preCh1:    ring.New[int8](preCapacity),
		preCh2:    ring.New[int8](preCapacity),
		preTS:     ring.New[float64](preCapacity),
	}
}

// observe runs the edge test for one sample and returns where the sample
// should land, plus any transition the sample caused. The edge comparison
// uses the immediately preceding sample only: a single-sample glitch fires
// the trigger.
func (t *triggerEngine) observe(ch1, ch2 int8, now float64) (route, triggerEvent) {
	defer func() {
		t.prevCh1, t.prevCh2 = ch1, ch2
	}()

	switch t.state {
	case TriggerDisarmed:
		return routeMain, triggerNone

	case TriggerArmed:
		prev, curr := t.prevCh1, ch1
		if t.cfg.Channel == CH2 {
			prev, curr = t.prevCh2, ch2
		}
		if edgeMatch(t.cfg.Edge, prev, curr) {
			t.state = TriggerCaptured
			t.postCount = 1 // the firing sample is the first post-trigger sample
			t.captures++
			return routeMain, triggerFired
		}
		if now-t.armTime > t.cfg.Timeout {
			t.state = TriggerDisarmed
			t.clearStage()
			t.timeouts++
			return routeDrop, triggerTimedOut
		}
		return routePretrigger, triggerNone

	case TriggerCaptured:
		t.postCount++
		if t.postCount >= t.postQuota {
			t.state = TriggerDisplayed
			return routeMain, captureFilled
		}
		return routeMain, triggerNone

	case TriggerDisplayed:
		return routeDrop, triggerNone
	}
	return routeDrop, triggerNone
}

func edgeMatch(e Edge, prev, curr int8) bool {
	switch e {
	case RisingEdge:
		return prev <= 0 && curr >= 1
	case FallingEdge:
		return prev >= 1 && curr <= 0
	}
	return false
}

// arm forces the engine into TriggerArmed, clearing the pre-trigger stage.
func (t *triggerEngine) arm(now float64) {
	t.state = TriggerArmed
	t.armTime = now
	t.postCount = 0
	t.clearStage()
}

// disarm forces the engine into continuous mode.
func (t *triggerEngine) disarm() {
	t.state = TriggerDisarmed
	t.postCount = 0
	t.clearStage()
}

// stage appends one sample to the pre-trigger buffers.
func (t *triggerEngine) stage(ch1, ch2 int8, now float64) {
	t.preCh1.Push(ch1)
	t.preCh2.Push(ch2)
	t.preTS.Push(now)
}

// drainStage moves the staged pre-trigger samples into the main buffers in
// original order and clears the stage. Returns the number of samples moved.
func (t *triggerEngine) drainStage(ch1, ch2 *ring.Buffer[int8], ts *ring.Buffer[float64]) int {
	n := t.preCh1.DrainTo(ch1)
	t.preCh2.DrainTo(ch2)
	t.preTS.DrainTo(ts)
	return n
}

func (t *triggerEngine) clearStage() {
	t.preCh1.Clear()
	t.preCh2.Clear()
	t.preTS.Clear()
}
