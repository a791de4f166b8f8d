package swarm

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/joshp123/duckswarm/internal/choreo"
	"github.com/joshp123/duckswarm/internal/fleet"
)

// PollInterval is how often the loop checks for overrides while waiting out a mode.
const PollInterval = time.Second

// Coordinator drives the fleet through its mode cycle.
type Coordinator struct {
	cfg      Config
	pub      Publisher
	fleet    *fleet.Fleet
	selector *choreo.Selector
	rng      *rand.Rand
	events   *eventQueue
	handler  *Handler
	counters *counters
	log      *zap.Logger

	now   func() time.Time
	sleep func(context.Context, time.Duration) error

	// lastTick is when device timers were last advanced. Only the loop touches it.
	lastTick time.Time

	// mu guards the fields below; the loop is their only writer.
	mu           sync.Mutex
	state        MachineState
	forceDock    bool
	modeDuration time.Duration
	running      bool
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

func WithLogger(log *zap.Logger) Option {
	return func(c *Coordinator) {
		if log != nil {
			c.log = log
		}
	}
}

// WithRand seeds both routine selection and float durations from rng.
func WithRand(rng *rand.Rand) Option {
	return func(c *Coordinator) {
		if rng != nil {
			c.rng = rng
		}
	}
}

// WithClock replaces wall-clock time and sleeping, for tests.
func WithClock(now func() time.Time, sleep func(context.Context, time.Duration) error) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

func NewCoordinator(cfg Config, pub Publisher, opts ...Option) (*Coordinator, error) {
	if len(cfg.DeviceIDs) == 0 {
		return nil, fmt.Errorf("at least one device id is required")
	}
	if len(cfg.Routines) == 0 {
		return nil, choreo.ErrNoRoutines
	}
	if pub == nil {
		return nil, fmt.Errorf("publisher is required")
	}

	c := &Coordinator{
		cfg:      cfg,
		pub:      pub,
		fleet:    fleet.New(cfg.DeviceIDs),
		events:   newEventQueue(EventQueueSize),
		counters: newCounters(),
		log:      zap.NewNop(),
		now:      time.Now,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rng == nil {
		c.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	c.selector = choreo.NewSelector(cfg.Routines, rand.New(rand.NewPCG(c.rng.Uint64(), c.rng.Uint64())))
	c.state = InitialState(NewCycle(cfg.ModeCycle), c.now())
	c.lastTick = c.state.LastDock
	c.handler = &Handler{
		topics:   cfg.Topics,
		fleet:    c.fleet,
		pub:      pub,
		events:   c.events,
		counters: c.counters,
		log:      c.log.Named("inbound"),
	}
	return c, nil
}

// Handler returns the inbound command handler bound to this coordinator.
func (c *Coordinator) Handler() *Handler {
	return c.handler
}

// Fleet exposes the tracked devices.
func (c *Coordinator) Fleet() *fleet.Fleet {
	return c.fleet
}

// Status is a point-in-time view of the coordinator.
type Status struct {
	Mode         Mode
	LastDock     time.Time
	ForceDock    bool
	ModeDuration time.Duration
	Running      bool
	Devices      []fleet.Device
}

func (c *Coordinator) Status() Status {
	c.mu.Lock()
	status := Status{
		Mode:         c.state.Mode,
		LastDock:     c.state.LastDock,
		ForceDock:    c.forceDock,
		ModeDuration: c.modeDuration,
		Running:      c.running,
	}
	c.mu.Unlock()
	status.Devices = c.fleet.Snapshot()
	return status
}

// Run loops until ctx is done.
func (c *Coordinator) Run(ctx context.Context) error {
	c.setRunning(true)
	defer c.setRunning(false)

	if c.cfg.StartupDelay > 0 {
		if err := c.sleep(ctx, c.cfg.StartupDelay); err != nil {
			return nil
		}
	}
	c.lastTick = c.now()

	for ctx.Err() == nil {
		c.Step(ctx)
	}
	return nil
}

// Step runs one iteration: override check, dispatch of the current mode,
// transition, then the wait.
func (c *Coordinator) Step(ctx context.Context) {
	start := c.now()
	c.drainEvents()

	c.mu.Lock()
	c.state.Mode = Override(c.state, c.forceDock, c.cfg.Dock, start)
	mode := c.state.Mode
	c.mu.Unlock()

	duration := c.Dispatch(ctx, mode)

	c.mu.Lock()
	c.state = Advance(c.state, start)
	c.modeDuration = duration
	next := c.state.Mode
	c.mu.Unlock()

	c.log.Info("mode dispatched",
		zap.Stringer("mode", mode),
		zap.Stringer("next", next),
		zap.Duration("duration", duration))
	c.wait(ctx, start, duration)
}

// Dispatch performs mode's side effects and returns how long the mode lasts.
func (c *Coordinator) Dispatch(ctx context.Context, mode Mode) time.Duration {
	switch mode {
	case ModeDock:
		return c.returnToDock()
	case ModeFloat:
		return c.float()
	case ModeIndependentDance:
		return c.independentDance(ctx)
	case ModeSynchronizedDance:
		return c.synchronizedDance(ctx)
	default:
		c.log.Error("unknown mode", zap.Stringer("mode", mode))
		return 0
	}
}

func (c *Coordinator) returnToDock() time.Duration {
	c.mu.Lock()
	c.forceDock = false
	c.mu.Unlock()

	c.log.Info("returning to dock")
	dock := choreo.Command{
		Type:  choreo.ReturnToDock,
		DurMs: float64(c.cfg.TimeToSwimToDock) / float64(time.Millisecond),
	}
	for _, id := range c.fleet.IDs() {
		c.sendMotor(id, dock)
	}
	return c.cfg.TimeAtDock
}

func (c *Coordinator) float() time.Duration {
	if c.cfg.SendMotorStopOnFloat {
		for _, id := range c.fleet.Ready() {
			publish(c.pub, c.log, c.counters, "motor_stop", c.cfg.Topics.MotorStop(id), []byte{})
		}
	}
	span := c.cfg.FloatMax - c.cfg.FloatMin
	if span <= 0 {
		return c.cfg.FloatMin
	}
	return c.cfg.FloatMin + time.Duration(c.rng.Float64()*float64(span))
}

func (c *Coordinator) independentDance(ctx context.Context) time.Duration {
	var longest time.Duration
	for _, id := range c.fleet.Ready() {
		dance, err := c.selector.Select()
		if err != nil {
			c.log.Error("select dance", zap.Error(err))
			return longest
		}
		c.log.Info("independent dance", zap.Int("device_id", id), zap.String("routine", dance.Name))
		for _, cmd := range dance.Commands {
			c.sendMotor(id, cmd)
			c.pause(ctx)
		}
		if dance.Duration > longest {
			longest = dance.Duration
		}
	}
	return longest
}

func (c *Coordinator) synchronizedDance(ctx context.Context) time.Duration {
	ready := c.fleet.Ready()
	dance, err := c.selector.Select()
	if err != nil {
		c.log.Error("select dance", zap.Error(err))
		return 0
	}
	c.log.Info("synchronized dance", zap.String("routine", dance.Name), zap.Ints("devices", ready))
	for _, cmd := range dance.Commands {
		for _, id := range ready {
			c.sendMotor(id, cmd)
		}
		c.pause(ctx)
	}
	return dance.Duration
}

// wait polls once per PollInterval until duration has passed since start or a
// force-dock arrives. A mode with no duration still waits one poll so an
// iteration that dispatched nothing cannot spin. Device timers are ticked by
// the time since the previous tick on every exit, so dispatch time counts.
func (c *Coordinator) wait(ctx context.Context, start time.Time, duration time.Duration) {
	defer c.tick()
	if duration <= 0 {
		duration = PollInterval
	}
	for {
		c.drainEvents()
		if c.forceDockPending() {
			c.log.Info("force dock interrupts wait")
			return
		}
		if c.now().Sub(start) >= duration {
			return
		}
		if err := c.sleep(ctx, PollInterval); err != nil {
			return
		}
		c.tick()
	}
}

func (c *Coordinator) tick() {
	now := c.now()
	c.fleet.Tick(now.Sub(c.lastTick))
	c.lastTick = now
}

func (c *Coordinator) drainEvents() {
	for _, ev := range c.events.drain() {
		switch ev.kind {
		case eventForceDock:
			c.mu.Lock()
			c.forceDock = true
			c.mu.Unlock()
		case eventLaunch:
			if err := c.fleet.Launch(ev.deviceID, ev.launchTime, ev.heading, c.cfg.CalibrationTime); err != nil {
				c.log.Warn("apply launch", zap.Error(err))
			}
		}
	}
}

func (c *Coordinator) forceDockPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.forceDock
}

func (c *Coordinator) setRunning(running bool) {
	c.mu.Lock()
	c.running = running
	c.mu.Unlock()
}

func (c *Coordinator) pause(ctx context.Context) {
	if c.cfg.PublishDelay <= 0 {
		return
	}
	_ = c.sleep(ctx, c.cfg.PublishDelay)
}

func (c *Coordinator) sendMotor(deviceID int, cmd choreo.Command) {
	payload, err := choreo.Marshal(cmd, c.cfg.Gains)
	if err != nil {
		c.log.Error("encode motor command", zap.Int("device_id", deviceID), zap.Error(err))
		return
	}
	publish(c.pub, c.log, c.counters, "motor", c.cfg.Topics.Motor(deviceID), payload)
}

func publish(pub Publisher, log *zap.Logger, counters *counters, kind, topic string, payload []byte) {
	log.Debug("publish", zap.String("topic", topic), zap.ByteString("payload", payload))
	if err := pub.Publish(topic, payload); err != nil {
		counters.publishErrors.WithLabelValues(kind).Inc()
		log.Warn("publish failed", zap.String("topic", topic), zap.Error(err))
		return
	}
	counters.published.WithLabelValues(kind).Inc()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
