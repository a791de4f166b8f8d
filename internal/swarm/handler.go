package swarm

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/joshp123/duckswarm/internal/fleet"
)

var (
	ErrMalformedLaunch = errors.New("malformed launch request")
	ErrQueueFull       = errors.New("coordinator event queue full")
)

// EventQueueSize bounds the number of inbound events waiting for the loop.
const EventQueueSize = 64

// Publisher sends a payload on a topic. Delivery guarantees belong to the
// implementation; callers never retry.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Subscriber registers a callback for a topic and returns an unsubscribe func.
type Subscriber interface {
	Subscribe(topic string, cb func([]byte)) (func(), error)
}

type eventKind int

const (
	eventForceDock eventKind = iota
	eventLaunch
)

type event struct {
	kind       eventKind
	deviceID   int
	launchTime time.Duration
	heading    float64
}

// eventQueue carries inbound requests from the bus delivery goroutine to the
// control loop, which drains it once per poll.
type eventQueue struct {
	ch chan event
}

func newEventQueue(size int) *eventQueue {
	return &eventQueue{ch: make(chan event, size)}
}

func (q *eventQueue) push(ev event) bool {
	select {
	case q.ch <- ev:
		return true
	default:
		return false
	}
}

func (q *eventQueue) drain() []event {
	var out []event
	for {
		select {
		case ev := <-q.ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

type launchRequest struct {
	DeviceID   *float64 `json:"device_id"`
	LaunchTime *float64 `json:"launch_time"`
	Heading    *float64 `json:"heading"`
}

type launchEcho struct {
	LaunchTime float64 `json:"launch_time"`
	Heading    float64 `json:"heading"`
}

// Handler consumes dock-override and launch-request messages. It runs on the
// bus client's delivery goroutine and only touches coordinator state through
// the event queue.
type Handler struct {
	topics   Topics
	fleet    *fleet.Fleet
	pub      Publisher
	events   *eventQueue
	counters *counters
	log      *zap.Logger
}

// Subscribe attaches the handler to both coordinator topics.
func (h *Handler) Subscribe(sub Subscriber) (func(), error) {
	unsubDock, err := sub.Subscribe(h.topics.DockOverride(), h.HandleDockOverride)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", h.topics.DockOverride(), err)
	}
	unsubLaunch, err := sub.Subscribe(h.topics.LaunchRequest(), func(payload []byte) {
		_ = h.HandleLaunch(payload)
	})
	if err != nil {
		unsubDock()
		return nil, fmt.Errorf("subscribe %s: %w", h.topics.LaunchRequest(), err)
	}
	return func() {
		unsubDock()
		unsubLaunch()
	}, nil
}

// HandleDockOverride requests a dock; the payload is ignored.
func (h *Handler) HandleDockOverride(_ []byte) {
	h.log.Info("received force dock command")
	if !h.events.push(event{kind: eventForceDock}) {
		h.counters.rejected.WithLabelValues("queue_full").Inc()
		h.log.Warn("dropping force dock, event queue full")
	}
}

// HandleLaunch validates a launch request, queues the launch for the control
// loop and echoes it to the device.
func (h *Handler) HandleLaunch(payload []byte) error {
	var req launchRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		h.counters.rejected.WithLabelValues("malformed").Inc()
		h.log.Warn("invalid JSON in launch message", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrMalformedLaunch, err)
	}
	if missing := req.missing(); missing != "" {
		h.counters.rejected.WithLabelValues("malformed").Inc()
		h.log.Warn("missing key in launch message", zap.String("key", missing))
		return fmt.Errorf("%w: missing %s", ErrMalformedLaunch, missing)
	}

	deviceID, ok := integralID(*req.DeviceID)
	if !ok || !h.fleet.Has(deviceID) {
		h.counters.rejected.WithLabelValues("unknown_device").Inc()
		h.log.Warn("invalid device id in launch message", zap.Float64("device_id", *req.DeviceID))
		return fmt.Errorf("launch device %v: %w", *req.DeviceID, fleet.ErrUnknownDevice)
	}

	ev := event{
		kind:       eventLaunch,
		deviceID:   deviceID,
		launchTime: seconds(*req.LaunchTime),
		heading:    *req.Heading,
	}
	if !h.events.push(ev) {
		h.counters.rejected.WithLabelValues("queue_full").Inc()
		h.log.Warn("dropping launch, event queue full", zap.Int("device_id", deviceID))
		return ErrQueueFull
	}

	echo, err := json.Marshal(launchEcho{LaunchTime: *req.LaunchTime, Heading: *req.Heading})
	if err != nil {
		return fmt.Errorf("encode launch echo: %w", err)
	}
	publish(h.pub, h.log, h.counters, "launch", h.topics.LaunchEcho(deviceID), echo)

	h.log.Info("duck launched",
		zap.Int("device_id", deviceID),
		zap.Float64("launch_time_s", *req.LaunchTime),
		zap.Float64("heading", *req.Heading))
	return nil
}

// integralID accepts 2 and 2.0 alike; anything with a fraction names no device.
func integralID(v float64) (int, bool) {
	if v != math.Trunc(v) || math.Abs(v) > math.MaxInt32 {
		return 0, false
	}
	return int(v), true
}

func (r launchRequest) missing() string {
	switch {
	case r.DeviceID == nil:
		return "device_id"
	case r.LaunchTime == nil:
		return "launch_time"
	case r.Heading == nil:
		return "heading"
	}
	return ""
}
