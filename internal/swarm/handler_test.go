package swarm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/joshp123/duckswarm/internal/fleet"
)

type fakeSubscriber struct {
	mu       sync.Mutex
	handlers map[string]func([]byte)
	fail     string
}

func (s *fakeSubscriber) Subscribe(topic string, cb func([]byte)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if topic == s.fail {
		return nil, errors.New("not authorized")
	}
	if s.handlers == nil {
		s.handlers = make(map[string]func([]byte))
	}
	s.handlers[topic] = cb
	return func() {
		s.mu.Lock()
		delete(s.handlers, topic)
		s.mu.Unlock()
	}, nil
}

func (s *fakeSubscriber) deliver(topic string, payload []byte) bool {
	s.mu.Lock()
	cb, ok := s.handlers[topic]
	s.mu.Unlock()
	if ok {
		cb(payload)
	}
	return ok
}

func (s *fakeSubscriber) topics() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers)
}

func TestLaunchRequestScenario(t *testing.T) {
	c, pub, _ := newTestCoordinator(t, testConfig())

	err := c.Handler().HandleLaunch([]byte(`{"device_id":1,"launch_time":5,"heading":90}`))
	require.NoError(t, err)

	echoes := pub.onTopic("dancing_duck/devices/1/command/launch")
	require.Len(t, echoes, 1)
	assert.JSONEq(t, `{"launch_time":5,"heading":90}`, string(echoes[0].payload))

	c.drainEvents()
	device, ok := c.Fleet().Get(1)
	require.True(t, ok)
	assert.True(t, device.Launched)
	assert.Equal(t, 5*time.Second, device.LaunchRemaining)
	assert.Equal(t, 3*time.Second, device.CalibrationRemaining)
	assert.Equal(t, 90.0, device.LaunchHeading)
	assert.False(t, device.IsReady())
}

func TestLaunchAcceptsIntegralFloatID(t *testing.T) {
	c, pub, _ := newTestCoordinator(t, testConfig())

	require.NoError(t, c.Handler().HandleLaunch([]byte(`{"device_id":2.0,"launch_time":1,"heading":10}`)))
	assert.Len(t, pub.onTopic("dancing_duck/devices/2/command/launch"), 1)

	c.drainEvents()
	device, _ := c.Fleet().Get(2)
	assert.True(t, device.Launched)
}

func TestLaunchRejections(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		err     error
	}{
		{"not json", `{"device_id":`, ErrMalformedLaunch},
		{"missing device", `{"launch_time":5,"heading":90}`, ErrMalformedLaunch},
		{"missing launch time", `{"device_id":1,"heading":90}`, ErrMalformedLaunch},
		{"missing heading", `{"device_id":1,"launch_time":5}`, ErrMalformedLaunch},
		{"unknown device", `{"device_id":9,"launch_time":5,"heading":90}`, fleet.ErrUnknownDevice},
		{"fractional device", `{"device_id":1.5,"launch_time":5,"heading":90}`, fleet.ErrUnknownDevice},
		{"string device", `{"device_id":"1","launch_time":5,"heading":90}`, ErrMalformedLaunch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, pub, _ := newTestCoordinator(t, testConfig())

			err := c.Handler().HandleLaunch([]byte(tc.payload))
			assert.ErrorIs(t, err, tc.err)
			assert.Zero(t, pub.count())

			c.drainEvents()
			for _, device := range c.Fleet().Snapshot() {
				assert.False(t, device.Launched)
			}
		})
	}
}

func TestRelaunchOverwrites(t *testing.T) {
	c, _, _ := newTestCoordinator(t, testConfig())
	h := c.Handler()

	require.NoError(t, h.HandleLaunch([]byte(`{"device_id":2,"launch_time":5,"heading":90}`)))
	require.NoError(t, h.HandleLaunch([]byte(`{"device_id":2,"launch_time":1.5,"heading":270}`)))
	c.drainEvents()

	device, _ := c.Fleet().Get(2)
	assert.Equal(t, 1500*time.Millisecond, device.LaunchRemaining)
	assert.Equal(t, 270.0, device.LaunchHeading)
}

func TestEventQueueFull(t *testing.T) {
	c, pub, _ := newTestCoordinator(t, testConfig())
	h := c.Handler()

	for i := 0; i < EventQueueSize; i++ {
		h.HandleDockOverride(nil)
	}
	err := h.HandleLaunch([]byte(`{"device_id":1,"launch_time":5,"heading":90}`))
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Zero(t, pub.count(), "no echo for a dropped launch")

	c.drainEvents()
	assert.True(t, c.Status().ForceDock)
}

func TestHandlerSubscribe(t *testing.T) {
	c, _, _ := newTestCoordinator(t, testConfig())
	sub := &fakeSubscriber{}

	unsubscribe, err := c.Handler().Subscribe(sub)
	require.NoError(t, err)
	assert.Equal(t, 2, sub.topics())

	require.True(t, sub.deliver("dancing_duck/coordinator/return_to_dock", []byte("anything")))
	require.True(t, sub.deliver("dancing_duck/coordinator/launch", []byte(`{"device_id":2,"launch_time":0,"heading":0}`)))
	c.drainEvents()
	assert.True(t, c.Status().ForceDock)
	device, _ := c.Fleet().Get(2)
	assert.True(t, device.IsReady())

	unsubscribe()
	assert.Zero(t, sub.topics())
}

func TestHandlerSubscribeFailure(t *testing.T) {
	c, _, _ := newTestCoordinator(t, testConfig())
	sub := &fakeSubscriber{fail: "dancing_duck/coordinator/launch"}

	_, err := c.Handler().Subscribe(sub)
	require.Error(t, err)
	assert.Zero(t, sub.topics(), "partial subscriptions are rolled back")
}

func TestHandlerConcurrentWithLoop(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := testConfig()
	cfg.FloatMin = time.Second
	cfg.FloatMax = time.Second
	c, _, clock := newTestCoordinator(t, cfg)
	clock.onSleep = func(int) { time.Sleep(time.Millisecond) }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	var wg sync.WaitGroup
	for _, id := range []int{1, 2} {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			payload := []byte(`{"device_id":` + string(rune('0'+id)) + `,"launch_time":0,"heading":45}`)
			assert.NoError(t, c.Handler().HandleLaunch(payload))
			c.Handler().HandleDockOverride(nil)
		}(id)
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		status := c.Status()
		if !status.Running {
			return false
		}
		for _, device := range status.Devices {
			if !device.Launched {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator did not stop")
	}
}
