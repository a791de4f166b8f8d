package fleet

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrUnknownDevice = errors.New("unknown device")

// Fleet is the fixed set of configured ducks. Entries are created once and
// never removed; all access goes through a single mutex.
type Fleet struct {
	mu      sync.Mutex
	order   []int
	devices map[int]*Device
}

func New(ids []int) *Fleet {
	f := &Fleet{
		order:   make([]int, 0, len(ids)),
		devices: make(map[int]*Device, len(ids)),
	}
	for _, id := range ids {
		if _, ok := f.devices[id]; ok {
			continue
		}
		f.order = append(f.order, id)
		f.devices[id] = &Device{ID: id}
	}
	return f
}

// IDs returns device ids in configuration order.
func (f *Fleet) IDs() []int {
	out := make([]int, len(f.order))
	copy(out, f.order)
	return out
}

func (f *Fleet) Has(id int) bool {
	_, ok := f.devices[id]
	return ok
}

// Launch arms device id.
func (f *Fleet) Launch(id int, launchTime time.Duration, heading float64, calibrationTime time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	device, ok := f.devices[id]
	if !ok {
		return fmt.Errorf("launch device %d: %w", id, ErrUnknownDevice)
	}
	device.Launch(launchTime, heading, calibrationTime)
	return nil
}

// Tick advances every device's timers by elapsed.
func (f *Fleet) Tick(elapsed time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, id := range f.order {
		f.devices[id].Tick(elapsed)
	}
}

// Ready returns the ids of ready devices in configuration order.
func (f *Fleet) Ready() []int {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []int
	for _, id := range f.order {
		if f.devices[id].IsReady() {
			out = append(out, id)
		}
	}
	return out
}

// Snapshot returns copies of all devices in configuration order.
func (f *Fleet) Snapshot() []Device {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Device, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, *f.devices[id])
	}
	return out
}

// Get returns a copy of device id.
func (f *Fleet) Get(id int) (Device, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	device, ok := f.devices[id]
	if !ok {
		return Device{}, false
	}
	return *device, true
}
