package session

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultSerialCapacity bounds how many devices a SerialTracker remembers.
const DefaultSerialCapacity = 1024

// DeviceKey identifies a device across gateways.
type DeviceKey struct {
	Gateway uint64
	Device  string
}

// Observation describes how a serial number relates to the previous one
// seen from the same device.
type Observation struct {
	Previous  uint64
	Seen      bool // a previous serial was known
	Gap       uint64
	Regressed bool
	Duplicate bool
}

// SerialTracker remembers the last "serial no" reported per device. Gaps
// and regressions are diagnostic signal for lost or replayed telemetry.
//
// It is separate from State: inbound handlers write to it, and it holds no
// connection state.
type SerialTracker struct {
	mu    sync.Mutex
	cache *lru.Cache[DeviceKey, uint64]
}

// NewSerialTracker returns a tracker holding at most size devices. A size
// of zero or less uses DefaultSerialCapacity.
func NewSerialTracker(size int) (*SerialTracker, error) {
	if size <= 0 {
		size = DefaultSerialCapacity
	}
	cache, err := lru.New[DeviceKey, uint64](size)
	if err != nil {
		return nil, fmt.Errorf("creating serial cache: %w", err)
	}
	return &SerialTracker{cache: cache}, nil
}

// Observe records serial for key and reports its relation to the previous one.
func (t *SerialTracker) Observe(key DeviceKey, serial uint64) Observation {
	t.mu.Lock()
	prev, ok := t.cache.Get(key)
	t.cache.Add(key, serial)
	t.mu.Unlock()
	if !ok {
		return Observation{}
	}

	obs := Observation{Previous: prev, Seen: true}
	switch {
	case serial == prev:
		obs.Duplicate = true
	case serial < prev:
		obs.Regressed = true
	case serial > prev+1:
		obs.Gap = serial - prev - 1
	}
	return obs
}

// Last returns the last serial seen for key.
func (t *SerialTracker) Last(key DeviceKey) (uint64, bool) {
	return t.cache.Peek(key)
}

// Len returns the number of tracked devices.
func (t *SerialTracker) Len() int {
	return t.cache.Len()
}
