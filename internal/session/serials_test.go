package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerialTrackerObserve(t *testing.T) {
	tr, err := NewSerialTracker(0)
	require.NoError(t, err)

	key := DeviceKey{Gateway: 137205, Device: "E005"}

	assert.Equal(t, Observation{}, tr.Observe(key, 1240))
	assert.Equal(t, Observation{Previous: 1240, Seen: true}, tr.Observe(key, 1241))
	assert.Equal(t, Observation{Previous: 1241, Seen: true, Gap: 3}, tr.Observe(key, 1245))
	assert.Equal(t, Observation{Previous: 1245, Seen: true, Duplicate: true}, tr.Observe(key, 1245))
	assert.Equal(t, Observation{Previous: 1245, Seen: true, Regressed: true}, tr.Observe(key, 3))

	last, ok := tr.Last(key)
	require.True(t, ok)
	assert.Equal(t, uint64(3), last)
}

func TestSerialTrackerKeysByGateway(t *testing.T) {
	tr, err := NewSerialTracker(8)
	require.NoError(t, err)

	tr.Observe(DeviceKey{Gateway: 1, Device: "36503"}, 10)
	obs := tr.Observe(DeviceKey{Gateway: 2, Device: "36503"}, 5)

	assert.False(t, obs.Seen)
	assert.Equal(t, 2, tr.Len())
}

func TestSerialTrackerEvictsOldest(t *testing.T) {
	tr, err := NewSerialTracker(2)
	require.NoError(t, err)

	a := DeviceKey{Device: "a"}
	tr.Observe(a, 1)
	tr.Observe(DeviceKey{Device: "b"}, 1)
	tr.Observe(DeviceKey{Device: "c"}, 1)

	_, ok := tr.Last(a)
	assert.False(t, ok)
	assert.Equal(t, 2, tr.Len())
}
