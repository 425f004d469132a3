package turn

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPeriodicTimerFiresRepeatedly(t *testing.T) {
	var fires int32
	pt := newPeriodicTimer(1, func(id int) {
		atomic.AddInt32(&fires, 1)
	}, 10*time.Millisecond)

	require := assert.New(t)
	require.True(pt.start())
	require.False(pt.start())

	time.Sleep(55 * time.Millisecond)
	pt.stop()

	got := atomic.LoadInt32(&fires)
	assert.GreaterOrEqual(t, got, int32(3))
}

func TestPeriodicTimerStopPreventsFurtherFires(t *testing.T) {
	var fires int32
	pt := newPeriodicTimer(1, func(id int) {
		atomic.AddInt32(&fires, 1)
	}, 10*time.Millisecond)

	pt.start()
	time.Sleep(15 * time.Millisecond)
	pt.stop()

	after := atomic.LoadInt32(&fires)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, atomic.LoadInt32(&fires))
}
