package turn

import (
	"sync"
	"time"
)

// periodicTimer fires onTimer repeatedly at interval until stop is
// called, used to drive allocation and permission refreshes.
type periodicTimer struct {
	id       int
	interval time.Duration
	onTimer  func(id int)

	mu     sync.Mutex
	timer  *time.Timer
	closed bool
}

func newPeriodicTimer(id int, onTimer func(id int), interval time.Duration) *periodicTimer {
	return &periodicTimer{id: id, interval: interval, onTimer: onTimer}
}

// start arms the timer; it returns false if the timer was already running.
func (t *periodicTimer) start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil || t.closed {
		return false
	}
	t.timer = time.AfterFunc(t.interval, t.fire)
	return true
}

func (t *periodicTimer) fire() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.timer = time.AfterFunc(t.interval, t.fire)
	t.mu.Unlock()

	t.onTimer(t.id)
}

func (t *periodicTimer) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	if t.timer != nil {
		t.timer.Stop()
	}
}
