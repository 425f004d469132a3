package turn

import "sync/atomic"

// tryLock is a non-blocking mutex: Lock fails instead of blocking when
// already held, which is what guards a Client against a second concurrent
// Allocate() or Listen() call racing the first.
type tryLock struct {
	state int32
}

func (l *tryLock) Lock() error {
	if !atomic.CompareAndSwapInt32(&l.state, 0, 1) {
		return errAlreadyLocked
	}
	return nil
}

func (l *tryLock) Unlock() {
	atomic.StoreInt32(&l.state, 0)
}
