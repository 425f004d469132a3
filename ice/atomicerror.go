package ice

import "sync/atomic"

// atomicError stores an error for concurrent access without a mutex,
// letting Agent.Close record the shutdown cause while recvLoop goroutines
// concurrently read it through getErr.
type atomicError struct {
	v atomic.Value
}

func (a *atomicError) Store(err error) {
	a.v.Store(errWrapper{err})
}

func (a *atomicError) Load() error {
	v := a.v.Load()
	if v == nil {
		return nil
	}
	return v.(errWrapper).err
}

type errWrapper struct{ err error }
