package focus

// animLock defers focus changes while a completion animation is in flight.
// At most one request is held; newer requests overwrite older ones, so the
// replay after unlock reflects only the latest intent.
type animLock struct {
	held    bool
	pending *Request
}

func (l *animLock) lock() {
	l.held = true
}

// enqueue records a request to replay after unlock, last-write-wins.
func (l *animLock) enqueue(req Request) {
	l.pending = &req
}

// unlock releases the lock and returns the deferred request, if any.
func (l *animLock) unlock() *Request {
	l.held = false
	p := l.pending
	l.pending = nil
	return p
}
