package scheduler

// Fire runs the cron job registered for id as if its trigger had fired.
func (e *Engine) Fire(id int64) bool {
	e.mu.Lock()
	cur, ok := e.entries[id]
	e.mu.Unlock()
	if !ok {
		return false
	}
	e.fire(id, cur.gen)
	return true
}

// FireStale runs a job for id with a generation that is no longer current.
func (e *Engine) FireStale(id int64) {
	e.fire(id, 0)
}

// Lock holds the per-watcher lock for id until the returned func is called.
func (e *Engine) Lock(id int64) func() {
	l := e.acquire(id)
	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		e.release(id, l)
	}
}

// Locks returns how many per-watcher locks are allocated.
func (e *Engine) Locks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.locks)
}
