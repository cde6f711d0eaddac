package registry

// Subscribe registers a change listener. The channel holds at most one
// pending Change; a newer change replaces an unread older one, so a slow
// reader never blocks the registry. Call cancel to unsubscribe.
func (r *Registry) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, 1)

	r.subMu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch
	r.subMu.Unlock()

	cancel := func() {
		r.subMu.Lock()
		defer r.subMu.Unlock()
		if c, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// publish sends the current snapshot to every subscriber. Must be called
// without r.mu held.
func (r *Registry) publish() {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	if len(r.subs) == 0 {
		return
	}

	r.mu.Lock()
	change := Change{
		Sessions:     r.snapshotLocked(),
		WaitingCount: r.waitingLocked(),
		At:           r.now(),
	}
	r.mu.Unlock()

	for _, ch := range r.subs {
		select {
		case ch <- change:
		default:
			// Drop the stale pending change and replace it.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- change:
			default:
			}
		}
	}
}
