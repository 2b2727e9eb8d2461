package transport

import (
	"time"
)

type result struct {
	reply Reply
	err   error
}

// pending is one outstanding request. Whoever removes it from the table
// resolves it, so it is resolved exactly once.
type pending struct {
	key      Key
	issuedAt time.Time
	timeout  time.Duration
	done     chan result
}

func newPending(key Key, timeout time.Duration) *pending {
	return &pending{
		key:      key,
		issuedAt: time.Now(),
		timeout:  timeout,
		done:     make(chan result, 1),
	}
}

func (p *pending) resolve(r Reply, err error) {
	p.done <- result{reply: r, err: err}
}

// table holds pending requests in issue order per key. It is guarded by
// the session mutex.
type table map[Key][]*pending

func (t table) add(p *pending) {
	t[p.key] = append(t[p.key], p)
}

// pop removes the oldest request waiting on key.
func (t table) pop(key Key) *pending {
	list := t[key]
	if len(list) == 0 {
		return nil
	}
	p := list[0]
	if len(list) == 1 {
		delete(t, key)
	} else {
		t[key] = list[1:]
	}
	return p
}

// remove deletes p and reports whether it was still present.
func (t table) remove(p *pending) bool {
	list := t[p.key]
	for i, q := range list {
		if q != p {
			continue
		}
		list = append(list[:i:i], list[i+1:]...)
		if len(list) == 0 {
			delete(t, p.key)
		} else {
			t[p.key] = list
		}
		return true
	}
	return false
}

func (t table) len() int {
	n := 0
	for _, list := range t {
		n += len(list)
	}
	return n
}
