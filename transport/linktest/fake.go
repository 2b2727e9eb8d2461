// Package linktest provides an in-memory transport.Link for tests.
package linktest

import (
	"errors"
	"sync"
	"time"
)

var ErrClosed = errors.New("linktest: link closed")

// Write is one recorded outbound message.
type Write struct {
	At   time.Time
	Data []byte
	Err  error
}

// Fake records writes with timestamps and delivers injected messages on a
// single goroutine, as a real link does.
type Fake struct {
	mu        sync.Mutex
	writes    []Write
	failures  map[int]error
	responder func(req []byte) [][]byte
	closed    bool
	listening bool

	inbound chan []byte
	done    chan struct{}
	wg      sync.WaitGroup
	flight  sync.WaitGroup
}

func New() *Fake {
	return &Fake{
		failures: make(map[int]error),
		inbound:  make(chan []byte, 1024),
		done:     make(chan struct{}),
	}
}

// FailWrite makes the nth write (1-based) return err.
func (f *Fake) FailWrite(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[n] = err
}

// Respond installs fn to answer every successful write with zero or more
// inbound messages.
func (f *Fake) Respond(fn func(req []byte) [][]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responder = fn
}

func (f *Fake) Write(data []byte) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	w := Write{At: time.Now(), Data: append([]byte(nil), data...)}
	w.Err = f.failures[len(f.writes)+1]
	f.writes = append(f.writes, w)
	responder := f.responder
	f.mu.Unlock()

	if w.Err != nil {
		return w.Err
	}
	if responder != nil {
		for _, msg := range responder(w.Data) {
			f.Inject(msg)
		}
	}
	return nil
}

func (f *Fake) Listen(fn func([]byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	if f.listening {
		return errors.New("linktest: already listening")
	}
	f.listening = true

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for {
			select {
			case msg := <-f.inbound:
				fn(msg)
				f.flight.Done()
			case <-f.done:
				return
			}
		}
	}()
	return nil
}

// Inject queues an inbound message. It is dropped once the link is closed.
func (f *Fake) Inject(msg []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.flight.Add(1)
	f.inbound <- append([]byte(nil), msg...)
}

// Flush blocks until every injected message has been delivered.
func (f *Fake) Flush() {
	f.flight.Wait()
}

func (f *Fake) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	close(f.done)
	f.mu.Unlock()
	f.wg.Wait()
	return nil
}

// Writes returns every write attempt, failed ones included.
func (f *Fake) Writes() []Write {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Write(nil), f.writes...)
}

// Sent returns the data of successful writes.
func (f *Fake) Sent() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]byte
	for _, w := range f.writes {
		if w.Err == nil {
			out = append(out, w.Data)
		}
	}
	return out
}

func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
