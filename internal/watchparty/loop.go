package watchparty

import "sync"

// eventLoop runs posted tasks one at a time on a single goroutine. Posting
// never blocks, so tasks may post further tasks.
type eventLoop struct {
	mu      sync.Mutex
	queue   []func()
	closed  bool
	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}
}

func newEventLoop() *eventLoop {
	return &eventLoop{
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

func (l *eventLoop) post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}

	return true
}

func (l *eventLoop) run() {
	defer close(l.stopped)

	for {
		select {
		case <-l.done:
			return
		case <-l.wake:
		}

		for {
			l.mu.Lock()
			if l.closed || len(l.queue) == 0 {
				l.mu.Unlock()
				break
			}
			fn := l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
			l.mu.Unlock()

			fn()
		}
	}
}

// stop drops queued tasks and waits for the running one to finish. It must
// not be called from a task.
func (l *eventLoop) stop() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.queue = nil
	l.mu.Unlock()

	close(l.done)
	<-l.stopped
}

// flush waits until every task posted before it has run.
func (l *eventLoop) flush() bool {
	ch := make(chan struct{})
	if !l.post(func() { close(ch) }) {
		return false
	}

	select {
	case <-ch:
		return true
	case <-l.stopped:
		return false
	}
}
