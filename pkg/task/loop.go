package task

import (
	"sync"
	"time"

	"github.com/skeinworks/skein/pkg/supertext"
)

// Loop is a cooperative turn queue: the process-wide scheduler seam the
// tasks in this package are designed against. Work is posted from
// anywhere (timer goroutines included) and drained by the single owner;
// each turn runs under the ambient Supertext snapshotted when the work
// was posted, so context capture stays coherent across scheduling
// boundaries.
type Loop struct {
	mu    sync.Mutex
	queue []func()
}

// NewLoop creates an empty loop.
func NewLoop() *Loop {
	return &Loop{}
}

// Post enqueues fn bound to the current ambient Supertext. The snapshot
// is exact: the turn runs under the posting context alone.
func (l *Loop) Post(fn func()) {
	l.post(supertext.Current().BindOnly(fn))
}

// post enqueues an already-bound turn.
func (l *Loop) post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
}

// AfterFunc schedules fn to be enqueued after d, wrapped in bind
// semantics: when the turn eventually runs it sees the merge of the
// scheduling context and whatever context the loop is draining under.
// The returned timer can cancel the callback before it is enqueued.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *time.Timer {
	bound := supertext.Bind(fn)
	return time.AfterFunc(d, func() { l.post(bound) })
}

// Go runs fn as its own turn and returns the task of its outcome.
func (l *Loop) Go(fn func() (any, error)) *Task {
	t := newTask()
	l.Post(func() {
		v, err := fn()
		if err != nil {
			t.reject(err)
			return
		}
		t.resolve(v)
	})
	return t
}

// Len returns the number of queued turns.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Drain runs turns until the queue is empty, including turns enqueued by
// the turns themselves, and reports how many ran. Drain must be called
// by the loop's owner.
func (l *Loop) Drain() int {
	ran := 0
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return ran
		}
		fn := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()
		fn()
		ran++
	}
}

// DrainFor repeatedly drains for the given duration, polling at the
// given interval. It exists for tests and simple hosts that wait on
// timer-posted work.
func (l *Loop) DrainFor(d, poll time.Duration) int {
	ran := 0
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		ran += l.Drain()
		time.Sleep(poll)
	}
	return ran + l.Drain()
}
