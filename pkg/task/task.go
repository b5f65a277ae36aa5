package task

import (
	"context"
	"errors"
	"fmt"

	"github.com/skeinworks/skein/pkg/observability"
)

// State is a task's settlement state.
type State int

const (
	// Unsettled tasks have neither value nor reason yet.
	Unsettled State = iota
	// Settling tasks have adopted a thenable and await its outcome.
	Settling
	// Resolved tasks carry a value.
	Resolved
	// Rejected tasks carry a reason.
	Rejected
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Unsettled:
		return "unsettled"
	case Settling:
		return "settling"
	case Resolved:
		return "resolved"
	case Rejected:
		return "rejected"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Task is a settlement container with a synchronous fast path: a Then on
// a settled task delivers its continuation before Then returns, and
// reactions registered while the task is pending fire in registration
// order during settlement. This deviation from always-async promise
// semantics is deliberate and load-bearing.
//
// Every task captures a Context at construction: the ambient Supertext,
// under which its executor and continuations run, and a diagnostic link
// to the context of the task being constructed around it.
//
// Tasks follow the module's single-owner cooperative model; the only
// operation safe to call from another goroutine is receiving on Done.
type Task struct {
	state State
	value any
	err   error

	reactions []func()
	done      chan struct{}
	ctx       *Context
}

// New creates a task and synchronously runs the optional executor with
// the task's context established. The executor settles the task through
// its arguments; a panic inside the executor rejects the task.
func New(executor func(resolve func(any), reject func(error))) *Task {
	t := newTask()
	if executor != nil {
		t.enter(func() {
			defer func() {
				if r := recover(); r != nil {
					t.reject(recoveredError(r))
				}
			}()
			executor(t.resolve, t.reject)
		})
	}
	return t
}

// Resolve returns a task settled with v. A task input is returned as is.
func Resolve(v any) *Task {
	if t, ok := v.(*Task); ok && t != nil {
		return t
	}
	t := newTask()
	t.resolve(v)
	return t
}

// RejectWith returns a task rejected with err.
func RejectWith(err error) *Task {
	t := newTask()
	t.reject(err)
	return t
}

// Void is the shared resolved task with no value.
var Void = Resolve(nil)

// All resolves with the slice of outcomes once every task input has
// resolved; non-task inputs pass through at their position. The first
// rejection rejects the result.
func All(inputs []any) *Task {
	t := newTask()
	results := make([]any, len(inputs))
	remaining := 0
	for _, in := range inputs {
		if sub, ok := in.(*Task); ok && sub != nil {
			remaining++
		}
	}
	if remaining == 0 {
		for i, in := range inputs {
			results[i] = in
		}
		t.resolve(results)
		return t
	}
	for i, in := range inputs {
		sub, ok := in.(*Task)
		if !ok || sub == nil {
			results[i] = in
			continue
		}
		sub.Then(func(v any) any {
			results[i] = v
			remaining--
			if remaining == 0 {
				t.resolve(results)
			}
			return nil
		}, func(err error) any {
			t.reject(err)
			return nil
		})
	}
	return t
}

// State returns the current settlement state.
func (t *Task) State() State { return t.state }

// Context returns the task's context record.
func (t *Task) Context() *Context { return t.ctx }

// Result returns the settled value or reason. Before settlement both
// results are zero; gate on State or Done first.
func (t *Task) Result() (any, error) {
	return t.value, t.err
}

// Done returns a channel closed at settlement. The same channel is
// returned for the life of the task.
func (t *Task) Done() <-chan struct{} {
	if t.done == nil {
		t.done = make(chan struct{})
		if t.terminal() {
			close(t.done)
		}
	}
	return t.done
}

// Await blocks until the task settles or ctx is done. It is the bridge
// out of the cooperative world; within it, prefer Then.
func (t *Task) Await(ctx context.Context) (any, error) {
	select {
	case <-t.Done():
		return t.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Then registers continuations and returns the task of their outcome.
//
// On a settled task the continuation is delivered synchronously, before
// Then returns. On a pending task it is delivered during settlement, in
// registration order.
//
// A nil onResolved passes the value through; a nil onRejected passes the
// rejection through. A continuation returning a *Task chains into it; a
// recovery handler returning an error re-rejects with it; a panicking
// continuation rejects the child.
func (t *Task) Then(onResolved func(v any) any, onRejected func(err error) any) *Task {
	child := newTask()
	deliver := func() { child.deliverFrom(t, onResolved, onRejected) }
	if t.terminal() {
		deliver()
	} else {
		t.reactions = append(t.reactions, deliver)
	}
	return child
}

// Catch is Then with only a rejection handler.
func (t *Task) Catch(onRejected func(err error) any) *Task {
	return t.Then(nil, onRejected)
}

func (t *Task) terminal() bool {
	return t.state == Resolved || t.state == Rejected
}

// resolve settles the task with v, adopting v's eventual outcome when it
// is itself a task. The first of resolve and reject wins; later calls
// are ignored.
func (t *Task) resolve(v any) {
	if t.state != Unsettled {
		return
	}
	if adopted, ok := v.(*Task); ok && adopted != nil {
		if adopted == t {
			t.finalize(nil, errors.New("task: resolved with itself"))
			return
		}
		t.state = Settling
		observability.Task().OnAdopt(t.ctx.ID.String())
		adopted.Then(func(x any) any {
			t.finalize(x, nil)
			return nil
		}, func(err error) any {
			t.finalize(nil, err)
			return nil
		})
		return
	}
	t.finalize(v, nil)
}

// reject settles the task with a reason. A nil reason is normalized so
// rejected tasks always carry an error.
func (t *Task) reject(err error) {
	if t.state != Unsettled {
		return
	}
	if err == nil {
		err = errors.New("task: rejected with nil reason")
	}
	t.finalize(nil, err)
}

// finalize moves to the terminal state and drains the reactions in
// registration order. It is reached from Unsettled directly or from
// Settling when the adopted task settles.
func (t *Task) finalize(v any, err error) {
	if t.terminal() {
		return
	}
	if err != nil {
		t.state = Rejected
		t.err = err
	} else {
		t.state = Resolved
		t.value = v
	}
	observability.Task().OnSettle(t.ctx.ID.String(), err != nil)
	if t.done != nil {
		close(t.done)
	}
	reactions := t.reactions
	t.reactions = nil
	for _, fire := range reactions {
		fire()
	}
}

// deliverFrom transforms the settled outcome of src into child's own
// settlement, running the handlers inside child's context.
func (child *Task) deliverFrom(src *Task, onResolved func(any) any, onRejected func(error) any) {
	child.enter(func() {
		defer func() {
			if r := recover(); r != nil {
				child.reject(recoveredError(r))
			}
		}()
		if src.state == Resolved {
			if onResolved == nil {
				child.resolve(src.value)
				return
			}
			child.settleWith(onResolved(src.value))
			return
		}
		if onRejected == nil {
			child.reject(src.err)
			return
		}
		child.settleWith(onRejected(src.err))
	})
}

// settleWith interprets a handler result: errors re-reject, anything
// else (tasks included) resolves.
func (t *Task) settleWith(out any) {
	if err, ok := out.(error); ok {
		t.reject(err)
		return
	}
	t.resolve(out)
}

func recoveredError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("task: handler panic: %v", r)
}
