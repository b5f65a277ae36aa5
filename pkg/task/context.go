package task

import (
	"github.com/google/uuid"

	"github.com/skeinworks/skein/pkg/supertext"
)

// Context is the lightweight record captured by every task at
// construction: an identifier for correlation, the ambient Supertext the
// task's handlers run under, and a link to the context of the
// enclosing task. The chain is diagnostic only and never references
// task objects, so it cannot keep settled tasks alive.
type Context struct {
	ID      uuid.UUID
	Ambient *supertext.Supertext
	Parent  *Context
}

// current is the context of the task whose executor or continuation is
// running right now, nil between tasks.
var current *Context

// CurrentContext returns the context of the running task, or nil when no
// task is running.
func CurrentContext() *Context { return current }

func newTask() *Task {
	return &Task{ctx: &Context{
		ID:      uuid.New(),
		Ambient: supertext.Current(),
		Parent:  current,
	}}
}

// enter runs fn with t's context established: t.ctx is the current task
// context and t's captured Supertext is ambient.
func (t *Task) enter(fn func()) {
	prev := current
	current = t.ctx
	defer func() { current = prev }()
	t.ctx.Ambient.Run(fn)
}
