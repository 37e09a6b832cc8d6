package services

import "context"

// Progress reports how far an operation has come. For uploads Done and
// Total count bytes; for batch retrieval they count bulletins.
type Progress struct {
	Label string
	Done  int64
	Total int64
}

// ProgressSink receives progress updates from a running task. It is called
// from the task's goroutine.
type ProgressSink func(Progress)

// Task is a running or finished operation.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
	code   string
	err    error
}

func start(ctx context.Context, sink ProgressSink, fn func(ctx context.Context) (string, error)) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{cancel: cancel, done: make(chan struct{})}
	run := func() {
		defer close(t.done)
		defer cancel()
		t.code, t.err = fn(ctx)
	}
	if sink == nil {
		run()
		return t
	}
	go run()
	return t
}

// Cancel asks the task to stop before its next unit of work. Work already
// committed is kept.
func (t *Task) Cancel() { t.cancel() }

func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task finishes and returns its result code.
func (t *Task) Wait() (string, error) {
	<-t.done
	return t.code, t.err
}
