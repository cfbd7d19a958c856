package recall

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/selfrecall/selfrecall/internal/schema"
	"github.com/selfrecall/selfrecall/internal/session"
)

// State is the lifecycle of a PendingAction.
//
//	Scheduled -> Waiting -> Deleting -> Done
//	                |           |
//	                +-----------+-> Cancelled
type State int32

const (
	StateScheduled State = iota
	StateWaiting
	StateDeleting
	StateDone
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateScheduled:
		return "scheduled"
	case StateWaiting:
		return "waiting"
	case StateDeleting:
		return "deleting"
	case StateDone:
		return "done"
	case StateCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool { return s == StateDone || s == StateCancelled }

// Action is one scheduled deletion of one sent message.
type Action struct {
	id        string
	session   session.Key
	handle    schema.MessageHandle
	delay     time.Duration
	createdAt time.Time

	mu         sync.Mutex
	state      State
	err        error
	aborted    bool
	finishedAt time.Time

	stop      chan struct{}
	deleteCtx context.Context
	abort     context.CancelFunc
	done      chan struct{}
}

func newAction(key session.Key, h schema.MessageHandle, delay time.Duration) *Action {
	ctx, cancel := context.WithCancel(context.Background())
	return &Action{
		id:        uuid.NewString(),
		session:   key,
		handle:    h,
		delay:     delay,
		createdAt: time.Now(),
		state:     StateScheduled,
		stop:      make(chan struct{}),
		deleteCtx: ctx,
		abort:     cancel,
		done:      make(chan struct{}),
	}
}

func (a *Action) ID() string                   { return a.id }
func (a *Action) Session() session.Key         { return a.session }
func (a *Action) Handle() schema.MessageHandle { return a.handle }
func (a *Action) Delay() time.Duration         { return a.delay }
func (a *Action) CreatedAt() time.Time         { return a.createdAt }
func (a *Action) DueAt() time.Time             { return a.createdAt.Add(a.delay) }

// Done is closed once the action has reached a terminal state and left the registry.
func (a *Action) Done() <-chan struct{} { return a.done }

func (a *Action) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Err returns the delete failure, if the action ended with one.
func (a *Action) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

func (a *Action) FinishedAt() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.finishedAt
}

// Outcome is a short label for the terminal state: "done", "failed" or "cancelled".
func (a *Action) Outcome() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case a.state == StateCancelled:
		return "cancelled"
	case a.err != nil:
		return "failed"
	case a.state == StateDone:
		return "done"
	}
	return a.state.String()
}

// Cancel stops a waiting action before its timer fires. Once the delete call
// has started Cancel has no effect; use Abort to interrupt it.
func (a *Action) Cancel() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch a.state {
	case StateScheduled, StateWaiting:
		a.state = StateCancelled
		close(a.stop)
		return true
	}
	return false
}

// Abort cancels a waiting action or interrupts an in-flight delete call.
func (a *Action) Abort() {
	if a.Cancel() {
		return
	}
	a.mu.Lock()
	if a.state == StateDeleting {
		a.aborted = true
	}
	a.mu.Unlock()
	a.abort()
}

func (a *Action) markWaiting() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateScheduled {
		a.state = StateWaiting
	}
}

func (a *Action) enterDeleting() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateWaiting {
		return false
	}
	a.state = StateDeleting
	return true
}

func (a *Action) complete(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state.Terminal() {
		return
	}
	a.err = err
	if err != nil && a.aborted {
		a.state = StateCancelled
	} else {
		a.state = StateDone
	}
}

func (a *Action) seal() {
	a.mu.Lock()
	if !a.state.Terminal() {
		a.state = StateCancelled
	}
	a.finishedAt = time.Now()
	a.mu.Unlock()
	a.abort()
}

// run waits out the delay, then deletes. It always ends in a terminal state.
func (a *Action) run(d Deleter, timeout time.Duration, finish func(*Action)) {
	defer finish(a)

	timer := time.NewTimer(a.delay)
	defer timer.Stop()

	select {
	case <-a.stop:
		return
	case <-timer.C:
	}
	if !a.enterDeleting() {
		return
	}
	a.complete(a.delete(d, timeout))
}

func (a *Action) delete(d Deleter, timeout time.Duration) (err error) {
	ctx := a.deleteCtx
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrDeleteFailed, r)
		}
	}()
	if err := d.DeleteMessage(ctx, a.handle); err != nil {
		return fmt.Errorf("%w: %w", ErrDeleteFailed, err)
	}
	return nil
}
