// Package notify provides the event-readiness primitive that lets a blocked
// interpreter resume exactly when the display side has produced new input.
//
// The producer announces events by sequence number; the counter only grows.
// A consumer waits with the last sequence number it has handled and returns
// as soon as the counter is past it. Because the comparison and the decision
// to block happen under the same lock that Notify advances the counter with,
// an event announced between the consumer's last check and its next Wait is
// never lost.
//
//	n := notify.New()
//
//	// display side
//	n.Notify(1)
//
//	// interpreter side
//	seq, err := n.Wait(ctx, 0) // returns 1 immediately
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrCancelled is returned by Wait when the notifier was cancelled or
	// the wait context was cancelled. It matches context.Canceled.
	ErrCancelled = &waitError{"notify: wait cancelled", context.Canceled}

	// ErrTimedOut is returned by Wait when the wait context's deadline
	// passed. It matches context.DeadlineExceeded.
	ErrTimedOut = &waitError{"notify: wait timed out", context.DeadlineExceeded}
)

type waitError struct {
	msg string
	ctx error
}

func (e *waitError) Error() string        { return e.msg }
func (e *waitError) Is(target error) bool { return target == e.ctx }

// State describes what the notifier is doing.
type State int

const (
	// Idle means no waiter is blocked.
	Idle State = iota
	// Waiting means at least one waiter is blocked.
	Waiting
	// Delivering means a notification released waiters that have not yet
	// resumed.
	Delivering
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Waiting:
		return "waiting"
	case Delivering:
		return "delivering"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Listener receives one-way event-ready announcements.
type Listener interface {
	// EventReady announces that events up to seq are available.
	EventReady(seq uint64)
}

// Notifier is a sequence-counter wake-up primitive shared by one producer and
// any number of waiters. The zero value is not usable; call New.
type Notifier struct {
	mu        sync.Mutex
	seq       uint64
	wake      chan struct{}
	done      chan struct{}
	cancelled bool
	waiters   int
	releasing int
}

// New creates a Notifier with the counter at zero.
func New() *Notifier {
	return &Notifier{
		wake: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Notify advances the counter to seq and releases every blocked waiter. A
// seq that is not strictly greater than the counter is ignored. It reports
// whether the counter advanced.
func (n *Notifier) Notify(seq uint64) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if seq <= n.seq {
		return false
	}
	n.seq = seq
	n.releasing = n.waiters
	close(n.wake)
	n.wake = make(chan struct{})
	return true
}

// EventReady implements Listener.
func (n *Notifier) EventReady(seq uint64) {
	n.Notify(seq)
}

// Wait blocks until the counter exceeds lastSeen and returns the counter.
// If the counter already exceeds lastSeen it returns without blocking.
//
// Wait returns ErrCancelled after Cancel or when ctx is cancelled, and
// ErrTimedOut when ctx's deadline passes. These are never reported together
// with a sequence number; the returned sequence is zero.
func (n *Notifier) Wait(ctx context.Context, lastSeen uint64) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for {
		if n.cancelled {
			return 0, ErrCancelled
		}
		if n.seq > lastSeen {
			return n.seq, nil
		}
		if err := ctx.Err(); err != nil {
			return 0, waitErr(err)
		}

		wake := n.wake
		n.waiters++
		n.mu.Unlock()

		select {
		case <-wake:
		case <-n.done:
		case <-ctx.Done():
		}

		n.mu.Lock()
		n.waiters--
		if n.wake != wake {
			// Released by a Notify that counted this waiter.
			n.releasing--
		}
	}
}

// WaitTimeout is Wait with a deadline of d from now.
func (n *Notifier) WaitTimeout(lastSeen uint64, d time.Duration) (uint64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return n.Wait(ctx, lastSeen)
}

// Cancel permanently unblocks every current and future waiter with
// ErrCancelled. It is used at session teardown and is safe to call more
// than once.
func (n *Notifier) Cancel() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cancelled {
		return
	}
	n.cancelled = true
	close(n.done)
}

// Done returns a channel closed by Cancel.
func (n *Notifier) Done() <-chan struct{} {
	return n.done
}

// Seq returns the current counter.
func (n *Notifier) Seq() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.seq
}

// Waiters returns the number of blocked waiters.
func (n *Notifier) Waiters() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.waiters
}

// State returns the current state.
func (n *Notifier) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	switch {
	case n.releasing > 0:
		return Delivering
	case n.waiters > 0:
		return Waiting
	}
	return Idle
}

func waitErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimedOut
	}
	return ErrCancelled
}

var _ Listener = (*Notifier)(nil)
