package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// waitForWaiters polls until n has want blocked waiters.
func waitForWaiters(t *testing.T, n *Notifier, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for n.Waiters() != want {
		if time.Now().After(deadline) {
			t.Fatalf("waiters = %d, want %d", n.Waiters(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestWaitReturnsImmediately(t *testing.T) {
	n := New()
	n.Notify(1)

	seq, err := n.Wait(context.Background(), 0)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if seq != 1 {
		t.Fatalf("seq = %d, want 1", seq)
	}
	if n.State() != Idle {
		t.Fatalf("state = %v, want idle", n.State())
	}
}

func TestWaitBlocksUntilNotify(t *testing.T) {
	n := New()
	done := make(chan uint64, 1)
	go func() {
		seq, err := n.Wait(context.Background(), 0)
		if err != nil {
			t.Errorf("Wait: %v", err)
		}
		done <- seq
	}()

	waitForWaiters(t, n, 1)
	if n.State() != Waiting {
		t.Fatalf("state = %v, want waiting", n.State())
	}
	n.Notify(3)

	select {
	case seq := <-done:
		if seq != 3 {
			t.Fatalf("seq = %d, want 3", seq)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter not released")
	}
	waitForWaiters(t, n, 0)
	if n.State() != Idle {
		t.Fatalf("state = %v, want idle", n.State())
	}
}

func TestNotifyIsMonotonic(t *testing.T) {
	n := New()
	tests := []struct {
		seq  uint64
		want bool
		cur  uint64
	}{
		{1, true, 1},
		{1, false, 1},
		{5, true, 5},
		{3, false, 5},
		{0, false, 5},
		{6, true, 6},
	}
	for _, tt := range tests {
		if got := n.Notify(tt.seq); got != tt.want {
			t.Fatalf("Notify(%d) = %v, want %v", tt.seq, got, tt.want)
		}
		if n.Seq() != tt.cur {
			t.Fatalf("after Notify(%d) seq = %d, want %d", tt.seq, n.Seq(), tt.cur)
		}
	}
}

func TestStaleNotifyDoesNotWake(t *testing.T) {
	n := New()
	n.Notify(4)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	go func() {
		time.Sleep(10 * time.Millisecond)
		n.Notify(4)
		n.Notify(2)
	}()
	if _, err := n.Wait(ctx, 4); !errors.Is(err, ErrTimedOut) {
		t.Fatalf("expected ErrTimedOut, got %v", err)
	}
}

func TestWaitTimeout(t *testing.T) {
	n := New()
	start := time.Now()
	_, err := n.WaitTimeout(0, 20*time.Millisecond)
	if !errors.Is(err, ErrTimedOut) {
		t.Fatalf("expected ErrTimedOut, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("ErrTimedOut should match context.DeadlineExceeded")
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatal("returned before the deadline")
	}
	if n.Waiters() != 0 {
		t.Fatalf("waiters = %d after timeout", n.Waiters())
	}
}

func TestContextCancel(t *testing.T) {
	n := New()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := n.Wait(ctx, 0)
		errc <- err
	}()
	waitForWaiters(t, n, 1)
	cancel()

	err := <-errc
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatal("ErrCancelled should match context.Canceled")
	}
}

func TestCancelReleasesAllWaiters(t *testing.T) {
	n := New()
	const waiters = 4
	var wg sync.WaitGroup
	errs := make(chan error, waiters)
	for range waiters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := n.Wait(context.Background(), 0)
			errs <- err
		}()
	}
	waitForWaiters(t, n, waiters)
	n.Cancel()
	n.Cancel()
	wg.Wait()
	close(errs)

	for err := range errs {
		if !errors.Is(err, ErrCancelled) {
			t.Fatalf("expected ErrCancelled, got %v", err)
		}
	}
	if _, err := n.Wait(context.Background(), 0); !errors.Is(err, ErrCancelled) {
		t.Fatalf("Wait after Cancel: expected ErrCancelled, got %v", err)
	}
	select {
	case <-n.Done():
	default:
		t.Fatal("Done not closed")
	}
}

func TestNotifyReleasesEveryWaiter(t *testing.T) {
	n := New()
	const waiters = 8
	var wg sync.WaitGroup
	seqs := make(chan uint64, waiters)
	for range waiters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seq, err := n.Wait(context.Background(), 0)
			if err != nil {
				t.Errorf("Wait: %v", err)
			}
			seqs <- seq
		}()
	}
	waitForWaiters(t, n, waiters)
	n.EventReady(1)
	wg.Wait()
	close(seqs)
	for seq := range seqs {
		if seq != 1 {
			t.Fatalf("seq = %d, want 1", seq)
		}
	}
	if n.State() != Idle {
		t.Fatalf("state = %v, want idle", n.State())
	}
}

// A producer racing a consumer that re-waits with the last value it saw must
// never leave the consumer behind the producer.
func TestNoLostWakeups(t *testing.T) {
	n := New()
	const last = 2000

	done := make(chan uint64)
	go func() {
		var seen uint64
		for seen < last {
			seq, err := n.Wait(context.Background(), seen)
			if err != nil {
				t.Errorf("Wait: %v", err)
				break
			}
			if seq <= seen {
				t.Errorf("Wait(%d) returned %d", seen, seq)
				break
			}
			seen = seq
		}
		done <- seen
	}()

	for i := uint64(1); i <= last; i++ {
		n.Notify(i)
	}

	select {
	case seen := <-done:
		if seen != last {
			t.Fatalf("consumer stopped at %d, want %d", seen, last)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("consumer stuck; producer at %d", n.Seq())
	}
}

// Producers racing each other deliver sequences out of order. The counter
// must end at the largest one, and every stale call must report false.
func TestConcurrentProducers(t *testing.T) {
	n := New()
	const (
		producers = 8
		last      = 4000
	)

	done := make(chan uint64)
	go func() {
		var seen uint64
		for seen < last {
			seq, err := n.Wait(context.Background(), seen)
			if err != nil {
				t.Errorf("Wait: %v", err)
				break
			}
			if seq <= seen {
				t.Errorf("Wait(%d) returned %d", seen, seq)
				break
			}
			seen = seq
		}
		done <- seen
	}()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		advanced int
	)
	for p := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var ok int
			for i := uint64(p + 1); i <= last; i += producers {
				if n.Notify(i) {
					ok++
				}
			}
			mu.Lock()
			advanced += ok
			mu.Unlock()
		}()
	}
	wg.Wait()

	if n.Seq() != last {
		t.Fatalf("Seq() = %d, want %d", n.Seq(), last)
	}
	if advanced < 1 || advanced > last {
		t.Fatalf("advanced = %d", advanced)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if seq, err := n.Wait(ctx, 0); err != nil || seq != last {
		t.Fatalf("Wait(0) = %d, %v, want %d", seq, err, last)
	}
	if n.Notify(last) {
		t.Fatal("repeated Notify(last) advanced the counter")
	}

	select {
	case seen := <-done:
		if seen != last {
			t.Fatalf("consumer stopped at %d, want %d", seen, last)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("consumer stuck; counter at %d", n.Seq())
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		Idle:       "idle",
		Waiting:    "waiting",
		Delivering: "delivering",
		State(9):   "State(9)",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", int(s), s.String(), want)
		}
	}
}
