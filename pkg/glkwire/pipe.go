package glkwire

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"sync"
)

// NewPipe returns the two ends of an in-process connection. Messages are
// copied on Send, so the sender may reuse its buffers.
func NewPipe() (*PipeConn, *PipeConn) {
	shared := &pipeState{done: make(chan struct{})}
	ab := make(chan *Message, 64)
	ba := make(chan *Message, 64)
	return &PipeConn{out: ab, in: ba, shared: shared},
		&PipeConn{out: ba, in: ab, shared: shared}
}

// pipeState is shared by both ends. Closing either end closes both.
type pipeState struct {
	once sync.Once
	done chan struct{}
	err  error
}

func (s *pipeState) close(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.done)
	})
}

// PipeConn is one end of a pipe created by NewPipe.
type PipeConn struct {
	out    chan<- *Message
	in     <-chan *Message
	shared *pipeState
}

func (c *PipeConn) closedErr() error {
	if c.shared.err != nil {
		return fmt.Errorf("%w: %w", ErrClosed, c.shared.err)
	}
	return ErrClosed
}

func (c *PipeConn) Send(ctx context.Context, m *Message) error {
	cp := *m
	cp.Data = bytes.Clone(m.Data)
	if m.Event != nil {
		ev := *m.Event
		cp.Event = &ev
	}
	select {
	case <-c.shared.done:
		return c.closedErr()
	default:
	}
	select {
	case c.out <- &cp:
		return nil
	case <-c.shared.done:
		return c.closedErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Messages yields buffered messages even after the pipe closed.
func (c *PipeConn) Messages() iter.Seq2[*Message, error] {
	return func(yield func(*Message, error) bool) {
		for {
			select {
			case m := <-c.in:
				if !yield(m, nil) {
					return
				}
				continue
			case <-c.shared.done:
			}
			for {
				select {
				case m := <-c.in:
					if !yield(m, nil) {
						return
					}
				default:
					if err := c.shared.err; err != nil {
						yield(nil, err)
					}
					return
				}
			}
		}
	}
}

func (c *PipeConn) Close() error {
	return c.CloseWithError(nil)
}

func (c *PipeConn) CloseWithError(err error) error {
	c.shared.close(err)
	return nil
}

var _ Conn = (*PipeConn)(nil)
