package stranger

import (
	"context"
	"sync"
)

// Serializer lets one outbound command run at a time. Waiters are released
// strictly in submission order.
type Serializer struct {
	mu      sync.Mutex
	busy    bool
	waiters []chan struct{}
}

// Command is the pending result of a submitted operation.
type Command struct {
	done chan struct{}
	body string
	err  error
}

// Done is closed once the command has run or been skipped.
func (c *Command) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the command completes or ctx ends. Leaving early does
// not remove the command from the queue.
func (c *Command) Wait(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-c.done:
		return c.body, c.err
	}
}

func (c *Command) finish(body string, err error) {
	c.body, c.err = body, err
	close(c.done)
}

// Submit takes a place in the queue before returning, so commands submitted
// from one goroutine keep their order. Once op's turn comes, gate is checked
// and op only runs if gate returns true; otherwise the command finishes with
// ErrSkipped.
func (s *Serializer) Submit(gate func() bool, op func() (string, error)) *Command {
	cmd := &Command{done: make(chan struct{})}
	turn := s.acquire()

	go func() {
		<-turn
		defer s.release()

		if !gate() {
			cmd.finish("", ErrSkipped)
			return
		}
		cmd.finish(op())
	}()

	return cmd
}

// Pending returns how many commands are waiting behind the running one.
func (s *Serializer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.waiters)
}

func (s *Serializer) acquire() <-chan struct{} {
	turn := make(chan struct{})

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.busy {
		s.busy = true
		close(turn)
		return turn
	}

	s.waiters = append(s.waiters, turn)
	return turn
}

func (s *Serializer) release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.waiters) == 0 {
		s.busy = false
		return
	}

	next := s.waiters[0]
	s.waiters = s.waiters[1:]
	close(next)
}
