package stream

import (
	"errors"
	"sync"

	"github.com/hedisam/matpipe/models"
)

// ErrClosed is returned when sending on a closed Stream.
var ErrClosed = errors.New("stream closed")

// Stream is the private, ordered channel between the dispatcher and one worker. Sends never block: messages are kept
// in an unbounded queue until the worker drains them, so one slow worker cannot hold up the broadcast to the others.
type Stream struct {
	cond   *sync.Cond
	q      queue
	closed bool
}

// New returns an empty, open Stream.
func New() *Stream {
	return &Stream{
		cond: sync.NewCond(&sync.Mutex{}),
	}
}

// Send appends msg to the stream.
func (s *Stream) Send(msg models.Message) error {
	s.cond.L.Lock()
	// signal to the waiting receiver
	defer s.cond.Signal()
	defer s.cond.L.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.q.Enqueue(msg)
	return nil
}

// Recv blocks until a message is available. It returns false once the stream has been closed and fully drained.
func (s *Stream) Recv() (models.Message, bool) {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()

	for {
		msg, ok := s.q.Dequeue()
		if ok {
			return msg, true
		}
		if s.closed {
			return models.Message{}, false
		}
		// wait for a signal
		s.cond.Wait()
	}
}

// Close marks the end of sending. Messages already queued are still delivered by Recv.
func (s *Stream) Close() {
	s.cond.L.Lock()
	defer s.cond.Broadcast()
	defer s.cond.L.Unlock()

	s.closed = true
}

// Len returns the number of queued messages.
func (s *Stream) Len() int {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()

	return s.q.Len()
}
