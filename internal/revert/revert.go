// Package revert implements the per-scenario Reverting stack: a LIFO queue
// of cleanup callbacks, each pushed by a mutating action immediately after
// it succeeds, and drained in one pass at scenario end.
package revert

import (
	"context"
	"sync"

	"github.com/go-logr/logr"
	"github.com/hashmap-kz/kscenario/internal/klog"
	"github.com/hashmap-kz/kscenario/internal/recorder"
)

// Callback undoes one previously applied mutating action.
type Callback func(ctx context.Context) error

// Stack is a LIFO register of Callbacks. The zero value is not usable; use
// New. A Stack is safe for concurrent Add calls, though Revert/Skip are
// expected to run once, sequentially, at scenario teardown.
type Stack struct {
	mu        sync.Mutex
	callbacks []Callback
	recorder  *recorder.Recorder
	logger    logr.Logger
}

// New returns an empty Stack reporting into rec. Revert failures log through
// klog.Discard until SetLogger replaces it.
func New(rec *recorder.Recorder) *Stack {
	return &Stack{recorder: rec, logger: klog.Discard()}
}

// SetLogger replaces the stack's diagnostic logger (klog.Discard by
// default).
func (s *Stack) SetLogger(l logr.Logger) {
	s.logger = l
}

// Add pushes fn onto the stack. Revert will invoke it before any callback
// registered earlier.
func (s *Stack) Add(fn Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, fn)
}

// Len reports the number of callbacks still pending.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.callbacks)
}

// pop removes and returns the top callback, or ok=false if the stack is
// empty.
func (s *Stack) pop() (fn Callback, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.callbacks)
	if n == 0 {
		return nil, false
	}
	fn = s.callbacks[n-1]
	s.callbacks = s.callbacks[:n-1]
	return fn, true
}

// restore pushes fn back onto the top of the stack, for when it fails and
// must remain available to a later Revert call.
func (s *Stack) restore(fn Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, fn)
}

// Revert drains the stack in reverse registration order, recording
// RevertingsStart before the first callback and RevertingsEnd once the drain
// concludes, whether that conclusion is a clean empty stack or a failing
// callback. A failing callback is restored to the top of the stack (so a
// later Revert call could retry it) and its error is returned immediately;
// no further callbacks run in that pass.
func (s *Stack) Revert(ctx context.Context) error {
	if s.recorder != nil {
		s.recorder.RevertingsStart()
	}

	for {
		fn, ok := s.pop()
		if !ok {
			if s.recorder != nil {
				s.recorder.RevertingsEnd()
			}
			return nil
		}

		if err := fn(ctx); err != nil {
			s.logger.Error(err, "revert callback failed, leaving it on the stack for a later retry")
			s.restore(fn)
			if s.recorder != nil {
				s.recorder.RevertingsEnd()
			}
			return err
		}
	}
}

// Skip records RevertingsSkipped and leaves every pending callback in place,
// untouched. Used when the preserve-on-failure flag (see internal/scenario)
// asks that cluster state survive a failed scenario for inspection.
func (s *Stack) Skip() {
	if s.recorder != nil {
		s.recorder.RevertingsSkipped()
	}
}
