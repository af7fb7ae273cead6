package eventloop

import (
	"sync/atomic"
)

// LoopState represents the current state of the event loop.
//
// State Machine:
//
//	StateAwake (0) → StateRunning (3)       [Run()]
//	StateRunning (3) → StateSleeping (2)    [poll() via CAS]
//	StateSleeping (2) → StateRunning (3)    [poll() wake via CAS]
//	StateRunning (3) → StateAwake (0)       [Run() returns]
//	StateAwake (0) → StateTerminating (4)   [Close()]
//	StateTerminating (4) → StateRunning (3) [Close() draining]
//	StateAwake (0) → StateTerminated (1)    [Destroy()]
//	StateTerminating (4) → StateTerminated (1) [Close() via Destroy()]
//	StateTerminated (1) → (terminal)
//
// State Transition Rules:
//   - Use TryTransition() (CAS) for temporary states (Running, Sleeping)
//   - Use Store() for irreversible states (Terminated)
//   - Using Store(Running) or Store(Sleeping) is a BUG (breaks CAS logic)
type LoopState uint64

const (
	// StateAwake indicates the loop is not being run, but may be.
	StateAwake LoopState = 0
	// StateTerminated indicates the loop has been destroyed.
	StateTerminated LoopState = 1
	// StateSleeping indicates the loop is blocked in poll waiting for events.
	StateSleeping LoopState = 2
	// StateRunning indicates the loop is actively processing callbacks.
	StateRunning LoopState = 3
	// StateTerminating indicates Close is draining the loop.
	StateTerminating LoopState = 4
)

// String returns a human-readable representation of the state.
func (s LoopState) String() string {
	switch s {
	case StateAwake:
		return "Awake"
	case StateRunning:
		return "Running"
	case StateSleeping:
		return "Sleeping"
	case StateTerminating:
		return "Terminating"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// FastState is a lock-free state machine with cache-line padding.
//
// PERFORMANCE: Uses pure atomic CAS operations with no mutex.
// Cache-line padding prevents false sharing between cores.
type FastState struct { // betteralign:ignore
	_ [sizeOfCacheLine]byte                      // Cache line padding (before value) //nolint:unused
	v atomic.Uint64                              // State value
	_ [sizeOfCacheLine - sizeOfAtomicUint64]byte // Pad to complete cache line //nolint:unused
}

// NewFastState creates a new state machine in the Awake state.
func NewFastState() *FastState {
	s := &FastState{}
	s.v.Store(uint64(StateAwake))
	return s
}

// Load returns the current state atomically.
func (s *FastState) Load() LoopState {
	return LoopState(s.v.Load())
}

// Store atomically stores a new state.
// PERFORMANCE: No transition validation.
func (s *FastState) Store(state LoopState) {
	s.v.Store(uint64(state))
}

// TryTransition attempts to atomically transition from one state to another.
// Returns true if the transition was successful.
func (s *FastState) TryTransition(from, to LoopState) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}

// IsTerminal returns true if the current state is terminal (Terminated).
func (s *FastState) IsTerminal() bool {
	return s.Load() == StateTerminated
}

// IsRunning returns true if the loop is currently running or sleeping.
func (s *FastState) IsRunning() bool {
	state := s.Load()
	return state == StateRunning || state == StateSleeping
}

const (
	// sizeOfCacheLine covers both x86-64 (64) and Apple Silicon (128).
	sizeOfCacheLine    = 128
	sizeOfAtomicUint64 = 8
)
