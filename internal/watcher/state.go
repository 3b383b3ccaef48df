package watcher

import (
	"sync"
	"time"

	"github.com/gpuwatch/gpuwatch-agent/internal/errors"
)

// WatcherState represents the current lifecycle state of the watcher.
type WatcherState string

// Watcher lifecycle states.
const (
	StateStarting WatcherState = "starting"
	StateRunning  WatcherState = "running"
	StateCooldown WatcherState = "cooldown"
	StateStopped  WatcherState = "stopped"
)

// StateMachine tracks the watcher's lifecycle state. Its main job is the
// cooldown window that suppresses repeated email notifications: checks and
// local reporting continue during cooldown, only mail dispatch is gated.
type StateMachine struct {
	mu            sync.RWMutex
	state         WatcherState
	stateReason   string
	cooldownUntil time.Time
	clock         errors.Clock
}

// NewStateMachine creates a StateMachine starting in StateStarting.
func NewStateMachine(clock errors.Clock) *StateMachine {
	return &StateMachine{
		state: StateStarting,
		clock: clock,
	}
}

// State returns the current watcher state.
func (sm *StateMachine) State() WatcherState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state
}

// StateReason returns the human-readable reason for the current state.
func (sm *StateMachine) StateReason() string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.stateReason
}

// TransitionTo directly sets the watcher state with a reason.
func (sm *StateMachine) TransitionTo(state WatcherState, reason string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.state = state
	sm.stateReason = reason
}

// ShouldNotify reports whether a mail notification may be dispatched now.
// Notifications are allowed in StateRunning only; during cooldown they are
// suppressed until the window expires.
func (sm *StateMachine) ShouldNotify() bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state == StateRunning
}

// BeginCooldown enters the cooldown state for d. A non-positive duration is
// a no-op, which preserves the notify-every-cycle behavior when the cooldown
// is disabled.
func (sm *StateMachine) BeginCooldown(d time.Duration, reason string) {
	if d <= 0 {
		return
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.state = StateCooldown
	sm.stateReason = reason
	sm.cooldownUntil = sm.clock.Now().Add(d)
}

// IsCooldownExpired returns true if the cooldown window has elapsed.
func (sm *StateMachine) IsCooldownExpired() bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.clock.Now().After(sm.cooldownUntil)
}

// CooldownRemaining returns the duration until the cooldown expires, or 0.
func (sm *StateMachine) CooldownRemaining() time.Duration {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	remaining := sm.cooldownUntil.Sub(sm.clock.Now())
	if remaining < 0 {
		return 0
	}
	return remaining
}
