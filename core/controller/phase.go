package controller

import (
	"context"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"go.uber.org/zap"
)

// Iteration phases.
const (
	PhaseIdle         = "idle"
	PhaseClaiming     = "claiming_iteration"
	PhaseSnapshotting = "snapshotting"
	PhaseDispatching  = "dispatching"
	PhaseAggregating  = "aggregating"
)

// Iteration phase events.
const (
	EventClaim     = "claim"
	EventSnapshot  = "snapshot"
	EventDispatch  = "dispatch"
	EventAggregate = "aggregate"
	EventFinish    = "finish"
	EventAbort     = "abort"
)

// phaseMachine tracks where the controller is within an iteration.
type phaseMachine struct {
	fsm *fsm.FSM

	mu      sync.Mutex
	since   time.Time
	current string
}

func newPhaseMachine(logger *zap.Logger) *phaseMachine {
	p := &phaseMachine{since: time.Now(), current: PhaseIdle}
	p.fsm = fsm.NewFSM(
		PhaseIdle,
		fsm.Events{
			{Name: EventClaim, Src: []string{PhaseIdle}, Dst: PhaseClaiming},
			{Name: EventSnapshot, Src: []string{PhaseClaiming}, Dst: PhaseSnapshotting},
			{Name: EventDispatch, Src: []string{PhaseSnapshotting}, Dst: PhaseDispatching},
			{Name: EventAggregate, Src: []string{PhaseDispatching}, Dst: PhaseAggregating},
			{Name: EventFinish, Src: []string{PhaseAggregating}, Dst: PhaseIdle},
			{Name: EventAbort, Src: []string{PhaseClaiming, PhaseSnapshotting, PhaseDispatching, PhaseAggregating}, Dst: PhaseIdle},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				p.mu.Lock()
				p.current = e.Dst
				p.since = time.Now()
				p.mu.Unlock()
				logger.Debug("Iteration phase changed",
					zap.String("from", e.Src),
					zap.String("to", e.Dst),
					zap.String("event", e.Event))
			},
		},
	)
	return p
}

// fire moves to the next phase. Invalid transitions are programming errors
// and are returned to the caller.
func (p *phaseMachine) fire(ctx context.Context, event string) error {
	return p.fsm.Event(ctx, event)
}

// abort returns to idle from any active phase.
func (p *phaseMachine) abort(ctx context.Context) {
	if p.fsm.Can(EventAbort) {
		_ = p.fsm.Event(ctx, EventAbort)
	}
}

// Current returns the current phase and when it was entered.
func (p *phaseMachine) Current() (string, time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, p.since
}
