package controller

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrObjectNotFound is returned when an inspected object does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectReport describes the controller's view of one object.
type ObjectReport struct {
	ID              string             `json:"id"`
	State           string             `json:"state"`
	ControllerState any                `json:"controller_state"`
	Version         string             `json:"version"`
	TimeInState     string             `json:"time_in_state"`
	SLA             SLA                `json:"sla"`
	Outcome         *PersistentOutcome `json:"outcome,omitempty"`
	Object          any                `json:"object"`
}

// Inspect loads one object and reports its state, SLA and last outcome.
func (c *Controller[ID, S, CS, M]) Inspect(ctx context.Context, raw string) (*ObjectReport, error) {
	id, err := c.adapter.ParseObjectID(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrObjectNotFound, err)
	}

	state, err := c.adapter.LoadObjectState(ctx, c.services.DB, id)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, ErrObjectNotFound
	}

	cs, err := c.adapter.LoadControllerState(ctx, c.services.DB, id, state)
	if err != nil {
		return nil, err
	}

	now := c.now()
	name, subname := c.adapter.MetricStateNames(cs.Value)
	report := &ObjectReport{
		ID:              id.String(),
		State:           stateLabel(name, subname),
		ControllerState: cs.Value,
		Version:         cs.Version.String(),
		TimeInState:     cs.Version.Since(now).Truncate(time.Second).String(),
		SLA:             c.adapter.StateSLA(cs, now),
		Object:          state,
	}

	if loader, ok := c.adapter.(OutcomeLoader[ID]); ok {
		outcome, err := loader.LoadOutcome(ctx, c.services.DB, id)
		if err != nil {
			return nil, err
		}
		report.Outcome = outcome
	}
	return report, nil
}

// History returns the recorded state changes of one object, newest first.
func (c *Controller[ID, S, CS, M]) History(ctx context.Context, raw string, limit int) ([]StateHistoryEntry, error) {
	if c.desc.StateHistoryTable == "" {
		return nil, fmt.Errorf("%s controller records no state history", c.desc.Kind)
	}
	id, err := c.adapter.ParseObjectID(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrObjectNotFound, err)
	}
	return ListStateHistory(ctx, c.services.DB, c.desc.StateHistoryTable, id.String(), limit)
}
