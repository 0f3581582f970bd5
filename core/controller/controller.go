package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"site-controller/core/configversion"
	"site-controller/core/logger"
	"site-controller/core/metrics"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Dependencies are the collaborators of a controller that are not kind specific.
type Dependencies struct {
	Config   Config
	Services *Services
	Logger   *zap.Logger
	Tracer   trace.Tracer
	// InstanceID marks the queue entries of this process. A random id is
	// used when empty.
	InstanceID string
}

// IterationSummary reports the result of one iteration.
type IterationSummary struct {
	Kind        string              `json:"kind"`
	IterationID int64               `json:"iteration_id"`
	StartedAt   time.Time           `json:"started_at"`
	Duration    time.Duration       `json:"duration"`
	Objects     int                 `json:"objects"`
	Recovered   int                 `json:"recovered"`
	Errors      int                 `json:"errors"`
	Outcomes    map[OutcomeKind]int `json:"outcomes"`
}

// Status is a point-in-time view of a controller.
type Status struct {
	Kind          string            `json:"kind"`
	Phase         string            `json:"phase"`
	PhaseSince    time.Time         `json:"phase_since"`
	LastIteration *IterationSummary `json:"last_iteration,omitempty"`
	LastError     string            `json:"last_error,omitempty"`
}

// Controller drives every object of one kind towards its desired state.
//
// ID is the object id type, S the full object state, CS the controller-owned
// state and M the kind-specific per-object metrics.
type Controller[ID ObjectID, S any, CS any, M any] struct {
	desc     Descriptor
	adapter  ObjectAdapter[ID, S, CS]
	handler  StateHandler[ID, S, CS, M]
	emitter  MetricsEmitter[M]
	services *Services
	cfg      Config
	logger   *zap.Logger
	tracer   trace.Tracer

	holder    *metrics.SharedHolder[iterationSnapshot[M]]
	collector *collector[M]
	phase     *phaseMachine
	trigger   chan struct{}
	now       func() time.Time
	instance  string

	// iterMu serializes iterations started by the loop and by RunIteration callers.
	iterMu sync.Mutex

	mu      sync.Mutex
	last    *IterationSummary
	lastErr error
}

// New creates a controller for the kind described by adapter.
func New[ID ObjectID, S any, CS any, M any](adapter ObjectAdapter[ID, S, CS], handler StateHandler[ID, S, CS, M], emitter MetricsEmitter[M], deps Dependencies) *Controller[ID, S, CS, M] {
	desc := adapter.Descriptor()

	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = logger.ForController(log, desc.Kind)

	tracer := deps.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}

	services := deps.Services
	if services == nil {
		services = &Services{}
	}

	instance := deps.InstanceID
	if instance == "" {
		instance = uuid.NewString()
	}

	holder := metrics.NewSharedHolder[iterationSnapshot[M]](deps.Config.MetricsHoldPeriod, deps.Config.MetricsFreshPeriod)

	return &Controller[ID, S, CS, M]{
		desc:      desc,
		adapter:   adapter,
		handler:   handler,
		emitter:   emitter,
		services:  services,
		cfg:       deps.Config,
		logger:    log,
		tracer:    tracer,
		holder:    holder,
		collector: newCollector(desc.ObjectType, emitter, holder),
		phase:     newPhaseMachine(log),
		trigger:   make(chan struct{}, 1),
		now:       time.Now,
		instance:  instance,
	}
}

// Kind returns the object kind.
func (c *Controller[ID, S, CS, M]) Kind() string {
	return c.desc.Kind
}

// Descriptor returns the naming of the kind.
func (c *Controller[ID, S, CS, M]) Descriptor() Descriptor {
	return c.desc
}

// Describe implements prometheus.Collector.
func (c *Controller[ID, S, CS, M]) Describe(ch chan<- *prometheus.Desc) {
	c.collector.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Controller[ID, S, CS, M]) Collect(ch chan<- prometheus.Metric) {
	c.collector.Collect(ch)
}

// Trigger requests an iteration as soon as the minimum gap allows.
func (c *Controller[ID, S, CS, M]) Trigger() {
	select {
	case c.trigger <- struct{}{}:
	default:
	}
}

// Status returns the current phase and the result of the last iteration.
func (c *Controller[ID, S, CS, M]) Status() Status {
	phase, since := c.phase.Current()
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{Kind: c.desc.Kind, Phase: phase, PhaseSince: since, LastIteration: c.last}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	return st
}

// Run iterates until ctx is cancelled. Iterations start every IterationTime,
// or earlier when triggered, but never closer than MinIterationGap. Failed
// claims are retried with exponential backoff.
func (c *Controller[ID, S, CS, M]) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.MinIterationGap
	if b.InitialInterval <= 0 {
		b.InitialInterval = time.Second
	}
	if c.cfg.ClaimBackoffMax > 0 {
		b.MaxInterval = c.cfg.ClaimBackoffMax
	}
	b.MaxElapsedTime = 0
	b.Reset()

	c.logger.Info("Controller started",
		zap.Duration("iteration_time", c.cfg.IterationTime),
		zap.Int("max_concurrency", c.cfg.concurrency()))

	for {
		start := time.Now()
		_, err := c.RunIteration(ctx)
		if ctx.Err() != nil {
			c.logger.Info("Controller stopped")
			return nil
		}

		wait := c.cfg.IterationTime - time.Since(start)
		switch {
		case errors.Is(err, ErrIterationInProgress):
			c.logger.Debug("Iteration owned by another instance")
		case err != nil:
			wait = b.NextBackOff()
			c.logger.Warn("Iteration failed, backing off", zap.Error(err), zap.Duration("retry_in", wait))
		default:
			b.Reset()
		}
		if wait < c.cfg.MinIterationGap {
			wait = c.cfg.MinIterationGap
		}

		if !c.sleep(ctx, wait) {
			c.logger.Info("Controller stopped")
			return nil
		}
	}
}

// sleep waits for d, a trigger or cancellation. A trigger still honours the
// minimum gap. It returns false if ctx was cancelled.
func (c *Controller[ID, S, CS, M]) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	case <-c.trigger:
	}

	gap := time.NewTimer(c.cfg.MinIterationGap)
	defer gap.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-gap.C:
		return true
	}
}

// RunIteration runs exactly one iteration: claim, snapshot, dispatch every
// object and aggregate metrics.
func (c *Controller[ID, S, CS, M]) RunIteration(ctx context.Context) (*IterationSummary, error) {
	c.iterMu.Lock()
	defer c.iterMu.Unlock()

	start := c.now()
	ctx, span := c.tracer.Start(ctx, c.desc.SpanName,
		trace.WithAttributes(attribute.String("kind", c.desc.Kind)))
	defer span.End()

	summary, err := c.runIteration(ctx, start)

	result := "success"
	if err != nil {
		result = "error"
		if errors.Is(err, ErrIterationInProgress) {
			result = "skipped"
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		c.phase.abort(ctx)
	} else {
		span.SetAttributes(
			attribute.Int64("iteration_id", summary.IterationID),
			attribute.Int("objects", summary.Objects),
		)
	}
	c.collector.iterations.WithLabelValues(result).Inc()
	c.collector.iterationDuration.Observe(c.now().Sub(start).Seconds())

	c.mu.Lock()
	if summary != nil {
		c.last = summary
	}
	c.lastErr = err
	c.mu.Unlock()

	return summary, err
}

func (c *Controller[ID, S, CS, M]) runIteration(ctx context.Context, start time.Time) (*IterationSummary, error) {
	if err := c.phase.fire(ctx, EventClaim); err != nil {
		return nil, err
	}

	var snapshotErr error
	claim, err := claimIteration(ctx, c.services.DB, c.desc, c.instance, c.cfg.RecoveryGracePeriod, start,
		func() { snapshotErr = c.phase.fire(ctx, EventSnapshot) },
		c.listObjectIDs(ctx))
	if err != nil {
		if errors.Is(err, ErrIterationInProgress) {
			return nil, err
		}
		return nil, &IterationClaimError{Kind: c.desc.Kind, Err: err}
	}
	if snapshotErr != nil {
		return nil, snapshotErr
	}

	log := logger.ForIteration(c.logger, claim.IterationID, c.desc.SpanName)
	if claim.Recovered > 0 {
		log.Warn("Recovered objects from interrupted iteration", zap.Int("recovered", claim.Recovered))
		c.collector.recovered.Add(float64(claim.Recovered))
	}

	if err := c.phase.fire(ctx, EventDispatch); err != nil {
		return nil, err
	}

	summary := &IterationSummary{
		Kind:        c.desc.Kind,
		IterationID: claim.IterationID,
		StartedAt:   start,
		Objects:     len(claim.Worklist),
		Recovered:   claim.Recovered,
		Outcomes:    make(map[OutcomeKind]int),
	}
	common := newCommonIterationMetrics()
	kindAgg := c.emitter.NewAggregate()

	var aggMu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(c.cfg.concurrency())
	for _, raw := range claim.Worklist {
		g.Go(func() error {
			res := c.processObject(ctx, claim.IterationID, raw, log)
			if res == nil {
				return nil
			}
			aggMu.Lock()
			defer aggMu.Unlock()
			summary.Outcomes[res.outcome]++
			if res.metrics.errLabel != "" {
				summary.Errors++
			}
			if res.counted {
				common.merge(res.metrics)
				c.collector.observeObject(res.metrics)
				kindAgg.Merge(res.kindMetrics)
			}
			return nil
		})
	}
	// Workers never return errors: failures are scoped to their object.
	_ = g.Wait()

	if err := c.phase.fire(ctx, EventAggregate); err != nil {
		return nil, err
	}
	c.holder.Store(iterationSnapshot[M]{common: common, kind: kindAgg})
	summary.Duration = c.now().Sub(start)

	if err := c.phase.fire(ctx, EventFinish); err != nil {
		return nil, err
	}

	log.Info("Iteration completed",
		zap.Int("objects", summary.Objects),
		zap.Int("errors", summary.Errors),
		zap.Any("outcomes", summary.Outcomes),
		zap.Duration("duration", summary.Duration))
	return summary, nil
}

func (c *Controller[ID, S, CS, M]) listObjectIDs(ctx context.Context) func(tx *gorm.DB) ([]string, error) {
	return func(tx *gorm.DB) ([]string, error) {
		ids, err := c.adapter.ListObjects(ctx, tx)
		if err != nil {
			return nil, err
		}
		raw := make([]string, 0, len(ids))
		for _, id := range ids {
			raw = append(raw, id.String())
		}
		return raw, nil
	}
}

// objectResult is what one worker reports back to the iteration.
type objectResult[M any] struct {
	outcome     OutcomeKind
	counted     bool
	metrics     objectMetrics
	kindMetrics *M
}

// processObject handles one queued object. It returns nil if the context was
// cancelled before the object was touched; its queue entry then stays pending.
func (c *Controller[ID, S, CS, M]) processObject(ctx context.Context, iterationID int64, raw string, iterLog *zap.Logger) *objectResult[M] {
	if ctx.Err() != nil {
		return nil
	}
	log := iterLog.With(zap.String("object_id", raw))
	res := &objectResult[M]{}

	defer func() {
		if err := completeQueued(context.WithoutCancel(ctx), c.services.DB, c.desc, iterationID, raw, res.outcome, c.now()); err != nil {
			log.Error("Failed to complete queue entry", zap.Error(err))
		}
	}()

	fail := func(label string, err error) *objectResult[M] {
		log.Error("Object handling failed", zap.String("error_type", label), zap.Error(err))
		res.outcome = OutcomeError
		res.metrics.errLabel = label
		return res
	}

	id, err := c.adapter.ParseObjectID(raw)
	if err != nil {
		return fail(LabelInvalidObjectID, err)
	}

	state, err := c.adapter.LoadObjectState(ctx, c.services.DB, id)
	if err != nil {
		return fail(LabelLoadObjectState, err)
	}
	if state == nil {
		log.Debug("Object no longer exists")
		res.outcome = OutcomeNotFound
		return res
	}

	cs, err := c.adapter.LoadControllerState(ctx, c.services.DB, id, state)
	if err != nil {
		return fail(LabelLoadControllerState, err)
	}

	now := c.now()
	sla := c.adapter.StateSLA(cs, now)
	name, subname := c.adapter.MetricStateNames(cs.Value)
	res.counted = true
	res.kindMetrics = new(M)
	res.metrics.state = FullState{State: name, Substate: subname}
	res.metrics.aboveSLA = sla.TimeInStateAboveSLA
	res.metrics.timeInState = cs.Version.Since(now)
	log = log.With(zap.String("state", stateLabel(name, subname)))
	if sla.TimeInStateAboveSLA {
		log.Warn("Object exceeded state SLA",
			zap.Duration("sla", sla.Limit),
			zap.Duration("time_in_state", res.metrics.timeInState))
	}

	batch := NewWriteBatch()
	hctx := &HandlerContext[M]{
		Services:    c.services,
		Batch:       batch,
		Metrics:     res.kindMetrics,
		Logger:      log,
		IterationID: iterationID,
	}

	handlerCtx := ctx
	if c.cfg.MaxObjectHandlingTime > 0 {
		var cancel context.CancelFunc
		handlerCtx, cancel = context.WithTimeout(ctx, c.cfg.MaxObjectHandlingTime)
		defer cancel()
	}

	handlerStart := time.Now()
	outcome, err := c.handler.HandleObjectState(handlerCtx, id, state, cs, hctx)
	res.metrics.latency = time.Since(handlerStart)
	if err == nil && errors.Is(handlerCtx.Err(), context.DeadlineExceeded) {
		err = NewHandlerError(LabelTimeout, handlerCtx.Err())
	}
	if err != nil {
		if tx := outcome.Txn(); tx != nil {
			tx.Rollback()
		}
		batch.Take()
		c.persistOutcome(ctx, id, PersistentOutcome{Kind: OutcomeError, Reason: err.Error(), Timestamp: c.now()}, log)
		return fail(errorLabel(err), err)
	}

	var next *FullState
	if nextState, ok := outcome.Next(); ok {
		nn, ns := c.adapter.MetricStateNames(nextState)
		next = &FullState{State: nn, Substate: ns}
	}

	if outcome.Kind() == OutcomeDeleted && outcome.Txn() == nil && batch.Len() == 0 {
		err := NewHandlerError(LabelMissingDelete, errors.New("deleted outcome carries no transaction and no writes"))
		c.persistOutcome(ctx, id, PersistentOutcome{Kind: OutcomeError, Reason: err.Error(), Timestamp: c.now()}, log)
		return fail(LabelMissingDelete, err)
	}

	if err := c.commit(ctx, id, cs.Version, outcome, batch); err != nil {
		if errors.Is(err, ErrStaleVersion) {
			log.Info("Controller state changed concurrently, discarding transition")
			res.outcome = OutcomeStale
			po := PersistentOutcome{Kind: OutcomeStale, Reason: err.Error(), Timestamp: c.now()}
			if next != nil {
				po.NextState = stateLabel(next.State, next.Substate)
			}
			c.persistOutcome(ctx, id, po, log)
			return res
		}
		c.persistOutcome(ctx, id, PersistentOutcome{Kind: OutcomeError, Reason: err.Error(), Timestamp: c.now()}, log)
		return fail(errorLabel(err), err)
	}

	res.outcome = outcome.Kind()
	switch res.outcome {
	case OutcomeDeleted:
		res.metrics.deleted = true
		log.Info("Object deleted")
		return res
	case OutcomeTransition:
		res.metrics.next = next
		log.Info("State transition", zap.String("next_state", stateLabel(next.State, next.Substate)))
	case OutcomeWait:
		log.Debug("Waiting", zap.String("reason", outcome.Reason()))
	}

	po := PersistentOutcome{Kind: res.outcome, Reason: outcome.Reason(), Timestamp: c.now()}
	if next != nil {
		po.NextState = stateLabel(next.State, next.Substate)
	}
	c.persistOutcome(ctx, id, po, log)
	return res
}

// commit applies the write batch and the state transition atomically. When
// there is nothing to write and the handler opened no transaction, it is a no-op.
func (c *Controller[ID, S, CS, M]) commit(ctx context.Context, id ID, version configversion.ConfigVersion, outcome Outcome[CS], batch *WriteBatch) error {
	next, transition := outcome.Next()
	tx := outcome.Txn()
	if tx == nil {
		if batch.Len() == 0 && !transition {
			return nil
		}
		tx = c.services.DB.WithContext(ctx).Begin()
		if tx.Error != nil {
			return &PersistenceError{Op: LabelCommit, Err: tx.Error}
		}
	}

	if err := batch.ApplyAll(ctx, tx); err != nil {
		tx.Rollback()
		return NewHandlerError(LabelWriteBatch, err)
	}

	if transition {
		if err := c.adapter.PersistControllerState(ctx, tx, id, version, next); err != nil {
			tx.Rollback()
			if errors.Is(err, ErrStaleVersion) {
				return err
			}
			return &PersistenceError{Op: LabelPersistState, Err: err}
		}
	}

	if err := tx.Commit().Error; err != nil {
		return &PersistenceError{Op: LabelCommit, Err: fmt.Errorf("commit: %w", err)}
	}
	return nil
}

// persistOutcome stores the outcome. Failures are logged and ignored.
func (c *Controller[ID, S, CS, M]) persistOutcome(ctx context.Context, id ID, outcome PersistentOutcome, log *zap.Logger) {
	if err := c.adapter.PersistOutcome(context.WithoutCancel(ctx), c.services.DB, id, outcome); err != nil {
		log.Warn("Failed to persist outcome", zap.Error(err))
	}
}
