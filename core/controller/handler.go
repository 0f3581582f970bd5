package controller

import (
	"context"
	"time"

	"site-controller/core/configversion"
	"site-controller/core/storage"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Services are the shared dependencies available to every state handler.
type Services struct {
	DB      *gorm.DB
	Storage storage.Client
	Bucket  string
	Now     func() time.Time
}

// CurrentTime returns Now() or the wall clock if Now is unset.
func (s *Services) CurrentTime() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// HandlerContext is passed to a state handler for one object.
type HandlerContext[M any] struct {
	// Services holds shared dependencies.
	Services *Services
	// Batch collects writes committed together with the state transition.
	Batch *WriteBatch
	// Metrics is the kind-specific metrics record for this object.
	Metrics *M
	// Logger is tagged with the iteration and the object id.
	Logger *zap.Logger
	// IterationID is the id of the running iteration.
	IterationID int64
}

// StateHandler decides the next step for one object.
//
// Returning an error discards the write batch and leaves the controller state
// untouched. Writes the handler performs directly outside of a transaction it
// returns via Outcome.WithTxn are not rolled back. A handler returning Deleted
// performs the delete itself, in its transaction or the write batch.
type StateHandler[ID ObjectID, S any, CS any, M any] interface {
	HandleObjectState(ctx context.Context, id ID, state *S, cs configversion.Versioned[CS], hctx *HandlerContext[M]) (Outcome[CS], error)
}

// StateHandlerFunc adapts a function to StateHandler.
type StateHandlerFunc[ID ObjectID, S any, CS any, M any] func(ctx context.Context, id ID, state *S, cs configversion.Versioned[CS], hctx *HandlerContext[M]) (Outcome[CS], error)

// HandleObjectState calls f.
func (f StateHandlerFunc[ID, S, CS, M]) HandleObjectState(ctx context.Context, id ID, state *S, cs configversion.Versioned[CS], hctx *HandlerContext[M]) (Outcome[CS], error) {
	return f(ctx, id, state, cs, hctx)
}
