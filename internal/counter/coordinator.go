// Package counter hands out message sequence numbers from a shared counter
// key using optimistic transactions.
package counter

import (
	"context"
	"strconv"

	"github.com/BaSui01/chatflow/internal/kvstore"
	"github.com/BaSui01/chatflow/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultMaxAttempts bounds the watch/commit cycles of one call.
const DefaultMaxAttempts = 64

// Recorder receives the outcome of every counter operation.
type Recorder interface {
	RecordCounterOp(op string, attempts int, err error)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMaxAttempts sets the retry bound.
func WithMaxAttempts(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l.With(zap.String("component", "counter"))
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) { c.recorder = r }
}

// Coordinator serializes writers of counter keys through the store's
// optimistic transactions. Counter keys must not be written any other way.
type Coordinator struct {
	store       kvstore.Store
	maxAttempts int
	logger      *zap.Logger
	recorder    Recorder
	tracer      trace.Tracer
}

// New creates a coordinator over store.
func New(store kvstore.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:       store,
		maxAttempts: DefaultMaxAttempts,
		logger:      zap.NewNop(),
		tracer:      otel.Tracer("github.com/BaSui01/chatflow/internal/counter"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Reserve commits a value for key and returns it.
//
// Inside the watched transaction the committed value is candidate, raised to
// current+1 when candidate would not advance the counter, so committed values
// strictly increase. When another writer commits first the candidate is
// incremented and the cycle retried, at most MaxAttempts times before
// failing with CONFLICT_EXHAUSTED. A missing key reads as 0. A candidate
// equal to the current value still advances the counter, so callers that
// want the next number pass last+1; Reserve(k, 0) on a fresh key yields 1.
func (c *Coordinator) Reserve(ctx context.Context, key string, candidate int64) (int64, error) {
	ctx, span := c.tracer.Start(ctx, "counter.Reserve", trace.WithAttributes(
		attribute.String("key", key),
		attribute.Int64("candidate", candidate),
	))
	defer span.End()

	committed, attempts, err := c.reserve(ctx, key, candidate)
	c.record(span, "reserve", attempts, err)
	if err == nil {
		span.SetAttributes(attribute.Int64("committed", committed))
	}
	return committed, err
}

func (c *Coordinator) reserve(ctx context.Context, key string, candidate int64) (int64, int, error) {
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		var committed int64
		conflicted, err := c.store.WithOptimisticTransaction(ctx, key, func(tx kvstore.Tx) error {
			current, err := read(ctx, tx, key)
			if err != nil {
				return err
			}
			committed = candidate
			if committed <= current {
				committed = current + 1
			}
			tx.Set(key, strconv.FormatInt(committed, 10))
			return nil
		})
		if err != nil {
			return 0, attempt, err
		}
		if !conflicted {
			return committed, attempt, nil
		}

		c.logger.Debug("counter commit conflicted",
			zap.String("key", key),
			zap.Int("attempt", attempt),
			zap.Int64("candidate", candidate),
		)
		candidate++
		if err := ctx.Err(); err != nil {
			return 0, attempt, err
		}
	}
	return 0, c.maxAttempts, types.Errorf(types.ErrConflictExhausted,
		"counter %q: no commit after %d attempts", key, c.maxAttempts).WithRetryable(true)
}

// Get reads key under a watch so the value returned was current at commit
// time. A missing key reads as 0.
func (c *Coordinator) Get(ctx context.Context, key string) (int64, error) {
	ctx, span := c.tracer.Start(ctx, "counter.Get", trace.WithAttributes(attribute.String("key", key)))
	defer span.End()

	value, attempts, err := c.get(ctx, key)
	c.record(span, "get", attempts, err)
	return value, err
}

func (c *Coordinator) get(ctx context.Context, key string) (int64, int, error) {
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		var value int64
		conflicted, err := c.store.WithOptimisticTransaction(ctx, key, func(tx kvstore.Tx) error {
			v, err := read(ctx, tx, key)
			value = v
			return err
		})
		if err != nil {
			return 0, attempt, err
		}
		if !conflicted {
			return value, attempt, nil
		}
		if err := ctx.Err(); err != nil {
			return 0, attempt, err
		}
	}
	return 0, c.maxAttempts, types.Errorf(types.ErrConflictExhausted,
		"counter %q: no stable read after %d attempts", key, c.maxAttempts).WithRetryable(true)
}

func (c *Coordinator) record(span trace.Span, op string, attempts int, err error) {
	span.SetAttributes(attribute.Int("attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if c.recorder != nil {
		c.recorder.RecordCounterOp(op, attempts, err)
	}
}

func read(ctx context.Context, tx kvstore.Tx, key string) (int64, error) {
	raw, ok, err := tx.Get(ctx, key)
	if err != nil || !ok {
		return 0, err
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, types.Errorf(types.ErrInternalError, "counter %q holds non-integer value %q", key, raw).WithCause(err)
	}
	return v, nil
}
