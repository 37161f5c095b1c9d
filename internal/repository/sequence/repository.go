// Package sequence allocates unique, ordered, human-readable identifiers
// scoped by (entity type, scope key). Allocation is a single atomic upsert
// increment against the counter row; a "read max, add one" pattern would
// hand the same value to concurrent callers.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mustafamuhammed29/handyland-sub001/internal/database"
	"github.com/mustafamuhammed29/handyland-sub001/internal/entity"
)

var repoTracer = otel.Tracer("github.com/mustafamuhammed29/handyland-sub001/repository/sequence")

// ErrIdentifierExhausted is returned once allocation retries are spent. The
// caller must abort its creation rather than continue with a value that may
// collide.
var ErrIdentifierExhausted = errors.New("sequence: identifier allocation exhausted")

// EntityOrder is the entity type used for order number allocation.
const EntityOrder = "order"

const (
	maxAttempts  = 5
	retryBackoff = 50 * time.Millisecond
)

// Repository hands out sequence values backed by the sequences table.
type Repository struct {
	writer *bun.DB
}

// NewRepository wires a repository backed by the primary connection.
// Allocation always writes, so the reader pool is never used.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{writer: conns.Writer}
}

// Next returns the next value for the (entityType, scopeKey) pair. The
// increment is one conditional statement, so two concurrent callers can
// never observe the same value. Transient store errors are retried with
// jittered backoff; exhaustion surfaces ErrIdentifierExhausted.
func (r *Repository) Next(ctx context.Context, entityType, scopeKey string) (int64, error) {
	ctx, span := repoTracer.Start(ctx, "SequenceRepository.Next", trace.WithAttributes(
		attribute.String("sequence.entity_type", entityType),
		attribute.String("sequence.scope_key", scopeKey),
	))
	defer span.End()

	var current int64
	backoff := retry.WithMaxRetries(maxAttempts-1, retry.NewFibonacci(retryBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		counter := &entity.SequenceCounter{
			EntityType: entityType,
			ScopeKey:   scopeKey,
			Current:    1,
		}
		err := r.writer.NewInsert().
			Model(counter).
			On("CONFLICT (entity_type, scope_key) DO UPDATE").
			Set("current = sequences.current + 1").
			Returning("current").
			Scan(ctx)
		if err != nil {
			return retry.RetryableError(err)
		}
		current = counter.Current
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "allocation failed")
		return 0, fmt.Errorf("%w: %v", ErrIdentifierExhausted, err)
	}
	return current, nil
}

// FormatOrderNumber renders an allocated value as PREFIX-YYYYMMDD-NNNN.
func FormatOrderNumber(prefix string, scope time.Time, n int64) string {
	return fmt.Sprintf("%s-%s-%04d", prefix, scope.Format("20060102"), n)
}

// DateScope is the scope key for date-partitioned sequences.
func DateScope(t time.Time) string {
	return t.UTC().Format("20060102")
}
