/**
 * @description
 * This file defines the `TransferRepository` interface, the persistence
 * contract the orchestration engine depends on. Saving is an upsert over the
 * payment/origin identifier pairing that always appends exactly one transfer
 * event; reads return independent deep copies so callers can mutate results
 * without affecting stored state.
 *
 * @dependencies
 * - context: Standard Go library.
 * - github.com/google/uuid: For payment identifiers.
 * - internal/domain: For the transfer aggregate and event models.
 */

package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/pagoflex/payment-service/internal/domain"
)

// ErrNotFound is returned when no transfer exists for the given identifier.
var ErrNotFound = errors.New("transfer not found")

// TransferRepository is the persistence abstraction for transfer aggregates.
type TransferRepository interface {
	// Save upserts the aggregate (insert if no record exists for its payment
	// id or origin id, update in place otherwise) and appends one transfer
	// event capturing the resulting status. The returned aggregate is an
	// independent copy reflecting persisted state.
	Save(ctx context.Context, data *domain.PaymentData) (*domain.PaymentData, error)

	// GetByOriginID looks a transfer up by its external idempotency key.
	GetByOriginID(ctx context.Context, originID string) (*domain.PaymentData, error)

	// GetByPaymentID looks a transfer up by its internal identifier.
	GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*domain.PaymentData, error)

	// ListEvents returns the transfer's event trail ordered by creation time.
	ListEvents(ctx context.Context, paymentID uuid.UUID) ([]domain.TransferEvent, error)
}

// schemaContextKey carries the request-scoped schema used to route
// persistence for the current call. It is never engine-global state.
type schemaContextKey struct{}

// WithSchema returns a context routing repository calls to the given schema.
func WithSchema(ctx context.Context, schema string) context.Context {
	return context.WithValue(ctx, schemaContextKey{}, schema)
}

// SchemaFrom extracts the request-scoped schema, if one was set.
func SchemaFrom(ctx context.Context) (string, bool) {
	schema, ok := ctx.Value(schemaContextKey{}).(string)
	return schema, ok && schema != ""
}
