/**
 * @description
 * In-memory implementation of the `TransferRepository` interface, used for
 * tests and local development without Postgres. A mutex serializes concurrent
 * saves against the same aggregate; every stored and returned value is a deep
 * copy so no caller ever aliases repository state.
 */

package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/pagoflex/payment-service/internal/domain"
)

// MemoryRepository is a thread-safe in-memory TransferRepository.
type MemoryRepository struct {
	mu        sync.RWMutex
	byPayment map[uuid.UUID]*domain.PaymentData
	byOrigin  map[string]uuid.UUID
	events    map[uuid.UUID][]domain.TransferEvent
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byPayment: make(map[uuid.UUID]*domain.PaymentData),
		byOrigin:  make(map[string]uuid.UUID),
		events:    make(map[uuid.UUID][]domain.TransferEvent),
	}
}

// Save upserts the aggregate and appends one event. A save against an origin
// id that already belongs to another payment id adopts the existing record
// instead of duplicating it.
func (r *MemoryRepository) Save(ctx context.Context, data *domain.PaymentData) (*domain.PaymentData, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data.SyncFromBody()

	if _, exists := r.byPayment[data.PaymentID]; !exists && data.OriginID != "" {
		if existingID, ok := r.byOrigin[data.OriginID]; ok {
			data.PaymentID = existingID
			if existing := r.byPayment[existingID]; existing != nil {
				data.CreatedAt = existing.CreatedAt
			}
		}
	}

	stored := data.Clone()
	r.byPayment[stored.PaymentID] = stored
	if stored.OriginID != "" {
		r.byOrigin[stored.OriginID] = stored.PaymentID
	}
	r.events[stored.PaymentID] = append(r.events[stored.PaymentID], domain.NewTransferEvent(stored))

	return stored.Clone(), nil
}

// GetByOriginID returns a deep copy of the transfer with the given origin id.
func (r *MemoryRepository) GetByOriginID(ctx context.Context, originID string) (*domain.PaymentData, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	paymentID, ok := r.byOrigin[originID]
	if !ok {
		return nil, ErrNotFound
	}
	return r.byPayment[paymentID].Clone(), nil
}

// GetByPaymentID returns a deep copy of the transfer with the given payment id.
func (r *MemoryRepository) GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*domain.PaymentData, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.byPayment[paymentID]
	if !ok {
		return nil, ErrNotFound
	}
	return stored.Clone(), nil
}

// ListEvents returns copies of the transfer's events in append order.
func (r *MemoryRepository) ListEvents(ctx context.Context, paymentID uuid.UUID) ([]domain.TransferEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.byPayment[paymentID]; !ok {
		return nil, ErrNotFound
	}
	stored := r.events[paymentID]
	events := make([]domain.TransferEvent, len(stored))
	for i, ev := range stored {
		cp := ev
		cp.Payload = ev.Payload.Clone()
		if ev.Message != nil {
			msg := *ev.Message
			cp.Message = &msg
		}
		events[i] = cp
	}
	return events, nil
}
