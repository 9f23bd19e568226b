/**
 * @description
 * This file contains the payment orchestration engine. The `Service` struct
 * drives one transfer from submission to a terminal outcome: validation, the
 * KYC gate, the connector's build/execute/interpret sequence, and the
 * persisted state transition with its appended audit event.
 *
 * Key properties:
 * - Validation failures are raised before any side effect occurs.
 * - Transport failures from the connector propagate unmodified and leave the
 *   aggregate unpersisted for that attempt; only a structurally valid
 *   provider response, successful or not, produces a state transition.
 * - Persistence failures propagate; nothing is swallowed and nothing retries
 *   internally. Retry policy belongs to the caller.
 * - A state-transition event is published to the broker after each persisted
 *   save, best effort.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid, github.com/shopspring/decimal: Identifiers and exact amounts.
 * - internal/connector, internal/domain, internal/kyc, internal/store: Core collaborators.
 * - pkg/rabbitmq: Event fan-out.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pagoflex/payment-service/internal/connector"
	"github.com/pagoflex/payment-service/internal/domain"
	"github.com/pagoflex/payment-service/internal/kyc"
	"github.com/pagoflex/payment-service/internal/store"
	"github.com/pagoflex/payment-service/pkg/rabbitmq"
)

// DefaultKYCThreshold is the amount above which an unverified customer's
// transfer is short-circuited to REQUIRES_KYC.
var DefaultKYCThreshold = decimal.NewFromInt(1000)

// ErrRateLimited signals that a client exceeded the registration rate limit.
var ErrRateLimited = errors.New("registration rate limit exceeded")

// RateLimiter counts registrations per subject within a window.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Service is the payment orchestration engine.
type Service struct {
	repo          store.TransferRepository
	conn          connector.Connector
	kycChecker    kyc.Checker
	kycThreshold  decimal.Decimal
	eventProducer rabbitmq.Publisher
	eventExchange string

	rateLimiter        RateLimiter
	rateLimitPerMinute int
}

// NewService creates the orchestration engine with its collaborators.
// The producer may be nil when no broker is configured.
func NewService(repo store.TransferRepository, conn connector.Connector, checker kyc.Checker, producer rabbitmq.Publisher, eventExchange string) *Service {
	if checker == nil {
		checker = kyc.StaticChecker{Status: kyc.StatusNotStarted}
	}
	return &Service{
		repo:          repo,
		conn:          conn,
		kycChecker:    checker,
		kycThreshold:  DefaultKYCThreshold,
		eventProducer: producer,
		eventExchange: eventExchange,
	}
}

// SetKYCThreshold overrides the amount above which KYC is required.
func (s *Service) SetKYCThreshold(threshold decimal.Decimal) {
	s.kycThreshold = threshold
}

// SetRateLimiter wires a distributed rate limiter for transfer registration.
func (s *Service) SetRateLimiter(limiter RateLimiter, perMinute int) {
	s.rateLimiter = limiter
	s.rateLimitPerMinute = perMinute
}

// ThrottleRegistration consumes one registration slot for the client key.
// It returns ErrRateLimited with a retry-after hint when the limit is hit,
// and allows the call through when no limiter is configured or the limiter
// itself fails.
func (s *Service) ThrottleRegistration(ctx context.Context, clientKey string) (retryAfterSeconds int, err error) {
	if s.rateLimiter == nil || s.rateLimitPerMinute <= 0 {
		return 0, nil
	}
	count, retryAfter, err := s.rateLimiter.ConsumeRateLimit(ctx, "transfer_register", clientKey, s.rateLimitPerMinute, time.Minute)
	if err != nil {
		log.Printf("level=warn component=engine msg=\"rate limiter unavailable; allowing request\" err=%v", err)
		return 0, nil
	}
	if count > s.rateLimitPerMinute {
		return retryAfter, ErrRateLimited
	}
	return 0, nil
}

// RegisterTransfer maps an inbound request into the domain, orchestrates it,
// and shapes the caller-facing result.
func (s *Service) RegisterTransfer(ctx context.Context, req domain.TransferRequest) (*domain.TransferInitResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	data := req.ToPaymentData()
	data, err := s.Process(ctx, data)
	if err != nil {
		return nil, err
	}

	resp := &domain.TransferInitResponse{
		PaymentID:     data.PaymentID,
		OriginID:      data.OriginID,
		Status:        data.Status,
		EchoedRequest: req,
	}
	if raw, ok := data.Metadata[domain.MetadataConnectorResponse].(map[string]any); ok {
		resp.BankResponse = raw
	}
	return resp, nil
}

// Process runs one orchestration pass over the aggregate: validate, gate on
// KYC, invoke the connector, finalize and persist.
func (s *Service) Process(ctx context.Context, data *domain.PaymentData) (*domain.PaymentData, error) {
	if err := s.validate(data); err != nil {
		return nil, err
	}

	// The origin id doubles as the provider request identifier; fixing it
	// before any side effect keeps the persisted aggregate and the provider
	// request in agreement.
	if data.OriginID == "" {
		data.OriginID = uuid.NewString()
	}
	connectorID := s.conn.ID()
	data.ConnectorID = &connectorID

	required, err := s.requiresKYC(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("kyc status check failed: %w", err)
	}
	if required {
		data.Status = domain.StateRequiresKYC
		saved, err := s.persist(ctx, data)
		if err != nil {
			return nil, err
		}
		log.Printf("level=info component=engine outcome=requires_kyc payment_id=%s origin_id=%s amount=%s", saved.PaymentID, saved.OriginID, saved.Amount.StringFixed(2))
		s.publishTransition(ctx, saved, "")
		return saved, nil
	}

	response, err := s.callConnector(ctx, data)
	if err != nil {
		return nil, err
	}

	data.Status = response.Status
	data.Metadata[domain.MetadataConnectorResponse] = response.RawResponse
	if response.ErrorMessage != "" {
		data.Metadata["error_message"] = response.ErrorMessage
	}

	saved, err := s.persist(ctx, data)
	if err != nil {
		return nil, err
	}
	log.Printf("level=info component=engine outcome=%s payment_id=%s origin_id=%s provider_reference=%s", saved.Status, saved.PaymentID, saved.OriginID, response.ProviderReferenceID)
	s.publishTransition(ctx, saved, response.ProviderReferenceID)
	return saved, nil
}

// GetTransferByOriginID fetches the full aggregate by its idempotency key.
func (s *Service) GetTransferByOriginID(ctx context.Context, originID string) (*domain.PaymentData, error) {
	return s.repo.GetByOriginID(ctx, originID)
}

// GetTransferEvents returns the audit trail for a transfer.
func (s *Service) GetTransferEvents(ctx context.Context, originID string) ([]domain.TransferEvent, error) {
	data, err := s.repo.GetByOriginID(ctx, originID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListEvents(ctx, data.PaymentID)
}

func (s *Service) validate(data *domain.PaymentData) error {
	data.SyncFromBody()
	if !data.Amount.IsPositive() {
		return domain.NewValidationError("amount must be positive")
	}
	return nil
}

// requiresKYC applies the domain policy: amounts above the threshold require
// a verified identity. No connector call is made for unverified identities.
func (s *Service) requiresKYC(ctx context.Context, data *domain.PaymentData) (bool, error) {
	if !data.Amount.GreaterThan(s.kycThreshold) {
		return false, nil
	}
	customerID := ""
	if data.CustomerID != nil {
		customerID = *data.CustomerID
	}
	status, err := s.kycChecker.CheckStatus(ctx, customerID)
	if err != nil {
		return false, err
	}
	return status != kyc.StatusVerified, nil
}

// callConnector runs the three-step connector contract in strict sequence.
// Failures here propagate as system errors, never as a FAILED transfer.
func (s *Service) callConnector(ctx context.Context, data *domain.PaymentData) (*domain.ConnectorResponse, error) {
	request, err := s.conn.BuildRequest(data)
	if err != nil {
		return nil, err
	}
	raw, err := s.conn.ExecuteRequest(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("connector execution failed: %w", err)
	}
	response, err := s.conn.HandleResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("connector response interpretation failed: %w", err)
	}
	return response, nil
}

func (s *Service) persist(ctx context.Context, data *domain.PaymentData) (*domain.PaymentData, error) {
	saved, err := s.repo.Save(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("failed to persist transfer %s: %w", data.PaymentID, err)
	}
	return saved, nil
}

// publishTransition fans the persisted state transition out to the broker.
// Broker failures are logged and never fail the orchestration call.
func (s *Service) publishTransition(ctx context.Context, data *domain.PaymentData, providerReference string) {
	if s.eventProducer == nil {
		return
	}
	connectorID := ""
	if data.ConnectorID != nil {
		connectorID = *data.ConnectorID
	}
	event := rabbitmq.PaymentEvent{
		PaymentID:           data.PaymentID,
		OriginID:            data.OriginID,
		Status:              string(data.Status),
		Amount:              data.Amount.StringFixed(2),
		Currency:            data.Currency,
		ConnectorID:         connectorID,
		ProviderReferenceID: providerReference,
		Timestamp:           time.Now().UTC(),
	}
	if err := s.eventProducer.PublishPaymentEvent(ctx, s.eventExchange, event); err != nil {
		log.Printf("level=warn component=engine msg=\"payment event publish failed\" payment_id=%s err=%v", data.PaymentID, err)
	}
}
