package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pagoflex/payment-service/internal/connector"
	"github.com/pagoflex/payment-service/internal/domain"
	"github.com/pagoflex/payment-service/internal/kyc"
	"github.com/pagoflex/payment-service/internal/store"
	"github.com/pagoflex/payment-service/pkg/bdcclient"
	"github.com/pagoflex/payment-service/pkg/rabbitmq"
)

type repoStub struct {
	saveCalls int
	saved     *domain.PaymentData
	saveErr   error
}

func (s *repoStub) Save(ctx context.Context, data *domain.PaymentData) (*domain.PaymentData, error) {
	s.saveCalls++
	if s.saveErr != nil {
		return nil, s.saveErr
	}
	s.saved = data.Clone()
	return data.Clone(), nil
}

func (s *repoStub) GetByOriginID(ctx context.Context, originID string) (*domain.PaymentData, error) {
	if s.saved != nil && s.saved.OriginID == originID {
		return s.saved.Clone(), nil
	}
	return nil, store.ErrNotFound
}

func (s *repoStub) GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*domain.PaymentData, error) {
	if s.saved != nil && s.saved.PaymentID == paymentID {
		return s.saved.Clone(), nil
	}
	return nil, store.ErrNotFound
}

func (s *repoStub) ListEvents(ctx context.Context, paymentID uuid.UUID) ([]domain.TransferEvent, error) {
	return nil, nil
}

type connectorStub struct {
	buildCalls   int
	executeCalls int
	executeErr   error
	response     map[string]any
}

func (c *connectorStub) ID() string { return "stub" }

func (c *connectorStub) BuildRequest(data *domain.PaymentData) (*connector.ProviderRequest, error) {
	c.buildCalls++
	if data.Source == nil || data.Destination == nil || data.TransferBody == nil {
		return nil, domain.NewValidationError("transfer data incomplete; source, destination and body are required")
	}
	return &connector.ProviderRequest{OriginID: data.OriginID}, nil
}

func (c *connectorStub) ExecuteRequest(ctx context.Context, req *connector.ProviderRequest) (map[string]any, error) {
	c.executeCalls++
	if c.executeErr != nil {
		return nil, c.executeErr
	}
	return c.response, nil
}

func (c *connectorStub) HandleResponse(raw map[string]any) (*domain.ConnectorResponse, error) {
	status := domain.StateFailed
	if raw["statusCode"] == float64(0) {
		status = domain.StateAuthorized
	}
	resp := &domain.ConnectorResponse{Status: status, RawResponse: raw}
	if status == domain.StateFailed {
		resp.ErrorMessage = "rejected"
	}
	return resp, nil
}

type publisherStub struct {
	events []rabbitmq.PaymentEvent
	err    error
}

func (p *publisherStub) PublishPaymentEvent(ctx context.Context, exchange string, event rabbitmq.PaymentEvent) error {
	p.events = append(p.events, event)
	return p.err
}

func (p *publisherStub) Close() {}

func engineRequest(t *testing.T, amount, concept string) domain.TransferRequest {
	t.Helper()
	req := domain.TransferRequest{
		Source: domain.TransferParty{
			AddressType: "CBU",
			Address:     "2850590940090418135201",
			Owner:       domain.TransferPartyOwner{PersonIDType: "DNI", PersonID: "20123456"},
		},
		Destination: domain.TransferParty{
			AddressType: "CBU",
			Address:     "0070999820000012345678",
			Owner:       domain.TransferPartyOwner{PersonIDType: "CUIT", PersonID: "20301234561"},
		},
		Body: domain.TransferBody{Amount: decimal.RequireFromString(amount), Currency: "ARS"},
	}
	if concept != "" {
		req.Body.Concept = &concept
	}
	return req
}

func TestProcess_RejectsNonPositiveAmountBeforeAnySideEffect(t *testing.T) {
	for _, amount := range []string{"0", "-10.50"} {
		t.Run("amount "+amount, func(t *testing.T) {
			repo := &repoStub{}
			conn := &connectorStub{}
			svc := NewService(repo, conn, nil, nil, "")

			data := engineRequest(t, amount, "").ToPaymentData()
			_, err := svc.Process(context.Background(), data)

			var validationErr *domain.ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if conn.buildCalls != 0 || conn.executeCalls != 0 {
				t.Fatal("expected no connector calls for invalid amount")
			}
			if repo.saveCalls != 0 {
				t.Fatal("expected no persistence writes for invalid amount")
			}
		})
	}
}

func TestProcess_ShortCircuitsToRequiresKYCWithoutConnectorCall(t *testing.T) {
	repo := &repoStub{}
	conn := &connectorStub{}
	svc := NewService(repo, conn, kyc.StaticChecker{Status: kyc.StatusNotStarted}, nil, "")

	data := engineRequest(t, "1500.00", "VAR").ToPaymentData()
	result, err := svc.Process(context.Background(), data)
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	if result.Status != domain.StateRequiresKYC {
		t.Fatalf("expected REQUIRES_KYC, got %s", result.Status)
	}
	if conn.buildCalls != 0 || conn.executeCalls != 0 {
		t.Fatal("expected no connector calls for unverified identity")
	}
	if repo.saveCalls != 1 {
		t.Fatalf("expected the short-circuit to be persisted once, got %d saves", repo.saveCalls)
	}
}

func TestProcess_VerifiedCustomerAboveThresholdReachesConnector(t *testing.T) {
	repo := &repoStub{}
	conn := &connectorStub{response: map[string]any{"statusCode": float64(0)}}
	svc := NewService(repo, conn, kyc.StaticChecker{Status: kyc.StatusVerified}, nil, "")

	data := engineRequest(t, "1500.00", "VAR").ToPaymentData()
	result, err := svc.Process(context.Background(), data)
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if conn.executeCalls != 1 {
		t.Fatalf("expected one connector execution, got %d", conn.executeCalls)
	}
	if result.Status != domain.StateAuthorized {
		t.Fatalf("expected AUTHORIZED, got %s", result.Status)
	}
}

func TestProcess_TransportErrorPropagatesWithoutPersistence(t *testing.T) {
	transportErr := &bdcclient.TransportError{Op: "transfer", StatusCode: 502, Err: errors.New("bad gateway")}
	repo := &repoStub{}
	conn := &connectorStub{executeErr: transportErr}
	svc := NewService(repo, conn, nil, nil, "")

	data := engineRequest(t, "100.00", "VAR").ToPaymentData()
	_, err := svc.Process(context.Background(), data)

	var gotTransport *bdcclient.TransportError
	if !errors.As(err, &gotTransport) {
		t.Fatalf("expected TransportError to propagate, got %v", err)
	}
	if repo.saveCalls != 0 {
		t.Fatal("expected no persisted state change on transport failure")
	}
}

func TestProcess_PersistenceErrorPropagates(t *testing.T) {
	repo := &repoStub{saveErr: errors.New("storage unavailable")}
	conn := &connectorStub{response: map[string]any{"statusCode": float64(0)}}
	svc := NewService(repo, conn, nil, nil, "")

	data := engineRequest(t, "100.00", "VAR").ToPaymentData()
	_, err := svc.Process(context.Background(), data)
	if err == nil {
		t.Fatal("expected persistence error to propagate")
	}
}

func TestProcess_FinalizesFailedResponseAsDomainOutcome(t *testing.T) {
	repo := &repoStub{}
	conn := &connectorStub{response: map[string]any{"statusCode": float64(4099)}}
	svc := NewService(repo, conn, nil, nil, "")

	data := engineRequest(t, "100.00", "REJECT").ToPaymentData()
	result, err := svc.Process(context.Background(), data)
	if err != nil {
		t.Fatalf("expected a domain FAILED outcome, not an error, got %v", err)
	}
	if result.Status != domain.StateFailed {
		t.Fatalf("expected FAILED, got %s", result.Status)
	}
	if _, ok := result.Metadata[domain.MetadataConnectorResponse]; !ok {
		t.Fatal("expected raw response merged into metadata")
	}
	if repo.saveCalls != 1 {
		t.Fatalf("expected one persisted transition, got %d", repo.saveCalls)
	}
}

func TestProcess_SameOriginIDUpsertsOneAggregate(t *testing.T) {
	repo := store.NewMemoryRepository()
	conn := connector.NewMock(connector.DefaultMockBehaviour())
	svc := NewService(repo, conn, nil, nil, "")
	ctx := context.Background()

	first := engineRequest(t, "100.00", "VAR").ToPaymentData()
	first.OriginID = "shared-origin"
	saved1, err := svc.Process(ctx, first)
	if err != nil {
		t.Fatalf("first Process returned error: %v", err)
	}

	// A re-submission with the provider-assigned identical origin id, e.g.
	// after out-of-band KYC completion, updates the existing aggregate.
	second := engineRequest(t, "100.00", "VAR").ToPaymentData()
	second.OriginID = "shared-origin"
	saved2, err := svc.Process(ctx, second)
	if err != nil {
		t.Fatalf("second Process returned error: %v", err)
	}
	if saved2.PaymentID != saved1.PaymentID {
		t.Fatalf("expected one aggregate, got payment ids %s and %s", saved1.PaymentID, saved2.PaymentID)
	}

	events, err := repo.ListEvents(ctx, saved1.PaymentID)
	if err != nil {
		t.Fatalf("ListEvents returned error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events after 2 orchestration passes, got %d", len(events))
	}
}

func TestRegisterTransfer_EchoesRequestAndPublishesEvent(t *testing.T) {
	repo := store.NewMemoryRepository()
	conn := connector.NewMock(connector.DefaultMockBehaviour())
	publisher := &publisherStub{}
	svc := NewService(repo, conn, nil, publisher, "pagoflex.events")

	req := engineRequest(t, "123.45", "VAR")
	resp, err := svc.RegisterTransfer(context.Background(), req)
	if err != nil {
		t.Fatalf("RegisterTransfer returned error: %v", err)
	}

	if resp.Status != domain.StateAuthorized {
		t.Fatalf("expected AUTHORIZED, got %s", resp.Status)
	}
	if resp.OriginID == "" || resp.PaymentID == uuid.Nil {
		t.Fatal("expected non-empty origin id and payment id")
	}
	if resp.EchoedRequest.Body.Amount.StringFixed(2) != "123.45" {
		t.Fatalf("expected echoed amount 123.45, got %s", resp.EchoedRequest.Body.Amount)
	}
	if resp.BankResponse == nil {
		t.Fatal("expected bank response payload")
	}

	if len(publisher.events) != 1 {
		t.Fatalf("expected one published event, got %d", len(publisher.events))
	}
	if publisher.events[0].Status != string(domain.StateAuthorized) {
		t.Fatalf("expected published status AUTHORIZED, got %s", publisher.events[0].Status)
	}

	// Round-trip: fetching by origin id reproduces the submitted request.
	stored, err := svc.GetTransferByOriginID(context.Background(), resp.OriginID)
	if err != nil {
		t.Fatalf("GetTransferByOriginID returned error: %v", err)
	}
	snapshot := stored.Metadata["client_request"].(map[string]any)
	body := snapshot["body"].(map[string]any)
	if body["amount"] != "123.45" {
		t.Fatalf("expected stored client_request amount 123.45, got %v", body["amount"])
	}
	if stored.Source.Address != req.Source.Address {
		t.Fatalf("expected stored source address %s, got %s", req.Source.Address, stored.Source.Address)
	}
}

func TestRegisterTransfer_PublishFailureDoesNotFailOrchestration(t *testing.T) {
	repo := store.NewMemoryRepository()
	conn := connector.NewMock(connector.DefaultMockBehaviour())
	publisher := &publisherStub{err: errors.New("broker down")}
	svc := NewService(repo, conn, nil, publisher, "pagoflex.events")

	_, err := svc.RegisterTransfer(context.Background(), engineRequest(t, "50.00", "VAR"))
	if err != nil {
		t.Fatalf("expected orchestration to succeed despite broker failure, got %v", err)
	}
}

func TestThrottleRegistration(t *testing.T) {
	t.Run("no limiter allows everything", func(t *testing.T) {
		svc := NewService(&repoStub{}, &connectorStub{}, nil, nil, "")
		if _, err := svc.ThrottleRegistration(context.Background(), "client-a"); err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}
	})

	t.Run("limit exceeded returns ErrRateLimited", func(t *testing.T) {
		svc := NewService(&repoStub{}, &connectorStub{}, nil, nil, "")
		svc.SetRateLimiter(rateLimiterStub{count: 6, retryAfter: 30}, 5)

		retryAfter, err := svc.ThrottleRegistration(context.Background(), "client-a")
		if !errors.Is(err, ErrRateLimited) {
			t.Fatalf("expected ErrRateLimited, got %v", err)
		}
		if retryAfter != 30 {
			t.Fatalf("expected retry-after 30, got %d", retryAfter)
		}
	})

	t.Run("limiter failure fails open", func(t *testing.T) {
		svc := NewService(&repoStub{}, &connectorStub{}, nil, nil, "")
		svc.SetRateLimiter(rateLimiterStub{err: errors.New("redis down")}, 5)

		if _, err := svc.ThrottleRegistration(context.Background(), "client-a"); err != nil {
			t.Fatalf("expected fail-open behaviour, got %v", err)
		}
	})
}

type rateLimiterStub struct {
	count      int
	retryAfter int
	err        error
}

func (s rateLimiterStub) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	return s.count, s.retryAfter, s.err
}
