/**
 * @description
 * Deterministic Banco de Comercio test double. It implements the same
 * connector protocol as the live connector without network I/O, driven by a
 * behaviour descriptor: concepts that force rejection, an optional amount
 * threshold above which requests are rejected, and configurable status codes.
 * Its synthesized payloads use the same field names as the live provider so
 * the orchestration engine's interpretation path is exercised identically.
 */

package connector

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pagoflex/payment-service/internal/domain"
)

// MockID identifies the mock connector on persisted aggregates.
const MockID = "mock_banco_comercio"

// MockBehaviour configures how the mock connector decides accept vs reject.
type MockBehaviour struct {
	FailureConcepts        []string
	FailureAmountThreshold *decimal.Decimal
	SuccessStatusCode      int
	FailureStatusCode      int
}

// DefaultMockBehaviour rejects the REJECT and FAIL concepts and accepts
// everything else with provider status code 0.
func DefaultMockBehaviour() MockBehaviour {
	return MockBehaviour{
		FailureConcepts:   []string{"REJECT", "FAIL"},
		SuccessStatusCode: 0,
		FailureStatusCode: 4099,
	}
}

// Mock simulates the Banco de Comercio connector for local development and
// automated tests.
type Mock struct {
	behaviour MockBehaviour
}

// NewMock creates a mock connector with the given behaviour.
func NewMock(behaviour MockBehaviour) *Mock {
	return &Mock{behaviour: behaviour}
}

func (m *Mock) ID() string { return MockID }

// BuildRequest maps the aggregate exactly like the live connector.
func (m *Mock) BuildRequest(data *domain.PaymentData) (*ProviderRequest, error) {
	return buildProviderRequest(data)
}

// ExecuteRequest synthesizes a provider payload according to the behaviour
// descriptor instead of performing network I/O.
func (m *Mock) ExecuteRequest(ctx context.Context, req *ProviderRequest) (map[string]any, error) {
	concept := ""
	if req.Body.Concept != nil {
		concept = *req.Body.Concept
	}

	shouldFail := m.conceptFails(concept)
	if m.behaviour.FailureAmountThreshold != nil {
		amount := decimal.NewFromFloat(req.Body.Amount)
		shouldFail = shouldFail || amount.GreaterThan(*m.behaviour.FailureAmountThreshold)
	}

	code := m.behaviour.SuccessStatusCode
	message := "Simulated transfer accepted"
	if shouldFail {
		code = m.behaviour.FailureStatusCode
		message = "Simulated transfer rejected"
	}

	response := map[string]any{
		"statusCode":      float64(code),
		"message":         message,
		"dest_ori_trx_id": req.OriginID,
		"data": map[string]any{
			"request":  requestSnapshot(req),
			"originId": req.OriginID,
			"concept":  concept,
		},
	}
	if shouldFail {
		response["errors"] = []any{
			map[string]any{
				"code":   "MOCK-FAILURE",
				"detail": "Connector configured to reject this transfer",
			},
		}
	}
	return response, nil
}

// HandleResponse interprets the synthesized payload with the same rules the
// live connector applies to real ones.
func (m *Mock) HandleResponse(raw map[string]any) (*domain.ConnectorResponse, error) {
	resp := &domain.ConnectorResponse{
		Status:              domain.StateFailed,
		ProviderReferenceID: providerReference(raw),
		RawResponse:         raw,
	}
	if statusCode(raw) == m.behaviour.SuccessStatusCode {
		resp.Status = domain.StateAuthorized
		return resp, nil
	}

	if msg, ok := raw["message"].(string); ok && msg != "" {
		resp.ErrorMessage = msg
	} else {
		resp.ErrorMessage = "Simulated connector failure"
	}
	return resp, nil
}

func (m *Mock) conceptFails(concept string) bool {
	upper := strings.ToUpper(strings.TrimSpace(concept))
	for _, failing := range m.behaviour.FailureConcepts {
		if upper == strings.ToUpper(failing) {
			return true
		}
	}
	return false
}

// requestSnapshot echoes the provider request as plain JSON values, matching
// the echo the live provider places under data.request.
func requestSnapshot(req *ProviderRequest) map[string]any {
	raw, err := json.Marshal(req)
	if err != nil {
		return map[string]any{"originId": req.OriginID}
	}
	var snapshot map[string]any
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return map[string]any{"originId": req.OriginID}
	}
	return snapshot
}
