/**
 * @description
 * This file defines the connector protocol: the three-step contract every
 * banking connector implements (build the provider request, execute it,
 * interpret the provider payload), plus the provider-specific request shape
 * shared by the live and mock Banco de Comercio implementations.
 *
 * The live and mock connectors are independent implementations of the one
 * interface; the mock does not subtype the live connector, it only composes
 * the same request builder so the orchestration engine exercises identical
 * response shapes either way.
 */

package connector

import (
	"context"

	"github.com/google/uuid"

	"github.com/pagoflex/payment-service/internal/domain"
)

// Connector is the pluggable integration against one banking provider.
// BuildRequest fails with a domain.ValidationError when source, destination
// or body is missing. ExecuteRequest may fail with a transport error, which
// always propagates to the caller. HandleResponse folds a structurally valid
// provider payload into the domain, successful or not.
type Connector interface {
	ID() string
	BuildRequest(data *domain.PaymentData) (*ProviderRequest, error)
	ExecuteRequest(ctx context.Context, req *ProviderRequest) (map[string]any, error)
	HandleResponse(raw map[string]any) (*domain.ConnectorResponse, error)
}

// ProviderRequest is the Banco de Comercio transfer-request wire shape.
type ProviderRequest struct {
	OriginID string        `json:"originId"`
	From     ProviderParty `json:"from"`
	To       ProviderParty `json:"to"`
	Body     ProviderBody  `json:"body"`
}

// ProviderParty mirrors the provider's account representation.
type ProviderParty struct {
	AddressType string        `json:"addressType"`
	Address     string        `json:"address"`
	Owner       ProviderOwner `json:"owner"`
}

// ProviderOwner mirrors the provider's account-holder representation.
type ProviderOwner struct {
	PersonIDType string  `json:"personIdType"`
	PersonID     string  `json:"personId"`
	PersonName   *string `json:"personName,omitempty"`
}

// ProviderBody carries the monetary contents in the provider's format.
// The amount degrades to a JSON number here; the domain keeps the exact
// decimal and this shape exists only for the provider wire.
type ProviderBody struct {
	CurrencyID  string  `json:"currencyId"`
	Amount      float64 `json:"amount"`
	Description *string `json:"description,omitempty"`
	Concept     *string `json:"concept,omitempty"`
}

// buildProviderRequest maps a transfer aggregate into the provider request
// shape. Source, destination and body are mandatory preconditions for any
// transfer execution.
func buildProviderRequest(data *domain.PaymentData) (*ProviderRequest, error) {
	if data.Source == nil || data.Destination == nil || data.TransferBody == nil {
		return nil, domain.NewValidationError("transfer data incomplete; source, destination and body are required")
	}

	originID := data.OriginID
	if originID == "" {
		originID = uuid.NewString()
	}

	body := data.TransferBody
	return &ProviderRequest{
		OriginID: originID,
		From:     toProviderParty(*data.Source),
		To:       toProviderParty(*data.Destination),
		Body: ProviderBody{
			CurrencyID:  MapCurrency(body.Currency),
			Amount:      body.Amount.InexactFloat64(),
			Description: body.Description,
			Concept:     body.Concept,
		},
	}, nil
}

func toProviderParty(p domain.TransferParty) ProviderParty {
	return ProviderParty{
		AddressType: p.AddressType,
		Address:     p.Address,
		Owner: ProviderOwner{
			PersonIDType: p.Owner.PersonIDType,
			PersonID:     p.Owner.PersonID,
			PersonName:   p.Owner.PersonName,
		},
	}
}

// providerReference extracts the provider's reconciliation id from a raw
// payload: the primary transaction id field first, falling back to the
// echoed request's origin id.
func providerReference(raw map[string]any) string {
	if ref, ok := raw["dest_ori_trx_id"].(string); ok && ref != "" {
		return ref
	}
	if data, ok := raw["data"].(map[string]any); ok {
		if ref, ok := data["originId"].(string); ok && ref != "" {
			return ref
		}
		if req, ok := data["request"].(map[string]any); ok {
			if ref, ok := req["originId"].(string); ok && ref != "" {
				return ref
			}
		}
	}
	return ""
}

// statusCode reads the provider's numeric status code from a raw payload.
// JSON decoding yields float64 for numbers; -1 means the field was absent.
func statusCode(raw map[string]any) int {
	switch v := raw["statusCode"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return -1
	}
}
