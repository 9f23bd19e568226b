/**
 * @description
 * Live Banco de Comercio connector. Request building and response
 * interpretation live here; the authenticated, signed HTTP execution is
 * delegated to pkg/bdcclient.
 */

package connector

import (
	"context"
	"fmt"

	"github.com/pagoflex/payment-service/internal/domain"
	"github.com/pagoflex/payment-service/pkg/bdcclient"
)

// BancoComercioID identifies the live connector on persisted aggregates.
const BancoComercioID = "banco_comercio"

// BancoComercio executes transfers against the real Banco de Comercio API.
type BancoComercio struct {
	client *bdcclient.Client
}

// NewBancoComercio creates the live connector around a configured API client.
func NewBancoComercio(client *bdcclient.Client) *BancoComercio {
	return &BancoComercio{client: client}
}

func (c *BancoComercio) ID() string { return BancoComercioID }

// BuildRequest maps the aggregate into the provider request shape.
func (c *BancoComercio) BuildRequest(data *domain.PaymentData) (*ProviderRequest, error) {
	return buildProviderRequest(data)
}

// ExecuteRequest submits the signed transfer request. Transport failures
// (auth rejection, non-2xx, timeouts) propagate unmodified.
func (c *BancoComercio) ExecuteRequest(ctx context.Context, req *ProviderRequest) (map[string]any, error) {
	return c.client.SubmitTransfer(ctx, req)
}

// HandleResponse interprets the provider payload: status code zero is the
// only success signal, anything else is a domain failure with a reason. The
// raw payload is preserved for the audit trail.
func (c *BancoComercio) HandleResponse(raw map[string]any) (*domain.ConnectorResponse, error) {
	code := statusCode(raw)
	resp := &domain.ConnectorResponse{
		Status:              domain.StateFailed,
		ProviderReferenceID: providerReference(raw),
		RawResponse:         raw,
	}
	if code == 0 {
		resp.Status = domain.StateAuthorized
		return resp, nil
	}

	if msg, ok := raw["message"].(string); ok && msg != "" {
		resp.ErrorMessage = msg
	} else {
		resp.ErrorMessage = fmt.Sprintf("provider returned status code %d", code)
	}
	return resp, nil
}
