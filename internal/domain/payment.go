/**
 * @description
 * This file defines the core domain models for the payment-service. These structs
 * represent the transfer aggregate, its counterparties, and the data transfer
 * objects (DTOs) that cross the HTTP boundary.
 *
 * @notes
 * - Amounts are `decimal.Decimal` values normalized to exactly two decimal
 *   places (round half up), never floats, to avoid precision loss with
 *   financial data.
 * - Whenever a transfer body is present it is the source of truth for the
 *   aggregate's amount and currency; `SyncFromBody` enforces that invariant.
 */

package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentState enumerates the lifecycle states of a transfer.
// CREATED is the sole initial state; every other state is terminal with
// respect to a single orchestration pass.
type PaymentState string

const (
	StateCreated     PaymentState = "CREATED"
	StateRequiresPM  PaymentState = "REQUIRES_PM"
	StateRequiresKYC PaymentState = "REQUIRES_KYC"
	StateAuthorized  PaymentState = "AUTHORIZED"
	StateCaptured    PaymentState = "CAPTURED"
	StateFailed      PaymentState = "FAILED"
	StateCancelled   PaymentState = "CANCELLED"
)

// TransferPartyOwner identifies the person behind an account or wallet.
type TransferPartyOwner struct {
	PersonIDType string  `json:"personIdType"`
	PersonID     string  `json:"personId"`
	PersonName   *string `json:"personName,omitempty"`
}

// Validate checks the owner's identity document constraints.
func (o TransferPartyOwner) Validate() error {
	if strings.TrimSpace(o.PersonIDType) == "" {
		return NewValidationError("owner personIdType is required")
	}
	if l := len(o.PersonID); l < 8 || l > 11 {
		return NewValidationError("owner personId must be between 8 and 11 characters")
	}
	return nil
}

// TransferParty represents a source or destination account/wallet.
// It is immutable once embedded in a request.
type TransferParty struct {
	AddressType string             `json:"addressType"`
	Address     string             `json:"address"`
	Owner       TransferPartyOwner `json:"owner"`
}

// Validate checks the party's address and owner constraints.
func (p TransferParty) Validate() error {
	if strings.TrimSpace(p.AddressType) == "" {
		return NewValidationError("party addressType is required")
	}
	if len(p.Address) < 6 {
		return NewValidationError("party address must be at least 6 characters")
	}
	return p.Owner.Validate()
}

// TransferBody carries the monetary contents of a transfer.
type TransferBody struct {
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description *string         `json:"description,omitempty"`
	Concept     *string         `json:"concept,omitempty"`
}

// Normalize re-quantizes the amount to exactly two decimal places,
// round half up. Extra precision is never truncated silently.
func (b *TransferBody) Normalize() {
	b.Amount = QuantizeAmount(b.Amount)
}

// UnmarshalJSON decodes a transfer body and immediately normalizes its amount
// so that no un-quantized value ever enters the domain.
func (b *TransferBody) UnmarshalJSON(data []byte) error {
	type bodyAlias TransferBody
	var raw bodyAlias
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*b = TransferBody(raw)
	b.Normalize()
	return nil
}

// Validate checks the body's currency; the amount sign is an orchestration
// concern and is validated by the engine before any side effect.
func (b TransferBody) Validate() error {
	if strings.TrimSpace(b.Currency) == "" {
		return NewValidationError("body currency is required")
	}
	return nil
}

// QuantizeAmount rounds a monetary amount to two decimal places, half up.
func QuantizeAmount(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// PaymentData is the transfer aggregate: one payment header, its transfer
// detail, and the mutable state the orchestration engine transitions.
// It is created with status CREATED, mutated in place by the engine, and
// persisted after each meaningful transition. The core never deletes it.
type PaymentData struct {
	PaymentID    uuid.UUID       `json:"paymentId"`
	OriginID     string          `json:"originId,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	CustomerID   *string         `json:"customerId,omitempty"`
	Description  *string         `json:"description,omitempty"`
	Status       PaymentState    `json:"status"`
	ConnectorID  *string         `json:"connectorId,omitempty"`
	Metadata     Metadata        `json:"metadata,omitempty"`
	Source       *TransferParty  `json:"source,omitempty"`
	Destination  *TransferParty  `json:"destination,omitempty"`
	TransferBody *TransferBody   `json:"body,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// NewPaymentData creates an empty aggregate in the initial state with a
// freshly generated payment id.
func NewPaymentData() *PaymentData {
	return &PaymentData{
		PaymentID: uuid.New(),
		Status:    StateCreated,
		Metadata:  Metadata{},
		CreatedAt: time.Now().UTC(),
	}
}

// SyncFromBody derives amount and currency from the transfer body whenever
// one is present. The body is the source of truth; callers cannot set the
// aggregate's amount or currency independently of it.
func (p *PaymentData) SyncFromBody() {
	if p.TransferBody == nil {
		return
	}
	p.TransferBody.Normalize()
	p.Amount = p.TransferBody.Amount
	p.Currency = p.TransferBody.Currency
}

// Clone returns an independent deep copy of the aggregate. Mutating the copy
// never affects the original; repositories rely on this for
// copy-on-read/copy-on-write discipline.
func (p *PaymentData) Clone() *PaymentData {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Metadata = p.Metadata.Clone()
	if p.CustomerID != nil {
		v := *p.CustomerID
		cp.CustomerID = &v
	}
	if p.Description != nil {
		v := *p.Description
		cp.Description = &v
	}
	if p.ConnectorID != nil {
		v := *p.ConnectorID
		cp.ConnectorID = &v
	}
	if p.Source != nil {
		s := cloneParty(*p.Source)
		cp.Source = &s
	}
	if p.Destination != nil {
		d := cloneParty(*p.Destination)
		cp.Destination = &d
	}
	if p.TransferBody != nil {
		b := *p.TransferBody
		if p.TransferBody.Description != nil {
			v := *p.TransferBody.Description
			b.Description = &v
		}
		if p.TransferBody.Concept != nil {
			v := *p.TransferBody.Concept
			b.Concept = &v
		}
		cp.TransferBody = &b
	}
	return &cp
}

func cloneParty(p TransferParty) TransferParty {
	if p.Owner.PersonName != nil {
		v := *p.Owner.PersonName
		p.Owner.PersonName = &v
	}
	return p
}

// ConnectorResponse is the domain interpretation of one provider call.
// It is ephemeral: folded into the aggregate's metadata and the new transfer
// event, never persisted on its own.
type ConnectorResponse struct {
	Status              PaymentState   `json:"status"`
	ProviderReferenceID string         `json:"providerReferenceId,omitempty"`
	ErrorMessage        string         `json:"errorMessage,omitempty"`
	RawResponse         map[string]any `json:"rawResponse,omitempty"`
}

// TransferRequest is the inbound DTO for registering a transfer.
type TransferRequest struct {
	Source      TransferParty `json:"source"`
	Destination TransferParty `json:"destination"`
	Body        TransferBody  `json:"body"`
}

// Validate checks the structural constraints of an inbound request.
func (r TransferRequest) Validate() error {
	if err := r.Source.Validate(); err != nil {
		return err
	}
	if err := r.Destination.Validate(); err != nil {
		return err
	}
	return r.Body.Validate()
}

// ToPaymentData maps an inbound request into a fresh aggregate in the
// initial state. A snapshot of the client request is retained in metadata so
// a later lookup can reproduce exactly what was submitted.
func (r TransferRequest) ToPaymentData() *PaymentData {
	data := NewPaymentData()
	src := cloneParty(r.Source)
	dst := cloneParty(r.Destination)
	body := r.Body
	data.Source = &src
	data.Destination = &dst
	data.TransferBody = &body
	data.SyncFromBody()
	data.Metadata["client_request"] = map[string]any{
		"source":      partySnapshot(r.Source),
		"destination": partySnapshot(r.Destination),
		"body": map[string]any{
			"amount":      data.Amount.StringFixed(2),
			"currency":    data.Currency,
			"description": derefOrNil(r.Body.Description),
			"concept":     derefOrNil(r.Body.Concept),
		},
	}
	return data
}

func partySnapshot(p TransferParty) map[string]any {
	return map[string]any{
		"addressType": p.AddressType,
		"address":     p.Address,
		"owner": map[string]any{
			"personIdType": p.Owner.PersonIDType,
			"personId":     p.Owner.PersonID,
			"personName":   derefOrNil(p.Owner.PersonName),
		},
	}
}

func derefOrNil(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// TransferInitResponse is returned to the caller after orchestration.
type TransferInitResponse struct {
	PaymentID     uuid.UUID       `json:"paymentId"`
	OriginID      string          `json:"originId"`
	Status        PaymentState    `json:"status"`
	EchoedRequest TransferRequest `json:"echoed_request"`
	BankResponse  map[string]any  `json:"bankResponse,omitempty"`
}
