package domain

import "time"

// TransferEvent is one append-only audit record of a transfer aggregate's
// state transition. Exactly one event is written per repository save, ordered
// by creation time, and never mutated afterwards.
type TransferEvent struct {
	Status    PaymentState `json:"status"`
	Message   *string      `json:"message,omitempty"`
	Payload   Metadata     `json:"payload,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// NewTransferEvent snapshots the aggregate's current status, metadata and
// connector response into an event record.
func NewTransferEvent(data *PaymentData) TransferEvent {
	meta := data.Metadata.Clone()
	var connectorResponse any
	if meta != nil {
		connectorResponse = meta[MetadataConnectorResponse]
	}
	var message *string
	if meta != nil {
		if raw, ok := meta["error_message"].(string); ok && raw != "" {
			message = &raw
		}
	}
	return TransferEvent{
		Status:  data.Status,
		Message: message,
		Payload: Metadata{
			"status":                  string(data.Status),
			"metadata":                map[string]any(meta),
			MetadataConnectorResponse: connectorResponse,
		},
		CreatedAt: time.Now().UTC(),
	}
}
