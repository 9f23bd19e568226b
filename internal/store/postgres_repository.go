/**
 * @description
 * PostgreSQL implementation of the `TransferRepository` interface. A save
 * writes the payment header row, the transfer detail row and the new transfer
 * event atomically inside one transaction; the detail row is locked
 * (FOR UPDATE) so concurrent saves against the same aggregate serialize and
 * each still appends its own event.
 *
 * Persistence can be routed to a request-scoped schema carried in the
 * context (`store.WithSchema`); the schema is applied per transaction with
 * SET LOCAL and never leaks across requests.
 *
 * @dependencies
 * - context, encoding/json, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver.
 * - github.com/shopspring/decimal: Exact monetary amounts.
 * - internal/domain: The transfer aggregate and event models.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/pagoflex/payment-service/internal/domain"
)

var schemaNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresRepository is a concrete TransferRepository backed by Postgres.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func applySchema(ctx context.Context, tx pgx.Tx) error {
	schema, ok := SchemaFrom(ctx)
	if !ok {
		return nil
	}
	if !schemaNamePattern.MatchString(schema) {
		return fmt.Errorf("invalid schema name %q", schema)
	}
	_, err := tx.Exec(ctx, fmt.Sprintf(`SET LOCAL search_path TO %q, public`, schema))
	return err
}

// Save upserts the aggregate and appends one event, all in one transaction.
func (r *PostgresRepository) Save(ctx context.Context, data *domain.PaymentData) (*domain.PaymentData, error) {
	data.SyncFromBody()
	if data.TransferBody == nil {
		return nil, domain.NewValidationError("transfer body is required to persist transfer data")
	}
	if data.Source == nil || data.Destination == nil {
		return nil, domain.NewValidationError("transfer source and destination are required")
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to begin save transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := applySchema(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	metadata := data.Metadata.Clone()
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	var connectorResponseJSON []byte
	if raw, ok := metadata[domain.MetadataConnectorResponse]; ok && raw != nil {
		if connectorResponseJSON, err = json.Marshal(raw); err != nil {
			return nil, fmt.Errorf("failed to encode connector response: %w", err)
		}
	} else {
		connectorResponseJSON = []byte(`{}`)
	}

	// Lock the existing detail row, matching by payment id or by the
	// externally unique origin id, so a save against a provider-assigned
	// identical origin id adopts the existing aggregate.
	var (
		transferID        int64
		existingPaymentID uuid.UUID
		existingCreatedAt time.Time
		exists            bool
	)
	err = tx.QueryRow(ctx, `
		SELECT id, payment_id, created_at
		FROM transfers
		WHERE payment_id = $1 OR ($2 <> '' AND origin_id = $2)
		FOR UPDATE
	`, data.PaymentID, data.OriginID).Scan(&transferID, &existingPaymentID, &existingCreatedAt)
	switch {
	case err == nil:
		exists = true
		data.PaymentID = existingPaymentID
		data.CreatedAt = existingCreatedAt
	case errors.Is(err, pgx.ErrNoRows):
		exists = false
	default:
		return nil, fmt.Errorf("failed to query transfer for update: %w", err)
	}

	amount := data.Amount.StringFixed(2)
	body := data.TransferBody
	description := data.Description
	if description == nil {
		description = body.Description
	}

	if !exists {
		_, err = tx.Exec(ctx, `
			INSERT INTO payments (id, amount, currency, status, description, metadata)
			VALUES ($1, $2, $3, 'PENDING', $4, $5)
			ON CONFLICT (id) DO UPDATE
			SET amount = EXCLUDED.amount, currency = EXCLUDED.currency,
			    description = EXCLUDED.description, metadata = EXCLUDED.metadata,
			    updated_at = now()
		`, data.PaymentID, amount, data.Currency, description, metadataJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to insert payment header: %w", err)
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO transfers (
				payment_id, origin_id, status, amount, currency, concept, description, connector_id,
				source_address, source_address_type, source_owner_id_type, source_owner_id, source_owner_name,
				destination_address, destination_address_type, destination_owner_id_type, destination_owner_id, destination_owner_name,
				metadata, connector_response
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8,
				$9, $10, $11, $12, $13,
				$14, $15, $16, $17, $18,
				$19, $20
			)
			RETURNING id, created_at
		`,
			data.PaymentID, data.OriginID, string(data.Status), amount, data.Currency, body.Concept, description, data.ConnectorID,
			data.Source.Address, data.Source.AddressType, data.Source.Owner.PersonIDType, data.Source.Owner.PersonID, data.Source.Owner.PersonName,
			data.Destination.Address, data.Destination.AddressType, data.Destination.Owner.PersonIDType, data.Destination.Owner.PersonID, data.Destination.Owner.PersonName,
			metadataJSON, connectorResponseJSON,
		).Scan(&transferID, &data.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to insert transfer: %w", err)
		}
	} else {
		_, err = tx.Exec(ctx, `
			UPDATE payments
			SET amount = $2, currency = $3, description = $4, metadata = $5, updated_at = now()
			WHERE id = $1
		`, data.PaymentID, amount, data.Currency, description, metadataJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to update payment header: %w", err)
		}

		_, err = tx.Exec(ctx, `
			UPDATE transfers
			SET status = $2, amount = $3, currency = $4, concept = $5, description = $6, connector_id = $7,
			    source_address = $8, source_address_type = $9, source_owner_id_type = $10, source_owner_id = $11, source_owner_name = $12,
			    destination_address = $13, destination_address_type = $14, destination_owner_id_type = $15, destination_owner_id = $16, destination_owner_name = $17,
			    metadata = $18, connector_response = $19, updated_at = now()
			WHERE id = $1
		`,
			transferID, string(data.Status), amount, data.Currency, body.Concept, description, data.ConnectorID,
			data.Source.Address, data.Source.AddressType, data.Source.Owner.PersonIDType, data.Source.Owner.PersonID, data.Source.Owner.PersonName,
			data.Destination.Address, data.Destination.AddressType, data.Destination.Owner.PersonIDType, data.Destination.Owner.PersonID, data.Destination.Owner.PersonName,
			metadataJSON, connectorResponseJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to update transfer: %w", err)
		}
	}

	event := domain.NewTransferEvent(data)
	payloadJSON, err := json.Marshal(event.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event payload: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO transfer_events (transfer_id, status, message, payload)
		VALUES ($1, $2, $3, $4)
	`, transferID, string(event.Status), event.Message, payloadJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to append transfer event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit save transaction: %w", err)
	}
	return data.Clone(), nil
}

const transferSelect = `
	SELECT t.payment_id, t.origin_id, t.status, t.amount::text, t.currency, t.concept, t.description, t.connector_id,
	       t.source_address, t.source_address_type, t.source_owner_id_type, t.source_owner_id, t.source_owner_name,
	       t.destination_address, t.destination_address_type, t.destination_owner_id_type, t.destination_owner_id, t.destination_owner_name,
	       t.metadata, t.connector_response, t.created_at
	FROM transfers t
`

// GetByOriginID looks a transfer up by its external idempotency key.
func (r *PostgresRepository) GetByOriginID(ctx context.Context, originID string) (*domain.PaymentData, error) {
	return r.getOne(ctx, transferSelect+" WHERE t.origin_id = $1", originID)
}

// GetByPaymentID looks a transfer up by its internal identifier.
func (r *PostgresRepository) GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*domain.PaymentData, error) {
	return r.getOne(ctx, transferSelect+" WHERE t.payment_id = $1", paymentID)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg any) (*domain.PaymentData, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := applySchema(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	data, err := scanTransfer(tx.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit read transaction: %w", err)
	}
	return data, nil
}

// ListEvents returns the transfer's event trail ordered by creation time.
func (r *PostgresRepository) ListEvents(ctx context.Context, paymentID uuid.UUID) ([]domain.TransferEvent, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := applySchema(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	var transferID int64
	err = tx.QueryRow(ctx, `SELECT id FROM transfers WHERE payment_id = $1`, paymentID).Scan(&transferID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to resolve transfer: %w", err)
	}

	rows, err := tx.Query(ctx, `
		SELECT status, message, payload, created_at
		FROM transfer_events
		WHERE transfer_id = $1
		ORDER BY created_at, id
	`, transferID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transfer events: %w", err)
	}
	defer rows.Close()

	var events []domain.TransferEvent
	for rows.Next() {
		var (
			ev          domain.TransferEvent
			status      string
			payloadJSON []byte
		)
		if err := rows.Scan(&status, &ev.Message, &payloadJSON, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transfer event: %w", err)
		}
		ev.Status = domain.PaymentState(status)
		if len(payloadJSON) > 0 {
			if err := json.Unmarshal(payloadJSON, &ev.Payload); err != nil {
				return nil, fmt.Errorf("failed to decode event payload: %w", err)
			}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transfer events: %w", err)
	}
	return events, nil
}

func scanTransfer(row pgx.Row) (*domain.PaymentData, error) {
	var (
		data                  domain.PaymentData
		status                string
		amountText            string
		concept               *string
		source                domain.TransferParty
		destination           domain.TransferParty
		metadataJSON          []byte
		connectorResponseJSON []byte
	)
	err := row.Scan(
		&data.PaymentID, &data.OriginID, &status, &amountText, &data.Currency, &concept, &data.Description, &data.ConnectorID,
		&source.Address, &source.AddressType, &source.Owner.PersonIDType, &source.Owner.PersonID, &source.Owner.PersonName,
		&destination.Address, &destination.AddressType, &destination.Owner.PersonIDType, &destination.Owner.PersonID, &destination.Owner.PersonName,
		&metadataJSON, &connectorResponseJSON, &data.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan transfer: %w", err)
	}

	amount, err := decimal.NewFromString(amountText)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stored amount %q: %w", amountText, err)
	}

	data.Status = domain.PaymentState(status)
	data.Source = &source
	data.Destination = &destination
	data.TransferBody = &domain.TransferBody{
		Amount:      amount,
		Currency:    data.Currency,
		Description: data.Description,
		Concept:     concept,
	}
	data.Amount = amount

	data.Metadata = domain.Metadata{}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &data.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode transfer metadata: %w", err)
		}
	}
	if len(connectorResponseJSON) > 0 && string(connectorResponseJSON) != "{}" {
		var connectorResponse map[string]any
		if err := json.Unmarshal(connectorResponseJSON, &connectorResponse); err != nil {
			return nil, fmt.Errorf("failed to decode connector response: %w", err)
		}
		data.Metadata[domain.MetadataConnectorResponse] = connectorResponse
	}
	return &data, nil
}
