/**
 * @description
 * This file contains the HTTP handlers for the payment-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the appropriate
 * methods on the orchestration engine, and writing the HTTP response. They act as
 * the bridge between the web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 * - pkg/bdcclient: For the transport error taxonomy.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pagoflex/payment-service/internal/app"
	"github.com/pagoflex/payment-service/internal/domain"
	"github.com/pagoflex/payment-service/internal/store"
	"github.com/pagoflex/payment-service/pkg/bdcclient"
)

// TransferHandlers holds the orchestration engine that handlers will use.
type TransferHandlers struct {
	service *app.Service
}

// NewTransferHandlers creates a new instance of TransferHandlers.
func NewTransferHandlers(service *app.Service) *TransferHandlers {
	return &TransferHandlers{service: service}
}

// RegisterTransferHandler handles requests to register and execute a transfer.
func (h *TransferHandlers) RegisterTransferHandler(w http.ResponseWriter, r *http.Request) {
	key := clientKey(r)
	if retryAfter, err := h.service.ThrottleRegistration(r.Context(), key); err != nil {
		if errors.Is(err, app.ErrRateLimited) {
			log.Printf("level=warn component=api endpoint=register_transfer outcome=rate_limited client=%s retry_after=%d", key, retryAfter)
			if retryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			}
			h.writeError(w, http.StatusTooManyRequests, "Too many transfer registrations, slow down")
			return
		}
		log.Printf("level=error component=api endpoint=register_transfer outcome=failed client=%s err=%v", key, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	var req domain.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=register_transfer outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.service.RegisterTransfer(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, "register_transfer", err)
		return
	}

	log.Printf("level=info component=api endpoint=register_transfer outcome=%s payment_id=%s origin_id=%s", resp.Status, resp.PaymentID, resp.OriginID)
	h.writeJSON(w, http.StatusCreated, resp)
}

// GetTransferHandler handles requests to fetch a transfer by its origin id.
func (h *TransferHandlers) GetTransferHandler(w http.ResponseWriter, r *http.Request) {
	originID := strings.TrimSpace(chi.URLParam(r, "originID"))
	if originID == "" {
		h.writeError(w, http.StatusBadRequest, "Origin id is required")
		return
	}

	data, err := h.service.GetTransferByOriginID(r.Context(), originID)
	if err != nil {
		h.respondServiceError(w, "get_transfer", err)
		return
	}

	h.writeJSON(w, http.StatusOK, data)
}

// GetTransferEventsHandler handles requests for a transfer's state-change trail.
func (h *TransferHandlers) GetTransferEventsHandler(w http.ResponseWriter, r *http.Request) {
	originID := strings.TrimSpace(chi.URLParam(r, "originID"))
	if originID == "" {
		h.writeError(w, http.StatusBadRequest, "Origin id is required")
		return
	}

	events, err := h.service.GetTransferEvents(r.Context(), originID)
	if err != nil {
		h.respondServiceError(w, "get_transfer_events", err)
		return
	}
	if events == nil {
		events = []domain.TransferEvent{}
	}

	h.writeJSON(w, http.StatusOK, events)
}

// respondServiceError maps engine errors onto HTTP statuses: validation
// errors are the caller's fault, missing aggregates are 404, provider
// transport failures surface as a bad gateway, everything else is a 500.
func (h *TransferHandlers) respondServiceError(w http.ResponseWriter, endpoint string, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		log.Printf("level=warn component=api endpoint=%s outcome=reject reason=validation err=%v", endpoint, err)
		h.writeError(w, http.StatusBadRequest, validationErr.Error())
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "Transfer not found")
		return
	}
	var transportErr *bdcclient.TransportError
	if errors.As(err, &transportErr) {
		log.Printf("level=error component=api endpoint=%s outcome=failed reason=provider_transport err=%v", endpoint, err)
		h.writeError(w, http.StatusBadGateway, "Banking provider is unreachable")
		return
	}
	log.Printf("level=error component=api endpoint=%s outcome=failed err=%v", endpoint, err)
	h.writeError(w, http.StatusInternalServerError, "Internal server error")
}

// clientKey identifies the caller for rate limiting. Behind a proxy the
// first X-Forwarded-For hop wins, otherwise the socket peer address.
func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, ok := strings.Cut(fwd, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeJSON is a helper for writing JSON responses.
func (h *TransferHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *TransferHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
