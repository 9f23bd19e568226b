/**
 * @description
 * This file sets up the HTTP router for the payment-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for database schema routing.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pagoflex/payment-service/internal/store"
)

// TransferRoutes creates and returns a new router for the payment service.
// A non-empty schema is attached to every request context so the Postgres
// repository routes statements to that schema.
func TransferRoutes(h *TransferHandlers, schema string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	if schema != "" {
		r.Use(schemaMiddleware(schema))
	}

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Post("/transfers", h.RegisterTransferHandler)
	r.Get("/transfers/{originID}", h.GetTransferHandler)
	r.Get("/transfers/{originID}/events", h.GetTransferEventsHandler)

	return r
}

func schemaMiddleware(schema string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(store.WithSchema(r.Context(), schema)))
		})
	}
}
