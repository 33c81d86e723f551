package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ClientIDKey is the context key for the browser client identifier.
const ClientIDKey contextKey = "client_id"

// ClientIDHeader carries the browser client identifier.
const ClientIDHeader = "X-Client-ID"

// ClientIDQueryParam is read when the header cannot be set, as on
// WebSocket upgrades from a browser.
const ClientIDQueryParam = "client_id"

// Sources recorded by ClientID.
const (
	ClientIDFromHeader = "header"
	ClientIDFromQuery  = "query"
	ClientIDIssued     = "issued"
	ClientIDRejected   = "rejected"
)

var clientIDResolutions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storefront_client_id_resolutions_total",
		Help: "Client identifiers resolved per request, by source",
	},
	[]string{"source"},
)

// ClientID resolves the browser client identifier for shopper routes.
// The header wins over the query parameter; a request carrying neither
// is issued a fresh identifier. validate rejects malformed identifiers
// with 400. The resolved identifier is echoed in the response header so
// the browser can keep it.
func ClientID(validate func(string) error) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID, source := r.Header.Get(ClientIDHeader), ClientIDFromHeader
			if clientID == "" {
				clientID, source = r.URL.Query().Get(ClientIDQueryParam), ClientIDFromQuery
			}
			if clientID == "" {
				clientID, source = uuid.New().String(), ClientIDIssued
			}

			if validate != nil {
				if err := validate(clientID); err != nil {
					clientIDResolutions.WithLabelValues(ClientIDRejected).Inc()
					writeJSONError(w, http.StatusBadRequest, err.Error())
					return
				}
			}
			clientIDResolutions.WithLabelValues(source).Inc()

			w.Header().Set(ClientIDHeader, clientID)
			ctx := context.WithValue(r.Context(), ClientIDKey, clientID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClientID returns the client identifier stored by ClientID, or "".
func GetClientID(ctx context.Context) string {
	if id, ok := ctx.Value(ClientIDKey).(string); ok {
		return id
	}
	return ""
}
