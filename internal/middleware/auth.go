package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/storefront-state/internal/auth"
)

var authRejections = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storefront_auth_rejections_total",
		Help: "Requests rejected for missing or invalid frontend credentials",
	},
	[]string{"area", "reason"},
)

// Auth guards the storefront API with the frontend credentials checked
// by authenticator. Health paths, CORS preflights and WebSocket upgrades
// pass through: browsers cannot attach credentials to the latter two.
func Auth(authenticator auth.Authenticator, logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isHealthPath(r.URL.Path) || r.Method == http.MethodOptions || isWebSocketUpgrade(r) {
				next.ServeHTTP(w, r)
				return
			}

			info, err := authenticator.Authenticate(r)
			if err != nil {
				reason := rejectionReason(err)
				area := AreaOf(routeTemplate(r))
				authRejections.WithLabelValues(area, reason).Inc()
				logger.Warn("frontend credentials rejected",
					zap.String("path", r.URL.Path),
					zap.String("area", area),
					zap.String("reason", reason),
					zap.String("client_id", r.Header.Get(ClientIDHeader)),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Error(err),
				)
				writeAuthError(w, err)
				return
			}

			logger.Debug("frontend authenticated",
				zap.String("subject", info.Subject),
				zap.String("method", string(info.Method)),
				zap.String("path", r.URL.Path),
			)
			next.ServeHTTP(w, r.WithContext(auth.WithAuthInfo(r.Context(), info)))
		})
	}
}

// isHealthPath matches health paths and their sub-paths, so /health/live
// is public but /healthz is not.
func isHealthPath(path string) bool {
	if healthPaths[path] {
		return true
	}
	for p := range healthPaths {
		if strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		return "missing"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, auth.ErrInvalidAPIKey):
		return "invalid_api_key"
	default:
		return "error"
	}
}

// errorResponse is the JSON body of middleware-generated errors.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// writeAuthError answers 401 with a challenge matching err.
func writeAuthError(w http.ResponseWriter, err error) {
	switch rejectionReason(err) {
	case "missing":
		w.Header().Set("WWW-Authenticate", `Basic realm="storefront", API-Key`)
	case "invalid_credentials":
		w.Header().Set("WWW-Authenticate", `Basic realm="storefront"`)
	case "invalid_api_key":
		w.Header().Set("WWW-Authenticate", "API-Key")
	}
	writeJSONError(w, http.StatusUnauthorized, err.Error())
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(errorResponse{Code: code, Message: message})
}
