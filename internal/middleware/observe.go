package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Areas group routes of the storefront API for logs and metrics.
const (
	AreaCatalog   = "catalog"
	AreaCart      = "cart"
	AreaWishlist  = "wishlist"
	AreaSession   = "session"
	AreaCheckout  = "checkout"
	AreaRealtime  = "realtime"
	AreaConfig    = "config"
	AreaHealth    = "health"
	AreaOther     = "other"
	AreaUnmatched = "unmatched"
)

// healthPaths are served outside the API for orchestration and scraping.
var healthPaths = map[string]bool{
	"/health":  true,
	"/ready":   true,
	"/metrics": true,
}

var areaBySegment = map[string]string{
	"products":         AreaCatalog,
	"categories":       AreaCatalog,
	"search":           AreaCatalog,
	"cart":             AreaCart,
	"wishlist":         AreaWishlist,
	"session":          AreaSession,
	"checkout":         AreaCheckout,
	"ws":               AreaRealtime,
	"recaptcha-config": AreaConfig,
}

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_http_requests_total",
			Help: "HTTP requests served, by route and storefront area",
		},
		[]string{"method", "route", "area", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_http_request_duration_seconds",
			Help:    "HTTP request latency, by route and storefront area",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "area"},
	)
)

// AreaOf maps a route template to its storefront area.
func AreaOf(route string) string {
	if route == "" {
		return AreaUnmatched
	}
	if healthPaths[route] {
		return AreaHealth
	}
	rest, ok := strings.CutPrefix(route, APIPrefix+"/")
	if !ok {
		return AreaOther
	}
	segment, _, _ := strings.Cut(rest, "/")
	if area, ok := areaBySegment[segment]; ok {
		return area
	}
	return AreaOther
}

// routeTemplate returns the matched mux route template, or "" outside a
// matched route. Raw paths are never used as labels since they embed
// product ids and search terms.
func routeTemplate(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return ""
	}
	tpl, err := route.GetPathTemplate()
	if err != nil {
		return ""
	}
	return tpl
}

// Metrics records request counts and latency per route and area.
func Metrics() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newResponseWriter(w)

			next.ServeHTTP(rw, r)

			route := routeTemplate(r)
			area := AreaOf(route)
			if route == "" {
				route = AreaUnmatched
			}
			httpRequestsTotal.WithLabelValues(r.Method, route, area, strconv.Itoa(rw.statusCode)).Inc()
			httpRequestDuration.WithLabelValues(r.Method, route, area).Observe(time.Since(start).Seconds())
		})
	}
}

// Logging writes one entry per request. Shopper requests carry the
// client id resolved by ClientID, read back from the response header.
// Server errors log at error level and health checks at debug level.
func Logging(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newResponseWriter(w)

			next.ServeHTTP(rw, r)

			route := routeTemplate(r)
			area := AreaOf(route)
			clientID := rw.Header().Get(ClientIDHeader)
			if clientID == "" {
				clientID = r.Header.Get(ClientIDHeader)
			}

			level := zapcore.InfoLevel
			switch {
			case rw.statusCode >= http.StatusInternalServerError:
				level = zapcore.ErrorLevel
			case area == AreaHealth:
				level = zapcore.DebugLevel
			}

			logger.Log(level, "request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("route", route),
				zap.String("area", area),
				zap.Int("status", rw.statusCode),
				zap.Duration("duration", time.Since(start)),
				zap.String("client_id", clientID),
				zap.String("request_id", getRequestID(r)),
				zap.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}
