// internal/gateway/proxy.go
package gateway

import (
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"libhub/internal/discovery"
	"libhub/internal/middleware"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Route maps a path prefix to the logical service that owns it.
type Route struct {
	Prefix  string
	Service string
}

// Proxy is the discovery-aware edge: for each inbound request it resolves the
// owning service through the registry, forwards the request through the
// configured policy, and records the resolution and outcome keyed by the
// request's correlation ID. Retry and breaker behavior live entirely in the
// policy round tripper.
type Proxy struct {
	resolver discovery.Resolver
	policy   http.RoundTripper
	routes   []Route
	logger   zerolog.Logger
}

// NewProxy creates a gateway proxy. A nil policy forwards directly through the
// default transport.
func NewProxy(resolver discovery.Resolver, policy http.RoundTripper, routes []Route, logger zerolog.Logger) *Proxy {
	if policy == nil {
		policy = http.DefaultTransport
	}
	return &Proxy{
		resolver: resolver,
		policy:   policy,
		routes:   routes,
		logger:   logger.With().Str("component", "gateway").Logger(),
	}
}

// ServeHTTP resolves and forwards one request.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	route, ok := p.match(r.URL.Path)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "no route for path"})
		return
	}

	log := p.logger.With().
		Str("correlation_id", middleware.CorrelationID(r.Context())).
		Str("service", route.Service).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Logger()

	instance, err := p.resolver.Resolve(r.Context(), route.Service)
	if err != nil {
		log.Error().Err(err).Msg("service resolution failed")
		if errors.Is(err, discovery.ErrServiceUnavailable) {
			writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "service unavailable"})
		} else {
			writeJSON(w, http.StatusBadGateway, errorBody{Error: "service unavailable"})
		}
		return
	}

	target, err := url.Parse(instance.URL())
	if err != nil {
		log.Error().Err(err).Str("target", instance.URL()).Msg("resolved address is not a valid URL")
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "service unavailable"})
		return
	}
	log.Info().Str("target", instance.URL()).Str("service_id", instance.ServiceID).Msg("service resolved")

	reverseProxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			// A generated correlation ID lives only in the context, not the
			// inbound headers; the forwarded request must carry it either way.
			if correlationID := middleware.CorrelationID(r.Context()); correlationID != "" {
				pr.Out.Header.Set(middleware.CorrelationHeader, correlationID)
			}
		},
		Transport: p.policy,
		ErrorHandler: func(w http.ResponseWriter, _ *http.Request, err error) {
			log.Error().Err(err).Str("target", instance.URL()).Msg("downstream call failed")
			writeJSON(w, http.StatusBadGateway, errorBody{Error: "downstream call failed"})
		},
	}

	start := time.Now()
	ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
	reverseProxy.ServeHTTP(ww, r)

	log.Info().
		Str("target", instance.URL()).
		Int("status", ww.Status()).
		Dur("duration", time.Since(start)).
		Msg("request forwarded")
}

func (p *Proxy) match(path string) (Route, bool) {
	for _, route := range p.routes {
		if strings.HasPrefix(path, route.Prefix) {
			return route, true
		}
	}
	return Route{}, false
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
