// internal/discovery/resolver_test.go
package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	consul "github.com/hashicorp/consul/api"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newConsulTestClient points a consul client at a fake registry endpoint.
func newConsulTestClient(t *testing.T, handler http.HandlerFunc) *consul.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	config := consul.DefaultConfig()
	config.Address = strings.TrimPrefix(server.URL, "http://")
	client, err := consul.NewClient(config)
	require.NoError(t, err)
	return client
}

func healthResponse(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Consul-Index", "1")
		w.Header().Set("X-Consul-KnownLeader", "true")
		w.Header().Set("X-Consul-LastContact", "0")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func TestConsulResolverPicksFirstHealthyInstance(t *testing.T) {
	var requestedPath string
	var passingOnly string
	client := newConsulTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requestedPath = r.URL.Path
		passingOnly = r.URL.Query().Get("passing")
		healthResponse(`[
			{
				"Node": {"Node": "node-1", "Address": "10.0.0.1"},
				"Service": {"ID": "catalog-service-abc", "Service": "catalog-service", "Address": "10.0.0.5", "Port": 8081},
				"Checks": [{"Status": "passing"}]
			},
			{
				"Node": {"Node": "node-2", "Address": "10.0.0.2"},
				"Service": {"ID": "catalog-service-def", "Service": "catalog-service", "Address": "10.0.0.6", "Port": 8081},
				"Checks": [{"Status": "passing"}]
			}
		]`)(w, r)
	})

	resolver := NewConsulResolver(client, zerolog.Nop())
	instance, err := resolver.Resolve(context.Background(), "catalog-service")
	require.NoError(t, err)

	assert.Equal(t, "/v1/health/service/catalog-service", requestedPath)
	assert.Equal(t, "1", passingOnly)
	assert.Equal(t, "catalog-service-abc", instance.ServiceID)
	assert.Equal(t, "http://10.0.0.5:8081", instance.URL())
}

func TestConsulResolverFallsBackToNodeAddress(t *testing.T) {
	client := newConsulTestClient(t, healthResponse(`[
		{
			"Node": {"Node": "node-1", "Address": "10.0.0.1"},
			"Service": {"ID": "catalog-service-abc", "Service": "catalog-service", "Address": "", "Port": 8081},
			"Checks": [{"Status": "passing"}]
		}
	]`))

	resolver := NewConsulResolver(client, zerolog.Nop())
	instance, err := resolver.Resolve(context.Background(), "catalog-service")
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.1:8081", instance.URL())
}

func TestConsulResolverFailsFastWithoutHealthyInstances(t *testing.T) {
	client := newConsulTestClient(t, healthResponse(`[]`))

	resolver := NewConsulResolver(client, zerolog.Nop())
	_, err := resolver.Resolve(context.Background(), "catalog-service")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServiceUnavailable)
	assert.ErrorContains(t, err, "catalog-service")
}

func TestConsulResolverWrapsRegistryFailure(t *testing.T) {
	client := newConsulTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	resolver := NewConsulResolver(client, zerolog.Nop())
	_, err := resolver.Resolve(context.Background(), "catalog-service")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrServiceUnavailable)
}

func TestStaticResolver(t *testing.T) {
	resolver := StaticResolver{
		"loans-service": {Name: "loans-service", Scheme: "http", Host: "localhost", Port: 8082},
	}

	instance, err := resolver.Resolve(context.Background(), "loans-service")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8082", instance.URL())

	_, err = resolver.Resolve(context.Background(), "unknown-service")
	assert.ErrorIs(t, err, ErrServiceUnavailable)
}
