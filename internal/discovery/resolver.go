// internal/discovery/resolver.go
package discovery

import (
	"context"
	"errors"
	"fmt"

	consul "github.com/hashicorp/consul/api"
	"github.com/rs/zerolog"
)

// ErrServiceUnavailable is returned when the registry has no healthy instance
// of the requested service.
var ErrServiceUnavailable = errors.New("no healthy service instance available")

// Instance is one healthy service endpoint returned by the registry. Instances
// are ephemeral: they are produced fresh per resolution and never cached.
type Instance struct {
	ServiceID string
	Name      string
	Scheme    string
	Host      string
	Port      int
}

// URL returns the instance's base URL.
func (i Instance) URL() string {
	return fmt.Sprintf("%s://%s:%d", i.Scheme, i.Host, i.Port)
}

// Resolver translates a logical service name into one currently healthy
// network address. Implementations must fail fast rather than return stale or
// unhealthy addresses.
type Resolver interface {
	Resolve(ctx context.Context, serviceName string) (Instance, error)
}

// ConsulResolver resolves services against a consul agent. Every call is a
// fresh registry query filtered to passing health checks; any caching policy
// belongs in a decorator, not here.
type ConsulResolver struct {
	health *consul.Health
	logger zerolog.Logger
}

// NewConsulResolver creates a resolver backed by the given consul client.
func NewConsulResolver(client *consul.Client, logger zerolog.Logger) *ConsulResolver {
	return &ConsulResolver{
		health: client.Health(),
		logger: logger.With().Str("component", "discovery").Logger(),
	}
}

// Resolve queries the registry for healthy instances of serviceName and picks
// the first one in the registry's returned order.
func (r *ConsulResolver) Resolve(ctx context.Context, serviceName string) (Instance, error) {
	opts := (&consul.QueryOptions{}).WithContext(ctx)
	entries, _, err := r.health.Service(serviceName, "", true, opts)
	if err != nil {
		return Instance{}, fmt.Errorf("failed to query registry for service %q: %w", serviceName, err)
	}
	if len(entries) == 0 {
		r.logger.Error().Str("service", serviceName).Msg("no healthy instances registered")
		return Instance{}, fmt.Errorf("%w: %s", ErrServiceUnavailable, serviceName)
	}

	entry := entries[0]
	host := entry.Service.Address
	if host == "" {
		host = entry.Node.Address
	}
	instance := Instance{
		ServiceID: entry.Service.ID,
		Name:      serviceName,
		Scheme:    "http",
		Host:      host,
		Port:      entry.Service.Port,
	}

	r.logger.Debug().
		Str("service", serviceName).
		Str("service_id", instance.ServiceID).
		Str("address", instance.URL()).
		Int("healthy_instances", len(entries)).
		Msg("service resolved")

	return instance, nil
}

// StaticResolver serves fixed addresses from a map. It exists for tests and
// for deployments that bypass the registry.
type StaticResolver map[string]Instance

// Resolve returns the configured instance for name.
func (s StaticResolver) Resolve(_ context.Context, serviceName string) (Instance, error) {
	instance, ok := s[serviceName]
	if !ok {
		return Instance{}, fmt.Errorf("%w: %s", ErrServiceUnavailable, serviceName)
	}
	return instance, nil
}
