// internal/discovery/registrar.go
package discovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	consul "github.com/hashicorp/consul/api"
	"github.com/rs/zerolog"
)

// Registration describes this process's advertisement to the registry.
type Registration struct {
	Name string
	Host string
	Port int

	// HealthPath defaults to /health; the registry polls it over HTTP.
	HealthPath      string
	CheckInterval   time.Duration
	CheckTimeout    time.Duration
	DeregisterAfter time.Duration
}

func (r Registration) withDefaults() Registration {
	if r.HealthPath == "" {
		r.HealthPath = "/health"
	}
	if r.CheckInterval == 0 {
		r.CheckInterval = 10 * time.Second
	}
	if r.CheckTimeout == 0 {
		r.CheckTimeout = 5 * time.Second
	}
	if r.DeregisterAfter == 0 {
		r.DeregisterAfter = time.Minute
	}
	return r
}

// The registry is a non-critical dependency: registration retries on this
// fixed schedule and then gives up, leaving the process serving unregistered.
var defaultRetrySchedule = []time.Duration{
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
	15 * time.Second,
	30 * time.Second,
}

// Registrar advertises the process as a healthy instance with consul without
// ever blocking service startup or readiness.
type Registrar struct {
	agent         *consul.Agent
	logger        zerolog.Logger
	retrySchedule []time.Duration

	mu        sync.Mutex
	serviceID string
}

// NewRegistrar creates a registrar backed by the given consul client.
func NewRegistrar(client *consul.Client, logger zerolog.Logger) *Registrar {
	return &Registrar{
		agent:         client.Agent(),
		logger:        logger.With().Str("component", "registrar").Logger(),
		retrySchedule: defaultRetrySchedule,
	}
}

// ServiceID returns the unique instance ID advertised to the registry, or ""
// before Start.
func (r *Registrar) ServiceID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.serviceID
}

// Start launches registration on a detached goroutine and returns immediately.
// The terminal outcome is exposed only through logs.
func (r *Registrar) Start(ctx context.Context, reg Registration) {
	reg = reg.withDefaults()
	serviceID := fmt.Sprintf("%s-%s", reg.Name, uuid.NewString())
	r.mu.Lock()
	r.serviceID = serviceID
	r.mu.Unlock()
	go r.registerWithRetry(ctx, reg, serviceID)
}

func (r *Registrar) registerWithRetry(ctx context.Context, reg Registration, serviceID string) {
	registration := &consul.AgentServiceRegistration{
		ID:      serviceID,
		Name:    reg.Name,
		Address: reg.Host,
		Port:    reg.Port,
		Check: &consul.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d%s", reg.Host, reg.Port, reg.HealthPath),
			Interval:                       reg.CheckInterval.String(),
			Timeout:                        reg.CheckTimeout.String(),
			DeregisterCriticalServiceAfter: reg.DeregisterAfter.String(),
		},
	}

	attempts := len(r.retrySchedule)
	for attempt := 0; attempt < attempts; attempt++ {
		err := r.agent.ServiceRegister(registration)
		if err == nil {
			r.logger.Info().
				Str("service", reg.Name).
				Str("service_id", serviceID).
				Str("address", fmt.Sprintf("%s:%d", reg.Host, reg.Port)).
				Int("attempt", attempt+1).
				Msg("registered with service registry")
			return
		}

		if attempt == attempts-1 {
			r.logger.Error().
				Err(err).
				Str("service", reg.Name).
				Str("service_id", serviceID).
				Int("attempts", attempts).
				Msg("registration failed, continuing unregistered")
			return
		}

		delay := r.retrySchedule[attempt]
		r.logger.Warn().
			Err(err).
			Str("service", reg.Name).
			Int("attempt", attempt+1).
			Dur("retry_in", delay).
			Msg("registration attempt failed")

		select {
		case <-ctx.Done():
			r.logger.Info().Str("service", reg.Name).Msg("registration abandoned")
			return
		case <-time.After(delay):
		}
	}
}

// Deregister removes the advertisement explicitly. Callers that prefer passive
// expiry through failed health checks can simply skip it.
func (r *Registrar) Deregister() error {
	serviceID := r.ServiceID()
	if serviceID == "" {
		return nil
	}
	if err := r.agent.ServiceDeregister(serviceID); err != nil {
		return fmt.Errorf("failed to deregister service %s: %w", serviceID, err)
	}
	r.logger.Info().Str("service_id", serviceID).Msg("deregistered from service registry")
	return nil
}
