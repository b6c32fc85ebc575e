package health

import "context"

// DBPinger checks storage availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// ProviderChecker checks an upstream model provider.
type ProviderChecker interface {
	HealthCheck(ctx context.Context) error
}
