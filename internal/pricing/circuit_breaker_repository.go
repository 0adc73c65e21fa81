package pricing

import (
	"context"

	"tollgrid/pkg/circuitbreaker"
)

// CircuitBreakerFareRepository guards fare lookups behind a breaker so a sick
// database fails price requests fast instead of piling up bus handlers.
type CircuitBreakerFareRepository struct {
	inner   FareRepository
	breaker *circuitbreaker.Wrapper
}

func NewCircuitBreakerFareRepository(inner FareRepository, cfg circuitbreaker.Config) *CircuitBreakerFareRepository {
	return &CircuitBreakerFareRepository{
		inner:   inner,
		breaker: circuitbreaker.NewWrapper(cfg),
	}
}

func (r *CircuitBreakerFareRepository) Create(ctx context.Context, fare Fare) (Fare, error) {
	result, err := r.breaker.ExecuteWithContext(ctx, func() (interface{}, error) {
		return r.inner.Create(ctx, fare)
	})
	if err != nil {
		return Fare{}, err
	}
	return result.(Fare), nil
}

func (r *CircuitBreakerFareRepository) List(ctx context.Context) ([]Fare, error) {
	result, err := r.breaker.ExecuteWithContext(ctx, func() (interface{}, error) {
		return r.inner.List(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.([]Fare), nil
}

type fareLookup struct {
	amount int
	found  bool
}

func (r *CircuitBreakerFareRepository) Lookup(ctx context.Context, entryTollboothID, exitTollboothID string) (int, bool, error) {
	result, err := r.breaker.ExecuteWithContext(ctx, func() (interface{}, error) {
		amount, found, err := r.inner.Lookup(ctx, entryTollboothID, exitTollboothID)
		if err != nil {
			return nil, err
		}
		return fareLookup{amount: amount, found: found}, nil
	})
	if err != nil {
		return 0, false, err
	}
	lookup := result.(fareLookup)
	return lookup.amount, lookup.found, nil
}
