package errors

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithDetailDoesNotMutateSentinel(t *testing.T) {
	first := ErrNotFound.WithDetail("resource", "trip")
	second := ErrNotFound.WithDetail("resource", "debt")

	assert.Equal(t, "trip", first.Details["resource"])
	assert.Equal(t, "debt", second.Details["resource"])
	assert.Empty(t, ErrNotFound.Details)
}

func TestWithCauseDoesNotShareDetails(t *testing.T) {
	base := ErrValidation.WithDetail("field", "amount_cents")

	derived := base.WithCause(fmt.Errorf("boom"))
	derived.Details["field"] = "currency"

	assert.Equal(t, "amount_cents", base.Details["field"])
}

func TestConcurrentDerivation(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			err := ErrNotFound.
				WithDetail("resource", "trip").
				WithDetail("id", n)
			assert.Equal(t, n, err.Details["id"])
		}(i)
	}
	wg.Wait()

	require.Empty(t, ErrNotFound.Details)
}
