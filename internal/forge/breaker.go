package forge

import (
	"time"

	"github.com/sony/gobreaker"

	"git.home.luguber.info/inful/docgate/internal/foundation/errors"
)

const (
	breakerFailures = 5
	breakerCooldown = 30 * time.Second
)

// newBreaker trips after consecutive transport or server failures. Client
// errors such as bad credentials or unknown repositories say nothing about
// forge health and do not count.
func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			switch errors.GetCategory(err) {
			case errors.CategoryAuth, errors.CategoryNotFound, errors.CategoryValidation:
				return true
			default:
				return false
			}
		},
	})
}
