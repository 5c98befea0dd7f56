package adapters

import (
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const (
	breakerFailureThreshold = 5
	breakerOpenTimeout      = 30 * time.Second
)

// breakerSet keeps one circuit breaker per endpoint so a datasource that keeps
// failing to connect fails fast instead of hammering the server.
type breakerSet struct {
	mu     sync.Mutex
	m      map[string]*gobreaker.CircuitBreaker
	logger *zap.Logger
}

func newBreakerSet(logger *zap.Logger) *breakerSet {
	return &breakerSet{m: make(map[string]*gobreaker.CircuitBreaker), logger: logger}
}

func (b *breakerSet) get(ep Endpoint) *gobreaker.CircuitBreaker {
	key := fmt.Sprintf("%s://%s:%d/%s", ep.Vendor, ep.Host, ep.Port, ep.Database)

	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.m[key]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        key,
		MaxRequests: 1,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn("Connection breaker state changed",
				zap.String("endpoint", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	b.m[key] = cb
	return cb
}

// guard runs dial through the endpoint's breaker. A nil set runs dial directly.
func (b *breakerSet) guard(ep Endpoint, dial func() error) error {
	if b == nil {
		return dial()
	}
	_, err := b.get(ep).Execute(func() (interface{}, error) {
		return nil, dial()
	})
	return err
}
