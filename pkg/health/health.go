package health

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"courier/internal/storage"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

const checkTimeout = 5 * time.Second

type Checker interface {
	Check(ctx context.Context) error
	Name() string
}

type Health struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

type CheckResult struct {
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// DegradedError marks a check failure that does not make the process
// unhealthy.
type DegradedError struct {
	Err error
}

func (e *DegradedError) Error() string { return e.Err.Error() }
func (e *DegradedError) Unwrap() error { return e.Err }

func Degraded(err error) error {
	if err == nil {
		return nil
	}
	return &DegradedError{Err: err}
}

type CheckerRegistry struct {
	mu       sync.RWMutex
	checkers []Checker
}

func NewCheckerRegistry() *CheckerRegistry {
	return &CheckerRegistry{
		checkers: make([]Checker, 0),
	}
}

func (r *CheckerRegistry) Register(checker Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers = append(r.checkers, checker)
}

func (r *CheckerRegistry) Check(ctx context.Context) Health {
	r.mu.RLock()
	checkers := append([]Checker(nil), r.checkers...)
	r.mu.RUnlock()

	results := make(map[string]CheckResult)
	allHealthy := true
	anyDegraded := false

	for _, checker := range checkers {
		err := checker.Check(ctx)
		result := CheckResult{
			Timestamp: time.Now(),
		}

		var degraded *DegradedError
		switch {
		case err == nil:
			result.Status = StatusHealthy
		case errors.As(err, &degraded):
			result.Status = StatusDegraded
			result.Message = err.Error()
			anyDegraded = true
		default:
			result.Status = StatusUnhealthy
			result.Message = err.Error()
			allHealthy = false
		}

		results[checker.Name()] = result
	}

	overallStatus := StatusHealthy
	if !allHealthy {
		overallStatus = StatusUnhealthy
	} else if anyDegraded {
		overallStatus = StatusDegraded
	}

	return Health{
		Status:    overallStatus,
		Timestamp: time.Now(),
		Checks:    results,
	}
}

type RedisChecker struct {
	client *redis.Client
}

func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

func (c *RedisChecker) Name() string {
	return "redis"
}

func (c *RedisChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// StorageChecker verifies the queue storage answers.
type StorageChecker struct {
	storage storage.Storage
}

func NewStorageChecker(s storage.Storage) *StorageChecker {
	return &StorageChecker{storage: s}
}

func (c *StorageChecker) Name() string {
	return "storage"
}

func (c *StorageChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if _, err := c.storage.Length(ctx); err != nil {
		return fmt.Errorf("storage unavailable: %w", err)
	}
	return nil
}

// QueueState is the part of the event queue the queue checker reads.
type QueueState interface {
	Len() int
	IsProcessingSuspended() bool
}

type QueueChecker struct {
	queue    QueueState
	maxItems int
}

// NewQueueChecker reports degraded while processing is suspended or the
// queue holds maxItems or more events.
func NewQueueChecker(q QueueState, maxItems int) *QueueChecker {
	return &QueueChecker{queue: q, maxItems: maxItems}
}

func (c *QueueChecker) Name() string {
	return "queue"
}

func (c *QueueChecker) Check(context.Context) error {
	if c.queue.IsProcessingSuspended() {
		return Degraded(errors.New("queue processing is suspended"))
	}
	if c.maxItems > 0 && c.queue.Len() >= c.maxItems {
		return Degraded(fmt.Errorf("queue is full (%d events)", c.queue.Len()))
	}
	return nil
}

// BreakerState is the part of a circuit breaker the breaker checker reads.
type BreakerState interface {
	Name() string
	IsOpen() bool
}

// BreakerChecker reports degraded while the submission breaker is open.
type BreakerChecker struct {
	breaker BreakerState
}

func NewBreakerChecker(b BreakerState) *BreakerChecker {
	return &BreakerChecker{breaker: b}
}

func (c *BreakerChecker) Name() string {
	return "circuit_breaker"
}

func (c *BreakerChecker) Check(context.Context) error {
	if c.breaker.IsOpen() {
		return Degraded(fmt.Errorf("circuit breaker %s is open", c.breaker.Name()))
	}
	return nil
}
