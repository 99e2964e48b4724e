package health

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

const checkTimeout = 5 * time.Second

var errNotConnected = errors.New("not connected")

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

type registered struct {
	checker  Checker
	optional bool
}

type CheckerRegistry struct {
	checkers []registered
	now      func() time.Time
}

func NewCheckerRegistry() *CheckerRegistry {
	return &CheckerRegistry{
		checkers: make([]registered, 0),
		now:      time.Now,
	}
}

func (r *CheckerRegistry) Register(checker Checker) {
	r.checkers = append(r.checkers, registered{checker: checker})
}

// RegisterOptional adds a checker whose failure only degrades the service.
func (r *CheckerRegistry) RegisterOptional(checker Checker) {
	r.checkers = append(r.checkers, registered{checker: checker, optional: true})
}

func (r *CheckerRegistry) Check(ctx context.Context) Health {
	results := make(map[string]CheckResult, len(r.checkers))
	allHealthy := true
	anyDegraded := false

	for _, c := range r.checkers {
		err := c.checker.Check(ctx)
		result := CheckResult{
			Status:    StatusHealthy,
			Timestamp: r.now(),
		}

		if err != nil {
			result.Message = err.Error()
			if c.optional {
				result.Status = StatusDegraded
				anyDegraded = true
			} else {
				result.Status = StatusUnhealthy
				allHealthy = false
			}
		}

		results[c.checker.Name()] = result
	}

	overallStatus := StatusHealthy
	if !allHealthy {
		overallStatus = StatusUnhealthy
	} else if anyDegraded {
		overallStatus = StatusDegraded
	}

	return Health{
		Status:    overallStatus,
		Timestamp: r.now(),
		Checks:    results,
	}
}

// Handler serves the aggregated report; only an unhealthy service answers
// 503.
func (r *CheckerRegistry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		h := r.Check(req.Context())
		statusCode := http.StatusOK
		if h.Status == StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		_ = json.NewEncoder(w).Encode(h)
	})
}

// SQLSource hands out the live handle, which may change after a failover.
type SQLSource interface {
	DB() *sql.DB
	Driver() string
}

type SQLChecker struct {
	source SQLSource
}

func NewSQLChecker(source SQLSource) *SQLChecker {
	return &SQLChecker{source: source}
}

func (c *SQLChecker) Name() string {
	return c.source.Driver()
}

func (c *SQLChecker) Check(ctx context.Context) error {
	db := c.source.DB()
	if db == nil {
		return fmt.Errorf("%s: %w", c.Name(), errNotConnected)
	}

	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("%s ping failed: %w", c.Name(), err)
	}
	return nil
}

type redisPinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

type RedisChecker struct {
	client redisPinger
}

func NewRedisChecker(client redisPinger) *RedisChecker {
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

// StageChecker reports unhealthy once the named stage has stopped.
type StageChecker struct {
	name    string
	running func() bool
}

func NewStageChecker(name string, running func() bool) *StageChecker {
	return &StageChecker{name: name, running: running}
}

func (c *StageChecker) Name() string {
	return "stage:" + c.name
}

func (c *StageChecker) Check(context.Context) error {
	if !c.running() {
		return fmt.Errorf("stage %s is not running", c.name)
	}
	return nil
}
