package health

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePinger struct {
	err error
}

func (p fakePinger) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", p.err)
}

type noDB struct{}

func (noDB) DB() *sql.DB     { return nil }
func (noDB) Driver() string { return "postgres" }

func TestCheckerRegistry_Status(t *testing.T) {
	tests := []struct {
		name     string
		required error
		optional error
		want     Status
	}{
		{name: "all healthy", want: StatusHealthy},
		{name: "optional down", optional: errors.New("refused"), want: StatusDegraded},
		{name: "required down", required: errors.New("refused"), want: StatusUnhealthy},
		{name: "both down", required: errors.New("refused"), optional: errors.New("refused"), want: StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewCheckerRegistry()
			r.Register(NewStageChecker("auth-filter", func() bool { return tt.required == nil }))
			r.RegisterOptional(NewRedisChecker(fakePinger{err: tt.optional}))

			h := r.Check(context.Background())
			assert.Equal(t, tt.want, h.Status)
			assert.Len(t, h.Checks, 2)
		})
	}
}

func TestSQLChecker_NotConnected(t *testing.T) {
	c := NewSQLChecker(noDB{})
	assert.Equal(t, "postgres", c.Name())
	assert.ErrorIs(t, c.Check(context.Background()), errNotConnected)
}

func TestHandler(t *testing.T) {
	r := NewCheckerRegistry()
	r.Register(NewSQLChecker(noDB{}))

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var h Health
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&h))
	assert.Equal(t, StatusUnhealthy, h.Status)
	assert.Equal(t, StatusUnhealthy, h.Checks["postgres"].Status)
}
