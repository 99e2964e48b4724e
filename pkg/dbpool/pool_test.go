package dbpool

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filterchain/internal/config"
	"filterchain/internal/logger"
)

// fakeDriver answers pings for every dsn not marked down.
type fakeDriver struct {
	mu   sync.Mutex
	down map[string]bool
}

func (d *fakeDriver) setDown(dsn string, down bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.down[dsn] = down
}

func (d *fakeDriver) isDown(dsn string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.down[dsn]
}

func (d *fakeDriver) Open(name string) (driver.Conn, error) {
	if d.isDown(name) {
		return nil, errors.New("connection refused")
	}
	return &fakeConn{driver: d, dsn: name}, nil
}

type fakeConn struct {
	driver *fakeDriver
	dsn    string
}

func (c *fakeConn) Ping(context.Context) error {
	if c.driver.isDown(c.dsn) {
		return driver.ErrBadConn
	}
	return nil
}

func (c *fakeConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not supported") }
func (c *fakeConn) Close() error                        { return nil }
func (c *fakeConn) Begin() (driver.Tx, error)           { return nil, errors.New("not supported") }

var (
	registerOnce sync.Once
	testDriver   = &fakeDriver{down: map[string]bool{}}
)

func fakeOpener() Opener {
	registerOnce.Do(func() { sql.Register("dbpool-fake", testDriver) })
	return func(_, dsn string) (*sql.DB, error) {
		return sql.Open("dbpool-fake", dsn)
	}
}

func testConfig(urls ...string) config.DatabaseConfig {
	cfg := config.DatabaseConfig{
		Driver: "postgres",
		Pool:   config.PoolConfig{ReconnectInterval: 5 * time.Millisecond},
	}
	for _, u := range urls {
		cfg.SQL = append(cfg.SQL, config.SQLConfig{URL: u})
	}
	return cfg
}

func TestPool_ConnectSkipsDeadCandidates(t *testing.T) {
	testDriver.setDown("postgres://a/db", true)
	defer testDriver.setDown("postgres://a/db", false)

	p, err := New(testConfig("postgres://a/db", "postgres://b/db"), logger.NopLogger(), WithOpener(fakeOpener()))
	require.NoError(t, err)
	require.NoError(t, p.Connect(context.Background()))
	defer p.Close()

	require.NotNil(t, p.DB())
	assert.Equal(t, 1, p.active)
}

func TestPool_ConnectFailsWhenAllDown(t *testing.T) {
	testDriver.setDown("postgres://c/db", true)
	defer testDriver.setDown("postgres://c/db", false)

	p, err := New(testConfig("postgres://c/db"), logger.NopLogger(), WithOpener(fakeOpener()))
	require.NoError(t, err)

	err = p.Connect(context.Background())
	assert.ErrorIs(t, err, ErrNoDatabase)
	assert.Nil(t, p.DB())
}

func TestPool_FailsOverWhenMarkedBroken(t *testing.T) {
	p, err := New(testConfig("postgres://d/db", "postgres://e/db"), logger.NopLogger(), WithOpener(fakeOpener()))
	require.NoError(t, err)
	require.NoError(t, p.Connect(context.Background()))
	defer p.Close()
	first := p.DB()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = p.Run(ctx)
		close(done)
	}()

	testDriver.setDown("postgres://d/db", true)
	defer testDriver.setDown("postgres://d/db", false)
	p.MarkBroken(errors.New("query failed"))

	assert.Eventually(t, func() bool { return p.DB() != first }, time.Second, time.Millisecond)
	p.mu.Lock()
	assert.Equal(t, 1, p.active)
	p.mu.Unlock()

	cancel()
	<-done
}

func TestPool_NoCandidates(t *testing.T) {
	_, err := New(config.DatabaseConfig{Driver: "postgres"}, logger.NopLogger())
	assert.ErrorIs(t, err, ErrNoDatabase)
}

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name   string
		driver string
		cfg    config.SQLConfig
		want   string
	}{
		{
			name:   "postgres url keeps credentials",
			driver: "postgres",
			cfg:    config.SQLConfig{URL: "postgres://app:secret@db:5432/filter?sslmode=disable"},
			want:   "postgres://app:secret@db:5432/filter?sslmode=disable",
		},
		{
			name:   "postgres url credentials overridden",
			driver: "postgres",
			cfg:    config.SQLConfig{URL: "postgres://db:5432/filter", User: "svc", Password: "pw"},
			want:   "postgres://svc:pw@db:5432/filter",
		},
		{
			name:   "postgres key value",
			driver: "postgres",
			cfg:    config.SQLConfig{URL: "host=db dbname=filter", User: "svc"},
			want:   "host=db dbname=filter user=svc",
		},
		{
			name:   "mysql",
			driver: "mysql",
			cfg:    config.SQLConfig{URL: "tcp(db:3306)/filter", User: "svc", Password: "pw"},
			want:   "svc:pw@tcp(db:3306)/filter?parseTime=true",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildDSN(tt.driver, tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := BuildDSN("oracle", config.SQLConfig{URL: "x"})
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	q := "SELECT id FROM customers WHERE mdn = ? AND status = ?"
	assert.Equal(t, "SELECT id FROM customers WHERE mdn = $1 AND status = $2", Rebind("postgres", q))
	assert.Equal(t, q, Rebind("mysql", q))
}
