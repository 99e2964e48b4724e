// Package dbpool keeps one live *sql.DB out of a list of candidate
// databases and fails over to the next candidate when it breaks.
package dbpool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"filterchain/internal/config"
	"filterchain/internal/constants"
	"filterchain/internal/logger"
	"filterchain/pkg/metrics"
	"filterchain/pkg/retry"
	"filterchain/pkg/toggle"
)

var ErrNoDatabase = errors.New("no database available")

type Opener func(driver, dsn string) (*sql.DB, error)

type Option func(*Pool)

// WithOpener replaces sql.Open.
func WithOpener(open Opener) Option {
	return func(p *Pool) { p.open = open }
}

type Pool struct {
	driver   string
	dsns     []string
	settings config.PoolConfig
	open     Opener
	logger   logger.Logger

	current atomic.Pointer[sql.DB]

	mu      sync.Mutex
	active  int
	broken  chan struct{}
	failing toggle.Toggle
}

func New(cfg config.DatabaseConfig, log logger.Logger, opts ...Option) (*Pool, error) {
	if len(cfg.SQL) == 0 {
		return nil, fmt.Errorf("database.sql: %w", ErrNoDatabase)
	}

	dsns := make([]string, 0, len(cfg.SQL))
	for i, c := range cfg.SQL {
		dsn, err := BuildDSN(cfg.Driver, c)
		if err != nil {
			return nil, fmt.Errorf("database.sql[%d]: %w", i, err)
		}
		dsns = append(dsns, dsn)
	}

	p := &Pool{
		driver:   cfg.Driver,
		dsns:     dsns,
		settings: cfg.Pool,
		open:     sql.Open,
		logger:   log,
		active:   -1,
		broken:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// BuildDSN applies the configured credentials to url. MySQL urls are in
// go-sql-driver form; postgres accepts either a URL or key=value pairs.
func BuildDSN(driver string, c config.SQLConfig) (string, error) {
	switch driver {
	case constants.DriverMySQL:
		mc, err := mysql.ParseDSN(c.URL)
		if err != nil {
			return "", fmt.Errorf("parse mysql dsn: %w", err)
		}
		if c.User != "" {
			mc.User = c.User
		}
		if c.Password != "" {
			mc.Passwd = c.Password
		}
		mc.ParseTime = true
		return mc.FormatDSN(), nil

	case constants.DriverPostgres:
		if !strings.Contains(c.URL, "://") {
			dsn := c.URL
			if c.User != "" {
				dsn += " user=" + c.User
			}
			if c.Password != "" {
				dsn += " password=" + c.Password
			}
			return strings.TrimSpace(dsn), nil
		}

		u, err := url.Parse(c.URL)
		if err != nil {
			return "", fmt.Errorf("parse postgres url: %w", err)
		}
		user := u.User.Username()
		pass, _ := u.User.Password()
		if c.User != "" {
			user = c.User
		}
		if c.Password != "" {
			pass = c.Password
		}
		if user != "" {
			u.User = url.UserPassword(user, pass)
		}
		return u.String(), nil

	default:
		return "", fmt.Errorf("unknown driver: %s", driver)
	}
}

func (p *Pool) Driver() string {
	return p.driver
}

// DB returns the live handle, or nil before the first successful Connect.
func (p *Pool) DB() *sql.DB {
	return p.current.Load()
}

// Connect tries every candidate in order and keeps the first that answers
// a ping.
func (p *Pool) Connect(ctx context.Context) error {
	return p.connectFrom(ctx, 0)
}

func (p *Pool) connectFrom(ctx context.Context, start int) error {
	var errs []error
	for i := 0; i < len(p.dsns); i++ {
		idx := (start + i) % len(p.dsns)
		db, err := p.connect(ctx, idx)
		if err != nil {
			errs = append(errs, fmt.Errorf("database %d: %w", idx, err))
			continue
		}

		p.mu.Lock()
		p.active = idx
		p.mu.Unlock()

		if old := p.current.Swap(db); old != nil {
			_ = old.Close()
		}
		p.logger.Infow("Database connected", "driver", p.driver, "index", idx)
		return nil
	}
	return fmt.Errorf("%w: %w", ErrNoDatabase, errors.Join(errs...))
}

func (p *Pool) connect(ctx context.Context, idx int) (*sql.DB, error) {
	db, err := p.open(p.driver, p.dsns[idx])
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	if p.settings.MaxOpenConns > 0 {
		db.SetMaxOpenConns(p.settings.MaxOpenConns)
	}
	if p.settings.MaxIdleConns > 0 {
		db.SetMaxIdleConns(p.settings.MaxIdleConns)
	}
	if p.settings.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(p.settings.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, constants.CustomerLookupTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return db, nil
}

// MarkBroken asks the background loop to fail over. Callers on the hot
// path never block here.
func (p *Pool) MarkBroken(err error) {
	if p.failing.TurnOn() {
		p.logger.Errorw("Database marked broken", "error", err, "driver", p.driver)
	}
	select {
	case p.broken <- struct{}{}:
	default:
	}
}

// Run pings the live database every reconnect interval and fails over when
// the ping fails or MarkBroken was called. It returns when ctx is done.
func (p *Pool) Run(ctx context.Context) error {
	interval := p.settings.ReconnectInterval
	if interval <= 0 {
		interval = constants.DefaultReconnectInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.broken:
		case <-ticker.C:
			if p.healthy(ctx) {
				continue
			}
		}

		if !p.reconnect(ctx, interval) {
			return nil
		}
	}
}

func (p *Pool) healthy(ctx context.Context) bool {
	db := p.DB()
	if db == nil {
		return false
	}
	pingCtx, cancel := context.WithTimeout(ctx, constants.CustomerLookupTimeout)
	defer cancel()
	return db.PingContext(pingCtx) == nil
}

func (p *Pool) reconnect(ctx context.Context, interval time.Duration) bool {
	b := retry.ExponentialBackoff(interval, 30*interval, 2)

	for {
		p.mu.Lock()
		start := p.active + 1
		p.mu.Unlock()

		err := p.connectFrom(ctx, start)
		if err == nil {
			metrics.IncDatabaseReconnect("success")
			if p.failing.TurnOff() {
				p.logger.Infow("Database recovered", "driver", p.driver)
			}
			return true
		}

		metrics.IncDatabaseReconnect("failure")
		p.logger.Warnw("Database reconnect failed", "error", err)

		delay := b.NextBackOff()
		if delay == backoff.Stop {
			delay = 30 * interval
		}
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return false
		case <-t.C:
		}
	}
}

func (p *Pool) Close() error {
	if db := p.current.Swap(nil); db != nil {
		return db.Close()
	}
	return nil
}

// Rebind rewrites ? placeholders for drivers that number them.
func Rebind(driver, query string) string {
	if driver != constants.DriverPostgres {
		return query
	}

	var (
		b strings.Builder
		n int
	)
	b.Grow(len(query) + 8)
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
