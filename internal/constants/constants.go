package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
	KafkaMinBytes     = 1
	KafkaMaxBytes     = 10e6
	KafkaMaxWait      = 100 * time.Millisecond
)

const (
	// PublisherPopTimeout bounds how long an idle publisher waits before
	// re-checking its queue.
	PublisherPopTimeout = 100 * time.Millisecond
)

const (
	CacheKeyPrefixCustomer = "customer:"
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	DefaultTTLSeconds        = 60
	DefaultTableCheckPeriod  = time.Second
	DefaultReloadInterval    = 30 * time.Second
	DefaultReconnectInterval = time.Second
	TrapListQueryTimeout     = 10 * time.Second
	CustomerLookupTimeout    = 2 * time.Second
	TPSLogInterval           = time.Second
	DefaultTruncateLen       = 100
)

const (
	FallbackAllow = "allow"
	FallbackDeny  = "deny"
	FallbackError = "error"
)

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)
