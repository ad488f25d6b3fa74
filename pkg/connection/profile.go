// Package connection owns the shared Redis client of the time-series cache
// and tracks backend health.
package connection

import (
	"context"
	"crypto/tls"
	"net"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Sternrassler/tscache/pkg/config"
)

// DefaultHost is used when the profile lists no hosts.
const DefaultHost = "redis://127.0.0.1:6379"

// Recovery controls how a degraded backend returns to service.
type Recovery struct {
	// Enabled allows Degraded -> Probing -> Connected. When false Degraded
	// is terminal until the process restarts.
	Enabled bool

	// OpenTimeout is how long writes stay disabled before a trial write is let through
	OpenTimeout time.Duration

	// SuccessThreshold is the number of successful trial writes that restore Connected
	SuccessThreshold int
}

// Profile holds the connection settings for the backing Redis.
type Profile struct {
	Hosts                  []string
	Username               string
	Password               string
	IdleConnectionTimeout  time.Duration
	ConnectTimeout         time.Duration
	Timeout                time.Duration
	RetryAttempts          int
	RetryInterval          time.Duration
	PingConnectionInterval time.Duration
	KeepAlive              bool
	TCPNoDelay             bool
	Recovery               Recovery
}

// DefaultProfile returns the documented connection defaults.
func DefaultProfile() Profile {
	return Profile{
		Hosts:                  []string{DefaultHost},
		IdleConnectionTimeout:  10 * time.Second,
		ConnectTimeout:         10 * time.Second,
		Timeout:                3 * time.Second,
		RetryAttempts:          3,
		RetryInterval:          1500 * time.Millisecond,
		PingConnectionInterval: 30 * time.Second,
		KeepAlive:              false,
		TCPNoDelay:             false,
		Recovery: Recovery{
			Enabled:          true,
			OpenTimeout:      30 * time.Second,
			SuccessThreshold: 1,
		},
	}
}

// ProfileFromConfig converts the data source section of the configuration.
func ProfileFromConfig(cfg config.CentralizedCache) Profile {
	ds := cfg.DataSource
	ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }

	return Profile{
		Hosts:                  append([]string(nil), ds.Hosts...),
		Username:               ds.AuthUsername,
		Password:               ds.AuthPassword,
		IdleConnectionTimeout:  ms(ds.IdleConnectionTimeout),
		ConnectTimeout:         ms(ds.ConnectTimeout),
		Timeout:                ms(ds.Timeout),
		RetryAttempts:          ds.RetryAttempts,
		RetryInterval:          ms(ds.RetryInterval),
		PingConnectionInterval: ms(ds.PingConnectionInterval),
		KeepAlive:              ds.KeepAlive,
		TCPNoDelay:             ds.TCPNoDelay,
		Recovery: Recovery{
			Enabled:          cfg.Recovery.Enabled,
			OpenTimeout:      ms(cfg.Recovery.OpenTimeout),
			SuccessThreshold: cfg.Recovery.SuccessThreshold,
		},
	}
}

// Host returns the address the client connects to. Only the first host is
// used; an empty list falls back to DefaultHost.
func (p Profile) Host() string {
	if len(p.Hosts) == 0 || strings.TrimSpace(p.Hosts[0]) == "" {
		return DefaultHost
	}
	host := strings.TrimSpace(p.Hosts[0])
	if !strings.Contains(host, "://") {
		host = "redis://" + host
	}
	return host
}

// validate checks the profile and returns the go-redis options it maps to.
func (p Profile) validate() (*redis.Options, error) {
	durations := []struct {
		field string
		value time.Duration
	}{
		{"idleConnectionTimeout", p.IdleConnectionTimeout},
		{"connectTimeout", p.ConnectTimeout},
		{"timeout", p.Timeout},
		{"retryInterval", p.RetryInterval},
	}
	for _, d := range durations {
		if d.value < 0 {
			return nil, &ConfigurationError{Field: d.field, Message: "must not be negative"}
		}
	}
	if p.PingConnectionInterval <= 0 {
		return nil, &ConfigurationError{Field: "pingConnectionInterval", Message: "must be positive"}
	}
	if p.RetryAttempts < 0 {
		return nil, &ConfigurationError{Field: "retryAttempts", Message: "must not be negative"}
	}
	if p.Recovery.Enabled {
		if p.Recovery.OpenTimeout <= 0 {
			return nil, &ConfigurationError{Field: "recovery.openTimeout", Message: "must be positive when recovery is enabled"}
		}
		if p.Recovery.SuccessThreshold <= 0 {
			return nil, &ConfigurationError{Field: "recovery.successThreshold", Message: "must be positive when recovery is enabled"}
		}
	}

	host := p.Host()
	opts, err := redis.ParseURL(host)
	if err != nil {
		return nil, &ConfigurationError{Field: "hosts", Message: "cannot parse " + host, Err: err}
	}

	return p.apply(opts), nil
}

// apply copies the profile onto options parsed from the host URL.
func (p Profile) apply(opts *redis.Options) *redis.Options {
	if p.Username != "" {
		opts.Username = p.Username
	}
	if p.Password != "" {
		opts.Password = p.Password
	}

	opts.ConnMaxIdleTime = p.IdleConnectionTimeout
	opts.DialTimeout = p.ConnectTimeout
	opts.ReadTimeout = p.Timeout
	opts.WriteTimeout = p.Timeout

	if p.RetryAttempts == 0 {
		opts.MaxRetries = -1 // go-redis treats 0 as "default"
	} else {
		opts.MaxRetries = p.RetryAttempts
	}
	opts.MinRetryBackoff = p.RetryInterval
	opts.MaxRetryBackoff = p.RetryInterval

	opts.Dialer = p.dialer(opts.TLSConfig)
	return opts
}

// dialer applies the keep-alive and no-delay socket settings.
func (p Profile) dialer(tlsConfig *tls.Config) func(ctx context.Context, network, addr string) (net.Conn, error) {
	d := &net.Dialer{
		Timeout:   p.ConnectTimeout,
		KeepAlive: -1,
	}
	if p.KeepAlive {
		d.KeepAlive = 0 // platform default interval
	}
	noDelay := p.TCPNoDelay

	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		if tcp, ok := conn.(*net.TCPConn); ok {
			if err := tcp.SetNoDelay(noDelay); err != nil {
				conn.Close()
				return nil, err
			}
		}
		if tlsConfig != nil {
			return tls.Client(conn, tlsConfig), nil
		}
		return conn, nil
	}
}
