package connection

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/Sternrassler/tscache/pkg/config"
)

func TestProfile_Host(t *testing.T) {
	tests := []struct {
		name  string
		hosts []string
		want  string
	}{
		{"empty", nil, DefaultHost},
		{"blank", []string{"  "}, DefaultHost},
		{"first wins", []string{"redis://a:1", "redis://b:2"}, "redis://a:1"},
		{"scheme added", []string{"cache:6380"}, "redis://cache:6380"},
		{"tls kept", []string{"rediss://cache:6380"}, "rediss://cache:6380"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Profile{Hosts: tt.hosts}
			if got := p.Host(); got != tt.want {
				t.Errorf("Host() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProfileFromConfig(t *testing.T) {
	cfg := config.Default().CentralizedCache
	cfg.DataSource.Hosts = []string{"redis://cache:6380"}
	cfg.DataSource.AuthUsername = "user"
	cfg.DataSource.Timeout = 250
	cfg.DataSource.KeepAlive = true
	cfg.Recovery.OpenTimeout = 5000

	p := ProfileFromConfig(cfg)

	if p.Host() != "redis://cache:6380" {
		t.Errorf("Host() = %q", p.Host())
	}
	if p.Username != "user" {
		t.Errorf("Username = %q", p.Username)
	}
	if p.Timeout != 250*time.Millisecond {
		t.Errorf("Timeout = %v, want 250ms", p.Timeout)
	}
	if p.ConnectTimeout != 10*time.Second {
		t.Errorf("ConnectTimeout = %v, want 10s", p.ConnectTimeout)
	}
	if p.PingConnectionInterval != 30*time.Second {
		t.Errorf("PingConnectionInterval = %v, want 30s", p.PingConnectionInterval)
	}
	if !p.KeepAlive || p.TCPNoDelay {
		t.Errorf("KeepAlive = %v, TCPNoDelay = %v", p.KeepAlive, p.TCPNoDelay)
	}
	if !p.Recovery.Enabled || p.Recovery.OpenTimeout != 5*time.Second || p.Recovery.SuccessThreshold != 1 {
		t.Errorf("Recovery = %+v", p.Recovery)
	}

	// The profile must not alias the config slice.
	cfg.DataSource.Hosts[0] = "redis://other:1"
	if p.Hosts[0] != "redis://cache:6380" {
		t.Error("ProfileFromConfig shares the hosts slice")
	}
}

func TestDefaultProfileMatchesConfigDefaults(t *testing.T) {
	got := ProfileFromConfig(config.Default().CentralizedCache)
	want := DefaultProfile()

	if got.Host() != want.Host() ||
		got.IdleConnectionTimeout != want.IdleConnectionTimeout ||
		got.ConnectTimeout != want.ConnectTimeout ||
		got.Timeout != want.Timeout ||
		got.RetryAttempts != want.RetryAttempts ||
		got.RetryInterval != want.RetryInterval ||
		got.PingConnectionInterval != want.PingConnectionInterval ||
		got.KeepAlive != want.KeepAlive ||
		got.TCPNoDelay != want.TCPNoDelay ||
		got.Recovery != want.Recovery {
		t.Errorf("config defaults %+v differ from DefaultProfile %+v", got, want)
	}
}

func TestProfile_Dialer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	for _, noDelay := range []bool{true, false} {
		p := DefaultProfile()
		p.TCPNoDelay = noDelay
		p.KeepAlive = !noDelay

		conn, err := p.dialer(nil)(context.Background(), "tcp", ln.Addr().String())
		if err != nil {
			t.Fatalf("dial (noDelay=%v): %v", noDelay, err)
		}
		if _, ok := conn.(*net.TCPConn); !ok {
			t.Errorf("expected a plain TCP connection, got %T", conn)
		}
		conn.Close()
	}
}
