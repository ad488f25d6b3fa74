package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/Sternrassler/tscache/pkg/config"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func writeConfig(t *testing.T, redisAddr, listenAddr string, ttl int) string {
	t.Helper()
	content := fmt.Sprintf(`
centralizedCache:
  ttl: %d
  dataSource:
    hosts: ["redis://%s"]
    retryAttempts: 0
    timeout: 500
    connectTimeout: 500
server:
  listenAddr: %q
  shutdownTimeout: 2s
logging:
  level: error
`, ttl, redisAddr, listenAddr)

	path := filepath.Join(t.TempDir(), "tscache.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func waitForHealth(t *testing.T, base string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(base + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("proxy did not become healthy")
}

func TestRun_ServesAndShutsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := freeAddr(t)
	path := writeConfig(t, mr.Addr(), addr, 120)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, []string{"-config", path}) }()

	base := "http://" + addr
	waitForHealth(t, base)

	body := `[{"metricUrn":"u","timestamp":1000,"metricId":2,"dataValue":"30"}]`
	resp, err := http.Post(base+"/v1/points", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /v1/points: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("POST /v1/points status = %d", resp.StatusCode)
	}

	keys := mr.Keys()
	if len(keys) != 1 {
		t.Fatalf("keys = %v", keys)
	}
	if ttl := mr.TTL(keys[0]); ttl != 2*time.Minute {
		t.Errorf("series TTL = %v, want 2m from config", ttl)
	}

	resp, err = http.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(data), `tscache_redis_writes_total{outcome="created"} 1`) {
		t.Errorf("metrics missing write counter:\n%s", data)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestRun_StartsWithRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	redisAddr := mr.Addr()
	mr.Close()

	addr := freeAddr(t)
	path := writeConfig(t, redisAddr, addr, 60)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- run(ctx, []string{"-config", path}) }()

	base := "http://" + addr
	waitForHealth(t, base)

	resp, err := http.Get(base + "/ready")
	if err != nil {
		t.Fatalf("GET /ready: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("GET /ready status = %d, want 503", resp.StatusCode)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("run() error = %v", err)
	}
}

func TestRun_ConfigErrors(t *testing.T) {
	if err := run(context.Background(), []string{"-config", filepath.Join(t.TempDir(), "missing.yaml")}); err == nil {
		t.Error("run() should fail for a missing config file")
	}

	if err := run(context.Background(), []string{"-unknown"}); err == nil {
		t.Error("run() should fail for an unknown flag")
	}
}

func TestReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tscache.yaml")
	if err := os.WriteFile(path, []byte("centralizedCache:\n  ttl: 10\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	holder := config.NewHolder(path, cfg)

	if err := os.WriteFile(path, []byte("centralizedCache:\n  ttl: 20\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	reload(holder)
	if holder.SeriesTTL() != 20*time.Second {
		t.Errorf("SeriesTTL() = %v after reload, want 20s", holder.SeriesTTL())
	}

	if err := os.WriteFile(path, []byte("not: [valid"), 0o600); err != nil {
		t.Fatal(err)
	}
	reload(holder)
	if holder.SeriesTTL() != 20*time.Second {
		t.Errorf("failed reload changed TTL to %v", holder.SeriesTTL())
	}
}
