package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/diewo77/go-tasks/internal/logger"
	redis "github.com/redis/go-redis/v9"
)

func TestMetricsInstrument(t *testing.T) {
	m := NewMetrics()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /tasks/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	h := m.Instrument(mux, mux)

	for _, path := range []string{"/tasks/1", "/tasks/2", "/nowhere"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rr.Body.String()

	want := `http_requests_total{method="GET",route="GET /tasks/{id}",status="404"} 2`
	if !strings.Contains(body, want) {
		t.Fatalf("metrics output missing %q:\n%s", want, body)
	}
	if !strings.Contains(body, `route="unmatched"`) {
		t.Fatal("expected unmatched requests to be labelled")
	}
	if !strings.Contains(body, "http_request_duration_seconds_bucket") {
		t.Fatal("expected duration histogram")
	}
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWriter(&buf, "info", false)
	t.Cleanup(func() { logger.InitWriter(io.Discard, "info", false) })

	h := Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/tasks", nil))

	out := buf.String()
	for _, want := range []string{"method=POST", "path=/tasks", "status=201"} {
		if !strings.Contains(out, want) {
			t.Errorf("log line %q missing %q", out, want)
		}
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	if got := ClientIP(r, false); got != "10.0.0.1" {
		t.Fatalf("ClientIP = %q", got)
	}
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := ClientIP(r, false); got != "10.0.0.1" {
		t.Fatalf("forwarded header must be ignored without a trusted proxy, got %q", got)
	}
	if got := ClientIP(r, true); got != "203.0.113.7" {
		t.Fatalf("ClientIP behind proxy = %q", got)
	}
}

func TestRateLimitKey_IgnoresForwardedHeader(t *testing.T) {
	l := NewRateLimiter(nil, 1, time.Minute, false, nil)
	first := httptest.NewRequest(http.MethodPost, "/auth/token", nil)
	first.RemoteAddr = "198.51.100.4:4000"
	first.Header.Set("X-Forwarded-For", "1.1.1.1")
	second := httptest.NewRequest(http.MethodPost, "/auth/token", nil)
	second.RemoteAddr = "198.51.100.4:4001"
	second.Header.Set("X-Forwarded-For", "2.2.2.2")

	if a, b := l.key("login", first), l.key("login", second); a != b {
		t.Fatalf("changing X-Forwarded-For moved the client to a new bucket: %q vs %q", a, b)
	}

	proxied := NewRateLimiter(nil, 1, time.Minute, true, nil)
	if a, b := proxied.key("login", first), proxied.key("login", second); a == b {
		t.Fatalf("behind a trusted proxy distinct clients should get distinct buckets, both %q", a)
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimit_NoRedisPassesThrough(t *testing.T) {
	h := NewRateLimiter(nil, 1, time.Minute, false, nil).Limit("login", okHandler())
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/auth/token", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200 got %d", i, rr.Code)
		}
	}
}

func TestRateLimit_RedisErrorFailsOpen(t *testing.T) {
	// Nothing listens on port 1.
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	defer client.Close()

	h := NewRateLimiter(client, 1, time.Minute, false, NewMetrics()).Limit("login", okHandler())
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/auth/token", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected fail-open 200, got %d", rr.Code)
	}
	if rr.Header().Get("X-RateLimit-Error") != "redis-error" {
		t.Fatal("expected redis error header")
	}
}

// Integration-style test: runs only if REDIS_ADDR env is set.
func TestRedisRateLimitIntegration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping integration test")
	}
	db := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			db = n
		}
	}
	client := NewRedisClient(t.Context(), addr, os.Getenv("REDIS_PASSWORD"), db)
	if client == nil {
		t.Fatalf("redis at %s not reachable", addr)
	}
	defer client.Close()

	max := 2
	endpoint := "test-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	m := NewMetrics()
	srv := httptest.NewServer(NewRateLimiter(client, max, 2*time.Second, false, m).Limit(endpoint, okHandler()))
	defer srv.Close()

	for i := 0; i < max; i++ {
		res, err := http.Get(srv.URL)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Fatalf("expected 200 got %d", res.StatusCode)
		}
	}

	// A forged forwarded header does not open a fresh window.
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.99")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", res.StatusCode)
	}
}
