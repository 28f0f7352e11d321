// internal/command/endpoint_test.go
package command

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"serial-gateway/internal/api"
	"serial-gateway/internal/line"
)

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) now() time.Time { return f.t }

func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

// stubRegistry satisfies Registry without a full api.Server.
type stubRegistry struct {
	methods map[string]api.MethodInfo
	docs    []api.MethodDoc
	handler func(path string, args map[string]interface{}) (map[string]interface{}, error)
	calls   []string
}

func (r *stubRegistry) Execute(transport, path string, args map[string]interface{}) (map[string]interface{}, error) {
	r.calls = append(r.calls, path)
	if r.handler != nil {
		return r.handler(path, args)
	}
	return map[string]interface{}{}, nil
}

func (r *stubRegistry) Methods(transport string) map[string]api.MethodInfo { return r.methods }

func (r *stubRegistry) APIDoc() []api.MethodDoc { return r.docs }

func newTestEndpoint(registry Registry, mutate func(*Config)) (*Endpoint, *line.Pipe, *fakeClock) {
	pipe := line.NewPipe(256)
	config := DefaultConfig()
	if mutate != nil {
		mutate(&config)
	}
	endpoint := NewEndpoint(pipe, registry, config, zap.NewNop())
	clock := newFakeClock()
	endpoint.now = clock.now
	return endpoint, pipe, clock
}

func pollN(e *Endpoint, n int) {
	for i := 0; i < n; i++ {
		e.Poll()
	}
}

func TestSimpleGetScenario(t *testing.T) {
	registry := &stubRegistry{
		methods: map[string]api.MethodInfo{
			"wifi/status": {Type: api.MethodGet},
		},
		handler: func(path string, args map[string]interface{}) (map[string]interface{}, error) {
			return map[string]interface{}{
				"ap": map[string]interface{}{"enabled": true},
			}, nil
		},
	}
	endpoint, pipe, _ := newTestEndpoint(registry, nil)

	pipe.Feed([]byte("> GET wifi/status\n"))
	pollN(endpoint, 10)

	want := "< GET wifi/status: ap.enabled=true\n"
	if got := string(pipe.Sent()); got != want {
		t.Fatalf("wire output = %q, want %q", got, want)
	}
	if len(registry.calls) != 1 || registry.calls[0] != "wifi/status" {
		t.Fatalf("registry calls = %v", registry.calls)
	}
}

func TestInvalidCommand(t *testing.T) {
	endpoint, pipe, _ := newTestEndpoint(&stubRegistry{}, nil)

	pipe.Feed([]byte("> PUT wifi/status\n"))
	pollN(endpoint, 10)

	want := "< PUT: error=invalid command\n"
	if got := string(pipe.Sent()); got != want {
		t.Fatalf("wire output = %q, want %q", got, want)
	}
}

func TestMethodNotFound(t *testing.T) {
	endpoint, pipe, _ := newTestEndpoint(&stubRegistry{}, nil)

	pipe.Feed([]byte("> GET no/such/path\n"))
	pollN(endpoint, 10)

	want := "< GET no/such/path: error=method not found\n"
	if got := string(pipe.Sent()); got != want {
		t.Fatalf("wire output = %q, want %q", got, want)
	}
}

func TestCommandTooLong(t *testing.T) {
	endpoint, pipe, clock := newTestEndpoint(&stubRegistry{}, func(c *Config) {
		c.LineBufferSize = 32
	})

	// More bytes than the accumulation buffer, no terminator.
	pipe.Feed(append([]byte{'>'}, bytes.Repeat([]byte{'a'}, 100)...))
	pollN(endpoint, 10)

	if sent := pipe.Sent(); len(sent) != 0 {
		t.Fatalf("responded %q before the idle grace elapsed", sent)
	}

	clock.advance(time.Second)
	pollN(endpoint, 5)

	want := "< ERROR: error=command too long\n"
	if got := string(pipe.Sent()); got != want {
		t.Fatalf("wire output = %q, want %q", got, want)
	}
}

func TestCommandTimeout(t *testing.T) {
	endpoint, pipe, clock := newTestEndpoint(&stubRegistry{}, nil)

	pipe.Feed([]byte("> GET wi")) // partial, never terminated
	pollN(endpoint, 10)

	clock.advance(time.Second)
	pollN(endpoint, 5)

	want := "< ERROR: error=command timeout\n"
	if got := string(pipe.Sent()); got != want {
		t.Fatalf("wire output = %q, want %q", got, want)
	}
}

func TestAuthenticationFailure(t *testing.T) {
	invoked := false
	server := api.NewServer(zap.NewNop(), "secret")
	server.RegisterMethod("secure/path", api.NewMethod(api.MethodSet,
		func(args map[string]interface{}) (map[string]interface{}, error) {
			invoked = true
			return map[string]interface{}{"ok": true}, nil
		}).Auth().Build())

	endpoint, pipe, _ := newTestEndpoint(server, nil)

	pipe.Feed([]byte("> SET secure/path: auth.password=\"wrong\"\n"))
	pollN(endpoint, 10)

	want := "< SET secure/path: error=authentication failed\n"
	if got := string(pipe.Sent()); got != want {
		t.Fatalf("wire output = %q, want %q", got, want)
	}
	if invoked {
		t.Fatal("handler must not run on authentication failure")
	}

	// The right credential reaches the handler, stripped of the auth tree.
	pipe.Feed([]byte("> SET secure/path: auth.password=\"secret\"\n"))
	pollN(endpoint, 10)

	want = "< SET secure/path: ok=true\n"
	if got := string(pipe.Sent()); got != want {
		t.Fatalf("wire output = %q, want %q", got, want)
	}
	if !invoked {
		t.Fatal("handler should run once authenticated")
	}
}

func TestEventPrecedence(t *testing.T) {
	registry := &stubRegistry{
		methods: map[string]api.MethodInfo{
			"system/status": {Type: api.MethodGet},
		},
		handler: func(path string, args map[string]interface{}) (map[string]interface{}, error) {
			return map[string]interface{}{"uptime": 120}, nil
		},
	}
	// Tiny response chunks so transmission spans several cycles.
	endpoint, pipe, _ := newTestEndpoint(registry, func(c *Config) {
		c.ResponseChunkSize = 4
	})

	pipe.Feed([]byte("> GET system/status\n"))
	pollN(endpoint, 4) // mid-response

	// An event lands while the command response is still being sent.
	endpoint.PushEvent("system/alert", map[string]interface{}{"level": "warn"})
	pollN(endpoint, 40)

	got := string(pipe.Sent())
	response := "< GET system/status: uptime=120\n"
	event := "< EVT system/alert: level=warn\n"
	if got != response+event {
		t.Fatalf("wire output = %q, want response then event", got)
	}
}

func TestEventTransmittedWhenIdle(t *testing.T) {
	endpoint, pipe, _ := newTestEndpoint(&stubRegistry{}, nil)

	endpoint.PushEvent("wifi/scan_done", map[string]interface{}{"count": 2})
	pollN(endpoint, 5)

	want := "< EVT wifi/scan_done: count=2\n"
	if got := string(pipe.Sent()); got != want {
		t.Fatalf("wire output = %q, want %q", got, want)
	}
}

func TestEventQueueDropOldest(t *testing.T) {
	q := newEventQueue(3)
	for i := 0; i < 5; i++ {
		q.Push(fmt.Sprintf("event-%d", i))
	}

	var got []string
	for {
		m, ok := q.Pop()
		if !ok {
			break
		}
		got = append(got, m)
	}
	want := []string{"event-2", "event-3", "event-4"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("drained %v, want %v", got, want)
	}
}

func TestProxyPassThrough(t *testing.T) {
	endpoint, pipe, clock := newTestEndpoint(&stubRegistry{}, nil)

	// Inbound bytes without the sigil belong to the pass-through channel.
	pipe.Feed([]byte("hello"))
	pollN(endpoint, 5)

	buf := make([]byte, 16)
	n := endpoint.Proxy().Read(buf)
	if string(buf[:n]) != "hello" {
		t.Fatalf("proxy received %q, want %q", buf[:n], "hello")
	}

	// Idle collapses pass-through mode back to neutral, then the proxy's
	// outbound data flows to the line.
	clock.advance(time.Second)
	endpoint.Proxy().Write([]byte("world"))
	pollN(endpoint, 10)

	if got := string(pipe.Sent()); got != "world" {
		t.Fatalf("wire output = %q, want %q", got, "world")
	}
}

func TestProxyTrafficDoesNotInterleaveWithResponse(t *testing.T) {
	registry := &stubRegistry{
		methods: map[string]api.MethodInfo{
			"system/status": {Type: api.MethodGet},
		},
		handler: func(path string, args map[string]interface{}) (map[string]interface{}, error) {
			return map[string]interface{}{"ok": true}, nil
		},
	}
	endpoint, pipe, _ := newTestEndpoint(registry, func(c *Config) {
		c.ResponseChunkSize = 4
	})

	// Queue proxy output, then run a command; the response must come out
	// contiguously, not mixed with proxy bytes.
	endpoint.Proxy().Write([]byte("RAWDATA"))
	pipe.Feed([]byte("> GET system/status\n"))
	pollN(endpoint, 60)

	got := string(pipe.Sent())
	response := "< GET system/status: ok=true\n"
	if !strings.Contains(got, response) {
		t.Fatalf("response not contiguous in %q", got)
	}
	if !strings.Contains(got, "RAWDATA") {
		t.Fatalf("proxy bytes missing from %q", got)
	}
}
