package respserver

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/redistill/redistill/internal/storage/memory"
)

// startTestServer starts a server on an ephemeral port and returns it
// with its dial address. Shutdown is registered as cleanup.
func startTestServer(t *testing.T, mutate func(*Config), opts memory.Options) (*Server, string) {
	t.Helper()
	if opts.NumShards == 0 {
		opts.NumShards = 16
	}
	store, err := memory.New(opts)
	if err != nil {
		t.Fatalf("memory.New() error: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.IdleTimeout = 5 * time.Second
	if mutate != nil {
		mutate(cfg)
	}

	srv := New(cfg, store, NewStats(), "", nil)
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv, srv.Addr().String()
}

func dialTest(t *testing.T, addr string) (net.Conn, *bufio.Reader) {
	t.Helper()
	c, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = c.Close() })
	_ = c.SetDeadline(time.Now().Add(5 * time.Second))
	return c, bufio.NewReader(c)
}

func readReply(t *testing.T, br *bufio.Reader) string {
	t.Helper()
	line, err := br.ReadString('\n')
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if strings.HasPrefix(line, "$") && line != "$-1\r\n" {
		var n int
		fmt.Sscanf(line, "$%d", &n)
		payload := make([]byte, n+2)
		if _, err := io.ReadFull(br, payload); err != nil {
			t.Fatalf("read bulk payload: %v", err)
		}
		return line + string(payload)
	}
	return line
}

func TestServer_PingOverTCP(t *testing.T) {
	_, addr := startTestServer(t, nil, memory.Options{})
	c, br := dialTest(t, addr)

	fmt.Fprintf(c, "*1\r\n$4\r\nPING\r\n")
	if got := readReply(t, br); got != "+PONG\r\n" {
		t.Errorf("PING = %q, want +PONG", got)
	}
}

func TestServer_SetGetOverTCP(t *testing.T) {
	_, addr := startTestServer(t, nil, memory.Options{})
	c, br := dialTest(t, addr)

	fmt.Fprintf(c, "*3\r\n$3\r\nSET\r\n$3\r\nfoo\r\n$3\r\nbar\r\n")
	if got := readReply(t, br); got != "+OK\r\n" {
		t.Fatalf("SET = %q", got)
	}
	fmt.Fprintf(c, "*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n")
	if got := readReply(t, br); got != "$3\r\nbar\r\n" {
		t.Errorf("GET = %q", got)
	}
}

func TestServer_PipelinedOrdering(t *testing.T) {
	_, addr := startTestServer(t, nil, memory.Options{})
	c, br := dialTest(t, addr)

	const n = 64
	var req strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&req, "*3\r\n$3\r\nSET\r\n$5\r\nk%04d\r\n$5\r\nv%04d\r\n", i, i)
	}
	for i := 0; i < n; i++ {
		fmt.Fprintf(&req, "*2\r\n$3\r\nGET\r\n$5\r\nk%04d\r\n", i)
	}

	// One write carrying all 128 frames.
	if _, err := c.Write([]byte(req.String())); err != nil {
		t.Fatalf("pipelined write: %v", err)
	}

	for i := 0; i < n; i++ {
		if got := readReply(t, br); got != "+OK\r\n" {
			t.Fatalf("reply %d = %q, want +OK", i, got)
		}
	}
	for i := 0; i < n; i++ {
		want := fmt.Sprintf("$5\r\nv%04d\r\n", i)
		if got := readReply(t, br); got != want {
			t.Fatalf("reply %d = %q, want %q", n+i, got, want)
		}
	}
}

func TestServer_MaliciousFrameIsolated(t *testing.T) {
	_, addr := startTestServer(t, nil, memory.Options{})

	// A frame declaring a huge array closes only its own connection.
	bad, badBr := dialTest(t, addr)
	fmt.Fprintf(bad, "*999999999\r\n")
	reply := readReply(t, badBr)
	if !strings.HasPrefix(reply, "-ERR Protocol error") {
		t.Errorf("oversized frame reply = %q", reply)
	}
	if _, err := badBr.ReadByte(); err == nil {
		t.Error("connection stayed open after protocol violation")
	}

	// The server keeps serving fresh connections.
	good, goodBr := dialTest(t, addr)
	fmt.Fprintf(good, "*1\r\n$4\r\nPING\r\n")
	if got := readReply(t, goodBr); got != "+PONG\r\n" {
		t.Errorf("PING after violation = %q", got)
	}
}

func TestServer_MaxConnectionsRejected(t *testing.T) {
	srv, addr := startTestServer(t, func(c *Config) {
		c.MaxConnections = 1
	}, memory.Options{})

	first, firstBr := dialTest(t, addr)
	fmt.Fprintf(first, "*1\r\n$4\r\nPING\r\n")
	if got := readReply(t, firstBr); got != "+PONG\r\n" {
		t.Fatalf("first conn PING = %q", got)
	}

	// The second socket is closed without a reply.
	second, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer second.Close()
	_ = second.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := second.Read(make([]byte, 1)); err == nil {
		t.Error("over-capacity connection was not closed")
	}

	deadline := time.Now().Add(2 * time.Second)
	for srv.stats.RejectedConnections() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := srv.stats.RejectedConnections(); got == 0 {
		t.Error("rejected connection not counted")
	}
}

func TestServer_QuitClosesConnection(t *testing.T) {
	_, addr := startTestServer(t, nil, memory.Options{})
	c, br := dialTest(t, addr)

	fmt.Fprintf(c, "*1\r\n$4\r\nQUIT\r\n")
	if got := readReply(t, br); got != "+OK\r\n" {
		t.Errorf("QUIT = %q", got)
	}
	if _, err := br.ReadByte(); err == nil {
		t.Error("connection open after QUIT")
	}
}

func TestServer_ShutdownStopsAccepting(t *testing.T) {
	srv, addr := startTestServer(t, nil, memory.Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	if srv.Running() {
		t.Error("Running() = true after Shutdown")
	}
	if _, err := net.DialTimeout("tcp", addr, 500*time.Millisecond); err == nil {
		t.Error("listener still accepting after Shutdown")
	}
}

func TestServer_CommandCounterBatched(t *testing.T) {
	srv, addr := startTestServer(t, nil, memory.Options{})
	c, br := dialTest(t, addr)

	fmt.Fprintf(c, "*1\r\n$4\r\nPING\r\n*1\r\n$4\r\nPING\r\n*1\r\n$4\r\nQUIT\r\n")
	for i := 0; i < 3; i++ {
		readReply(t, br)
	}

	// Counter is credited when the connection drains.
	deadline := time.Now().Add(2 * time.Second)
	for srv.stats.TotalCommands() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := srv.stats.TotalCommands(); got != 3 {
		t.Errorf("TotalCommands() = %d, want 3", got)
	}
}
