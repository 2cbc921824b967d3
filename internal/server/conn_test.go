package server

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/staticd/internal/httpdate"
	"github.com/Brownie44l1/staticd/internal/resource"
)

var fixedNow = time.Date(2024, time.August, 29, 12, 30, 45, 0, time.UTC)

var testFiles = map[string][]byte{
	"index.html": []byte("<h1>home</h1>"),
	"about.html": []byte("<h1>about</h1>"),
	"404.html":   []byte("<h1>missing</h1>"),
}

func newTestServer(cfg Config, files map[string][]byte) *Server {
	srv := New(cfg, resource.NewResolver(resource.NewStore(files)))
	srv.now = func() time.Time { return fixedNow }
	return srv
}

// trackingConn counts Close calls on the server side of a connection.
type trackingConn struct {
	net.Conn
	closes atomic.Int32
}

func (c *trackingConn) Close() error {
	c.closes.Add(1)
	return c.Conn.Close()
}

type failingWriteConn struct {
	net.Conn
}

func (c *failingWriteConn) Write(p []byte) (int, error) {
	return 0, errors.New("connection reset by peer")
}

// startConn runs the handler on one end of a pipe and returns the other end.
func startConn(t *testing.T, srv *Server, wrap func(net.Conn) net.Conn) (net.Conn, *trackingConn, <-chan struct{}) {
	t.Helper()
	serverSide, client := net.Pipe()
	if wrap != nil {
		serverSide = wrap(serverSide)
	}
	tc := &trackingConn{Conn: serverSide}
	done := make(chan struct{})
	go func() {
		srv.serveConn(srv.track(tc))
		close(done)
	}()
	require.NoError(t, client.SetDeadline(time.Now().Add(5*time.Second)))
	t.Cleanup(func() { client.Close() })
	return client, tc, done
}

type wireResponse struct {
	statusLine string
	names      []string
	headers    map[string]string
	body       []byte
}

func readResponse(t *testing.T, br *bufio.Reader) wireResponse {
	t.Helper()
	line, err := br.ReadString('\n')
	require.NoError(t, err)

	resp := wireResponse{
		statusLine: strings.TrimSuffix(line, "\r\n"),
		headers:    make(map[string]string),
	}
	for {
		line, err := br.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSuffix(line, "\r\n")
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ": ")
		require.True(t, ok, "header line %q", line)
		resp.names = append(resp.names, name)
		resp.headers[name] = value
	}

	n, err := strconv.Atoi(resp.headers["Content-Length"])
	require.NoError(t, err)
	resp.body = make([]byte, n)
	_, err = io.ReadFull(br, resp.body)
	require.NoError(t, err)
	return resp
}

func waitDone(t *testing.T, done <-chan struct{}, within time.Duration) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(within):
		t.Fatalf("connection handler still running after %v", within)
	}
}

func TestServeIndex(t *testing.T) {
	srv := newTestServer(DefaultConfig(), testFiles)
	client, _, _ := startConn(t, srv, nil)

	_, err := io.WriteString(client, "GET /index.html HTTP/1.1\r\nHost: localhost:8000\r\n\r\n")
	require.NoError(t, err)

	resp := readResponse(t, bufio.NewReader(client))
	assert.Equal(t, "HTTP/1.1 200 OK", resp.statusLine)
	assert.Equal(t, "<h1>home</h1>", string(resp.body))
	assert.Equal(t, []string{"Content-Length", "Content-Type", "Date", "Location", "Server"}, resp.names)
	assert.Equal(t, "13", resp.headers["Content-Length"])
	assert.Equal(t, "text/html", resp.headers["Content-Type"])
	assert.Equal(t, httpdate.FormatGMT(fixedNow), resp.headers["Date"])
	assert.Equal(t, "http://localhost:8000/", resp.headers["Location"])
	assert.Equal(t, "MeuServidor/1.0", resp.headers["Server"])
}

func TestServeRootUsesIndex(t *testing.T) {
	srv := newTestServer(DefaultConfig(), testFiles)
	client, _, _ := startConn(t, srv, nil)

	_, err := io.WriteString(client, "GET / HTTP/1.1\r\n\r\n")
	require.NoError(t, err)

	resp := readResponse(t, bufio.NewReader(client))
	assert.Equal(t, "HTTP/1.1 200 OK", resp.statusLine)
	assert.Equal(t, "<h1>home</h1>", string(resp.body))
}

func TestServeNotFound(t *testing.T) {
	srv := newTestServer(DefaultConfig(), testFiles)
	client, _, _ := startConn(t, srv, nil)

	_, err := io.WriteString(client, "GET /nope.html HTTP/1.1\r\n\r\n")
	require.NoError(t, err)

	resp := readResponse(t, bufio.NewReader(client))
	assert.Equal(t, "HTTP/1.1 404 Not Found", resp.statusLine)
	assert.Equal(t, "<h1>missing</h1>", string(resp.body))
	assert.Equal(t, "text/html", resp.headers["Content-Type"])
	assert.Equal(t, int64(1), srv.Stats().NotFoundTotal)
}

func TestServeNotFoundFallback(t *testing.T) {
	srv := newTestServer(DefaultConfig(), map[string][]byte{"index.html": []byte("home")})
	client, _, _ := startConn(t, srv, nil)

	_, err := io.WriteString(client, "GET /nope.html HTTP/1.1\r\n\r\n")
	require.NoError(t, err)

	resp := readResponse(t, bufio.NewReader(client))
	assert.Equal(t, "HTTP/1.1 404 Not Found", resp.statusLine)
	assert.Equal(t, resource.FallbackBody, string(resp.body))
}

func TestServeEchoesProtocolVersion(t *testing.T) {
	srv := newTestServer(DefaultConfig(), testFiles)
	client, _, _ := startConn(t, srv, nil)

	_, err := io.WriteString(client, "HEAD /about.html HTTP/1.0\r\nHost: localhost\r\n\r\n")
	require.NoError(t, err)

	resp := readResponse(t, bufio.NewReader(client))
	assert.Equal(t, "HTTP/1.0 200 OK", resp.statusLine)
	assert.Equal(t, "<h1>about</h1>", string(resp.body))
}

func TestKeepAliveServesSequentialRequests(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IdleTimeout = time.Second
	srv := newTestServer(cfg, testFiles)
	client, tc, _ := startConn(t, srv, nil)
	br := bufio.NewReader(client)

	_, err := io.WriteString(client, "GET /index.html HTTP/1.1\r\nConnection: keep-alive\r\n\r\n")
	require.NoError(t, err)
	first := readResponse(t, br)

	_, err = io.WriteString(client, "GET /about.html HTTP/1.1\r\n\r\n")
	require.NoError(t, err)
	second := readResponse(t, br)

	assert.Equal(t, "<h1>home</h1>", string(first.body))
	assert.Equal(t, "<h1>about</h1>", string(second.body))
	assert.Equal(t, int32(0), tc.closes.Load())
	assert.Equal(t, int64(2), srv.Stats().RequestsTotal)
}

func TestIdleTimeoutClosesConnectionOnce(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IdleTimeout = 50 * time.Millisecond
	srv := newTestServer(cfg, testFiles)
	client, tc, done := startConn(t, srv, nil)
	br := bufio.NewReader(client)

	_, err := io.WriteString(client, "GET / HTTP/1.1\r\n\r\n")
	require.NoError(t, err)
	readResponse(t, br)

	waitDone(t, done, 2*time.Second)
	assert.Equal(t, int32(1), tc.closes.Load())

	_, err = br.ReadByte()
	assert.ErrorIs(t, err, io.EOF)

	stats := srv.Stats()
	assert.Equal(t, int64(1), stats.IdleTimeouts)
	assert.Equal(t, int64(0), stats.ReadFailures)
	assert.Equal(t, int64(0), stats.ActiveConnections)
}

func TestConnectionCloseUsesShortTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IdleTimeout = 10 * time.Second
	cfg.CloseTimeout = 50 * time.Millisecond
	srv := newTestServer(cfg, testFiles)
	client, tc, done := startConn(t, srv, nil)

	_, err := io.WriteString(client, "GET / HTTP/1.1\r\nConnection: close\r\n\r\n")
	require.NoError(t, err)
	resp := readResponse(t, bufio.NewReader(client))
	assert.Equal(t, "HTTP/1.1 200 OK", resp.statusLine)

	waitDone(t, done, 2*time.Second)
	assert.Equal(t, int32(1), tc.closes.Load())
	assert.Equal(t, int64(1), srv.Stats().IdleTimeouts)
}

func TestFirstReadUsesReadTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReadTimeout = 50 * time.Millisecond
	srv := newTestServer(cfg, testFiles)
	_, tc, done := startConn(t, srv, nil)

	waitDone(t, done, 2*time.Second)
	assert.Equal(t, int32(1), tc.closes.Load())
	assert.Equal(t, int64(1), srv.Stats().IdleTimeouts)
}

func TestMalformedRequestClosesConnection(t *testing.T) {
	srv := newTestServer(DefaultConfig(), testFiles)
	client, tc, done := startConn(t, srv, nil)

	_, err := io.WriteString(client, "GARBAGE\r\n\r\n")
	require.NoError(t, err)

	waitDone(t, done, 2*time.Second)
	assert.Equal(t, int32(1), tc.closes.Load())

	// No response is written for a malformed request
	buf := make([]byte, 1)
	n, err := client.Read(buf)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, int64(1), srv.Stats().ReadFailures)
}

func TestClientCloseEndsHandler(t *testing.T) {
	srv := newTestServer(DefaultConfig(), testFiles)
	client, tc, done := startConn(t, srv, nil)

	require.NoError(t, client.Close())

	waitDone(t, done, 2*time.Second)
	assert.Equal(t, int32(1), tc.closes.Load())

	stats := srv.Stats()
	assert.Equal(t, int64(1), stats.Disconnects)
	assert.Equal(t, int64(0), stats.ReadFailures)
}

func TestDisconnectAfterResponseIsNotAFailure(t *testing.T) {
	srv := newTestServer(DefaultConfig(), testFiles)
	client, _, done := startConn(t, srv, nil)

	_, err := io.WriteString(client, "GET / HTTP/1.1\r\n\r\n")
	require.NoError(t, err)
	readResponse(t, bufio.NewReader(client))
	require.NoError(t, client.Close())

	waitDone(t, done, 2*time.Second)
	stats := srv.Stats()
	assert.Equal(t, int64(1), stats.RequestsTotal)
	assert.Equal(t, int64(1), stats.Disconnects)
	assert.Equal(t, int64(0), stats.ReadFailures)
}

func TestOversizedRequestLineClosesConnection(t *testing.T) {
	srv := newTestServer(DefaultConfig(), testFiles)
	client, tc, done := startConn(t, srv, nil)

	// the pipe blocks until the server reads, so write from a goroutine
	go io.WriteString(client, "GET /"+strings.Repeat("a", 64<<10)+" HTTP/1.1\r\n\r\n")

	waitDone(t, done, 2*time.Second)
	assert.Equal(t, int32(1), tc.closes.Load())
	assert.Equal(t, int64(1), srv.Stats().ReadFailures)
	assert.Equal(t, int64(0), srv.Stats().RequestsTotal)
}

func TestWriteFailureClosesConnection(t *testing.T) {
	srv := newTestServer(DefaultConfig(), testFiles)
	wrap := func(c net.Conn) net.Conn { return &failingWriteConn{Conn: c} }
	client, tc, done := startConn(t, srv, wrap)

	_, err := io.WriteString(client, "GET / HTTP/1.1\r\n\r\n")
	require.NoError(t, err)

	waitDone(t, done, 2*time.Second)
	assert.Equal(t, int32(1), tc.closes.Load())

	stats := srv.Stats()
	assert.Equal(t, int64(1), stats.WriteFailures)
	assert.Equal(t, int64(0), stats.RequestsTotal)
}

func TestHandlerCloseIsIdempotent(t *testing.T) {
	srv := newTestServer(DefaultConfig(), testFiles)
	serverSide, client := net.Pipe()
	defer client.Close()
	tc := &trackingConn{Conn: serverSide}

	h := newConnHandler(srv, tc)
	assert.NoError(t, h.close())
	assert.NoError(t, h.close())
	assert.Equal(t, int32(1), tc.closes.Load())
}

func TestIsTimeout(t *testing.T) {
	serverSide, client := net.Pipe()
	defer serverSide.Close()
	defer client.Close()

	require.NoError(t, serverSide.SetReadDeadline(time.Now().Add(10*time.Millisecond)))
	_, err := serverSide.Read(make([]byte, 1))
	require.Error(t, err)

	assert.True(t, isTimeout(err))
	assert.False(t, isTimeout(io.EOF))
	assert.False(t, isTimeout(errors.New("boom")))
}

func TestNotFoundLoggedAsWarning(t *testing.T) {
	var buf bytes.Buffer
	srv := newTestServer(DefaultConfig(), testFiles)
	srv.Logger = NewLogger(&buf, logrus.InfoLevel)
	client, _, done := startConn(t, srv, nil)
	br := bufio.NewReader(client)

	_, err := io.WriteString(client, "GET /index.html HTTP/1.1\r\n\r\n")
	require.NoError(t, err)
	readResponse(t, br)

	_, err = io.WriteString(client, "GET /nope.html HTTP/1.1\r\n\r\n")
	require.NoError(t, err)
	readResponse(t, br)

	require.NoError(t, client.Close())
	waitDone(t, done, 2*time.Second)

	out := buf.String()
	assert.Regexp(t, `level=info msg="request handled".*path=/index.html`, out)
	assert.Regexp(t, `level=warning msg="request handled".*path=/nope.html`, out)
}
