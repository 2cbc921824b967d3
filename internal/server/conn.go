package server

import (
	"bufio"
	"errors"
	"io"
	"net"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/Brownie44l1/staticd/internal/httpdate"
	"github.com/Brownie44l1/staticd/internal/request"
	"github.com/Brownie44l1/staticd/internal/response"
)

type readOutcome int

const (
	readOK readOutcome = iota
	readTimedOut
	readFailed
)

type readResult struct {
	outcome readOutcome
	req     *request.Request
	err     error
}

// connHandler serves every request on one connection, one at a time.
type connHandler struct {
	srv    *Server
	conn   net.Conn
	reader *bufio.Reader
	remote string

	closeOnce sync.Once
	closeErr  error
}

func newConnHandler(srv *Server, conn net.Conn) *connHandler {
	remote := ""
	if addr := conn.RemoteAddr(); addr != nil {
		remote = addr.String()
	}
	return &connHandler{
		srv:    srv,
		conn:   conn,
		reader: bufio.NewReader(conn),
		remote: remote,
	}
}

// serve loops reading a request and answering it until the connection
// times out or fails. The connection is always closed on return.
func (h *connHandler) serve() {
	defer func() {
		if r := recover(); r != nil {
			h.srv.Logger.Error("panic recovered",
				Field{"error", r},
				Field{"stack", string(debug.Stack())},
				Field{"remote", h.remote},
			)
			h.close()
		}
	}()

	if err := h.conn.SetReadDeadline(time.Now().Add(h.srv.cfg.ReadTimeout)); err != nil {
		h.srv.Logger.Warn("set read deadline failed", Field{"remote", h.remote}, Field{"error", err})
		h.close()
		return
	}

	for {
		res := h.readRequest()

		switch res.outcome {
		case readTimedOut:
			h.srv.metrics.IdleTimeouts.Add(1)
			h.srv.Logger.Debug("idle timeout", Field{"remote", h.remote})
			h.close()
			return

		case readFailed:
			if errors.Is(res.err, io.EOF) || errors.Is(res.err, net.ErrClosed) {
				h.srv.metrics.Disconnects.Add(1)
				h.srv.Logger.Debug("client went away", Field{"remote", h.remote})
			} else {
				h.srv.metrics.ReadFailures.Add(1)
				h.srv.Logger.Warn("read request failed", Field{"remote", h.remote}, Field{"error", res.err})
			}
			h.close()
			return
		}

		if err := h.respond(res.req); err != nil {
			h.srv.metrics.WriteFailures.Add(1)
			h.srv.Logger.Warn("send response failed", Field{"remote", h.remote}, Field{"error", err})
			h.close()
			return
		}

		if err := armNextRead(h.conn, res.req, h.srv.cfg); err != nil {
			h.srv.Logger.Warn("set read deadline failed", Field{"remote", h.remote}, Field{"error", err})
			h.close()
			return
		}
	}
}

func (h *connHandler) readRequest() readResult {
	req, err := request.RequestFromReader(h.reader)
	if err == nil {
		return readResult{outcome: readOK, req: req.WithIdleTimeout(h.srv.cfg.IdleTimeout)}
	}
	if isTimeout(err) {
		return readResult{outcome: readTimedOut, err: err}
	}
	return readResult{outcome: readFailed, err: err}
}

func (h *connHandler) respond(req *request.Request) error {
	start := time.Now()
	cfg := h.srv.cfg

	res := h.srv.resolver.Resolve(req.Path)
	status := res.Status()

	resp := response.New(req.Version, status, response.StatusText(status))
	resp.Body = res.Body
	resp.SetHeader("Location", cfg.Location)
	resp.SetHeader("Date", httpdate.FormatGMT(h.srv.now()))
	resp.SetHeader("Server", cfg.ServerName)
	resp.SetHeader("Content-Type", cfg.ContentType)
	resp.SetHeader("Content-Length", resp.SizeString())
	resp.SetOutput(h.conn)

	if err := resp.Send(); err != nil {
		return err
	}

	duration := time.Since(start)
	h.srv.metrics.RecordResponse(status, duration)

	logf := h.srv.Logger.Info
	if status.IsClientError() {
		logf = h.srv.Logger.Warn
	}
	logf("request handled",
		Field{"method", req.Method},
		Field{"path", req.Path},
		Field{"status", int(status)},
		Field{"bytes", len(resp.Body)},
		Field{"keep_alive", req.KeepAlive},
		Field{"duration_ms", duration.Milliseconds()},
		Field{"remote", h.remote},
	)
	return nil
}

// close closes the connection exactly once, however many times it is called.
func (h *connHandler) close() error {
	h.closeOnce.Do(func() {
		h.closeErr = h.conn.Close()
	})
	return h.closeErr
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
