package server

import (
	"net"
	"time"

	"github.com/Brownie44l1/staticd/internal/request"
)

type keepAliveSetter interface {
	SetKeepAlive(keepalive bool) error
}

// armNextRead sets the deadline for the next request on conn once the
// response to req has been sent. Keep-alive requests get their idle
// timeout; anything else gets the short close timeout so the connection
// is reclaimed even if the client never closes it.
func armNextRead(conn net.Conn, req *request.Request, cfg Config) error {
	if !req.KeepAlive {
		return conn.SetReadDeadline(time.Now().Add(cfg.CloseTimeout))
	}

	if tcp, ok := conn.(keepAliveSetter); ok {
		if err := tcp.SetKeepAlive(true); err != nil {
			return err
		}
	}
	return conn.SetReadDeadline(time.Now().Add(req.IdleTimeout))
}
