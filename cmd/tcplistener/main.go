package main

import (
	"bufio"
	"net"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Brownie44l1/staticd/internal/request"
	"github.com/Brownie44l1/staticd/internal/server"
)

// tcplistener prints every request it receives and answers nothing.
// Useful for checking what a client actually puts on the wire.
func main() {
	logger := server.NewLogger(os.Stdout, logrus.DebugLevel)

	listener, err := net.Listen("tcp", ":42069")
	if err != nil {
		logger.Error("listen failed", server.Field{Key: "error", Value: err})
		os.Exit(1)
	}
	defer listener.Close()
	logger.Info("listening", server.Field{Key: "addr", Value: listener.Addr().String()})

	for {
		conn, err := listener.Accept()
		if err != nil {
			logger.Warn("accept error", server.Field{Key: "error", Value: err})
			continue
		}

		go handleConnection(conn, logger)
	}
}

func handleConnection(conn net.Conn, logger server.Logger) {
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	reader := bufio.NewReader(conn)

	for {
		req, err := request.RequestFromReader(reader)
		if err != nil {
			logger.Debug("connection done", server.Field{Key: "remote", Value: remote}, server.Field{Key: "error", Value: err})
			return
		}

		fields := []server.Field{
			{Key: "remote", Value: remote},
			{Key: "method", Value: req.Method},
			{Key: "path", Value: req.Path},
			{Key: "version", Value: req.Version},
			{Key: "keep_alive", Value: req.KeepAlive},
		}
		for _, name := range req.Headers.Names() {
			fields = append(fields, server.Field{Key: "h." + name, Value: strings.Join(req.Headers.Values(name), ",")})
		}
		logger.Info("request", fields...)

		if !req.KeepAlive {
			return
		}
	}
}
