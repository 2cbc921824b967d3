package request

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/Brownie44l1/staticd/internal/headers"
)

// DefaultIdleTimeout is how long a keep-alive connection waits for the next request.
const DefaultIdleTimeout = 3000 * time.Millisecond

// Size limits. A request over any of them is rejected before it is buffered.
const (
	maxRequestLineSize = 8192
	maxHeaderSize      = 1 << 20
	maxHeaderLines     = 1000
)

var (
	ErrUnterminatedHeaders = errors.New("header block not terminated")
	ErrRequestLineTooLarge = errors.New("request line too large")
	ErrHeaderTooLarge      = errors.New("headers too large")
	ErrTooManyHeaders      = errors.New("too many header lines")
)

var errLineTooLong = errors.New("line too long")

type Request struct {
	Method  string
	Path    string
	Version string
	Headers *headers.Headers

	// KeepAlive is false only when a Connection value is exactly "close".
	KeepAlive bool
	// IdleTimeout is not read from the wire; the connection handler sets it.
	IdleTimeout time.Duration
}

// New returns an empty request carrying the defaults.
func New() *Request {
	return &Request{
		Headers:     headers.NewHeaders(),
		KeepAlive:   true,
		IdleTimeout: DefaultIdleTimeout,
	}
}

// WithIdleTimeout returns a copy of r with a different idle timeout.
func (r *Request) WithIdleTimeout(d time.Duration) *Request {
	c := *r
	c.IdleTimeout = d
	return &c
}

// RequestFromReader reads one request line and its header block.
// The body, if any, is never read. The request line is capped at
// maxRequestLineSize bytes and the header block at maxHeaderSize bytes
// and maxHeaderLines lines, terminators included.
func RequestFromReader(reader *bufio.Reader) (*Request, error) {
	line, n, err := readLine(reader, maxRequestLineSize)
	if errors.Is(err, errLineTooLong) {
		return nil, ErrRequestLineTooLarge
	}
	if err != nil {
		return nil, fmt.Errorf("read request line: %w", err)
	}

	method, path, version, err := parseRequestLine(line)
	if err != nil {
		return nil, err
	}

	req := New()
	req.Method = method
	req.Path = path
	req.Version = version

	budget := maxHeaderSize
	for lines := 0; ; lines++ {
		line, n, err = readLine(reader, budget)
		if errors.Is(err, errLineTooLong) {
			return nil, ErrHeaderTooLarge
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnterminatedHeaders, err)
		}
		budget -= n
		if line == "" {
			break
		}
		if lines == maxHeaderLines {
			return nil, ErrTooManyHeaders
		}
		if err := req.Headers.ParseLine(line); err != nil {
			return nil, err
		}
	}

	if req.Headers.Contains("Connection", "close") {
		req.KeepAlive = false
	}

	return req, nil
}

// readLine returns the next line without its CRLF (or bare LF) and the
// number of bytes consumed. It fails with errLineTooLong once more than
// limit bytes arrive without a line feed. A final line missing its
// terminator is reported as the read error.
func readLine(reader *bufio.Reader, limit int) (string, int, error) {
	var line []byte
	for {
		frag, err := reader.ReadSlice('\n')
		if len(line)+len(frag) > limit {
			return "", 0, errLineTooLong
		}
		line = append(line, frag...)
		if err == nil {
			break
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return "", 0, err
		}
	}
	n := len(line)
	line = bytes.TrimSuffix(line, []byte("\n"))
	return string(bytes.TrimSuffix(line, []byte("\r"))), n, nil
}
