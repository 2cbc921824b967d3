package response

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Brownie44l1/staticd/internal/headers"
)

var (
	ErrNoOutput    = errors.New("response output not set")
	ErrWriteFailed = errors.New("write response")
)

// Response is one HTTP response. The zero value is valid; every field
// stays unset until assigned.
type Response struct {
	Version       string
	StatusCode    StatusCode
	StatusMessage string
	Body          []byte

	headers *headers.Headers
	out     io.Writer
}

// New creates a response with its status line filled in
func New(version string, code StatusCode, message string) *Response {
	return &Response{
		Version:       version,
		StatusCode:    code,
		StatusMessage: message,
	}
}

// Headers returns the header map, allocating it on first use
func (r *Response) Headers() *headers.Headers {
	if r.headers == nil {
		r.headers = headers.NewHeaders()
	}
	return r.headers
}

// SetHeader replaces all values of a header
func (r *Response) SetHeader(name string, values ...string) {
	r.Headers().Set(name, values...)
}

// SetOutput binds the sink Send writes to
func (r *Response) SetOutput(w io.Writer) {
	r.out = w
}

func (r *Response) Output() io.Writer {
	return r.out
}

// SizeString returns len(Body) in decimal.
func (r *Response) SizeString() string {
	return strconv.Itoa(len(r.Body))
}

// String returns the status line and header block, without the body.
func (r *Response) String() string {
	var sb strings.Builder
	r.writeHead(&sb)
	return sb.String()
}

func (r *Response) writeHead(w io.Writer) (int64, error) {
	n, err := fmt.Fprintf(w, "%s %d %s\r\n", r.Version, r.StatusCode, r.StatusMessage)
	total := int64(n)
	if err != nil {
		return total, err
	}

	if r.headers != nil {
		hn, err := r.headers.WriteTo(w)
		total += hn
		if err != nil {
			return total, err
		}
	}

	n, err = io.WriteString(w, "\r\n")
	total += int64(n)
	return total, err
}

// WriteTo writes the head followed by the raw body.
func (r *Response) WriteTo(w io.Writer) (int64, error) {
	total, err := r.writeHead(w)
	if err != nil {
		return total, err
	}
	n, err := w.Write(r.Body)
	return total + int64(n), err
}

// Send serializes the response and writes it to the output in a single Write.
// A Content-Length header, if set, is rewritten to match the body.
func (r *Response) Send() error {
	if r.out == nil {
		return ErrNoOutput
	}

	if r.headers != nil && r.headers.Has("Content-Length") {
		r.headers.Set("Content-Length", r.SizeString())
	}

	buf := getBuffer()
	defer putBuffer(buf)

	// bytes.Buffer writes never fail
	r.WriteTo(buf)

	n, err := r.out.Write(buf.Bytes())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	if n != buf.Len() {
		return fmt.Errorf("%w: %w", ErrWriteFailed, io.ErrShortWrite)
	}
	return nil
}
