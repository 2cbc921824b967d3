package headers

import (
	"errors"
	"io"
	"sort"
	"strings"
)

// Separator splits a header line into name and value.
const Separator = ": "

var ErrMalformedHeader = errors.New("malformed header: missing \": \" separator")

// Headers maps an exact header name to its ordered values.
// Names are stored as received; lookups are case-sensitive.
type Headers struct {
	headers map[string][]string
}

func NewHeaders() *Headers {
	return &Headers{
		headers: make(map[string][]string),
	}
}

// Get returns the first value for a header
func (h *Headers) Get(name string) (string, bool) {
	values := h.headers[name]
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// Values returns all values for a header
func (h *Headers) Values(name string) []string {
	return h.headers[name]
}

func (h *Headers) Has(name string) bool {
	_, ok := h.headers[name]
	return ok
}

// Set replaces all values for a header
func (h *Headers) Set(name string, values ...string) {
	if h.headers == nil {
		h.headers = make(map[string][]string)
	}
	h.headers[name] = append([]string(nil), values...)
}

func (h *Headers) Len() int {
	return len(h.headers)
}

// Names returns header names in ascending byte order.
func (h *Headers) Names() []string {
	names := make([]string, 0, len(h.headers))
	for name := range h.headers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Contains reports whether value is one of the values of name, compared exactly.
func (h *Headers) Contains(name, value string) bool {
	for _, v := range h.headers[name] {
		if v == value {
			return true
		}
	}
	return false
}

// ParseLine parses one header line (without its CRLF) and stores it.
// The value is split on ',' with no trimming, so "a, b" becomes ["a", " b"].
func (h *Headers) ParseLine(line string) error {
	name, value, ok := strings.Cut(line, Separator)
	if !ok {
		return ErrMalformedHeader
	}
	h.Set(name, strings.Split(value, ",")...)
	return nil
}

// WriteTo writes "Name: v1, v2\r\n" for every header in sorted name order.
func (h *Headers) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, name := range h.Names() {
		n, err := io.WriteString(w, name+Separator+strings.Join(h.headers[name], ", ")+"\r\n")
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
