package request

import (
	"errors"
	"strings"
)

var ErrMalformedRequestLine = errors.New("malformed request line")

// parseRequestLine parses: METHOD PATH VERSION
// Exactly three single-space separated tokens are accepted; nothing else is validated.
func parseRequestLine(line string) (string, string, string, error) {
	parts := strings.Split(line, " ")
	if len(parts) != 3 {
		return "", "", "", ErrMalformedRequestLine
	}
	return parts[0], parts[1], parts[2], nil
}
