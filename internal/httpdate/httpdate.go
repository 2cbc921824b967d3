// Package httpdate formats timestamps for the Date response header.
package httpdate

import "time"

// Layout is RFC 1123 with a literal GMT zone and a 24-hour clock.
const Layout = "Mon, 02 Jan 2006 15:04:05 GMT"

// FormatGMT formats t in GMT with English day and month names.
func FormatGMT(t time.Time) string {
	return t.UTC().Format(Layout)
}
