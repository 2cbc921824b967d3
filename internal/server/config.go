package server

import "time"

// Config holds the listener, pool and timeout settings plus the fixed
// header values stamped on every response.
type Config struct {
	// Addr is the TCP address to listen on.
	Addr string

	// MaxWorkers bounds the number of connections served at once.
	MaxWorkers int

	// ReadTimeout arms the first read on a fresh connection.
	ReadTimeout time.Duration

	// IdleTimeout is how long a keep-alive connection waits for its next request.
	IdleTimeout time.Duration

	// CloseTimeout replaces IdleTimeout after a "Connection: close" request,
	// so clients that never close are reclaimed quickly.
	CloseTimeout time.Duration

	Location    string
	ServerName  string
	ContentType string
}

// DefaultConfig returns the settings the server ships with.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8000",
		MaxWorkers:   20,
		ReadTimeout:  3 * time.Second,
		IdleTimeout:  3000 * time.Millisecond,
		CloseTimeout: 300 * time.Millisecond,
		Location:     "http://localhost:8000/",
		ServerName:   "MeuServidor/1.0",
		ContentType:  "text/html",
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Addr == "" {
		c.Addr = d.Addr
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = d.MaxWorkers
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = d.CloseTimeout
	}
	if c.Location == "" {
		c.Location = d.Location
	}
	if c.ServerName == "" {
		c.ServerName = d.ServerName
	}
	if c.ContentType == "" {
		c.ContentType = d.ContentType
	}
	return c
}
