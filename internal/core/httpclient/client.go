// Package httpclient builds the pooled HTTP client used by the load generator against spatiald.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

type Option func(*settings)

type settings struct {
	timeout        time.Duration
	maxIdle        int
	maxIdlePerHost int
}

// WithTimeout bounds each request including reading the body.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// WithPool sizes the idle connection pool; workers above perHost open fresh connections.
func WithPool(total, perHost int) Option {
	return func(s *settings) {
		s.maxIdle = total
		s.maxIdlePerHost = perHost
	}
}

func NewOutbound(opts ...Option) *http.Client {
	s := settings{timeout: 30 * time.Second, maxIdle: 256, maxIdlePerHost: 128}
	for _, o := range opts {
		o(&s)
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          s.maxIdle,
		MaxIdleConnsPerHost:   s.maxIdlePerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   s.timeout,
	}
}
