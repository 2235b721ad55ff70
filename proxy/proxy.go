// Package proxy maps service names to dialer proxy functions.
package proxy

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Env selects the proxy from HTTP_PROXY, HTTPS_PROXY and NO_PROXY.
const Env = "env"

// Func is the shape of websocket.Dialer.Proxy and http.Transport.Proxy.
type Func = func(*http.Request) (*url.URL, error)

// Resolver holds per-service proxy settings, keyed like "stt_vosk-rest".
type Resolver struct {
	services map[string]string
}

func New(services map[string]string) *Resolver {
	m := make(map[string]string, len(services))
	for k, v := range services {
		m[k] = strings.TrimSpace(v)
	}
	return &Resolver{services: m}
}

// For returns the proxy function for service. A nil function means dial directly.
func (r *Resolver) For(service string) (Func, error) {
	if r == nil {
		return nil, nil
	}
	raw := r.services[service]
	switch raw {
	case "":
		return nil, nil
	case Env:
		return http.ProxyFromEnvironment, nil
	}

	u, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("proxy for %s: %w", service, err)
	}
	return http.ProxyURL(u), nil
}

// Parse validates a proxy URL. Supported schemes are http, https and socks5.
func Parse(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http", "https", "socks5":
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("proxy %q has no host", raw)
	}
	return u, nil
}
