package websocket

import (
	"fmt"
	"net/url"
	"strings"
)

// OriginValidator interface for WebSocket origin validation
type OriginValidator interface {
	IsAllowedOrigin(origin string) bool
}

// HostOriginValidator accepts the dev server's own origins plus an explicit
// allow list. Requests without an Origin header are same-origin and allowed.
type HostOriginValidator struct {
	Host    string
	Port    int
	Allowed []string
}

// IsAllowedOrigin checks if the origin is allowed for WebSocket connections
func (v *HostOriginValidator) IsAllowedOrigin(origin string) bool {
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if originURL.Scheme != "http" && originURL.Scheme != "https" {
		return false
	}

	for _, allowed := range v.Allowed {
		if allowed == "*" || strings.TrimSuffix(allowed, "/") == strings.TrimSuffix(origin, "/") {
			return true
		}
	}

	allowedHosts := []string{
		fmt.Sprintf("localhost:%d", v.Port),
		fmt.Sprintf("127.0.0.1:%d", v.Port),
	}
	if v.Host != "" {
		allowedHosts = append(allowedHosts, fmt.Sprintf("%s:%d", v.Host, v.Port))
	}

	for _, allowed := range allowedHosts {
		if originURL.Host == allowed {
			return true
		}
	}
	return false
}
