/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrRateLimitKeyNotFound is returned by key funcs when the request carries nothing to derive a key from.
var ErrRateLimitKeyNotFound = errors.New("rate limit key not found")

// RateLimitKeyByRemoteAddr uses the IP address of the direct peer as the key.
func RateLimitKeyByRemoteAddr(r *http.Request) (key string, bypass bool, err error) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		if r.RemoteAddr == "" {
			return "", false, ErrRateLimitKeyNotFound
		}
		return r.RemoteAddr, false, nil
	}
	return host, false, nil
}

// RateLimitKeyByHeader uses the value of the request header as the key.
// Requests without the header are served without limiting when bypassEmpty is true, and fail otherwise.
func RateLimitKeyByHeader(header string, bypassEmpty bool) RateLimitGetKeyFunc {
	return func(r *http.Request) (key string, bypass bool, err error) {
		key = strings.TrimSpace(r.Header.Get(header))
		if key != "" {
			return key, false, nil
		}
		if bypassEmpty {
			return "", true, nil
		}
		return "", false, fmt.Errorf("header %q: %w", header, ErrRateLimitKeyNotFound)
	}
}

// RateLimitKeyByIdentity uses the authenticated identity put into the context by an authentication middleware.
// Anonymous requests are keyed by fallback (RateLimitKeyByRemoteAddr when nil).
func RateLimitKeyByIdentity(fallback RateLimitGetKeyFunc) RateLimitGetKeyFunc {
	if fallback == nil {
		fallback = RateLimitKeyByRemoteAddr
	}
	return func(r *http.Request) (key string, bypass bool, err error) {
		if identity := GetIdentityFromContext(r.Context()); identity != "" {
			return "id:" + identity, false, nil
		}
		return fallback(r)
	}
}

// RateLimitKeyByForwardedFor uses the client address from X-Forwarded-For (or X-Real-IP)
// only when the direct peer belongs to one of trustedProxies (CIDRs or single IPs).
// Otherwise the header can be forged, so the peer address is used.
func RateLimitKeyByForwardedFor(trustedProxies []string) (RateLimitGetKeyFunc, error) {
	nets := make([]*net.IPNet, 0, len(trustedProxies))
	for _, p := range trustedProxies {
		if !strings.Contains(p, "/") {
			ip := net.ParseIP(p)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", p)
			}
			bits := 8 * net.IPv6len
			if ip.To4() != nil {
				ip, bits = ip.To4(), 8*net.IPv4len
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, ipNet, err := net.ParseCIDR(p)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", p, err)
		}
		nets = append(nets, ipNet)
	}

	isTrusted := func(addr string) bool {
		ip := net.ParseIP(addr)
		if ip == nil {
			return false
		}
		for _, n := range nets {
			if n.Contains(ip) {
				return true
			}
		}
		return false
	}

	return func(r *http.Request) (key string, bypass bool, err error) {
		peer, bypass, err := RateLimitKeyByRemoteAddr(r)
		if err != nil || bypass {
			return peer, bypass, err
		}
		if !isTrusted(peer) {
			return peer, false, nil
		}
		if origin := getOriginAddr(r); origin != "" {
			if host, _, sErr := net.SplitHostPort(origin); sErr == nil {
				return host, false, nil
			}
			return origin, false, nil
		}
		return peer, false, nil
	}, nil
}
