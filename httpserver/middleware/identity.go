/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"strings"
)

// DefaultIdentityHeader is the header in which the authenticating proxy passes the caller's subject id.
const DefaultIdentityHeader = "X-Authenticated-User"

// IdentityFromHeader is a middleware that puts the subject id set by an authenticating proxy into the request's context.
// It must only be used behind a proxy that strips the header from client requests.
func IdentityFromHeader(header string) func(next http.Handler) http.Handler {
	if header == "" {
		header = DefaultIdentityHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			if identity := strings.TrimSpace(r.Header.Get(header)); identity != "" {
				r = r.WithContext(NewContextWithIdentity(r.Context(), identity))
			}
			next.ServeHTTP(rw, r)
		})
	}
}
