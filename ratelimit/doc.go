/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package ratelimit limits how often a caller (identified by a string key) may hit an endpoint.
//
// The primary algorithm is a fixed window counter kept in a process-scoped State that the
// application creates once and injects into every limiter. Sliding window and leaky bucket
// (GCRA) limiters are available for endpoints that need smoother shaping.
package ratelimit
