/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package lrucache provides a bounded in-memory key store with LRU eviction, per-entry expiration
// and Prometheus metrics. reqguard keeps rate-limit counters in it so that the number of
// tracked callers stays bounded and stale windows are dropped.
package lrucache
