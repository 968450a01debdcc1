/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package schema provides declarative descriptions of JSON response shapes,
// validation that reports every violated field, and an ordered list of extraction strategies
// for upstreams that wrap the useful object (envelopes, chat completion content, text with embedded JSON).
package schema
