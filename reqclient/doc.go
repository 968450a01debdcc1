/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package reqclient provides the resilient request client used for every outbound call:
// per-attempt timeouts, retries with exponential backoff and jitter, cancellation by request id,
// deduplication of concurrent identical calls and schema-validated responses.
//
// Callers observe either a success or one terminal *Error:
//
//	reply, err := reqclient.Call[ChatReply](ctx, client, http.MethodPost, "/chat/completions", req, replySchema,
//		reqclient.WithRequestID(id))
//	if errors.Is(err, reqclient.ErrCancelled) {
//		...
//	}
package reqclient
