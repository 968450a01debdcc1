/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package reqclient

import (
	"context"
	"errors"
	"sync"
	"time"
)

// inflightCall is one shared execution of deduplicated calls.
// It is cancelled when the last participant leaves before it completes.
type inflightCall struct {
	done         chan struct{}
	token        *CancelToken
	participants int
	resp         *Response
	err          error
}

// inflightGroup collapses concurrent calls with the same key into one execution.
type inflightGroup struct {
	mu    sync.Mutex
	calls map[string]*inflightCall
}

func newInflightGroup() *inflightGroup {
	return &inflightGroup{calls: make(map[string]*inflightCall)}
}

// join adds a participant to the running execution for key or creates a new one.
// started is false for the participant that must start the execution.
func (g *inflightGroup) join(key string) (call *inflightCall, started bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if call, ok := g.calls[key]; ok {
		call.participants++
		return call, true
	}
	call = &inflightCall{done: make(chan struct{}), token: NewCancelToken(), participants: 1}
	g.calls[key] = call
	return call, false
}

// leave removes a participant that stopped waiting. The last one to leave cancels the execution,
// and the key is released so later calls start a fresh one.
func (g *inflightGroup) leave(key string, call *inflightCall) {
	g.mu.Lock()
	defer g.mu.Unlock()
	call.participants--
	if call.participants > 0 {
		return
	}
	if g.calls[key] == call {
		delete(g.calls, key)
	}
	call.token.Cancel()
}

// complete publishes the outcome of the execution to its participants.
func (g *inflightGroup) complete(key string, call *inflightCall, resp *Response, err error) {
	g.mu.Lock()
	if g.calls[key] == call {
		delete(g.calls, key)
	}
	call.resp, call.err = resp, err
	g.mu.Unlock()
	close(call.done)
}

// participants returns the number of callers waiting for the execution for key.
func (g *inflightGroup) participants(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if call, ok := g.calls[key]; ok {
		return call.participants
	}
	return 0
}

// detachedContext keeps the values of its parent but is never done.
type detachedContext struct {
	parent context.Context
}

func (detachedContext) Deadline() (time.Time, bool) { return time.Time{}, false }

func (detachedContext) Done() <-chan struct{} { return nil }

func (detachedContext) Err() error { return nil }

func (d detachedContext) Value(key interface{}) interface{} { return d.parent.Value(key) }

// doDeduplicated registers the caller's own id and then waits for the shared execution for the dedupe key.
// The caller's id can be cancelled independently of the other participants.
func (c *Client) doDeduplicated(ctx context.Context, req Request, o callOptions) (*Response, error) {
	id := c.callID(o)
	logger := c.callLogger(ctx, id, o)

	body, err := encodePayload(req.Payload)
	if err != nil {
		return nil, c.finish(logger, o, &Error{Kind: KindClient, Message: "encode payload", RequestID: id, Cause: err})
	}
	token, err := c.registry.Register(id, o.replaceStale)
	if err != nil {
		return nil, c.finish(logger, o, &Error{
			Kind: KindDuplicateID, Message: "request id is already pending", RequestID: id, Cause: err})
	}
	defer c.registry.Deregister(id, token)

	call, started := c.inflight.join(o.dedupeKey)
	if !started {
		go func() {
			resp, execErr := c.execute(detachedContext{ctx}, call.token, id, req, body, o, logger)
			c.inflight.complete(o.dedupeKey, call, resp, execErr)
		}()
	}

	select {
	case <-call.done:
		if !token.IsCancelled() && ctx.Err() == nil {
			return sharedOutcome(call, id)
		}
	case <-token.Done():
	case <-ctx.Done():
	}
	c.inflight.leave(o.dedupeKey, call)
	e := &Error{Kind: KindCancelled, Message: "request cancelled while waiting for the deduplicated call", RequestID: id}
	if !token.IsCancelled() {
		e.Cause = ctx.Err()
	}
	return nil, c.finish(logger, o, e)
}

// sharedOutcome copies the outcome of the shared execution for the participant with id.
func sharedOutcome(call *inflightCall, id string) (*Response, error) {
	if call.err != nil {
		var callErr *Error
		if !errors.As(call.err, &callErr) {
			return nil, &Error{Kind: KindRequestFailed, Message: "deduplicated call failed", RequestID: id, Cause: call.err}
		}
		errCopy := *callErr
		errCopy.RequestID = id
		return nil, &errCopy
	}
	respCopy := *call.resp
	respCopy.RequestID = id
	return &respCopy, nil
}
