/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package reqclient

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// CancelToken is shared between a pending call and whoever may cancel it.
// The call polls IsCancelled (or waits on Done) at every suspension point.
type CancelToken struct {
	cancelled atomic.Bool
	once      sync.Once
	done      chan struct{}
}

// NewCancelToken creates a new CancelToken.
func NewCancelToken() *CancelToken {
	return &CancelToken{done: make(chan struct{})}
}

// Cancel signals the token. Subsequent calls are no-ops.
func (t *CancelToken) Cancel() {
	t.once.Do(func() {
		t.cancelled.Store(true)
		close(t.done)
	})
}

// IsCancelled reports whether Cancel has been called.
func (t *CancelToken) IsCancelled() bool {
	return t.cancelled.Load()
}

// Done returns a channel that's closed when the token is cancelled.
func (t *CancelToken) Done() <-chan struct{} {
	return t.done
}

// PendingRequest is an entry of the Registry.
type PendingRequest struct {
	ID        string
	Token     *CancelToken
	StartedAt time.Time
}

// Registry tracks in-flight outbound calls by id.
type Registry struct {
	mu      sync.Mutex
	pending map[string]PendingRequest
	now     func() time.Time
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{pending: make(map[string]PendingRequest), now: time.Now}
}

// Register adds a pending entry for id and returns its token.
// If id is already pending, it returns *DuplicateIDError unless replaceStale is set,
// in which case the previous entry is cancelled and replaced.
func (r *Registry) Register(id string, replaceStale bool) (*CancelToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.pending[id]; ok {
		if !replaceStale {
			return nil, &DuplicateIDError{ID: id}
		}
		prev.Token.Cancel()
	}
	token := NewCancelToken()
	r.pending[id] = PendingRequest{ID: id, Token: token, StartedAt: r.now()}
	return token, nil
}

// Deregister removes the entry for id only if it's still owned by token.
func (r *Registry) Deregister(id string, token *CancelToken) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.pending[id]; ok && entry.Token == token {
		delete(r.pending, id)
		return true
	}
	return false
}

// Cancel cancels the pending call with the id. It's a no-op when there is no such call.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	entry, ok := r.pending[id]
	r.mu.Unlock()
	if !ok {
		return false
	}
	entry.Token.Cancel()
	return true
}

// CancelAll cancels every pending call and returns their number.
func (r *Registry) CancelAll() int {
	r.mu.Lock()
	tokens := make([]*CancelToken, 0, len(r.pending))
	for _, entry := range r.pending {
		tokens = append(tokens, entry.Token)
	}
	r.mu.Unlock()
	for _, token := range tokens {
		token.Cancel()
	}
	return len(tokens)
}

// Get returns the pending entry for id.
func (r *Registry) Get(id string) (PendingRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.pending[id]
	return entry, ok
}

// Len returns the number of pending calls.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// IDs returns the sorted ids of pending calls.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.pending))
	for id := range r.pending {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Strings(ids)
	return ids
}
