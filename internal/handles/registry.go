// Package handles issues opaque, time-bounded references to in-memory
// outputs and makes sure they are released.
package handles

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// Prefix starts every handle.
const Prefix = "blob:"

// Handle is an opaque reference to a registered Blob.
type Handle string

// Valid reports whether h has the handle shape.
func (h Handle) Valid() bool {
	return strings.HasPrefix(string(h), Prefix) && len(h) > len(Prefix)
}

// Blob is an output made available through a handle.
type Blob struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Registry resolves handles to blobs. Entries expire after the TTL even if
// never revoked.
type Registry struct {
	cache   *cache.Cache
	created atomic.Int64
	revoked atomic.Int64
}

// NewRegistry creates a registry whose handles live for ttl. A zero ttl
// means handles live until revoked.
func NewRegistry(ttl time.Duration) *Registry {
	cleanup := ttl / 2
	if ttl <= 0 {
		ttl = cache.NoExpiration
		cleanup = 0
	}
	return &Registry{cache: cache.New(ttl, cleanup)}
}

// Register stores blob and returns a new handle for it.
func (r *Registry) Register(blob Blob) Handle {
	h := Handle(Prefix + uuid.NewString())
	r.cache.Set(string(h), blob, cache.DefaultExpiration)
	r.created.Add(1)
	return h
}

// Resolve returns the blob behind h.
func (r *Registry) Resolve(h Handle) (Blob, bool) {
	if x, found := r.cache.Get(string(h)); found {
		return x.(Blob), true
	}
	return Blob{}, false
}

// Revoke releases h. It reports false when h was not live.
func (r *Registry) Revoke(h Handle) bool {
	if _, found := r.cache.Get(string(h)); !found {
		return false
	}
	r.cache.Delete(string(h))
	r.revoked.Add(1)
	return true
}

// Live returns the number of unexpired, unrevoked handles.
func (r *Registry) Live() int {
	return len(r.cache.Items())
}

// Created returns how many handles were ever registered.
func (r *Registry) Created() int64 {
	return r.created.Load()
}

// Revoked returns how many handles were explicitly revoked.
func (r *Registry) Revoked() int64 {
	return r.revoked.Load()
}

// MustResolve is Resolve with an error for unknown handles.
func (r *Registry) MustResolve(h Handle) (Blob, error) {
	blob, ok := r.Resolve(h)
	if !ok {
		return Blob{}, fmt.Errorf("handle %s is not live", h)
	}
	return blob, nil
}
