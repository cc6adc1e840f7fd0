package viewer

import (
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// Factory builds the viewer for one module.
type Factory func(moduleID string) *Viewer

// Broadcaster receives every snapshot published by a registered viewer.
type Broadcaster interface {
	Broadcast(key string, snap Snapshot)
}

// Registry keeps one viewer per (user, module). Idle viewers expire after the
// configured TTL and are closed on eviction.
type Registry struct {
	cache       *cache.Cache
	factory     Factory
	broadcaster Broadcaster
	mu          sync.Mutex
}

func NewRegistry(ttl time.Duration, factory Factory, broadcaster Broadcaster) *Registry {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	c := cache.New(ttl, ttl/2)
	c.OnEvicted(func(_ string, v interface{}) {
		if vw, ok := v.(*Viewer); ok {
			vw.Close()
		}
	})
	return &Registry{cache: c, factory: factory, broadcaster: broadcaster}
}

// Key identifies the viewer of moduleID opened by userID.
func Key(userID, moduleID string) string {
	return userID + "|" + moduleID
}

// Acquire returns the caller's viewer for moduleID, creating it on first use.
// Every call pushes the expiry back.
func (r *Registry) Acquire(userID, moduleID string) (string, *Viewer) {
	key := Key(userID, moduleID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.cache.Get(key); ok {
		vw := v.(*Viewer)
		r.cache.SetDefault(key, vw)
		return key, vw
	}

	// an expired entry the janitor has not reaped yet must be closed first
	r.cache.DeleteExpired()
	vw := r.factory(moduleID)
	r.cache.SetDefault(key, vw)
	if r.broadcaster != nil {
		ch, _ := vw.Subscribe(4)
		go func() {
			for snap := range ch {
				r.broadcaster.Broadcast(key, snap)
			}
		}()
	}
	return key, vw
}

// Peek returns the viewer under key without creating or touching it.
func (r *Registry) Peek(key string) (*Viewer, bool) {
	v, ok := r.cache.Get(key)
	if !ok {
		return nil, false
	}
	return v.(*Viewer), true
}

// InvalidateModule closes every open viewer of moduleID, so the next access
// reloads the stored definition.
func (r *Registry) InvalidateModule(moduleID string) int {
	suffix := "|" + moduleID

	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for key := range r.cache.Items() {
		if strings.HasSuffix(key, suffix) {
			r.cache.Delete(key)
			n++
		}
	}
	return n
}

func (r *Registry) Len() int {
	return r.cache.ItemCount()
}

// Close closes every viewer.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.cache.Items() {
		r.cache.Delete(key)
	}
}
