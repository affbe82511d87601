// Package authcache provides short-lived principal caches backing the
// authorization gate: an in-process map for single-node deployments and a
// Redis variant for multi-node ones.
package authcache

import (
	"context"
	"sync"
	"time"

	"counselsoc.org/internal/auth"
)

const DefaultTTL = 30 * time.Second

type memoryEntry[T any] struct {
	value     T
	expiresAt time.Time
}

// Memory is an in-process auth.PrincipalCache with per-entry TTL. Expired
// entries are dropped lazily on read and swept opportunistically on write.
type Memory struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	admins  map[string]memoryEntry[*auth.AdminPrincipal]
	members map[string]memoryEntry[*auth.MemberPrincipal]
}

var _ auth.PrincipalCache = (*Memory)(nil)

// MemoryOption configures a Memory cache.
type MemoryOption func(*Memory)

// WithMemoryClock overrides the time source, for tests.
func WithMemoryClock(fn func() time.Time) MemoryOption {
	return func(m *Memory) {
		if fn != nil {
			m.now = fn
		}
	}
}

// NewMemory constructs a Memory cache. A non-positive ttl falls back to
// DefaultTTL.
func NewMemory(ttl time.Duration, opts ...MemoryOption) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &Memory{
		ttl:     ttl,
		now:     time.Now,
		admins:  make(map[string]memoryEntry[*auth.AdminPrincipal]),
		members: make(map[string]memoryEntry[*auth.MemberPrincipal]),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) GetAdmin(_ context.Context, id string) (*auth.AdminPrincipal, bool) {
	m.mu.RLock()
	entry, ok := m.admins[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if m.now().After(entry.expiresAt) {
		m.InvalidateAdmin(context.Background(), id)
		return nil, false
	}
	return entry.value, true
}

func (m *Memory) SetAdmin(_ context.Context, id string, p *auth.AdminPrincipal) {
	if p == nil {
		return
	}
	m.mu.Lock()
	m.sweepLocked()
	m.admins[id] = memoryEntry[*auth.AdminPrincipal]{value: p, expiresAt: m.now().Add(m.ttl)}
	m.mu.Unlock()
}

func (m *Memory) InvalidateAdmin(_ context.Context, id string) {
	m.mu.Lock()
	delete(m.admins, id)
	m.mu.Unlock()
}

func (m *Memory) GetMember(_ context.Context, id string) (*auth.MemberPrincipal, bool) {
	m.mu.RLock()
	entry, ok := m.members[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if m.now().After(entry.expiresAt) {
		m.InvalidateMember(context.Background(), id)
		return nil, false
	}
	return entry.value, true
}

func (m *Memory) SetMember(_ context.Context, id string, p *auth.MemberPrincipal) {
	if p == nil {
		return
	}
	m.mu.Lock()
	m.sweepLocked()
	m.members[id] = memoryEntry[*auth.MemberPrincipal]{value: p, expiresAt: m.now().Add(m.ttl)}
	m.mu.Unlock()
}

func (m *Memory) InvalidateMember(_ context.Context, id string) {
	m.mu.Lock()
	delete(m.members, id)
	m.mu.Unlock()
}

func (m *Memory) sweepLocked() {
	now := m.now()
	for id, entry := range m.admins {
		if now.After(entry.expiresAt) {
			delete(m.admins, id)
		}
	}
	for id, entry := range m.members {
		if now.After(entry.expiresAt) {
			delete(m.members, id)
		}
	}
}
