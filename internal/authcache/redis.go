package authcache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"counselsoc.org/internal/auth"
)

const (
	adminKeyPrefix  = "principal:admin:"
	memberKeyPrefix = "principal:member:"
)

// Redis is an auth.PrincipalCache over a shared Redis instance, for
// deployments running more than one API node. Cache misses and transport
// errors are treated the same: the caller falls through to the store.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

var _ auth.PrincipalCache = (*Redis)(nil)

// NewRedis constructs a Redis cache. A non-positive ttl falls back to
// DefaultTTL.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) GetAdmin(ctx context.Context, id string) (*auth.AdminPrincipal, bool) {
	var p auth.AdminPrincipal
	if !r.get(ctx, adminKeyPrefix+id, &p) {
		return nil, false
	}
	return &p, true
}

func (r *Redis) SetAdmin(ctx context.Context, id string, p *auth.AdminPrincipal) {
	r.set(ctx, adminKeyPrefix+id, p)
}

func (r *Redis) InvalidateAdmin(ctx context.Context, id string) {
	r.client.Del(ctx, adminKeyPrefix+id)
}

func (r *Redis) GetMember(ctx context.Context, id string) (*auth.MemberPrincipal, bool) {
	var p auth.MemberPrincipal
	if !r.get(ctx, memberKeyPrefix+id, &p) {
		return nil, false
	}
	return &p, true
}

func (r *Redis) SetMember(ctx context.Context, id string, p *auth.MemberPrincipal) {
	r.set(ctx, memberKeyPrefix+id, p)
}

func (r *Redis) InvalidateMember(ctx context.Context, id string) {
	r.client.Del(ctx, memberKeyPrefix+id)
}

func (r *Redis) get(ctx context.Context, key string, dest any) bool {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, dest) == nil
}

func (r *Redis) set(ctx context.Context, key string, value any) {
	if value == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	r.client.Set(ctx, key, raw, r.ttl)
}
