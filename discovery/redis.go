package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Compile-time interface check.
var _ Resolver = (*RedisRegistry)(nil)

const (
	// DefaultRedisPrefix is the key namespace used by RedisRegistry.
	DefaultRedisPrefix = "sentinel:discovery"

	// DefaultRegistrationTTL is how long a registration lives without a
	// heartbeat.
	DefaultRegistrationTTL = 30 * time.Second

	scanBatch = 100

	// lookupTimeout bounds one shared Instances round trip.
	lookupTimeout = 5 * time.Second
)

// RedisRegistry is a Resolver backed by Redis.
//
// Every instance is stored under its own key ("<prefix>:<service>:<instance>")
// holding the JSON encoded Instance, with a TTL. Instances disappear when
// their owner stops calling Register or Heartbeat. Concurrent lookups of the
// same service share one round trip.
type RedisRegistry struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger zerolog.Logger
	group  singleflight.Group
}

// RedisOption configures a RedisRegistry.
type RedisOption func(*RedisRegistry)

// WithRedisPrefix overrides DefaultRedisPrefix.
func WithRedisPrefix(prefix string) RedisOption {
	return func(r *RedisRegistry) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// WithRegistrationTTL overrides DefaultRegistrationTTL.
func WithRegistrationTTL(ttl time.Duration) RedisOption {
	return func(r *RedisRegistry) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithRedisLogger sets the logger used for heartbeat failures.
func WithRedisLogger(logger zerolog.Logger) RedisOption {
	return func(r *RedisRegistry) {
		r.logger = logger
	}
}

// NewRedisRegistry creates a RedisRegistry on top of an existing client.
func NewRedisRegistry(client redis.UniversalClient, opts ...RedisOption) *RedisRegistry {
	r := &RedisRegistry{
		client: client,
		prefix: DefaultRedisPrefix,
		ttl:    DefaultRegistrationTTL,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TTL returns the registration lifetime.
func (r *RedisRegistry) TTL() time.Duration {
	return r.ttl
}

// Register stores inst with the registry TTL, refreshing it if it exists.
func (r *RedisRegistry) Register(ctx context.Context, inst Instance) error {
	if err := inst.validate(); err != nil {
		return err
	}
	inst = inst.withDefaults()

	data, err := json.Marshal(inst)
	if err != nil {
		return fmt.Errorf("discovery: marshal instance %q: %w", inst.InstanceID, err)
	}
	if err := r.client.Set(ctx, r.key(inst.ServiceID, inst.InstanceID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("discovery: register %s/%s: %w", inst.ServiceID, inst.InstanceID, err)
	}
	return nil
}

// Deregister removes an instance immediately.
func (r *RedisRegistry) Deregister(ctx context.Context, serviceID, instanceID string) error {
	if err := r.client.Del(ctx, r.key(serviceID, instanceID)).Err(); err != nil {
		return fmt.Errorf("discovery: deregister %s/%s: %w", serviceID, instanceID, err)
	}
	return nil
}

// Heartbeat registers inst and re-registers it every interval until ctx is
// done, then deregisters it. A non-positive interval defaults to a third of
// the TTL. Heartbeat blocks; run it in its own goroutine.
func (r *RedisRegistry) Heartbeat(ctx context.Context, inst Instance, interval time.Duration) error {
	if interval <= 0 {
		interval = r.ttl / 3
	}
	inst = inst.withDefaults()

	if err := r.Register(ctx, inst); err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// The parent context is gone; use a short-lived one to clean up.
			cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			err := r.Deregister(cleanupCtx, inst.ServiceID, inst.InstanceID)
			cancel()
			return err
		case <-ticker.C:
			if err := r.Register(ctx, inst); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Warn().
					Err(err).
					Str("service", inst.ServiceID).
					Str("instance", inst.InstanceID).
					Msg("discovery: heartbeat failed")
			}
		}
	}
}

// Instances returns the live instances of serviceID sorted by InstanceID.
//
// The shared lookup is detached from the cancellation of whichever caller
// started it, so one caller giving up does not fail the others. Each caller
// still returns as soon as its own ctx is done.
func (r *RedisRegistry) Instances(ctx context.Context, serviceID string) ([]Instance, error) {
	ch := r.group.DoChan(serviceID, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()
		return r.load(lookupCtx, serviceID)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		shared := res.Val.([]Instance)
		out := make([]Instance, len(shared))
		copy(out, shared)
		return out, nil
	}
}

func (r *RedisRegistry) load(ctx context.Context, serviceID string) ([]Instance, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, r.key(serviceID, "*"), scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("discovery: scan %q: %w", serviceID, err)
	}
	if len(keys) == 0 {
		return []Instance{}, nil
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("discovery: load %q: %w", serviceID, err)
	}

	instances := make([]Instance, 0, len(values))
	for i, v := range values {
		// Keys may expire between SCAN and MGET.
		s, ok := v.(string)
		if !ok {
			continue
		}
		var inst Instance
		if err := json.Unmarshal([]byte(s), &inst); err != nil {
			r.logger.Warn().Err(err).Str("key", keys[i]).Msg("discovery: skipping malformed registration")
			continue
		}
		instances = append(instances, inst)
	}

	sort.Slice(instances, func(i, j int) bool {
		return instances[i].InstanceID < instances[j].InstanceID
	})
	return instances, nil
}

func (r *RedisRegistry) key(serviceID, instanceID string) string {
	return r.prefix + ":" + serviceID + ":" + instanceID
}
