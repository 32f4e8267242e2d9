package discovery

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	rendezvous "github.com/dgryski/go-rendezvous"
)

// Compile-time interface check.
var _ Selector = (*Balancer)(nil)

// Policy picks one instance out of a non-empty list.
type Policy interface {
	Pick(ctx context.Context, serviceID string, instances []Instance) Instance
}

// PolicyFunc adapts a function to the Policy interface.
type PolicyFunc func(ctx context.Context, serviceID string, instances []Instance) Instance

// Pick implements Policy.
func (f PolicyFunc) Pick(ctx context.Context, serviceID string, instances []Instance) Instance {
	return f(ctx, serviceID, instances)
}

// Balancer is a Selector that resolves instances through a Resolver on every
// call and delegates the choice to a Policy.
type Balancer struct {
	resolver Resolver
	policy   Policy
}

// NewBalancer creates a Balancer. A nil policy defaults to RoundRobin.
func NewBalancer(resolver Resolver, policy Policy) *Balancer {
	if policy == nil {
		policy = RoundRobin()
	}
	return &Balancer{resolver: resolver, policy: policy}
}

// Choose implements Selector.
func (b *Balancer) Choose(ctx context.Context, serviceID string) (Instance, error) {
	instances, err := b.resolver.Instances(ctx, serviceID)
	if err != nil {
		return Instance{}, fmt.Errorf("discovery: resolve %q: %w", serviceID, err)
	}
	if len(instances) == 0 {
		return Instance{}, fmt.Errorf("%w: %s", ErrNoInstances, serviceID)
	}
	return b.policy.Pick(ctx, serviceID, instances), nil
}

// ReconstructURL implements Selector.
func (b *Balancer) ReconstructURL(instance Instance, logical *url.URL) *url.URL {
	return ReconstructURL(instance, logical)
}

// =============================================================================
// Round robin
// =============================================================================

type roundRobin struct {
	mu       sync.Mutex
	counters map[string]*atomic.Uint64
}

// RoundRobin cycles through the instances of each service in the order the
// resolver returns them. Every service keeps its own position.
func RoundRobin() Policy {
	return &roundRobin{counters: make(map[string]*atomic.Uint64)}
}

func (p *roundRobin) Pick(_ context.Context, serviceID string, instances []Instance) Instance {
	n := p.counter(serviceID).Add(1) - 1
	return instances[n%uint64(len(instances))]
}

func (p *roundRobin) counter(serviceID string) *atomic.Uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.counters[serviceID]
	if !ok {
		c = &atomic.Uint64{}
		p.counters[serviceID] = c
	}
	return c
}

// =============================================================================
// Random
// =============================================================================

// Random picks a uniformly random instance on every call.
func Random() Policy {
	return PolicyFunc(func(_ context.Context, _ string, instances []Instance) Instance {
		return instances[rand.IntN(len(instances))] //nolint:gosec
	})
}

// =============================================================================
// Rendezvous hashing
// =============================================================================

type hashKey struct{}

// WithHashKey attaches a hashing key to ctx. The Rendezvous policy maps the
// same key to the same instance for as long as the instance set is stable.
func WithHashKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, hashKey{}, key)
}

// HashKeyFromContext returns the key set by WithHashKey.
func HashKeyFromContext(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(hashKey{}).(string)
	return key, ok && key != ""
}

type rendezvousPolicy struct {
	mu    sync.Mutex
	rings map[string]*rendezvousRing
}

type rendezvousRing struct {
	table   *rendezvous.Rendezvous
	members map[string]Instance
	seq     uint64
}

// Rendezvous selects instances with highest-random-weight hashing.
//
// Calls carrying a key (see WithHashKey) are sticky to one instance. Calls
// without a key hash a per-service sequence number, which spreads them over
// the fleet while keeping the assignment stable when instances come and go.
func Rendezvous() Policy {
	return &rendezvousPolicy{rings: make(map[string]*rendezvousRing)}
}

func (p *rendezvousPolicy) Pick(ctx context.Context, serviceID string, instances []Instance) Instance {
	p.mu.Lock()
	defer p.mu.Unlock()

	ring := p.sync(serviceID, instances)

	key, ok := HashKeyFromContext(ctx)
	if !ok {
		key = serviceID + "#" + strconv.FormatUint(ring.seq, 10)
		ring.seq++
	}
	return ring.members[ring.table.Lookup(key)]
}

// sync brings the service table in line with the resolved instance set.
func (p *rendezvousPolicy) sync(serviceID string, instances []Instance) *rendezvousRing {
	current := make(map[string]Instance, len(instances))
	for _, inst := range instances {
		current[inst.Key()] = inst
	}

	ring, ok := p.rings[serviceID]
	if !ok || departed(ring.members, current) {
		// go-rendezvous Remove indexes past its node slice, so rebuild instead.
		nodes := make([]string, 0, len(current))
		for k := range current {
			nodes = append(nodes, k)
		}
		sort.Strings(nodes)
		ring = &rendezvousRing{
			table:   rendezvous.New(nodes, xxhash.Sum64String),
			members: current,
			seq:     seqOf(ring),
		}
		p.rings[serviceID] = ring
		return ring
	}

	for k := range current {
		if _, known := ring.members[k]; !known {
			ring.table.Add(k)
		}
	}
	ring.members = current
	return ring
}

// departed reports whether any member of prev is missing from current.
func departed(prev, current map[string]Instance) bool {
	for k := range prev {
		if _, ok := current[k]; !ok {
			return true
		}
	}
	return false
}

func seqOf(ring *rendezvousRing) uint64 {
	if ring == nil {
		return 0
	}
	return ring.seq
}
