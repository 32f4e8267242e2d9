// Package discovery resolves logical service names to live backend instances
// and picks one of them per call using a pluggable load-balancing policy.
//
// Two roles are exposed as interfaces so that callers can swap the
// implementation without touching the code that consumes them:
//
//   - Resolver lists the currently known instances of a service.
//   - Selector chooses one instance for a service and rewrites a logical
//     URL ("http://orders/orders/42") into a concrete one
//     ("http://10.0.0.7:8080/orders/42").
//
// # Registries
//
// Registry is an in-memory, concurrency-safe Resolver that is useful for
// static fleets and tests:
//
//	reg := discovery.NewRegistry(
//	    discovery.Instance{ServiceID: "orders", Host: "10.0.0.7", Port: 8080},
//	    discovery.Instance{ServiceID: "orders", Host: "10.0.0.8", Port: 8080},
//	)
//
// RedisRegistry stores registrations in Redis with a TTL. Service processes
// keep their entry alive with Heartbeat, and clients resolve through it:
//
//	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	reg := discovery.NewRedisRegistry(rdb)
//	go reg.Heartbeat(ctx, self, 10*time.Second)
//
// # Balancing
//
// Balancer combines a Resolver with a Policy to implement Selector:
//
//	lb := discovery.NewBalancer(reg, discovery.RoundRobin())
//	inst, err := lb.Choose(ctx, "orders")
//
// Available policies are RoundRobin, Random and Rendezvous (highest random
// weight hashing, optionally keyed through WithHashKey).
package discovery
