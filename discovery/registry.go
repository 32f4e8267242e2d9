package discovery

import (
	"context"
	"sort"
	"sync"
)

// Compile-time interface check.
var _ Resolver = (*Registry)(nil)

// Registry is an in-memory Resolver.
//
// Instances are returned in registration order. Registry is safe for
// concurrent use; the zero value is not usable, create one with NewRegistry.
type Registry struct {
	mu       sync.RWMutex
	services map[string][]Instance
}

// NewRegistry creates a Registry pre-populated with the given instances.
// Invalid instances are skipped.
func NewRegistry(instances ...Instance) *Registry {
	r := &Registry{services: make(map[string][]Instance)}
	for _, inst := range instances {
		_ = r.Register(inst)
	}
	return r
}

// Register adds an instance, replacing any existing entry with the same
// InstanceID in the same service.
func (r *Registry) Register(inst Instance) error {
	if err := inst.validate(); err != nil {
		return err
	}
	inst = inst.withDefaults()

	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.services[inst.ServiceID]
	for i := range list {
		if list[i].InstanceID == inst.InstanceID {
			list[i] = inst
			return nil
		}
	}
	r.services[inst.ServiceID] = append(list, inst)
	return nil
}

// Deregister removes an instance. It reports whether the instance existed.
func (r *Registry) Deregister(serviceID, instanceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.services[serviceID]
	for i := range list {
		if list[i].InstanceID != instanceID {
			continue
		}
		list = append(list[:i:i], list[i+1:]...)
		if len(list) == 0 {
			delete(r.services, serviceID)
		} else {
			r.services[serviceID] = list
		}
		return true
	}
	return false
}

// Instances returns a copy of the instances registered for serviceID.
func (r *Registry) Instances(_ context.Context, serviceID string) ([]Instance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.services[serviceID]
	out := make([]Instance, len(list))
	copy(out, list)
	return out, nil
}

// Services returns the sorted ids of all services with at least one instance.
func (r *Registry) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.services))
	for id := range r.services {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
