package discovery

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strconv"
)

var (
	// ErrNoInstances is returned by a Selector when the service has no known
	// live instances.
	ErrNoInstances = errors.New("discovery: no instances available")

	// ErrInvalidInstance is returned when registering an instance without a
	// service id or host.
	ErrInvalidInstance = errors.New("discovery: instance requires service id and host")
)

// Instance is one live backend of a logical service.
//
// Instances of the same service are interchangeable except for their address.
type Instance struct {
	// ServiceID is the logical name callers use as URL host, e.g. "orders".
	ServiceID string `json:"service_id"`

	// InstanceID uniquely identifies the instance within its service.
	// Registries derive it from the address when empty.
	InstanceID string `json:"instance_id"`

	// Scheme is "http" or "https". Default: "http".
	Scheme string `json:"scheme,omitempty"`

	Host string `json:"host"`
	Port int    `json:"port,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// URL returns the concrete base URL (scheme, host and port) of the instance.
func (i Instance) URL() *url.URL {
	scheme := i.Scheme
	if scheme == "" {
		scheme = "http"
	}
	host := i.Host
	if i.Port > 0 {
		host = net.JoinHostPort(i.Host, strconv.Itoa(i.Port))
	}
	return &url.URL{Scheme: scheme, Host: host}
}

// Key returns the canonical string form of the instance base URL.
func (i Instance) Key() string {
	return i.URL().String()
}

func (i Instance) validate() error {
	if i.ServiceID == "" || i.Host == "" {
		return ErrInvalidInstance
	}
	return nil
}

// withDefaults fills InstanceID from the address when it is not set.
func (i Instance) withDefaults() Instance {
	if i.InstanceID == "" {
		i.InstanceID = i.URL().Host
	}
	return i
}

// Resolver lists the currently known live instances of a service.
//
// The returned slice may be empty or stale; callers must not assume any
// ordering.
type Resolver interface {
	Instances(ctx context.Context, serviceID string) ([]Instance, error)
}

// Selector picks one instance of a service and maps logical URLs onto it.
type Selector interface {
	// Choose returns one instance of serviceID. Consecutive calls may return
	// the same instance.
	Choose(ctx context.Context, serviceID string) (Instance, error)

	// ReconstructURL rewrites a logical URL to target the given instance.
	ReconstructURL(instance Instance, logical *url.URL) *url.URL
}

// ReconstructURL returns a copy of logical whose scheme and host are taken
// from instance. Path, query, fragment and user info are preserved.
func ReconstructURL(instance Instance, logical *url.URL) *url.URL {
	base := instance.URL()
	if logical == nil {
		return base
	}

	u := *logical
	u.Scheme = base.Scheme
	u.Host = base.Host
	return &u
}
