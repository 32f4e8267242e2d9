package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"slices"
	"time"

	"github.com/kroma-labs/sentinel-hedge/discovery"
)

// Registrar keeps an instance registered until ctx is done, then removes
// it. discovery.RedisRegistry implements it.
type Registrar interface {
	Heartbeat(ctx context.Context, inst discovery.Instance, interval time.Duration) error
}

// RegistrationConfig advertises the server in a discovery registry.
type RegistrationConfig struct {
	Registrar Registrar

	// AdvertiseHost is the host clients should dial. When empty, the bound
	// IP is used, or the machine hostname if the server listens on all
	// interfaces.
	AdvertiseHost string

	// AdvertisePort overrides the bound port, e.g. behind a port mapping.
	AdvertisePort int

	// Scheme defaults to "https" when TLS is configured, "http" otherwise.
	Scheme string

	// Interval between heartbeats. Zero lets the registrar choose.
	Interval time.Duration

	Metadata map[string]string
}

// ErrNotRegistered is reported by RegistryCheck while the instance is not
// visible in the registry.
var ErrNotRegistered = errors.New("httpserver: instance not registered")

// RegistryCheck reports whether instanceID of serviceID is currently listed
// by resolver. Use it as a readiness check so that an instance which lost
// its registration stops receiving traffic from load balancers too.
func RegistryCheck(resolver discovery.Resolver, serviceID, instanceID string) HealthCheck {
	return func(ctx context.Context) error {
		instances, err := resolver.Instances(ctx, serviceID)
		if err != nil {
			return err
		}
		if !slices.ContainsFunc(instances, func(i discovery.Instance) bool {
			return i.InstanceID == instanceID
		}) {
			return fmt.Errorf("%w: %s/%s", ErrNotRegistered, serviceID, instanceID)
		}
		return nil
	}
}

// advertisedInstance builds the registry entry for a server bound to addr.
func advertisedInstance(cfg Config, addr net.Addr) (discovery.Instance, error) {
	reg := cfg.Registration

	host, port := reg.AdvertiseHost, reg.AdvertisePort
	if tcp, ok := addr.(*net.TCPAddr); ok {
		if host == "" && !tcp.IP.IsUnspecified() {
			host = tcp.IP.String()
		}
		if port == 0 {
			port = tcp.Port
		}
	}
	if host == "" {
		h, err := os.Hostname()
		if err != nil {
			return discovery.Instance{}, fmt.Errorf("httpserver: resolve advertise host: %w", err)
		}
		host = h
	}

	scheme := reg.Scheme
	if scheme == "" {
		scheme = "http"
		if cfg.TLSConfig != nil {
			scheme = "https"
		}
	}

	return discovery.Instance{
		ServiceID:  cfg.ServiceName,
		InstanceID: cfg.InstanceID,
		Scheme:     scheme,
		Host:       host,
		Port:       port,
		Metadata:   reg.Metadata,
	}, nil
}
