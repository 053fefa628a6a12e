package hostfunc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

const DefaultLookupTimeout = 10 * time.Second

// Resolver is the subset of *net.Resolver used for name resolution.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// DNSConfig configures name resolution for sandboxed code.
type DNSConfig struct {
	Resolver Resolver
	Timeout  time.Duration
}

type DNS struct {
	resolver Resolver
	timeout  time.Duration
}

func NewDNS(cfg DNSConfig) *DNS {
	if cfg.Resolver == nil {
		cfg.Resolver = net.DefaultResolver
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultLookupTimeout
	}
	return &DNS{resolver: cfg.Resolver, timeout: cfg.Timeout}
}

// Lookup resolves a host name to its addresses. Args: host.
func (d *DNS) Lookup(ctx context.Context, args map[string]any) (any, error) {
	host, _ := args["host"].(string)
	host = strings.TrimSpace(host)
	if host == "" {
		return nil, errors.New("host required")
	}
	if len(host) > 253 {
		return nil, errors.New("host exceeds max length")
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	addrs, err := d.resolver.LookupHost(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", host, err)
	}

	return &DNSLookupResponse{Host: host, Addresses: addrs}, nil
}
