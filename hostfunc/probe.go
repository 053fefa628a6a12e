package hostfunc

import (
	"context"
	"errors"
	"net"
	"time"
)

const (
	DefaultProbeTimeout = 5 * time.Second
	MaxProbeTimeout     = 30 * time.Second
)

// Dialer is the subset of *net.Dialer used for reachability probes.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// ProbeConfig configures reachability probing.
//
// ICMP echo needs raw sockets, so a probe is a TCP connect to host:port;
// an address without a port is probed on port 80.
type ProbeConfig struct {
	Dialer  Dialer
	Timeout time.Duration
}

type Probe struct {
	dialer  Dialer
	timeout time.Duration
}

func NewProbe(cfg ProbeConfig) *Probe {
	if cfg.Dialer == nil {
		cfg.Dialer = &net.Dialer{}
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultProbeTimeout
	}
	return &Probe{dialer: cfg.Dialer, timeout: cfg.Timeout}
}

// Reach checks whether an address accepts connections. Args: address,
// timeout_ms. An unreachable target is a result, not an error.
func (p *Probe) Reach(ctx context.Context, args map[string]any) (any, error) {
	address, _ := args["address"].(string)
	if address == "" {
		return nil, errors.New("address required")
	}

	if _, _, err := net.SplitHostPort(address); err != nil {
		address = net.JoinHostPort(address, "80")
	}

	timeout := p.timeout
	if ms, ok := args["timeout_ms"].(float64); ok && ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}
	if ms, ok := args["timeout_ms"].(int64); ok && ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}
	if timeout > MaxProbeTimeout {
		timeout = MaxProbeTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	conn, err := p.dialer.DialContext(ctx, "tcp", address)
	rtt := time.Since(start)

	resp := &ProbeResponse{Address: address, RTTMs: rtt.Milliseconds()}
	if err != nil {
		resp.Error = err.Error()
		return resp, nil
	}
	conn.Close()
	resp.Reachable = true
	return resp, nil
}
