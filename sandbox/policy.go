package sandbox

import (
	"context"
	"sort"
	"time"

	"github.com/caffeineduck/scriptbox/hostfunc"
)

// Zone identifies where code came from. It is the evidence a permission
// baseline is chosen from.
type Zone int

const (
	ZoneMyComputer Zone = iota
	ZoneIntranet
	ZoneTrusted
	ZoneInternet
	ZoneUntrusted
)

func (z Zone) String() string {
	switch z {
	case ZoneMyComputer:
		return "my-computer"
	case ZoneIntranet:
		return "intranet"
	case ZoneTrusted:
		return "trusted"
	case ZoneInternet:
		return "internet"
	case ZoneUntrusted:
		return "untrusted"
	default:
		return "unknown"
	}
}

// Evidence describes the origin of the code loaded into a boundary.
type Evidence struct {
	Zone Zone
}

// Permission is a single capability a boundary may grant.
type Permission int

const (
	// PermExecution allows the artifact to run at all.
	PermExecution Permission = iota + 1
	// PermWeb allows outbound HTTP.
	PermWeb
	// PermDNS allows name resolution.
	PermDNS
	// PermPing allows network reachability probes.
	PermPing
	// PermFileIO allows host filesystem access. No boundary built by this
	// package exposes it; it exists so policies can be checked against it.
	PermFileIO
	// PermProcess allows spawning host processes. Never exposed.
	PermProcess
)

func (p Permission) String() string {
	switch p {
	case PermExecution:
		return "execution"
	case PermWeb:
		return "web"
	case PermDNS:
		return "dns"
	case PermPing:
		return "ping"
	case PermFileIO:
		return "file-io"
	case PermProcess:
		return "process"
	default:
		return "unknown"
	}
}

// PermissionSet is a set of granted permissions. The zero value grants
// nothing.
type PermissionSet struct {
	grants map[Permission]struct{}
}

func NewPermissionSet(perms ...Permission) PermissionSet {
	s := PermissionSet{}
	for _, p := range perms {
		s.Add(p)
	}
	return s
}

func (s *PermissionSet) Add(p Permission) {
	if s.grants == nil {
		s.grants = make(map[Permission]struct{})
	}
	s.grants[p] = struct{}{}
}

func (s PermissionSet) Has(p Permission) bool {
	_, ok := s.grants[p]
	return ok
}

// List returns the granted permissions in declaration order.
func (s PermissionSet) List() []Permission {
	out := make([]Permission, 0, len(s.grants))
	for p := range s.grants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// StandardSandbox returns the restrictive baseline for the given evidence.
// Untrusted code starts with nothing; every other zone may only execute.
func StandardSandbox(ev Evidence) PermissionSet {
	switch ev.Zone {
	case ZoneUntrusted:
		return NewPermissionSet()
	default:
		return NewPermissionSet(PermExecution)
	}
}

// Policy is everything needed to build a boundary: the evidence, the grant
// set and the limits applied to each granted capability.
type Policy struct {
	Evidence    Evidence
	Permissions PermissionSet
	HTTP        hostfunc.HTTPConfig
	DNS         hostfunc.DNSConfig
	Probe       hostfunc.ProbeConfig
}

// DefaultPolicy is the policy scripts run under: untrusted evidence, the
// standard baseline, plus execution, unrestricted web, unrestricted DNS and
// reachability probing.
func DefaultPolicy() Policy {
	ev := Evidence{Zone: ZoneUntrusted}
	perms := StandardSandbox(ev)
	perms.Add(PermExecution)
	perms.Add(PermWeb)
	perms.Add(PermDNS)
	perms.Add(PermPing)

	return Policy{
		Evidence:    ev,
		Permissions: perms,
		HTTP:        hostfunc.HTTPConfig{Unrestricted: true},
	}
}

// Registry builds the host function registry for this policy. Only
// functions whose permission is granted are registered.
func (p Policy) Registry() *hostfunc.Registry {
	registry := hostfunc.NewRegistry()

	registry.Register("time_now", func(ctx context.Context, args map[string]any) (any, error) {
		return float64(time.Now().UnixNano()) / 1e9, nil
	})

	if p.Permissions.Has(PermWeb) {
		h := hostfunc.NewHTTP(p.HTTP)
		registry.Register("http_request", h.Request)
		registry.Register("http_get", hostfunc.NewHTTPGet(p.HTTP))
	}
	if p.Permissions.Has(PermDNS) {
		registry.Register("dns_lookup", hostfunc.NewDNS(p.DNS).Lookup)
	}
	if p.Permissions.Has(PermPing) {
		registry.Register("net_probe", hostfunc.NewProbe(p.Probe).Reach)
	}

	return registry
}
