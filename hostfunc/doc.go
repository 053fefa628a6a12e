// Package hostfunc provides the host functions sandboxed scripts can call.
//
// Host functions are Go functions reachable from inside an isolation
// boundary. They are the only way a script touches the outside world, so a
// function is registered only when the boundary's permission set grants the
// matching capability.
//
// # Registry
//
// The [Registry] maps names to [Func] values:
//
//	registry := hostfunc.NewRegistry()
//	registry.Register("my_func", func(ctx context.Context, args map[string]any) (any, error) {
//	    return "result", nil
//	})
//
// # Built-in Capabilities
//
// HTTP: outbound requests via [HTTP] and [HTTPConfig], either unrestricted
// or limited to an allow-list of hosts.
//
//	h := hostfunc.NewHTTP(hostfunc.HTTPConfig{Unrestricted: true})
//	registry.Register("http_request", h.Request)
//	registry.Register("http_get", hostfunc.NewHTTPGet(hostfunc.HTTPConfig{Unrestricted: true}))
//
// DNS: name resolution via [DNS].
//
//	registry.Register("dns_lookup", hostfunc.NewDNS(hostfunc.DNSConfig{}).Lookup)
//
// Probe: reachability checks via [Probe].
//
//	registry.Register("net_probe", hostfunc.NewProbe(hostfunc.ProbeConfig{}).Reach)
//
// There is no filesystem or process capability. See the sandbox
// package for how permissions map to registered functions.
package hostfunc
