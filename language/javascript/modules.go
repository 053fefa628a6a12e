package javascript

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dop251/goja"

	"github.com/caffeineduck/scriptbox/hostfunc"
	"github.com/caffeineduck/scriptbox/sandbox"
)

var builtinModules = map[string]bool{
	"console": true,
	"http":    true,
	"dns":     true,
	"net":     true,
}

func isBuiltin(name string) bool {
	return builtinModules[name]
}

// hostModules builds the builtin modules for one runtime. Every call goes
// through the boundary's registry, so a capability the policy did not grant
// fails with "unknown function".
type hostModules struct {
	ctx      context.Context
	vm       *goja.Runtime
	registry *hostfunc.Registry
	out      *bytes.Buffer
}

func newHostModules(ctx context.Context, vm *goja.Runtime, boundary *sandbox.Boundary, out *bytes.Buffer) *hostModules {
	registry := hostfunc.NewRegistry()
	if boundary != nil {
		registry = boundary.Registry()
	}
	return &hostModules{ctx: ctx, vm: vm, registry: registry, out: out}
}

func (h *hostModules) build(name string) (*goja.Object, error) {
	switch name {
	case "console":
		return h.console(), nil
	case "http":
		return h.http(), nil
	case "dns":
		return h.dns(), nil
	case "net":
		return h.net(), nil
	}
	return nil, fmt.Errorf("unknown builtin module: %s", name)
}

func (h *hostModules) call(name string, args map[string]any) any {
	result, err := h.registry.Call(h.ctx, name, args)
	if err != nil {
		panic(h.vm.NewGoError(err))
	}
	return result
}

func (h *hostModules) console() *goja.Object {
	obj := h.vm.NewObject()
	logFn := func(level string) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				parts[i] = formatValue(arg)
			}
			line := strings.Join(parts, " ")
			if level != "log" && level != "info" {
				line = "[" + level + "] " + line
			}
			h.out.WriteString(line + "\n")
			return goja.Undefined()
		}
	}
	for _, level := range []string{"log", "info", "warn", "error", "debug"} {
		_ = obj.Set(level, logFn(level))
	}
	return obj
}

func (h *hostModules) http() *goja.Object {
	obj := h.vm.NewObject()

	_ = obj.Set("request", func(call goja.FunctionCall) goja.Value {
		opts, ok := call.Argument(0).Export().(map[string]any)
		if !ok {
			panic(h.vm.NewTypeError("http.request expects an options object"))
		}
		return h.vm.ToValue(h.call("http_request", opts))
	})

	_ = obj.Set("get", func(call goja.FunctionCall) goja.Value {
		if goja.IsUndefined(call.Argument(0)) {
			panic(h.vm.NewTypeError("url is required"))
		}
		args := map[string]any{"url": call.Argument(0).String()}
		if headers, ok := call.Argument(1).Export().(map[string]any); ok {
			args["headers"] = headers
		}
		return h.vm.ToValue(h.call("http_get", args))
	})

	return obj
}

func (h *hostModules) dns() *goja.Object {
	obj := h.vm.NewObject()
	_ = obj.Set("lookup", func(call goja.FunctionCall) goja.Value {
		resp, _ := h.call("dns_lookup", map[string]any{"host": call.Argument(0).String()}).(*hostfunc.DNSLookupResponse)
		if resp == nil {
			return h.vm.NewArray()
		}
		items := make([]any, len(resp.Addresses))
		for i, a := range resp.Addresses {
			items[i] = a
		}
		return h.vm.NewArray(items...)
	})
	return obj
}

func (h *hostModules) net() *goja.Object {
	obj := h.vm.NewObject()
	_ = obj.Set("probe", func(call goja.FunctionCall) goja.Value {
		args := map[string]any{"address": call.Argument(0).String()}
		if t := call.Argument(1); !goja.IsUndefined(t) && !goja.IsNull(t) {
			args["timeout_ms"] = t.ToFloat()
		}
		return h.vm.ToValue(h.call("net_probe", args))
	})
	_ = obj.Set("now", func(goja.FunctionCall) goja.Value {
		return h.vm.ToValue(h.call("time_now", nil))
	})
	return obj
}

func formatValue(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}
	if _, ok := v.(*goja.Object); !ok {
		return v.String()
	}
	switch exported := v.Export().(type) {
	case map[string]any, []any:
		data, err := json.Marshal(exported)
		if err == nil {
			return string(data)
		}
	}
	return v.String()
}
