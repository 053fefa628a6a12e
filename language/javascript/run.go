package javascript

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"

	"github.com/caffeineduck/scriptbox/executor"
)

// Run executes a bundle in a fresh goja runtime. The runtime is
// interrupted when ctx is done.
func (j *JavaScript) Run(ctx context.Context, req executor.RunRequest) (executor.RunOutput, error) {
	bundle, err := DecodeBundle(req.Artifact)
	if err != nil {
		return executor.RunOutput{}, err
	}

	var out bytes.Buffer

	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	vm.SetMaxCallStackSize(maxCallStackSize)

	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(ctx.Err())
	})
	defer stop()

	l := &loader{
		vm:      vm,
		bundle:  bundle,
		host:    newHostModules(ctx, vm, req.Boundary, &out),
		cache:   make(map[string]goja.Value),
		loading: make(map[string]bool),
		logger:  req.Logger,
	}

	err = func() error {
		if err := vm.Set("require", l.require); err != nil {
			return err
		}
		if _, ok := bundle.Module("console"); ok {
			console, err := l.load("console")
			if err != nil {
				return err
			}
			if err := vm.Set("console", console); err != nil {
				return err
			}
		}
		for _, ns := range bundle.Namespaces {
			mod, err := l.load(ns)
			if err != nil {
				return err
			}
			if err := vm.GlobalObject().Set(ns, mod); err != nil {
				return err
			}
		}

		entry, err := vm.RunScript(bundle.File, wrapEntry(bundle.Entry))
		if err != nil {
			return err
		}
		fn, ok := goja.AssertFunction(entry)
		if !ok {
			return errors.New("entry point is not callable")
		}

		args := make([]any, len(req.Args))
		for i, a := range req.Args {
			args[i] = a
		}
		_, err = fn(goja.Undefined(), vm.NewArray(args...))
		return err
	}()

	if err != nil {
		return executor.RunOutput{Output: out.String()}, wrapExecutionError(err)
	}
	return executor.RunOutput{Output: out.String()}, nil
}

type loader struct {
	vm      *goja.Runtime
	bundle  *Bundle
	host    *hostModules
	cache   map[string]goja.Value
	loading map[string]bool
	logger  zerolog.Logger
}

func (l *loader) require(call goja.FunctionCall) goja.Value {
	name := call.Argument(0).String()
	mod, err := l.load(name)
	if err != nil {
		panic(l.vm.NewGoError(err))
	}
	return mod
}

// load returns the exports of a linked module, evaluating it on first use.
func (l *loader) load(name string) (goja.Value, error) {
	if v, ok := l.cache[name]; ok {
		return v, nil
	}

	m, ok := l.bundle.Module(name)
	if !ok {
		return nil, fmt.Errorf("module not linked: %s", name)
	}

	if m.Builtin {
		obj, err := l.host.build(name)
		if err != nil {
			return nil, err
		}
		l.cache[name] = obj
		return obj, nil
	}

	if l.loading[name] {
		return nil, fmt.Errorf("circular require: %s", name)
	}
	l.loading[name] = true
	defer delete(l.loading, name)

	l.logger.Debug().Str("module", name).Msg("loading module")

	factory, err := l.vm.RunScript(name+LibraryExt, wrapModule(m.Source))
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(factory)
	if !ok {
		return nil, fmt.Errorf("module %s is not callable", name)
	}

	module := l.vm.NewObject()
	exports := l.vm.NewObject()
	_ = module.Set("exports", exports)

	if _, err := fn(goja.Undefined(), exports, l.vm.ToValue(l.require), module); err != nil {
		return nil, err
	}

	result := module.Get("exports")
	l.cache[name] = result
	return result, nil
}

// wrapExecutionError converts goja errors into execution errors that keep
// the script's message and stack.
func wrapExecutionError(err error) error {
	var exception *goja.Exception
	if errors.As(err, &exception) {
		return &executor.ExecutionError{
			Message: exception.Value().String(),
			Stack:   exception.String(),
			Cause:   err,
		}
	}

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		cause := err
		if v, ok := interrupted.Value().(error); ok {
			cause = v
		}
		return &executor.ExecutionError{
			Message: fmt.Sprintf("interrupted: %v", interrupted.Value()),
			Stack:   interrupted.String(),
			Cause:   cause,
		}
	}

	return &executor.ExecutionError{Message: err.Error(), Cause: err}
}
