package sandbox

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog"

	"github.com/caffeineduck/scriptbox/hostfunc"
)

var (
	ErrExecutionDenied = errors.New("permission denied: execution not granted")
	ErrBoundaryClosed  = errors.New("boundary closed")
)

// Fault is a failure raised by code running inside a boundary.
type Fault struct {
	Message string
	Stack   string
	Cause   error
}

func (f *Fault) Error() string {
	return f.Message
}

func (f *Fault) Unwrap() error {
	return f.Cause
}

// Boundary is a single-use isolation context. It owns the host functions
// granted by its policy and converts anything escaping the guest into a
// Fault. A boundary is created per execution and closed afterwards.
type Boundary struct {
	name     string
	policy   Policy
	registry *hostfunc.Registry
	logger   zerolog.Logger

	mu     sync.Mutex
	closed bool
}

// NewBoundary creates a boundary for the policy. It fails with
// ErrExecutionDenied when the policy does not grant execution.
func NewBoundary(name string, policy Policy, logger zerolog.Logger) (*Boundary, error) {
	if !policy.Permissions.Has(PermExecution) {
		return nil, fmt.Errorf("create boundary %s: %w", name, ErrExecutionDenied)
	}

	b := &Boundary{
		name:     name,
		policy:   policy,
		registry: policy.Registry(),
		logger:   logger.With().Str("boundary", name).Logger(),
	}

	b.logger.Debug().
		Stringer("zone", policy.Evidence.Zone).
		Strs("host_functions", b.registry.List()).
		Msg("boundary created")

	return b, nil
}

func (b *Boundary) Name() string {
	return b.name
}

func (b *Boundary) Policy() Policy {
	return b.policy
}

func (b *Boundary) Registry() *hostfunc.Registry {
	return b.registry
}

// Allows reports whether the boundary grants the permission.
func (b *Boundary) Allows(p Permission) bool {
	return b.policy.Permissions.Has(p)
}

// Guard runs fn and turns a panic into a *Fault carrying the panic value
// and the stack at the point of recovery.
func (b *Boundary) Guard(fn func() error) (err error) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrBoundaryClosed
	}

	defer func() {
		if r := recover(); r != nil {
			fault := &Fault{
				Message: fmt.Sprint(r),
				Stack:   string(debug.Stack()),
			}
			if cause, ok := r.(error); ok {
				fault.Cause = cause
			}
			b.logger.Error().Str("fault", fault.Message).Msg("recovered fault crossing boundary")
			err = fault
		}
	}()

	return fn()
}

// Close tears the boundary down. Closing twice is a no-op.
func (b *Boundary) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	b.logger.Debug().Msg("boundary closed")
	return nil
}
