package hostfunc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndCall(t *testing.T) {
	r := NewRegistry()
	r.Register("echo", func(ctx context.Context, args map[string]any) (any, error) {
		return args["msg"], nil
	})

	got, err := r.Call(context.Background(), "echo", map[string]any{"msg": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", got)
}

func TestRegistryCallUnknown(t *testing.T) {
	r := NewRegistry()

	_, err := r.Call(context.Background(), "missing", nil)

	var unknown *UnknownFuncError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "missing", unknown.Name)
	assert.EqualError(t, err, "unknown function: missing")
}

func TestRegistryCallNilArgs(t *testing.T) {
	r := NewRegistry()
	r.Register("args", func(ctx context.Context, args map[string]any) (any, error) {
		return len(args), nil
	})

	got, err := r.Call(context.Background(), "args", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, got)
}

func TestRegistryListSorted(t *testing.T) {
	r := NewRegistry()
	noop := func(ctx context.Context, args map[string]any) (any, error) { return nil, nil }
	r.Register("net_probe", noop)
	r.Register("dns_lookup", noop)
	r.Register("http_request", noop)

	assert.Equal(t, []string{"dns_lookup", "http_request", "net_probe"}, r.List())
	assert.Len(t, r.All(), 3)
}

func TestRegistryConcurrent(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			name := fmt.Sprintf("fn%d", n%26)
			r.Register(name, func(ctx context.Context, args map[string]any) (any, error) {
				return n, nil
			})
			_, _ = r.Call(ctx, name, nil)
		}(i)
	}
	wg.Wait()

	assert.Len(t, r.List(), 26)
}
