package sandbox

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caffeineduck/scriptbox/hostfunc"
)

func TestStandardSandboxUntrustedGrantsNothing(t *testing.T) {
	perms := StandardSandbox(Evidence{Zone: ZoneUntrusted})
	assert.Empty(t, perms.List())
	assert.False(t, perms.Has(PermExecution))
}

func TestStandardSandboxOtherZonesExecuteOnly(t *testing.T) {
	for _, zone := range []Zone{ZoneMyComputer, ZoneIntranet, ZoneTrusted, ZoneInternet} {
		t.Run(zone.String(), func(t *testing.T) {
			perms := StandardSandbox(Evidence{Zone: zone})
			assert.Equal(t, []Permission{PermExecution}, perms.List())
		})
	}
}

func TestDefaultPolicyGrants(t *testing.T) {
	policy := DefaultPolicy()

	assert.Equal(t, ZoneUntrusted, policy.Evidence.Zone)
	assert.Equal(t, []Permission{PermExecution, PermWeb, PermDNS, PermPing}, policy.Permissions.List())
	assert.False(t, policy.Permissions.Has(PermFileIO))
	assert.False(t, policy.Permissions.Has(PermProcess))
	assert.True(t, policy.HTTP.Unrestricted)
}

func TestZeroPermissionSet(t *testing.T) {
	var perms PermissionSet
	assert.False(t, perms.Has(PermWeb))
	perms.Add(PermWeb)
	assert.True(t, perms.Has(PermWeb))
}

func TestPolicyRegistryMatchesGrants(t *testing.T) {
	tests := []struct {
		name  string
		perms []Permission
		want  []string
	}{
		{"execution only", []Permission{PermExecution}, []string{"time_now"}},
		{"web", []Permission{PermExecution, PermWeb}, []string{"http_get", "http_request", "time_now"}},
		{"all network", []Permission{PermExecution, PermWeb, PermDNS, PermPing}, []string{"dns_lookup", "http_get", "http_request", "net_probe", "time_now"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := Policy{Permissions: NewPermissionSet(tt.perms...)}
			assert.Equal(t, tt.want, policy.Registry().List())
		})
	}
}

func TestNewBoundaryRequiresExecution(t *testing.T) {
	policy := Policy{Evidence: Evidence{Zone: ZoneUntrusted}, Permissions: StandardSandbox(Evidence{Zone: ZoneUntrusted})}

	b, err := NewBoundary("denied", policy, zerolog.Nop())
	assert.Nil(t, b)
	assert.True(t, errors.Is(err, ErrExecutionDenied))
}

func TestBoundaryExposesGrantedFunctions(t *testing.T) {
	b, err := NewBoundary("default", DefaultPolicy(), zerolog.Nop())
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, "default", b.Name())
	assert.True(t, b.Allows(PermWeb))
	assert.False(t, b.Allows(PermFileIO))

	_, ok := b.Registry().Get("http_request")
	assert.True(t, ok)
}

func TestBoundaryDeniedCapabilityIsUnknown(t *testing.T) {
	policy := Policy{Permissions: NewPermissionSet(PermExecution)}
	b, err := NewBoundary("narrow", policy, zerolog.Nop())
	require.NoError(t, err)

	_, err = b.Registry().Call(t.Context(), "http_request", map[string]any{"url": "https://example.com"})
	var unknown *hostfunc.UnknownFuncError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "http_request", unknown.Name)
}

func TestGuardRecoversPanic(t *testing.T) {
	b, err := NewBoundary("guard", DefaultPolicy(), zerolog.Nop())
	require.NoError(t, err)

	err = b.Guard(func() error {
		panic("guest blew up")
	})

	var fault *Fault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, "guest blew up", fault.Message)
	assert.NotEmpty(t, fault.Stack)
}

func TestGuardKeepsPanickedError(t *testing.T) {
	b, err := NewBoundary("guard", DefaultPolicy(), zerolog.Nop())
	require.NoError(t, err)

	cause := errors.New("inner")
	err = b.Guard(func() error {
		panic(cause)
	})

	assert.ErrorIs(t, err, cause)
}

func TestGuardPassesErrorsThrough(t *testing.T) {
	b, err := NewBoundary("guard", DefaultPolicy(), zerolog.Nop())
	require.NoError(t, err)

	want := errors.New("plain")
	assert.Equal(t, want, b.Guard(func() error { return want }))
	assert.NoError(t, b.Guard(func() error { return nil }))
}

func TestClosedBoundaryRefusesWork(t *testing.T) {
	b, err := NewBoundary("closing", DefaultPolicy(), zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	called := false
	err = b.Guard(func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrBoundaryClosed)
	assert.False(t, called)
}
