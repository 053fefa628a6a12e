package executor

import (
	"strings"

	"github.com/samber/lo"
)

// SessionKey is the PackSession.State key the resolved descriptor is
// published under.
const SessionKey = "Session"

// Library file extensions stripped from reference names, so "Foo.dll",
// "Foo.js" and "Foo" name the same reference.
var libraryExtensions = []string{".dll", ".so", ".js", ".mjs", ".wasm"}

// SessionDescriptor is the effective set of references and namespace
// imports for one compilation. Both lists are free of duplicates and keep
// first-seen order.
type SessionDescriptor struct {
	References []string `json:"references" yaml:"references"`
	Namespaces []string `json:"namespaces" yaml:"namespaces"`
}

func (d *SessionDescriptor) HasReference(name string) bool {
	return lo.Contains(d.References, NormalizeReference(name))
}

func (d *SessionDescriptor) HasNamespace(ns string) bool {
	return lo.Contains(d.Namespaces, strings.TrimSpace(ns))
}

// PackSession is what extension packs contribute to before an execution:
// extra references, extra namespaces and shared state.
type PackSession struct {
	References []string
	Namespaces []string
	State      map[string]any
}

func (p *PackSession) AddReference(names ...string) {
	p.References = append(p.References, names...)
}

func (p *PackSession) ImportNamespace(namespaces ...string) {
	p.Namespaces = append(p.Namespaces, namespaces...)
}

// Pack is an extension that prepares a PackSession.
type Pack interface {
	Name() string
	Initialize(session *PackSession)
}

// NewPackSession runs every pack's Initialize against one shared session.
func NewPackSession(packs ...Pack) *PackSession {
	session := &PackSession{State: make(map[string]any)}
	for _, p := range packs {
		p.Initialize(session)
	}
	return session
}

// NormalizeReference trims whitespace and strips one trailing library
// extension.
func NormalizeReference(name string) string {
	name = strings.TrimSpace(name)
	lower := strings.ToLower(name)
	for _, ext := range libraryExtensions {
		if strings.HasSuffix(lower, ext) && len(name) > len(ext) {
			return name[:len(name)-len(ext)]
		}
	}
	return name
}

// ResolveSession merges the caller's references and namespaces with those
// of the pack session and publishes the result into pack.State under
// SessionKey. A nil pack contributes nothing.
func ResolveSession(references, namespaces []string, pack *PackSession) *SessionDescriptor {
	if pack == nil {
		pack = &PackSession{}
	}
	if pack.State == nil {
		pack.State = make(map[string]any)
	}

	refs := append(append([]string{}, references...), pack.References...)
	nss := append(append([]string{}, namespaces...), pack.Namespaces...)

	descriptor := &SessionDescriptor{
		References: dedup(refs, NormalizeReference),
		Namespaces: dedup(nss, strings.TrimSpace),
	}

	pack.State[SessionKey] = descriptor
	return descriptor
}

func dedup(values []string, normalize func(string) string) []string {
	cleaned := lo.FilterMap(values, func(v string, _ int) (string, bool) {
		v = normalize(v)
		return v, v != ""
	})
	return lo.Uniq(cleaned)
}
