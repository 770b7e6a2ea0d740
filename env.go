// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

// Tag is an opaque service key for the environment record. Two tags are
// the same service if and only if they are the same allocation; the name
// exists for diagnostics only.
type Tag struct{ name string }

// NewTag allocates a fresh service tag.
func NewTag(name string) *Tag { return &Tag{name: name} }

// String returns the tag's diagnostic name.
func (t *Tag) String() string { return t.name }

// Env is an immutable, type-indexed environment record threaded through
// [Access] and [Provide]. Multiple services share one record, each under
// its own [Tag].
type Env struct {
	services map[*Tag]Erased
}

// EmptyEnv is the environment with no services.
func EmptyEnv() Env { return Env{} }

// Add returns a new environment extended with the service under tag.
// The receiver is unchanged; copies share nothing mutable.
func (e Env) Add(tag *Tag, service Erased) Env {
	next := make(map[*Tag]Erased, len(e.services)+1)
	for k, v := range e.services {
		next[k] = v
	}
	next[tag] = service
	return Env{services: next}
}

// Get returns the service registered under tag, if any.
func (e Env) Get(tag *Tag) (Erased, bool) {
	v, ok := e.services[tag]
	return v, ok
}

// AccessService reads one service from the environment, failing with a
// defect if the service is missing — a missing service is a wiring bug,
// not a domain error.
func AccessService(tag *Tag, k func(Erased) Effect) Effect {
	return Access(func(env Env) Effect {
		v, ok := env.Get(tag)
		if !ok {
			return Die("fiber: missing service " + tag.String())
		}
		return k(v)
	})
}

// ProvideService runs inner with the environment extended by one service.
func ProvideService(tag *Tag, service Erased, inner Effect) Effect {
	return Access(func(env Env) Effect {
		return Provide(env.Add(tag, service), inner)
	})
}
