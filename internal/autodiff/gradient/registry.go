// Package gradient maps operator kinds to gradient rules.
//
// A rule is a pure function from a forward operator descriptor and the
// gradients bound to its outputs to the backward descriptors that compute the
// gradients of its inputs. Rules reason about graph structure only; they never
// see tensor values.
//
// A Registry is populated once at startup and then sealed. After Seal it is
// read-only and safe for concurrent use without locking.
package gradient

import (
	"sort"

	"github.com/born-ml/graphgrad/internal/graph"
	"github.com/pkg/errors"
)

// Result is what a Maker returns.
type Result struct {
	// Defs are appended to the backward sequence in order.
	Defs []*graph.OpDef
	// InputGrads has one entry per forward input.
	InputGrads []graph.GradRef
}

// Maker builds the backward descriptors of one forward operator.
type Maker func(ctx *Context) (*Result, error)

// Rule is the registry entry of one operator kind.
type Rule struct {
	Kind   string
	Schema Schema
	Maker  Maker

	// Mandatory lists output slots whose gradient must be bound whenever the
	// operator participates in the backward pass.
	Mandatory []int

	// NoGradient marks kinds that stop gradient flow. Their outputs are
	// blacklisted and no backward descriptor is emitted for them.
	NoGradient bool
}

// Registry maps operator kinds to gradient rules and arity schemas.
type Registry struct {
	rules   map[string]*Rule
	schemas map[string]Schema
	sealed  bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rules:   make(map[string]*Rule),
		schemas: make(map[string]Schema),
	}
}

// Register adds a rule. The rule's schema is registered for its kind too.
func (r *Registry) Register(rule Rule) error {
	if r.sealed {
		return errors.Wrapf(graph.ErrSealed, "register %q", rule.Kind)
	}
	if _, ok := r.rules[rule.Kind]; ok {
		return errors.Wrapf(graph.ErrDuplicateKind, "register %q", rule.Kind)
	}
	if rule.Maker == nil && !rule.NoGradient {
		return errors.Wrapf(graph.ErrInvalidRule, "register %q: nil maker", rule.Kind)
	}
	rr := rule
	rr.Mandatory = append([]int(nil), rule.Mandatory...)
	r.rules[rule.Kind] = &rr
	r.schemas[rule.Kind] = rule.Schema
	return nil
}

// RegisterSchema declares the arity of a kind that has no gradient rule of its
// own, typically a backward kind such as "ReluGradient".
func (r *Registry) RegisterSchema(kind string, s Schema) error {
	if r.sealed {
		return errors.Wrapf(graph.ErrSealed, "register schema %q", kind)
	}
	if _, ok := r.schemas[kind]; ok {
		return errors.Wrapf(graph.ErrDuplicateKind, "register schema %q", kind)
	}
	r.schemas[kind] = s
	return nil
}

// MustRegister registers rules and panics on error. For use during bootstrap.
func (r *Registry) MustRegister(rules ...Rule) {
	for _, rule := range rules {
		if err := r.Register(rule); err != nil {
			panic(err)
		}
	}
}

// MustRegisterSchema registers a schema and panics on error.
func (r *Registry) MustRegisterSchema(kind string, s Schema) {
	if err := r.RegisterSchema(kind, s); err != nil {
		panic(err)
	}
}

// Seal makes the registry read-only.
func (r *Registry) Seal() { r.sealed = true }

// Sealed reports whether Seal was called.
func (r *Registry) Sealed() bool { return r.sealed }

// Lookup returns the rule for kind, or an error wrapping ErrUnregisteredKind.
func (r *Registry) Lookup(kind string) (*Rule, error) {
	rule, ok := r.rules[kind]
	if !ok {
		return nil, &graph.Error{Err: graph.ErrUnregisteredKind, Op: kind}
	}
	return rule, nil
}

// Schema returns the arity contract of kind.
func (r *Registry) Schema(kind string) (Schema, bool) {
	s, ok := r.schemas[kind]
	return s, ok
}

// Kinds returns every kind that has a rule, sorted.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.rules))
	for k := range r.rules {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
