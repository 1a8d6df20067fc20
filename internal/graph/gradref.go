package graph

type gradState uint8

const (
	gradNone gradState = iota
	gradSome
	gradZero
)

// GradRef refers to the gradient of one tensor slot. It is one of:
//   - Some(name): the gradient lives in tensor name
//   - None: no gradient exists or was requested
//   - Zero: the gradient is defined and identically zero
//
// The zero value is None.
type GradRef struct {
	state gradState
	name  string
}

// Some returns a reference to the gradient stored in tensor name.
// An empty name yields None.
func Some(name string) GradRef {
	if name == "" {
		return GradRef{}
	}
	return GradRef{state: gradSome, name: name}
}

// None returns the absent gradient.
func None() GradRef { return GradRef{} }

// Zero returns the defined-zero gradient.
func Zero() GradRef { return GradRef{state: gradZero} }

// Name returns the tensor name for Some, and false otherwise.
func (g GradRef) Name() (string, bool) {
	return g.name, g.state == gradSome
}

// IsSome reports whether g names a gradient tensor.
func (g GradRef) IsSome() bool { return g.state == gradSome }

// IsNone reports whether g is absent.
func (g GradRef) IsNone() bool { return g.state == gradNone }

// IsZero reports whether g is the defined-zero gradient.
func (g GradRef) IsZero() bool { return g.state == gradZero }

// Defined reports whether g is Some or Zero.
func (g GradRef) Defined() bool { return g.state != gradNone }

func (g GradRef) String() string {
	switch g.state {
	case gradSome:
		return g.name
	case gradZero:
		return "<zero>"
	default:
		return "<none>"
	}
}
