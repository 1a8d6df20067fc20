package graph

import (
	"strings"

	"github.com/born-ml/graphgrad/internal/tensor"
)

// Def is a linear operator sequence together with the element types of the
// tensors it touches.
type Def struct {
	Ops   []*OpDef
	Types map[string]tensor.DataType
}

// NewDef creates a Def over ops with no type annotations.
func NewDef(ops ...*OpDef) *Def {
	return &Def{Ops: ops, Types: make(map[string]tensor.DataType)}
}

// SetType records the element type of tensor name.
func (d *Def) SetType(name string, dt tensor.DataType) {
	if d.Types == nil {
		d.Types = make(map[string]tensor.DataType)
	}
	d.Types[name] = dt
}

// TypeOf returns the element type of name. Gradient names inherit the type of
// their source tensor; unannotated tensors are Float32.
func (d *Def) TypeOf(name string) tensor.DataType {
	if dt, ok := d.Types[name]; ok {
		return dt
	}
	if src, ok := SourceOf(name); ok {
		return d.TypeOf(src)
	}
	return tensor.Float32
}

// Append returns a new Def holding d's ops followed by other's, with both type tables merged.
func (d *Def) Append(other *Def) *Def {
	out := &Def{
		Ops:   make([]*OpDef, 0, len(d.Ops)+len(other.Ops)),
		Types: make(map[string]tensor.DataType, len(d.Types)+len(other.Types)),
	}
	out.Ops = append(out.Ops, d.Ops...)
	out.Ops = append(out.Ops, other.Ops...)
	for k, v := range d.Types {
		out.Types[k] = v
	}
	for k, v := range other.Types {
		out.Types[k] = v
	}
	return out
}

// Clone returns a shallow copy. Ops are immutable, so they are shared.
func (d *Def) Clone() *Def {
	return NewDef().Append(d)
}

// Len returns the number of ops.
func (d *Def) Len() int { return len(d.Ops) }

func (d *Def) String() string {
	var sb strings.Builder
	for _, op := range d.Ops {
		sb.WriteString(op.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}
