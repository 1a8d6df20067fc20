// Package graph defines the operator descriptors and naming conventions shared by
// the gradient registry, the backward graph builder and the buffer-sharing rewriter.
//
// An OpDef is immutable once constructed: accessors hand out copies, and the
// With* methods return a modified copy instead of mutating the receiver. This
// lets forward descriptors owned by the caller be shared freely with the
// compiler, and lets compiled descriptors be handed to an executor while the
// compiler keeps references to them.
package graph

import (
	"fmt"
	"sort"
	"strings"
)

// ArgType identifies which field of an Arg carries the value.
type ArgType int

// Argument value types.
const (
	ArgInt ArgType = iota
	ArgFloat
	ArgString
	ArgBool
	ArgInts
	ArgFloats
)

// Arg is a named operator argument value.
type Arg struct {
	Type   ArgType
	I      int64     // ArgInt
	F      float64   // ArgFloat
	S      string    // ArgString
	B      bool      // ArgBool
	Ints   []int64   // ArgInts
	Floats []float64 // ArgFloats
}

// IntArg returns an integer argument.
func IntArg(v int64) Arg { return Arg{Type: ArgInt, I: v} }

// FloatArg returns a float argument.
func FloatArg(v float64) Arg { return Arg{Type: ArgFloat, F: v} }

// StringArg returns a string argument.
func StringArg(v string) Arg { return Arg{Type: ArgString, S: v} }

// BoolArg returns a boolean argument.
func BoolArg(v bool) Arg { return Arg{Type: ArgBool, B: v} }

// IntsArg returns an integer list argument.
func IntsArg(v ...int64) Arg { return Arg{Type: ArgInts, Ints: append([]int64(nil), v...)} }

// FloatsArg returns a float list argument.
func FloatsArg(v ...float64) Arg { return Arg{Type: ArgFloats, Floats: append([]float64(nil), v...)} }

func (a Arg) clone() Arg {
	a.Ints = append([]int64(nil), a.Ints...)
	a.Floats = append([]float64(nil), a.Floats...)
	return a
}

// String formats the value for debug output.
func (a Arg) String() string {
	switch a.Type {
	case ArgInt:
		return fmt.Sprint(a.I)
	case ArgFloat:
		return fmt.Sprint(a.F)
	case ArgString:
		return fmt.Sprintf("%q", a.S)
	case ArgBool:
		return fmt.Sprint(a.B)
	case ArgInts:
		return fmt.Sprint(a.Ints)
	case ArgFloats:
		return fmt.Sprint(a.Floats)
	default:
		return "?"
	}
}

// Alias declares that an input slot and an output slot share storage (in-place).
type Alias struct {
	Input  int
	Output int
}

// OpDef describes one operator application: its kind, the tensors it reads
// and writes, and its static arguments.
//
// An empty output name marks a slot the kernel must not materialize, which is
// how a backward descriptor signals that a gradient was not requested.
type OpDef struct {
	kind    string
	name    string
	inputs  []string
	outputs []string
	args    map[string]Arg
	aliases []Alias
}

// OpOption configures an OpDef under construction.
type OpOption func(*OpDef)

// WithName sets the operator name.
func WithName(name string) OpOption {
	return func(op *OpDef) { op.name = name }
}

// WithArg sets a named argument.
func WithArg(key string, v Arg) OpOption {
	return func(op *OpDef) {
		if op.args == nil {
			op.args = make(map[string]Arg)
		}
		op.args[key] = v.clone()
	}
}

// WithArgs copies every argument of args.
func WithArgs(args map[string]Arg) OpOption {
	return func(op *OpDef) {
		for k, v := range args {
			WithArg(k, v)(op)
		}
	}
}

// WithAlias declares input slot in and output slot out as in-place aliased.
func WithAlias(in, out int) OpOption {
	return func(op *OpDef) { op.aliases = append(op.aliases, Alias{Input: in, Output: out}) }
}

// NewOp creates an operator descriptor. The slices are copied.
func NewOp(kind string, inputs, outputs []string, opts ...OpOption) *OpDef {
	op := &OpDef{
		kind:    kind,
		inputs:  append([]string(nil), inputs...),
		outputs: append([]string(nil), outputs...),
	}
	for _, opt := range opts {
		opt(op)
	}
	return op
}

// Kind returns the operator kind.
func (op *OpDef) Kind() string { return op.kind }

// Name returns the operator name.
func (op *OpDef) Name() string { return op.name }

// NumInputs returns the number of input slots.
func (op *OpDef) NumInputs() int { return len(op.inputs) }

// NumOutputs returns the number of output slots.
func (op *OpDef) NumOutputs() int { return len(op.outputs) }

// Input returns the tensor name bound to input slot i.
func (op *OpDef) Input(i int) string { return op.inputs[i] }

// Output returns the tensor name bound to output slot i.
func (op *OpDef) Output(i int) string { return op.outputs[i] }

// Inputs returns a copy of the input names.
func (op *OpDef) Inputs() []string { return append([]string(nil), op.inputs...) }

// Outputs returns a copy of the output names.
func (op *OpDef) Outputs() []string { return append([]string(nil), op.outputs...) }

// Aliases returns a copy of the declared in-place pairs.
func (op *OpDef) Aliases() []Alias { return append([]Alias(nil), op.aliases...) }

// Args returns a copy of the arguments.
func (op *OpDef) Args() map[string]Arg {
	args := make(map[string]Arg, len(op.args))
	for k, v := range op.args {
		args[k] = v.clone()
	}
	return args
}

// Arg returns the named argument.
func (op *OpDef) Arg(key string) (Arg, bool) {
	v, ok := op.args[key]
	if !ok {
		return Arg{}, false
	}
	return v.clone(), true
}

// ArgInt returns an integer argument or defaultVal.
func (op *OpDef) ArgInt(key string, defaultVal int64) int64 {
	if v, ok := op.args[key]; ok && v.Type == ArgInt {
		return v.I
	}
	return defaultVal
}

// ArgFloat returns a float argument or defaultVal.
func (op *OpDef) ArgFloat(key string, defaultVal float64) float64 {
	if v, ok := op.args[key]; ok && v.Type == ArgFloat {
		return v.F
	}
	return defaultVal
}

// ArgString returns a string argument or defaultVal.
func (op *OpDef) ArgString(key, defaultVal string) string {
	if v, ok := op.args[key]; ok && v.Type == ArgString {
		return v.S
	}
	return defaultVal
}

// ArgBool returns a boolean argument or defaultVal.
func (op *OpDef) ArgBool(key string, defaultVal bool) bool {
	if v, ok := op.args[key]; ok && v.Type == ArgBool {
		return v.B
	}
	return defaultVal
}

// ArgInts returns an integer list argument, or nil.
func (op *OpDef) ArgInts(key string) []int64 {
	if v, ok := op.args[key]; ok && v.Type == ArgInts {
		return append([]int64(nil), v.Ints...)
	}
	return nil
}

// AliasOf returns the input slot aliased to output slot out.
func (op *OpDef) AliasOf(out int) (int, bool) {
	for _, a := range op.aliases {
		if a.Output == out {
			return a.Input, true
		}
	}
	return 0, false
}

// IsInplace reports whether any input slot shares storage with an output slot.
func (op *OpDef) IsInplace() bool { return len(op.aliases) > 0 }

func (op *OpDef) clone() *OpDef {
	c := *op
	c.inputs = append([]string(nil), op.inputs...)
	c.outputs = append([]string(nil), op.outputs...)
	c.aliases = append([]Alias(nil), op.aliases...)
	c.args = op.Args()
	return &c
}

// WithName returns a copy of op renamed to name.
func (op *OpDef) WithName(name string) *OpDef {
	c := op.clone()
	c.name = name
	return c
}

// Rename returns a copy of op with every input and output name found in
// mapping replaced. Names absent from mapping are kept.
func (op *OpDef) Rename(mapping map[string]string) *OpDef {
	c := op.clone()
	for i, n := range c.inputs {
		if to, ok := mapping[n]; ok {
			c.inputs[i] = to
		}
	}
	for i, n := range c.outputs {
		if to, ok := mapping[n]; ok {
			c.outputs[i] = to
		}
	}
	return c
}

// String renders the descriptor as "name = Kind(in, ...) -> (out, ...) {args}".
func (op *OpDef) String() string {
	var sb strings.Builder
	if op.name != "" {
		sb.WriteString(op.name)
		sb.WriteString(" = ")
	}
	sb.WriteString(op.kind)
	sb.WriteString("(")
	sb.WriteString(strings.Join(op.inputs, ", "))
	sb.WriteString(") -> (")
	outs := make([]string, len(op.outputs))
	for i, o := range op.outputs {
		if o == "" {
			o = "_"
		}
		outs[i] = o
	}
	sb.WriteString(strings.Join(outs, ", "))
	sb.WriteString(")")
	if len(op.args) > 0 {
		keys := make([]string, 0, len(op.args))
		for k := range op.args {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString(" {")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(k)
			sb.WriteString(": ")
			sb.WriteString(op.args[k].String())
		}
		sb.WriteString("}")
	}
	return sb.String()
}
