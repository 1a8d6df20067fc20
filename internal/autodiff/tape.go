package autodiff

import (
	"github.com/born-ml/graphgrad/internal/graph"
	"github.com/born-ml/graphgrad/internal/tensor"
	"github.com/google/uuid"
)

// Tape records forward operator descriptors in execution order.
//
// Usage:
//
//	tape := NewTape()
//	tape.StartRecording()
//	tape.Record(graph.NewOp("Relu", []string{"x"}, []string{"y"}))
//	backward, err := tape.Backward(NewGraphGradientMaker(nil), []string{"y"}, nil)
type Tape struct {
	ops       []*graph.OpDef
	types     map[string]tensor.DataType
	recording bool
}

// NewTape creates a new tape.
func NewTape() *Tape {
	return &Tape{
		ops:   make([]*graph.OpDef, 0, 64),
		types: make(map[string]tensor.DataType),
	}
}

// StartRecording enables recording.
func (t *Tape) StartRecording() {
	t.recording = true
}

// StopRecording disables recording.
func (t *Tape) StopRecording() {
	t.recording = false
}

// IsRecording returns true if the tape is currently recording operations.
func (t *Tape) IsRecording() bool {
	return t.recording
}

// Record appends op if the tape is recording. Unnamed ops get a unique name.
// It returns the recorded descriptor, or nil when not recording.
func (t *Tape) Record(op *graph.OpDef) *graph.OpDef {
	if !t.recording {
		return nil
	}
	if op.Name() == "" {
		op = op.WithName(op.Kind() + "/" + uuid.NewString())
	}
	t.ops = append(t.ops, op)
	return op
}

// SetType annotates the element type of a recorded tensor.
func (t *Tape) SetType(name string, dt tensor.DataType) {
	t.types[name] = dt
}

// Clear removes all recorded ops and type annotations.
// Recording state is preserved.
func (t *Tape) Clear() {
	t.ops = t.ops[:0]
	t.types = make(map[string]tensor.DataType)
}

// Ops returns the recorded ops in execution order.
func (t *Tape) Ops() []*graph.OpDef {
	return append([]*graph.OpDef(nil), t.ops...)
}

// NumOps returns the number of recorded ops.
func (t *Tape) NumOps() int {
	return len(t.ops)
}

// Def returns the recorded ops and types as a graph definition.
func (t *Tape) Def() *graph.Def {
	def := graph.NewDef(t.Ops()...)
	for k, v := range t.types {
		def.SetType(k, v)
	}
	return def
}

// Backward builds the backward graph of the recorded ops with maker.
// Recording is suspended while the graph is built.
func (t *Tape) Backward(maker *GraphGradientMaker, targets, seeds []string) (*graph.Def, error) {
	wasRecording := t.recording
	t.recording = false
	defer func() {
		t.recording = wasRecording
	}()

	maker.SetTypes(t.types)
	return maker.Make(t.ops, targets, seeds)
}
