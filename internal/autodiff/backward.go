package autodiff

import (
	"github.com/born-ml/graphgrad/internal/graph"
)

// Backward builds the backward graph of forward for targets with the default
// registry. Every target is seeded with ones when its producer is reached, so
// the result holds d(sum of targets)/d(tensor) under graph.GradName(tensor).
//
// Example:
//
//	fwd := graph.NewDef(graph.NewOp("Mul", []string{"x", "x"}, []string{"y"}))
//	bwd, err := autodiff.Backward(fwd, "y")
//	// bwd: MulGradient(x, x, y_grad/split:0) -> (x_grad/split:0, x_grad/split:1)
//	//      GradientAdd(x_grad/split:0, x_grad/split:1) -> x_grad
func Backward(forward *graph.Def, targets ...string) (*graph.Def, error) {
	m := NewGraphGradientMaker(nil)
	m.SetTypes(forward.Types)
	return m.Make(forward.Ops, targets, nil)
}
