// Package autodiff compiles recorded forward operator graphs into backward graphs.
//
// GraphGradientMaker walks a forward op sequence in reverse, asks the gradient
// rule of every op kind (see package gradient) for the descriptors that
// compute its input gradients, and accumulates gradients of tensors with
// several consumers. Share then maps gradient tensors with disjoint lifetimes
// onto a small pool of buffers.
//
// Architecture:
//   - Tape: records forward descriptors
//   - GraphGradientMaker.Make: reverse dataflow pass producing backward descriptors
//   - GraphGradientMaker.Share: live-range based buffer reuse over forward+backward
//   - Compile/CompileAll: Make and Share behind tracing and logging
//
// Usage:
//
//	forward := []*graph.OpDef{
//	    graph.NewOp("Square", []string{"x"}, []string{"y1"}),
//	    graph.NewOp("Square", []string{"x"}, []string{"y2"}),
//	    graph.NewOp("Add", []string{"y1", "y2"}, []string{"z"}),
//	}
//	maker := autodiff.NewGraphGradientMaker(nil)
//	backward, err := maker.Make(forward, []string{"z"}, []string{"dz"})
//	// backward computes x_grad = SquareGradient(x, y1_grad) + SquareGradient(x, y2_grad)
package autodiff
