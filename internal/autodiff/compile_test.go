package autodiff_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/born-ml/graphgrad/internal/autodiff"
	"github.com/born-ml/graphgrad/internal/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile(t *testing.T) {
	req := &autodiff.Request{
		Name:    "square-square-add",
		Forward: graph.NewDef(squareSquareAdd()...),
		Targets: names("Z"),
		Seeds:   names("dZ"),
	}

	res, err := autodiff.Compile(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 4, res.Backward.Len())
	assert.Equal(t, 7, res.Graph.Len())
	assert.Equal(t, 1, res.Stats.Accumulations)
	assert.Zero(t, res.Slots)
	assert.Contains(t, writers(res.Graph), "Y1_grad")
}

func TestCompile_Share(t *testing.T) {
	req := &autodiff.Request{
		Name:          "shared",
		Forward:       graph.NewDef(squareSquareAdd()...),
		Targets:       names("Z"),
		Seeds:         names("dZ"),
		RetainedGrads: names("Y1"),
		OpPrefix:      "bwd",
		Share:         true,
	}

	res, err := autodiff.Compile(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Slots)
	assert.Contains(t, writers(res.Graph), "Y1_grad")
	assert.NotContains(t, writers(res.Graph), "Y2_grad")
	assert.Equal(t, "bwd0", res.Backward.Ops[0].Name())

	unshared := req.Forward.Append(res.Backward)
	assert.Equal(t, trace(unshared), trace(res.Graph))
}

func TestCompile_Error(t *testing.T) {
	req := &autodiff.Request{
		Name:    "bad",
		Forward: graph.NewDef(op("Frobnicate", names("X"), names("Y"))),
		Targets: names("Y"),
	}

	_, err := autodiff.Compile(context.Background(), req)
	require.ErrorIs(t, err, graph.ErrUnregisteredKind)
	assert.Contains(t, err.Error(), `"bad"`)
}

func TestCompile_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := autodiff.Compile(ctx, &autodiff.Request{Forward: graph.NewDef(squareSquareAdd()...), Targets: names("Z")})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCompileAll(t *testing.T) {
	reqs := make([]*autodiff.Request, 8)
	for i := range reqs {
		reqs[i] = &autodiff.Request{
			Name:    fmt.Sprintf("g%d", i),
			Forward: graph.NewDef(squareSquareAdd()...),
			Targets: names("Z"),
			Share:   i%2 == 0,
		}
	}

	results, err := autodiff.CompileAll(context.Background(), reqs, 3)
	require.NoError(t, err)
	require.Len(t, results, len(reqs))
	for i, res := range results {
		assert.Equal(t, 1, res.Stats.Accumulations, "request %d", i)
		assert.Equal(t, 1, res.Stats.Seeds, "request %d", i)
	}
}

func TestCompileAll_Error(t *testing.T) {
	reqs := []*autodiff.Request{
		{Name: "ok", Forward: graph.NewDef(squareSquareAdd()...), Targets: names("Z")},
		{Name: "bad", Forward: graph.NewDef(op("Add", names("X"), names("Y"))), Targets: names("Y")},
	}

	results, err := autodiff.CompileAll(context.Background(), reqs, 0)
	require.ErrorIs(t, err, graph.ErrArityMismatch)
	assert.Nil(t, results)
}
