package main

import (
	"fmt"
	"io"
	"os"

	"github.com/born-ml/graphgrad/internal/autodiff"
	"github.com/born-ml/graphgrad/internal/graph"
	"github.com/born-ml/graphgrad/internal/tensor"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// graphFile is the YAML form of a compile request.
//
//	name: mlp
//	targets: [loss]
//	share: true
//	types: {labels: int64}
//	ops:
//	  - {kind: MatMul, inputs: [x, w], outputs: [h], args: {transB: true}}
//	  - {kind: Relu, inputs: [h], outputs: [h], inplace: [[0, 0]]}
type graphFile struct {
	Name      string            `yaml:"name"`
	Targets   []string          `yaml:"targets"`
	Seeds     []string          `yaml:"seeds"`
	Empty     []string          `yaml:"empty"`
	Retained  []string          `yaml:"retained"`
	Blacklist []string          `yaml:"blacklist"`
	OpPrefix  string            `yaml:"op_prefix"`
	Share     bool              `yaml:"share"`
	Types     map[string]string `yaml:"types"`
	Ops       []opEntry         `yaml:"ops"`
}

type opEntry struct {
	Kind    string         `yaml:"kind"`
	Name    string         `yaml:"name"`
	Inputs  []string       `yaml:"inputs"`
	Outputs []string       `yaml:"outputs"`
	Args    map[string]any `yaml:"args"`
	Inplace [][]int        `yaml:"inplace"`
}

func loadGraphFile(path string) (*graphFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseGraphFile(f)
}

func parseGraphFile(r io.Reader) (*graphFile, error) {
	var gf graphFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&gf); err != nil {
		return nil, errors.Wrap(err, "decode graph file")
	}
	if len(gf.Targets) == 0 {
		return nil, errors.New("graph file has no targets")
	}
	return &gf, nil
}

// request converts the file into a compile request.
func (gf *graphFile) request() (*autodiff.Request, error) {
	def := graph.NewDef()
	for i, e := range gf.Ops {
		if e.Kind == "" {
			return nil, errors.Errorf("op %d: missing kind", i)
		}
		opts := []graph.OpOption{graph.WithName(e.Name)}
		for key, v := range e.Args {
			arg, err := toArg(v)
			if err != nil {
				return nil, errors.Wrapf(err, "op %d (%s): arg %q", i, e.Kind, key)
			}
			opts = append(opts, graph.WithArg(key, arg))
		}
		for _, pair := range e.Inplace {
			if len(pair) != 2 {
				return nil, errors.Errorf("op %d (%s): inplace pair %v is not [input, output]", i, e.Kind, pair)
			}
			opts = append(opts, graph.WithAlias(pair[0], pair[1]))
		}
		def.Ops = append(def.Ops, graph.NewOp(e.Kind, e.Inputs, e.Outputs, opts...))
	}
	for name, s := range gf.Types {
		dt, err := tensor.ParseDataType(s)
		if err != nil {
			return nil, errors.Wrapf(err, "type of %q", name)
		}
		def.SetType(name, dt)
	}

	return &autodiff.Request{
		Name:          gf.Name,
		Forward:       def,
		Targets:       gf.Targets,
		Seeds:         gf.Seeds,
		EmptyGrads:    gf.Empty,
		RetainedGrads: gf.Retained,
		Blacklist:     gf.Blacklist,
		OpPrefix:      gf.OpPrefix,
		Share:         gf.Share,
	}, nil
}

// toArg maps a decoded YAML scalar or list onto an operator argument.
func toArg(v any) (graph.Arg, error) {
	switch x := v.(type) {
	case int:
		return graph.IntArg(int64(x)), nil
	case float64:
		return graph.FloatArg(x), nil
	case string:
		return graph.StringArg(x), nil
	case bool:
		return graph.BoolArg(x), nil
	case []any:
		ints := make([]int64, 0, len(x))
		floats := make([]float64, 0, len(x))
		allInts := true
		for _, e := range x {
			switch n := e.(type) {
			case int:
				ints = append(ints, int64(n))
				floats = append(floats, float64(n))
			case float64:
				allInts = false
				floats = append(floats, n)
			default:
				return graph.Arg{}, fmt.Errorf("unsupported list element %T", e)
			}
		}
		if allInts {
			return graph.IntsArg(ints...), nil
		}
		return graph.FloatsArg(floats...), nil
	default:
		return graph.Arg{}, fmt.Errorf("unsupported value %T", v)
	}
}
