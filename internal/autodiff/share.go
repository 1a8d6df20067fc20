package autodiff

import (
	"sort"
	"strconv"

	"github.com/born-ml/graphgrad/internal/graph"
	"github.com/born-ml/graphgrad/internal/tensor"
	"k8s.io/klog/v2"
)

// SharedSlotPrefix prefixes the names of physical gradient buffers.
const SharedSlotPrefix = "/share/grad:"

// Interval is the lifetime of a tensor in an op sequence: the index of the op
// that first writes it and the index of the last op that reads or writes it.
type Interval struct {
	First int
	Last  int
}

// Overlaps reports whether the closed intervals a and b intersect.
func (a Interval) Overlaps(b Interval) bool {
	return a.First <= b.Last && b.First <= a.Last
}

// Slot is one physical buffer and the tensors mapped onto it, in assignment order.
type Slot struct {
	Name    string
	Type    tensor.DataType
	Tensors []string
}

// SharePlan maps gradient tensors onto a smaller set of slots.
type SharePlan struct {
	Intervals map[string]Interval // lifetime of every shared tensor
	Assign    map[string]string   // tensor -> slot name
	Slots     []Slot
}

// PeakSlots returns the number of physical buffers the plan needs.
func (p *SharePlan) PeakSlots() int { return len(p.Slots) }

// Plan computes a buffer-sharing plan for def.
//
// Candidates are gradient tensors that are written by def, read after their
// first write and not retained. Ops are visited in order; every output whose
// lifetime starts at the op takes a free slot of the same element type (the
// most recently freed one) or a new slot. Slots of tensors whose lifetime ends
// at the op are freed only after its outputs are placed, so an op never reads
// and writes the same slot.
func (m *GraphGradientMaker) Plan(def *graph.Def) (*SharePlan, error) {
	intervals, err := m.lifetimes(def)
	if err != nil {
		return nil, err
	}

	plan := &SharePlan{
		Intervals: intervals,
		Assign:    make(map[string]string, len(intervals)),
	}
	free := make(map[tensor.DataType][]int)
	slotOf := make(map[string]int, len(intervals))

	for i, op := range def.Ops {
		for j := 0; j < op.NumOutputs(); j++ {
			out := op.Output(j)
			iv, ok := intervals[out]
			if !ok || iv.First != i {
				continue
			}
			if _, done := slotOf[out]; done {
				continue
			}
			dt := def.TypeOf(out)
			var idx int
			if stack := free[dt]; len(stack) > 0 {
				idx = stack[len(stack)-1]
				free[dt] = stack[:len(stack)-1]
			} else {
				idx = len(plan.Slots)
				plan.Slots = append(plan.Slots, Slot{Name: SharedSlotPrefix + strconv.Itoa(idx), Type: dt})
			}
			slotOf[out] = idx
			plan.Slots[idx].Tensors = append(plan.Slots[idx].Tensors, out)
			plan.Assign[out] = plan.Slots[idx].Name
		}

		released := make(map[string]struct{})
		release := func(name string) {
			iv, ok := intervals[name]
			if !ok || iv.Last != i {
				return
			}
			if _, done := released[name]; done {
				return
			}
			released[name] = struct{}{}
			idx := slotOf[name]
			dt := plan.Slots[idx].Type
			free[dt] = append(free[dt], idx)
		}
		for j := 0; j < op.NumInputs(); j++ {
			release(op.Input(j))
		}
		for j := 0; j < op.NumOutputs(); j++ {
			release(op.Output(j))
		}
	}
	return plan, nil
}

// lifetimes computes the interval of every sharing candidate in def.
func (m *GraphGradientMaker) lifetimes(def *graph.Def) (map[string]Interval, error) {
	firstWrite := make(map[string]int)
	lastTouch := make(map[string]int)
	firstRead := make(map[string]int)
	read := make(map[string]bool)

	for i, op := range def.Ops {
		for j := 0; j < op.NumInputs(); j++ {
			in := op.Input(j)
			if in == "" {
				continue
			}
			if _, ok := firstRead[in]; !ok {
				firstRead[in] = i
			}
			read[in] = true
			lastTouch[in] = i
		}
		for j := 0; j < op.NumOutputs(); j++ {
			out := op.Output(j)
			if out == "" {
				continue
			}
			if _, ok := firstWrite[out]; !ok {
				firstWrite[out] = i
			}
			lastTouch[out] = i
		}
	}

	intervals := make(map[string]Interval)
	for name, first := range firstWrite {
		if !graph.IsGradName(name) || m.isRetained(name) || !read[name] {
			continue
		}
		if fr := firstRead[name]; fr <= first {
			return nil, graph.NewError(graph.ErrLifetime, def.Ops[fr], name,
				"read at op %d before its first write at op %d", fr, first)
		}
		intervals[name] = Interval{First: first, Last: lastTouch[name]}
	}
	return intervals, nil
}

func (m *GraphGradientMaker) isRetained(name string) bool {
	if _, ok := m.retained[name]; ok {
		return true
	}
	if src, ok := graph.SourceOf(name); ok && name == graph.GradName(src) {
		_, ok := m.retained[src]
		return ok
	}
	return false
}

// ValidatePlan checks that no two tensors sharing a slot have overlapping
// lifetimes or different element types.
func ValidatePlan(def *graph.Def, plan *SharePlan) error {
	for _, slot := range plan.Slots {
		names := append([]string(nil), slot.Tensors...)
		sort.Slice(names, func(i, j int) bool {
			return plan.Intervals[names[i]].First < plan.Intervals[names[j]].First
		})
		for i, name := range names {
			if dt := def.TypeOf(name); dt != slot.Type {
				return graph.NewError(graph.ErrLifetime, nil, name,
					"%s tensor placed in %s slot %s", dt, slot.Type, slot.Name)
			}
			if i == len(names)-1 {
				continue
			}
			cur, next := plan.Intervals[name], plan.Intervals[names[i+1]]
			if cur.Overlaps(next) {
				return graph.NewError(graph.ErrLifetime, nil, name,
					"shares slot %s with %q but lifetimes [%d-%d] and [%d-%d] overlap",
					slot.Name, names[i+1], cur.First, cur.Last, next.First, next.Last)
			}
		}
	}
	return nil
}

// Share rewrites def so that gradient tensors with disjoint lifetimes reuse
// the same buffer. Retained gradients, gradients never read inside def and
// non-gradient tensors keep their names.
//
// If lifetimes cannot be computed the defect is logged and an unshared copy
// of def is returned: the executor then uses more memory but computes the
// same values.
func (m *GraphGradientMaker) Share(def *graph.Def) *graph.Def {
	out, _ := m.share(def)
	return out
}

// share is Share that also returns the plan applied, or nil on fallback.
func (m *GraphGradientMaker) share(def *graph.Def) (*graph.Def, *SharePlan) {
	plan, err := m.Plan(def)
	if err == nil {
		err = ValidatePlan(def, plan)
	}
	if err != nil {
		klog.ErrorS(err, "Gradient buffer sharing disabled", "ops", def.Len())
		return def.Clone(), nil
	}

	out := graph.NewDef()
	for k, v := range def.Types {
		out.SetType(k, v)
	}
	for _, slot := range plan.Slots {
		out.SetType(slot.Name, slot.Type)
	}
	for _, op := range def.Ops {
		out.Ops = append(out.Ops, op.Rename(plan.Assign))
	}
	klog.V(2).InfoS("Shared gradient buffers", "tensors", len(plan.Assign), "slots", plan.PeakSlots())
	return out, plan
}
