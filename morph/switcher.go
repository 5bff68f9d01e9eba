package morph

import (
	"maps"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomorph/gomorph/ir"
)

// ValueTracer is the scheduler-supplied predicate reporting whether the
// value flowing from one operation to another is compute-sensitive, i.e.
// whether it must be handed to the numeric compute domain untouched.
type ValueTracer func(from, to *ir.Operation) bool

// DeviceSwitcher inserts and removes the boundary operations that mark
// transitions between the shape/index domain and the numeric compute domain.
//
// Shape/index operations run on the lightweight domain while the rest of the
// graph runs on the compute domain, so a boundary operation must sit on
// every edge where a value crosses domains. Some compute-domain operations
// accept shape/index inputs natively (Reshape, Slice, ...); the value tracer
// decides those cases.
//
// Every operation must have been platform-tagged by the dispatcher before
// InsertSwitchers runs.
type DeviceSwitcher struct {
	g       *ir.Graph
	tracing ValueTracer
}

// NewDeviceSwitcher creates a DeviceSwitcher operating on g with the given
// value-tracing predicate.
func NewDeviceSwitcher(g *ir.Graph, tracing ValueTracer) *DeviceSwitcher {
	return &DeviceSwitcher{g: g, tracing: tracing}
}

// AcceptedCommands implements Processor.
func (s *DeviceSwitcher) AcceptedCommands() []CommandType {
	return []CommandType{CommandInsertSwitcher, CommandRemoveSwitcher}
}

// Process implements Processor.
func (s *DeviceSwitcher) Process(cmd Command) error {
	switch cmd.Type() {
	case CommandInsertSwitcher:
		return s.InsertSwitchers()
	case CommandRemoveSwitcher:
		return s.RemoveSwitchers()
	}
	return errors.Wrapf(ErrUnsupportedCommand, "DeviceSwitcher cannot process %s", cmd.Type())
}

// canPassShape reports whether the edge from one operation to another can
// carry shape/index-domain data untouched: either the consumer runs on the
// shape/index domain itself, or the traced value is not compute-sensitive.
func (s *DeviceSwitcher) canPassShape(from, to *ir.Operation) bool {
	if to.Platform == ir.PlatformShapeOrIndex {
		return true
	}
	return !s.tracing(from, to)
}

// InsertSwitchers inserts every necessary boundary operation into the graph.
//
// For each shape/index operation's output: when no consumer can pass
// shape-domain data, one shared boundary is spliced on the variable before
// its fan-out; when only some cannot, one boundary per non-conforming edge.
// Independently, a reverse boundary is inserted on every input edge whose
// producer is neither shape/index-tagged nor a shape/index generator.
//
// The pass is not reentrant: it fails if boundaries are already inserted.
func (s *DeviceSwitcher) InsertSwitchers() error {
	if s.tracing == nil {
		exceptions.Panicf("morph: DeviceSwitcher has no value-tracing predicate")
	}
	if s.g.BoundariesInserted() {
		return errors.Errorf("boundary operations already inserted in graph %q: remove them first", s.g.Name)
	}

	var soiOps []*ir.Operation
	for _, name := range slices.Sorted(maps.Keys(s.g.Operations)) {
		if op := s.g.Operations[name]; op.Platform == ir.PlatformShapeOrIndex {
			soiOps = append(soiOps, op)
		}
	}

	inserted := 0
	for _, op := range soiOps {
		for _, v := range slices.Clone(op.Outputs) {
			allPass, nonePass := true, true
			for _, dest := range v.Dests {
				if s.canPassShape(op, dest) {
					nonePass = false
				} else {
					allPass = false
				}
			}
			if allPass {
				continue
			}
			if nonePass {
				// Single conversion point before the fan-out.
				boundary := ir.NewOperation(v.Name+"_Switcher", ir.OpDeviceSwitch, nil)
				if err := s.g.InsertOperationOnVar(boundary, v.Name); err != nil {
					return err
				}
				boundary.Platform = ir.PlatformFP32
				inserted++
				continue
			}
			for _, dest := range slices.Clone(v.Dests) {
				if s.canPassShape(op, dest) {
					continue
				}
				boundary := ir.NewOperation(op.Name+"_"+dest.Name, ir.OpDeviceSwitch, nil)
				if err := s.g.InsertOperationBetween(boundary, op, dest); err != nil {
					return err
				}
				boundary.Platform = ir.PlatformFP32
				inserted++
			}
		}

		for _, v := range slices.Clone(op.Inputs) {
			src := v.Source
			if src == nil {
				continue
			}
			if src.Platform == ir.PlatformShapeOrIndex || src.Type.IsShapeSource() {
				continue
			}
			boundary := ir.NewOperation(src.Name+"_"+op.Name, ir.OpDeviceSwitch, nil)
			if err := s.g.InsertOperationBetween(boundary, src, op); err != nil {
				return err
			}
			boundary.Platform = ir.PlatformShapeOrIndex
			inserted++
		}
	}

	s.g.SetBoundariesInserted(true)
	klog.V(2).Infof("InsertSwitchers: inserted %d boundary operations into graph %q", inserted, s.g.Name)
	return nil
}

// RemoveSwitchers deletes every operation carrying the reserved boundary
// type tag, restoring the pre-insertion edge structure. The inverse is exact
// only if no other structural mutation happened since insertion.
func (s *DeviceSwitcher) RemoveSwitchers() error {
	var removing []string
	for _, name := range slices.Sorted(maps.Keys(s.g.Operations)) {
		if s.g.Operations[name].Type == ir.OpDeviceSwitch {
			removing = append(removing, name)
		}
	}
	for _, name := range removing {
		if err := s.g.RemoveOperation(name); err != nil {
			return err
		}
	}
	s.g.SetBoundariesInserted(false)
	if len(removing) > 0 {
		klog.V(2).Infof("RemoveSwitchers: removed %d boundary operations from graph %q", len(removing), s.g.Name)
	}
	return nil
}
