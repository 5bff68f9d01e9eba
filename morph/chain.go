package morph

import (
	"github.com/pkg/errors"

	"github.com/gomorph/gomorph/ir"
)

// Chain routes each command to the first processor whose whitelist accepts
// it. It is the entry point used by the external orchestrator.
type Chain struct {
	processors []Processor
}

// NewChain assembles the standard processors for g: replacer, formatter,
// merger and device switcher. The tracer is the scheduler-supplied
// value-tracing predicate used by the device switcher; it may be nil if no
// switching command will ever be dispatched.
func NewChain(g *ir.Graph, tracer ValueTracer) *Chain {
	return &Chain{processors: []Processor{
		NewReplacer(g),
		NewFormatter(g),
		NewMerger(g),
		NewDeviceSwitcher(g, tracer),
	}}
}

// NewChainOf builds a chain over explicitly provided processors.
func NewChainOf(processors ...Processor) *Chain {
	return &Chain{processors: processors}
}

// Dispatch routes cmd to the accepting processor. An unmatched command kind
// is an explicit error, never a silent no-op.
func (c *Chain) Dispatch(cmd Command) error {
	for _, p := range c.processors {
		if accepts(p, cmd.Type()) {
			return p.Process(cmd)
		}
	}
	return errors.Wrapf(ErrUnsupportedCommand, "no processor accepts %s", cmd.Type())
}
