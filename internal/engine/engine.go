// Package engine implements the tag-routed dispatch algorithm (C4):
// a FIFO work queue of routing envelopes driven against a validated node
// table until every envelope has either reached "end" or failed fatally.
// Ported from the original run_router generator (original_source
// abstraction-level-8/pipeline.py) into an explicit Go type with an
// apperr-based failure boundary instead of exceptions (spec.md §9's
// "replace exception-driven control flow with an explicit fail-with-
// ErrorKind result").
package engine

import (
	"context"
	"time"

	"github.com/tagflow/tagflow/internal/config"
	"github.com/tagflow/tagflow/internal/metrics"
	"github.com/tagflow/tagflow/internal/registry"
	"github.com/tagflow/tagflow/internal/tracing"
	"github.com/tagflow/tagflow/pkg/apperr"
	"github.com/sirupsen/logrus"
)

// envelope is the engine's unit of work (spec.md §3).
type envelope struct {
	tag     registry.Tag
	line    string
	hops    int
	traceID string
}

// Engine drives lines through a validated Graph using a FIFO work queue.
// One Engine instance processes exactly one file/stream at a time and
// must not be shared across concurrent runs (spec.md §5: "no intra-file
// parallelism... single-writer stage state").
type Engine struct {
	graph   *config.Graph
	maxHops int
	store   *metrics.Store
	tracer  *tracing.Manager
	logger  *logrus.Logger
}

// New constructs an Engine bound to graph, emitting metrics/traces into
// store. tracer may be nil to disable OpenTelemetry span emission.
func New(graph *config.Graph, maxHops int, store *metrics.Store, tracer *tracing.Manager, logger *logrus.Logger) *Engine {
	if maxHops <= 0 {
		maxHops = config.DefaultMaxHops
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{graph: graph, maxHops: maxHops, store: store, tracer: tracer, logger: logger}
}

// Run drains lines (closed by the caller when exhausted) through the
// graph starting at the configured start tag, calling emit for every line
// that reaches "end", in work-queue (BFS) order (spec.md §4.4).
//
// Run returns on the first fatal routing or stage error, aborting the
// current file per §7's propagation policy — callers in watch mode catch
// this and retry the file; callers in single-file mode propagate it to
// the CLI exit code.
func (e *Engine) Run(ctx context.Context, lines <-chan string, emit func(line string) error) error {
	queue := make([]envelope, 0, 64)
	for line := range lines {
		queue = append(queue, envelope{tag: e.graph.Start, line: line, hops: 0})
	}

	for len(queue) > 0 {
		select {
		case <-ctx.Done():
			return apperr.Wrap(apperr.CodeIO, "router", "Run", ctx.Err())
		default:
		}

		env := queue[0]
		queue = queue[1:]

		if env.tag == registry.End {
			if env.traceID != "" {
				e.store.AddTraceStep(env.traceID, string(registry.End), env.line, env.line, []string{string(registry.End)}, 0)
				e.store.CompleteTrace(env.traceID, env.line)
			}
			if err := emit(env.line); err != nil {
				return apperr.Wrap(apperr.CodeIO, "output", "Run", err)
			}
			continue
		}

		if env.hops > e.maxHops {
			err := apperr.New(apperr.CodeRoutingHopLimit, "router", "Run",
				"line exceeded max hops for tag "+string(env.tag)).WithLine(env.line)
			e.store.RecordError("router", err.Message, "", env.line)
			return err
		}

		node, ok := e.graph.Nodes[env.tag]
		if !ok {
			err := apperr.New(apperr.CodeRoutingUnknown, "router", "Run",
				"line routed to unknown tag "+string(env.tag)).WithLine(env.line)
			e.store.RecordError("router", err.Message, "", env.line)
			return err
		}

		if env.traceID == "" && e.store.TraceEnabled() {
			env.traceID = e.store.StartTrace(env.line)
		}

		var endSpan func()
		if e.tracer != nil {
			_, endSpan = e.startSpan(ctx, string(node.Tag), env.traceID, env.hops)
		}

		start := time.Now()
		emissions, err := node.Stage.Process(env.line)
		elapsed := time.Since(start)

		if endSpan != nil {
			endSpan()
		}

		if err != nil {
			e.store.RecordStageMetrics(string(env.tag), elapsed, false)
			wrapped := apperr.Wrap(apperr.CodeStageFailed, string(env.tag), "Process", err).WithLine(env.line)
			e.store.RecordError(string(env.tag), wrapped.Message, "", env.line)
			return wrapped
		}
		e.store.RecordStageMetrics(string(env.tag), elapsed, true)

		for _, emission := range emissions {
			if len(emission.Tags) == 0 {
				err := apperr.New(apperr.CodeRoutingBadTags, string(env.tag), "Process",
					"processor yielded an empty list of tags").WithLine(env.line)
				e.store.RecordError(string(env.tag), err.Message, "", env.line)
				return err
			}
			outTagStrings := make([]string, 0, len(emission.Tags))
			for _, t := range emission.Tags {
				outTagStrings = append(outTagStrings, string(t))
			}
			if env.traceID != "" {
				e.store.AddTraceStep(env.traceID, string(env.tag), env.line, emission.Line, outTagStrings, elapsed)
			}
			for _, t := range emission.Tags {
				if t != registry.End {
					if _, known := e.graph.Nodes[t]; !known {
						err := apperr.New(apperr.CodeRoutingUnknown, string(env.tag), "Process",
							"processor emitted unknown tag "+string(t)).WithLine(env.line)
						e.store.RecordError(string(env.tag), err.Message, "", env.line)
						return err
					}
				}
				queue = append(queue, envelope{tag: t, line: emission.Line, hops: env.hops + 1, traceID: env.traceID})
			}
		}
	}
	return nil
}

// startSpan opens an OTel span for one hop, returning a function that
// ends it. Kept as a tiny indirection so Engine.Run stays readable when
// tracer is nil.
func (e *Engine) startSpan(ctx context.Context, stageTag, traceID string, hops int) (context.Context, func()) {
	hopCtx, span := e.tracer.StartHop(ctx, stageTag, traceID, hops)
	return hopCtx, func() { span.End() }
}
