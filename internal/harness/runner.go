package harness

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/htql-dev/htql/internal/data"
	"github.com/htql-dev/htql/internal/engine"
	"github.com/htql-dev/htql/internal/include"
	"github.com/htql-dev/htql/internal/markup"
	"github.com/htql-dev/htql/internal/tree"
	"github.com/htql-dev/htql/internal/value"
)

// settleTimeout bounds include resolution per step. Scenario includes are
// served from memory, so hitting this means a bug, not a slow network.
const settleTimeout = 5 * time.Second

// RenderTrace is the captured output of a scenario run: one entry per
// render point, starting with the mounted tree.
type RenderTrace struct {
	Name  string
	Steps []TraceStep
}

// TraceStep is the rendered tree after one mutation, plus any render
// errors the step reported.
type TraceStep struct {
	Label  string
	HTML   string
	Errors []string
}

// Serialize renders the trace in a stable line-oriented text form for
// golden comparison.
func (tr *RenderTrace) Serialize() []byte {
	var b strings.Builder
	b.WriteString("scenario: " + tr.Name + "\n")
	for _, s := range tr.Steps {
		b.WriteString("\n== " + s.Label + "\n")
		b.WriteString(s.HTML + "\n")
		for _, e := range s.Errors {
			b.WriteString("error: " + e + "\n")
		}
	}
	return []byte(b.String())
}

// Run mounts the scenario, applies each step, and captures the rendered
// tree at every point.
func Run(s *Scenario) (*RenderTrace, error) {
	initial, err := toMapping(s.Data)
	if err != nil {
		return nil, err
	}

	var stepErrs []string
	arena := tree.NewArena()
	rt := engine.New(arena, data.NewStore(nil), markup.Parse,
		engine.WithFetcher(include.MapFetcher(s.Includes)),
		engine.WithLogger(slog.New(slog.DiscardHandler)),
		engine.WithErrorHandler(func(err error) {
			stepErrs = append(stepErrs, err.Error())
		}),
	)

	root, err := markup.Parse(arena, s.Template)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: template parse failed: %w", s.Name, err)
	}
	if err := rt.Mount(root, initial); err != nil {
		return nil, fmt.Errorf("scenario %s: mount failed: %w", s.Name, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()
	if err := rt.Settle(ctx); err != nil {
		return nil, fmt.Errorf("scenario %s: includes did not settle: %w", s.Name, err)
	}

	trace := &RenderTrace{Name: s.Name}
	capture := func(label string) {
		trace.Steps = append(trace.Steps, TraceStep{
			Label:  label,
			HTML:   rt.HTML(),
			Errors: stepErrs,
		})
		stepErrs = nil
	}
	capture("mount")

	for i, step := range s.Steps {
		label := step.Name
		if label == "" {
			label = fmt.Sprintf("step %d", i+1)
		}
		if err := applyStep(rt, step); err != nil {
			return nil, fmt.Errorf("scenario %s: %s: %w", s.Name, label, err)
		}
		if err := rt.Settle(ctx); err != nil {
			return nil, fmt.Errorf("scenario %s: %s: includes did not settle: %w", s.Name, label, err)
		}
		capture(label)
	}
	return trace, nil
}

func applyStep(rt *engine.Runtime, step Step) error {
	if step.Patch != nil {
		patch, err := toMapping(step.Patch)
		if err != nil {
			return err
		}
		return rt.SetData(patch)
	}
	if step.Set != nil {
		v, err := value.FromAny(step.Set.Value)
		if err != nil {
			return err
		}
		return rt.SetPath(value.Path(step.Set.Path), v)
	}
	return fmt.Errorf("step declares neither patch nor set")
}

func toMapping(doc map[string]any) (value.Mapping, error) {
	if doc == nil {
		return nil, nil
	}
	v, err := value.FromAny(doc)
	if err != nil {
		return nil, fmt.Errorf("unrepresentable data: %w", err)
	}
	return v.(value.Mapping), nil
}
