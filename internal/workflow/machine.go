// Package workflow drives multi-step authenticated interactions as small
// state machines.
//
// A workflow is a [State] value plus a table of step handlers. Each call to
// [Machine.Process] runs exactly one handler and returns a new state whose
// finished step is the one just executed; callers loop until the state
// reports [StepDone]. States are values: handlers return modified copies
// and never mutate the state they were given.
package workflow

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Step names one unit of work in a workflow.
type Step string

// Steps shared by every workflow.
const (
	StepStart     Step = "start"
	StepAuthorize Step = "authorize"
	StepDone      Step = "done"
)

// State is the contract a workflow's state value satisfies.
type State[S any] interface {
	// Finished is the step that produced this state.
	Finished() Step
	// Next derives the step to run from Finished and the collected data.
	Next() Step
	// Advance returns a copy of the state with Finished set to step.
	Advance(step Step) S
}

// Handler performs one unit of work and returns the resulting state.
type Handler[S any] func(ctx context.Context, state S) (S, error)

// Machine executes the steps of one kind of workflow.
type Machine[S State[S]] struct {
	name     string
	start    func() S
	handlers map[Step]Handler[S]
	logger   zerolog.Logger
}

// New creates a machine. start builds the initial state of a run.
func New[S State[S]](name string, start func() S, logger zerolog.Logger) *Machine[S] {
	return &Machine[S]{
		name:     name,
		start:    start,
		handlers: make(map[Step]Handler[S]),
		logger:   logger.With().Str("workflow", name).Logger(),
	}
}

// Handle registers the handler for step, replacing any previous one.
func (m *Machine[S]) Handle(step Step, h Handler[S]) *Machine[S] {
	m.handlers[step] = h
	return m
}

// Name returns the workflow name.
func (m *Machine[S]) Name() string {
	return m.name
}

// IsFinished reports whether state is terminal.
func (m *Machine[S]) IsFinished(state S) bool {
	return state.Next() == StepDone
}

// Process runs the next step of state. A nil state has not started and is
// replaced by the start value first. A terminal state is returned
// unchanged.
func (m *Machine[S]) Process(ctx context.Context, state *S) (S, error) {
	return m.process(ctx, m.logger, state)
}

// Run drives a fresh run to completion. observe, when non-nil, sees every
// intermediate state.
func (m *Machine[S]) Run(ctx context.Context, observe func(S)) (S, error) {
	logger := m.logger.With().Str("run_id", uuid.NewString()).Logger()

	var state *S
	for {
		next, err := m.process(ctx, logger, state)
		if err != nil {
			logger.Debug().Err(err).Str("step", string(next.Next())).Msg("workflow failed")
			return next, err
		}
		if observe != nil {
			observe(next)
		}
		if m.IsFinished(next) {
			return next, nil
		}
		state = &next
	}
}

func (m *Machine[S]) process(ctx context.Context, logger zerolog.Logger, state *S) (S, error) {
	var current S
	if state == nil {
		current = m.start()
	} else {
		current = *state
	}

	next := current.Next()
	if next == StepDone {
		return current, nil
	}
	if err := ctx.Err(); err != nil {
		return current, err
	}

	handler, ok := m.handlers[next]
	if !ok {
		return current, fmt.Errorf("workflow %s: no handler for step %q", m.name, next)
	}

	logger.Debug().Str("step", string(next)).Msg("running step")
	out, err := handler(ctx, current)
	if err != nil {
		return current, err
	}
	return out.Advance(next), nil
}

// Progress reports how far state is. States with a Progress method report
// it themselves; others are 0 until done.
func Progress[S State[S]](state S) float64 {
	if p, ok := any(state).(interface{ Progress() float64 }); ok {
		return p.Progress()
	}
	if state.Next() == StepDone {
		return 1
	}
	return 0
}

// Authorizer checks and renews a session's credentials.
type Authorizer interface {
	EnsureAuthorized(ctx context.Context) bool
	Authorize(ctx context.Context) error
}

// AuthorizeStep re-authenticates when the session is no longer valid and
// otherwise passes the state through. Only a failed re-authentication
// fails the step.
func AuthorizeStep[S any](auth Authorizer) Handler[S] {
	return func(ctx context.Context, state S) (S, error) {
		if auth.EnsureAuthorized(ctx) {
			return state, nil
		}
		if err := auth.Authorize(ctx); err != nil {
			return state, fmt.Errorf("authorizing: %w", err)
		}
		return state, nil
	}
}
