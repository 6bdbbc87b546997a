package graph

import (
	"context"
	"fmt"
)

// DefaultMaxSteps bounds graph execution when no explicit limit is configured.
const DefaultMaxSteps = 50

// StateGraph represents a state-based graph with compile-time type safety.
// The type parameter S is the state type, typically a struct.
//
// Example usage:
//
//	type MyState struct {
//	    Count int
//	}
//
//	g := graph.NewStateGraph[MyState]()
//	g.AddNode("increment", "Increment counter", func(ctx context.Context, state MyState) (MyState, error) {
//	    state.Count++
//	    return state, nil
//	})
type StateGraph[S any] struct {
	// nodes is a map of node names to their corresponding Node objects
	nodes map[string]Node[S]

	// edges is a slice of Edge objects representing the connections between nodes
	edges []Edge

	// conditionalEdges maps a "From" node to a function deriving the "To" node from state
	conditionalEdges map[string]func(ctx context.Context, state S) string

	// entryPoint is the name of the entry point node in the graph
	entryPoint string

	// maxSteps bounds node executions per invocation
	maxSteps int

	// Schema defines the state structure and update logic
	Schema StateSchema[S]
}

// Node represents a node in the graph.
type Node[S any] struct {
	Name        string
	Description string
	Function    func(ctx context.Context, state S) (S, error)
}

// NewStateGraph creates a new instance of StateGraph.
func NewStateGraph[S any]() *StateGraph[S] {
	return &StateGraph[S]{
		nodes:            make(map[string]Node[S]),
		conditionalEdges: make(map[string]func(ctx context.Context, state S) string),
		maxSteps:         DefaultMaxSteps,
	}
}

// AddNode adds a new node to the state graph with the given name, description and function.
func (g *StateGraph[S]) AddNode(name string, description string, fn func(ctx context.Context, state S) (S, error)) {
	g.nodes[name] = Node[S]{
		Name:        name,
		Description: description,
		Function:    fn,
	}
}

// AddEdge adds a new edge to the state graph between the "from" and "to" nodes.
func (g *StateGraph[S]) AddEdge(from, to string) {
	g.edges = append(g.edges, Edge{
		From: from,
		To:   to,
	})
}

// AddConditionalEdge adds a conditional edge where the target node is determined at runtime.
//
// Example:
//
//	g.AddConditionalEdge("check", func(ctx context.Context, state MyState) string {
//	    if state.Count > 10 {
//	        return "high"
//	    }
//	    return graph.END
//	})
func (g *StateGraph[S]) AddConditionalEdge(from string, condition func(ctx context.Context, state S) string) {
	g.conditionalEdges[from] = condition
}

// SetEntryPoint sets the entry point node name for the state graph.
func (g *StateGraph[S]) SetEntryPoint(name string) {
	g.entryPoint = name
}

// SetMaxSteps bounds the number of node executions per invocation.
func (g *StateGraph[S]) SetMaxSteps(n int) {
	g.maxSteps = n
}

// SetSchema sets the state schema for the graph.
func (g *StateGraph[S]) SetSchema(schema StateSchema[S]) {
	g.Schema = schema
}

// StateRunnable represents a compiled state graph that can be invoked. A
// single StateRunnable may be invoked from many goroutines at once.
type StateRunnable[S any] struct {
	graph *StateGraph[S]

	// onStep, when set, is called after each node has executed and its result
	// has been merged. next is the resolved successor (END on completion).
	onStep func(ctx context.Context, ran, next string, state S)
}

// SetStepHook registers a default hook invoked after every node execution.
// Set it once before invoking; for a hook scoped to a single invocation
// (safe under concurrent invocations) use InvokeWithHook instead.
func (r *StateRunnable[S]) SetStepHook(hook func(ctx context.Context, ran, next string, state S)) {
	r.onStep = hook
}

// Compile validates the state graph and returns a StateRunnable instance.
func (g *StateGraph[S]) Compile() (*StateRunnable[S], error) {
	if g.entryPoint == "" {
		return nil, ErrEntryPointNotSet
	}
	if _, ok := g.nodes[g.entryPoint]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, g.entryPoint)
	}
	for _, edge := range g.edges {
		if _, ok := g.nodes[edge.From]; !ok {
			return nil, fmt.Errorf("%w: edge source %s", ErrNodeNotFound, edge.From)
		}
		if edge.To != END {
			if _, ok := g.nodes[edge.To]; !ok {
				return nil, fmt.Errorf("%w: edge target %s", ErrNodeNotFound, edge.To)
			}
		}
	}

	return &StateRunnable[S]{graph: g}, nil
}

// Invoke executes the compiled state graph with the given input state and
// returns the final state.
func (r *StateRunnable[S]) Invoke(ctx context.Context, initialState S) (S, error) {
	return r.InvokeWithConfig(ctx, initialState, nil)
}

// InvokeWithConfig executes the compiled state graph with the given input
// state and config. Nodes run one at a time; after each node the result is
// merged into the state via the schema (last-write-wins without one), then
// the next node is resolved from the conditional or static edges.
func (r *StateRunnable[S]) InvokeWithConfig(ctx context.Context, initialState S, config *Config) (S, error) {
	return r.invoke(ctx, initialState, config, r.onStep)
}

// InvokeWithHook runs like InvokeWithConfig with a step hook scoped to this
// invocation only. The runnable itself is not mutated, so concurrent
// invocations with different hooks never observe each other's.
func (r *StateRunnable[S]) InvokeWithHook(ctx context.Context, initialState S, config *Config,
	hook func(ctx context.Context, ran, next string, state S)) (S, error) {
	return r.invoke(ctx, initialState, config, hook)
}

func (r *StateRunnable[S]) invoke(ctx context.Context, initialState S, config *Config,
	onStep func(ctx context.Context, ran, next string, state S)) (S, error) {
	var zero S

	state := initialState
	if r.graph.Schema != nil {
		var err error
		state, err = r.graph.Schema.Update(r.graph.Schema.Init(), initialState)
		if err != nil {
			return zero, fmt.Errorf("failed to initialize state with schema: %w", err)
		}
	}

	current := r.graph.entryPoint
	if config != nil && config.ResumeFrom != "" {
		current = config.ResumeFrom
	}

	maxSteps := r.graph.maxSteps
	if config != nil && config.MaxSteps > 0 {
		maxSteps = config.MaxSteps
	}
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}

	for step := 0; current != END; step++ {
		if step >= maxSteps {
			return zero, fmt.Errorf("%w: %d", ErrMaxStepsExceeded, maxSteps)
		}

		if err := ctx.Err(); err != nil {
			return zero, err
		}

		node, ok := r.graph.nodes[current]
		if !ok {
			return zero, fmt.Errorf("%w: %s", ErrNodeNotFound, current)
		}

		result, err := node.Function(ctx, state)
		if err != nil {
			return zero, fmt.Errorf("error in node %s: %w", current, err)
		}

		if r.graph.Schema != nil {
			state, err = r.graph.Schema.Update(state, result)
			if err != nil {
				return zero, fmt.Errorf("schema update failed: %w", err)
			}
		} else {
			state = result
		}

		current, err = r.nextNode(ctx, node.Name, state)
		if err != nil {
			return zero, err
		}

		if onStep != nil {
			onStep(ctx, node.Name, current, state)
		}
	}

	return state, nil
}

// nextNode resolves the successor of a node from its conditional edge if one
// is registered, otherwise from the static edges.
func (r *StateRunnable[S]) nextNode(ctx context.Context, from string, state S) (string, error) {
	if condition, ok := r.graph.conditionalEdges[from]; ok {
		next := condition(ctx, state)
		if next == "" {
			return "", fmt.Errorf("conditional edge returned empty next node from %s", from)
		}
		return next, nil
	}

	for _, edge := range r.graph.edges {
		if edge.From == from {
			return edge.To, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrNoOutgoingEdge, from)
}
