// Package graph implements a small state-machine runtime for building
// conversational flows: named nodes operating on a shared typed state,
// static and conditional edges, schema-driven state merging, and
// checkpoint-backed resumption keyed by thread id.
package graph

import "errors"

// END is a special constant used to represent the end node in the graph.
const END = "END"

var (
	// ErrEntryPointNotSet is returned when the entry point of the graph is not set.
	ErrEntryPointNotSet = errors.New("entry point not set")

	// ErrNodeNotFound is returned when a node is not found in the graph.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNoOutgoingEdge is returned when no outgoing edge is found for a node.
	ErrNoOutgoingEdge = errors.New("no outgoing edge found for node")

	// ErrMaxStepsExceeded is returned when graph execution does not reach END
	// within the configured step bound.
	ErrMaxStepsExceeded = errors.New("max steps exceeded")
)

// Edge represents a static edge between two nodes.
type Edge struct {
	// From is the name of the node from which the edge originates.
	From string

	// To is the name of the node to which the edge points.
	To string
}
