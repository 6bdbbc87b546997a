package graph

// StateSchema defines the initial value and update logic for the graph state.
// Update receives the current state and a node's returned state and produces
// the merged state; it decides per field whether to append, merge, or
// overwrite.
type StateSchema[S any] interface {
	// Init returns the initial state.
	Init() S

	// Update merges the new state into the current state.
	Update(current, new S) (S, error)
}

// SchemaFunc adapts a pair of functions to a StateSchema.
type SchemaFunc[S any] struct {
	InitFunc   func() S
	UpdateFunc func(current, new S) (S, error)
}

// Init returns the initial state.
func (s SchemaFunc[S]) Init() S {
	if s.InitFunc == nil {
		var zero S
		return zero
	}
	return s.InitFunc()
}

// Update merges the new state into the current state.
func (s SchemaFunc[S]) Update(current, new S) (S, error) {
	if s.UpdateFunc == nil {
		return new, nil
	}
	return s.UpdateFunc(current, new)
}
