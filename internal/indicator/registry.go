package indicator

import (
	"sync"

	"github.com/rxtech-lab/chartflow/internal/types"
	"github.com/rxtech-lab/chartflow/pkg/errors"
)

// Registry holds the compute adapters and builds the dependency graph for
// an active spec set. Registries are explicitly constructed and injected;
// there is no process-wide instance.
type Registry struct {
	mu       sync.RWMutex
	adapters map[types.IndicatorType]Adapter
}

// ValidationResult is the outcome of ValidateDependencies.
type ValidationResult struct {
	Valid bool
	// Missing lists spec ids whose adapter is unknown to the registry and
	// declared dependency ids absent from the active set.
	Missing []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[types.IndicatorType]Adapter),
	}
}

// NewDefaultRegistry creates a registry with every built-in adapter
// registered.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewSMAAdapter())
	r.Register(NewEMAAdapter())
	r.Register(NewRSIAdapter())
	r.Register(NewMACDAdapter())
	r.Register(NewBollingerBandsAdapter())

	return r
}

// Register adds an adapter, keyed by its name. Registration is idempotent:
// the last registration for a key wins.
func (r *Registry) Register(adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.adapters[adapter.Name()] = adapter
}

// Adapter retrieves the adapter for an indicator kind.
func (r *Registry) Adapter(name types.IndicatorType) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, exists := r.adapters[name]
	if !exists {
		return nil, errors.Newf(errors.ErrCodeMissingAdapter,
			"no adapter registered for indicator %s", name)
	}

	return adapter, nil
}

// ListAdapters returns the registered indicator kinds.
func (r *Registry) ListAdapters() []types.IndicatorType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]types.IndicatorType, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}

	return names
}

// BuildDependencyGraph maps each spec id to its declared dependency ids.
// Specs whose indicator name has no registered adapter are excluded from
// the graph and returned in the second result; this is not fatal to the
// whole batch, ValidateDependencies reports the ids.
func (r *Registry) BuildDependencyGraph(specs []types.IndicatorSpec) (map[string][]string, []string) {
	graph := make(map[string][]string, len(specs))

	var unresolved []string

	for _, spec := range specs {
		adapter, err := r.Adapter(spec.Name)
		if err != nil {
			unresolved = append(unresolved, spec.ID())

			continue
		}

		deps, err := adapter.Dependencies(spec)
		if err != nil {
			unresolved = append(unresolved, spec.ID())

			continue
		}

		depIDs := make([]string, 0, len(deps))
		for _, dep := range deps {
			depIDs = append(depIDs, dep.ID())
		}

		graph[spec.ID()] = depIDs
	}

	return graph, unresolved
}

// ValidateDependencies checks that every spec has a registered adapter and
// that every declared dependency is present in the active set by id.
func (r *Registry) ValidateDependencies(specs []types.IndicatorSpec) ValidationResult {
	graph, unresolved := r.BuildDependencyGraph(specs)

	present := make(map[string]bool, len(specs))
	for _, spec := range specs {
		present[spec.ID()] = true
	}

	missing := make([]string, 0)
	missing = append(missing, unresolved...)

	seen := make(map[string]bool, len(missing))
	for _, id := range missing {
		seen[id] = true
	}

	for _, spec := range specs {
		for _, depID := range graph[spec.ID()] {
			if !present[depID] && !seen[depID] {
				missing = append(missing, depID)
				seen[depID] = true
			}
		}
	}

	return ValidationResult{
		Valid:   len(missing) == 0,
		Missing: missing,
	}
}

// TopologicalOrder returns an execution order in which every dependency
// precedes its dependents. Depth-first with three-color marking; a node
// reached while still in the visiting state means a cycle, reported as a
// CircularDependency error naming the offending id. The order is
// deterministic: ties preserve the input ordering.
func (r *Registry) TopologicalOrder(specs []types.IndicatorSpec) ([]types.IndicatorSpec, error) {
	graph, _ := r.BuildDependencyGraph(specs)

	byID := make(map[string]types.IndicatorSpec, len(specs))

	ids := make([]string, 0, len(specs))
	for _, spec := range specs {
		id := spec.ID()
		if _, dup := byID[id]; dup {
			continue
		}

		byID[id] = spec

		if _, inGraph := graph[id]; inGraph {
			ids = append(ids, id)
		}
	}

	const (
		white = iota // unvisited
		gray         // visiting
		black        // done
	)

	color := make(map[string]int, len(ids))
	order := make([]types.IndicatorSpec, 0, len(ids))

	var visit func(id string) error

	visit = func(id string) error {
		switch color[id] {
		case black:
			return nil
		case gray:
			return errors.Newf(errors.ErrCodeCircularDependency,
				"circular dependency involving %s", id)
		}

		color[id] = gray

		for _, depID := range graph[id] {
			if _, known := byID[depID]; !known {
				// Absent dependency; ValidateDependencies reports it.
				continue
			}

			if err := visit(depID); err != nil {
				return err
			}
		}

		color[id] = black
		order = append(order, byID[id])

		return nil
	}

	for _, id := range ids {
		if err := visit(id); err != nil {
			return nil, err
		}
	}

	return order, nil
}

// ComputeOrder validates the spec set and returns the topological
// execution order. Fails fast without partial execution when validation
// fails.
func (r *Registry) ComputeOrder(specs []types.IndicatorSpec) ([]types.IndicatorSpec, error) {
	result := r.ValidateDependencies(specs)
	if !result.Valid {
		return nil, errors.Newf(errors.ErrCodeMissingDependency,
			"unresolved specs or dependencies: %v", result.Missing)
	}

	return r.TopologicalOrder(specs)
}
