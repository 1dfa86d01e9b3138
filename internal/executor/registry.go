package executor

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
)

// ErrUnknownExecutor is returned when a requested executor kind is not registered.
var ErrUnknownExecutor = errors.New("executor: unknown executor kind") //nolint:gochecknoglobals // sentinel error

// ProfileFactory creates a Profile for a given executor kind.
type ProfileFactory func() (Profile, error)

// Registry manages executor profile factories. It is the closed set of agent
// kinds the supervisor can spawn; callers pass it in explicitly, there is no
// process-wide default.
type Registry struct {
	mu        sync.RWMutex
	factories map[Kind]ProfileFactory
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[Kind]ProfileFactory),
	}
}

// Register adds a profile factory for an executor kind.
func (r *Registry) Register(kind Kind, factory ProfileFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
}

// Create instantiates a profile for the given executor kind.
func (r *Registry) Create(kind Kind) (Profile, error) {
	r.mu.RLock()
	factory, ok := r.factories[kind]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("executor.Registry.Create(%q): %w", kind, ErrUnknownExecutor)
	}

	profile, err := factory()
	if err != nil {
		return nil, fmt.Errorf("executor.Registry.Create(%q): %w", kind, err)
	}

	return profile, nil
}

// Available returns registered executor kinds in sorted order.
func (r *Registry) Available() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := slices.Collect(func(yield func(Kind) bool) {
		for kind := range r.factories {
			if !yield(kind) {
				return
			}
		}
	})
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	return names
}
