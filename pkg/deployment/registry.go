package deployment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/morezero/beanserver/pkg/events"
)

const logPrefix = "deployment:registry"

var (
	// ErrNotFound is returned when no deployment matches a name or index.
	ErrNotFound = errors.New("deployment not found")
	// ErrAlreadyRegistered is returned when registering a name that is present.
	ErrAlreadyRegistered = errors.New("deployment already registered")
)

// Entry is a registry snapshot of one deployment.
type Entry struct {
	Name       string
	Index      uint32
	Descriptor *Descriptor
}

// NewRegistryParams holds dependencies for NewRegistry.
type NewRegistryParams struct {
	// Publisher receives register/unregister events. Nil drops events.
	Publisher events.EventPublisher
}

// Registry maps deployment names to descriptors and stable wire indices.
// Indices start at 1 and are never reused within one Registry.
type Registry struct {
	mu        sync.RWMutex
	byName    map[string]*Entry
	byIndex   map[uint32]*Entry
	lastIndex uint32
	publisher events.EventPublisher
}

// NewRegistry creates an empty Registry.
func NewRegistry(params NewRegistryParams) *Registry {
	pub := params.Publisher
	if pub == nil {
		pub = events.NoOpPublisher{}
	}
	return &Registry{
		byName:    make(map[string]*Entry),
		byIndex:   make(map[uint32]*Entry),
		publisher: pub,
	}
}

// Register adds desc under name and returns its index.
func (r *Registry) Register(ctx context.Context, name string, desc *Descriptor) (uint32, error) {
	if name == "" {
		return 0, fmt.Errorf("%s - deployment name is required", logPrefix)
	}
	if desc == nil {
		return 0, fmt.Errorf("%s - descriptor is required for %s", logPrefix, name)
	}

	r.mu.Lock()
	if _, ok := r.byName[name]; ok {
		r.mu.Unlock()
		return 0, fmt.Errorf("%s - %s: %w", logPrefix, name, ErrAlreadyRegistered)
	}
	r.lastIndex++
	entry := &Entry{Name: name, Index: r.lastIndex, Descriptor: desc}
	r.byName[name] = entry
	r.byIndex[entry.Index] = entry
	r.mu.Unlock()

	slog.Info(fmt.Sprintf("%s - Registered %s (%s) at index %d", logPrefix, name, desc.Kind(), entry.Index))
	r.publish(ctx, entry, events.ActionRegistered)
	return entry.Index, nil
}

// Unregister removes name and its index.
func (r *Registry) Unregister(ctx context.Context, name string) error {
	r.mu.Lock()
	entry, ok := r.byName[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%s - %s: %w", logPrefix, name, ErrNotFound)
	}
	delete(r.byName, name)
	delete(r.byIndex, entry.Index)
	r.mu.Unlock()

	slog.Info(fmt.Sprintf("%s - Unregistered %s (index %d)", logPrefix, name, entry.Index))
	r.publish(ctx, entry, events.ActionUnregistered)
	return nil
}

// Resolve returns the descriptor registered under name.
func (r *Registry) Resolve(name string) (*Descriptor, error) {
	entry, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	return entry.Descriptor, nil
}

// ResolveIndex returns the descriptor registered at index.
func (r *Registry) ResolveIndex(index uint32) (*Descriptor, error) {
	entry, err := r.LookupIndex(index)
	if err != nil {
		return nil, err
	}
	return entry.Descriptor, nil
}

// IndexOf returns the index of name.
func (r *Registry) IndexOf(name string) (uint32, error) {
	entry, err := r.Lookup(name)
	if err != nil {
		return 0, err
	}
	return entry.Index, nil
}

// Lookup returns a copy of the entry registered under name.
func (r *Registry) Lookup(name string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.byName[name]
	if !ok {
		return Entry{}, fmt.Errorf("%s - %s: %w", logPrefix, name, ErrNotFound)
	}
	return *entry, nil
}

// LookupIndex returns a copy of the entry registered at index.
func (r *Registry) LookupIndex(index uint32) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.byIndex[index]
	if !ok {
		return Entry{}, fmt.Errorf("%s - index %d: %w", logPrefix, index, ErrNotFound)
	}
	return *entry, nil
}

// LookupRef resolves a versioned reference. A version mismatch is reported as ErrNotFound.
func (r *Registry) LookupRef(ref Ref) (Entry, error) {
	entry, err := r.Lookup(ref.Name)
	if err != nil {
		return Entry{}, err
	}
	if !ref.Matches(entry.Descriptor) {
		return Entry{}, fmt.Errorf("%s - %s version %q does not satisfy %s: %w",
			logPrefix, ref.Name, entry.Descriptor.VersionString(), ref.Constraint, ErrNotFound)
	}
	return entry, nil
}

// List returns all entries ordered by index.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.byIndex))
	for _, e := range r.byIndex {
		out = append(out, *e)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Len returns the number of registered deployments.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

func (r *Registry) publish(ctx context.Context, entry *Entry, action string) {
	event := &events.DeploymentChangedEvent{
		DeploymentID: entry.Name,
		Index:        entry.Index,
		Kind:         entry.Descriptor.Kind().String(),
		Version:      entry.Descriptor.VersionString(),
		Action:       action,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}
	if err := r.publisher.PublishChanged(ctx, event); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to publish %s event for %s: %v", logPrefix, action, entry.Name, err))
	}
}
