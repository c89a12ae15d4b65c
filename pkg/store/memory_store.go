package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/rzbill/tokenvault/pkg/types"
	"k8s.io/apimachinery/pkg/labels"
)

// Validate that MemoryBackend implements the Backend interface
var _ Backend = &MemoryBackend{}

// Op names a backend operation for fault injection.
type Op string

const (
	OpGet    Op = "get"
	OpList   Op = "list"
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	OpPatch  Op = "patch"
)

type fault struct {
	err   error
	times int
}

// MemoryBackend is an in-memory Backend for tests and local runs. It pages
// like the Kubernetes API and can be told to fail specific operations.
type MemoryBackend struct {
	mu         sync.RWMutex
	objects    map[string]map[string]*types.SecretObject
	namespaces map[string]struct{}
	rv         uint64

	faults         map[Op]*fault
	expiredCursors int
	calls          map[Op]int
	beforeList     func(opts ListOptions)
}

// NewMemoryBackend creates a new in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		objects:    make(map[string]map[string]*types.SecretObject),
		namespaces: make(map[string]struct{}),
		faults:     make(map[Op]*fault),
		calls:      make(map[Op]int),
	}
}

// InjectFault makes the next times calls of op fail with err.
func (m *MemoryBackend) InjectFault(op Op, err error, times int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults[op] = &fault{err: err, times: times}
}

// ExpireCursors makes the next n list calls that carry a continue token fail
// with ErrCursorExpired, as the API server does once a resource version has
// been compacted.
func (m *MemoryBackend) ExpireCursors(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expiredCursors = n
}

// BeforeList registers a hook called at the start of every list call, before
// any lock is taken. Tests use it to mutate the store mid-scan.
func (m *MemoryBackend) BeforeList(fn func(opts ListOptions)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.beforeList = fn
}

// Calls returns how many times op has been invoked.
func (m *MemoryBackend) Calls(op Op) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[op]
}

// HasNamespace reports whether EnsureNamespace created ns.
func (m *MemoryBackend) HasNamespace(ns string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.namespaces[ns]
	return ok
}

// enter records a call and returns the injected fault, if any. Callers hold m.mu.
func (m *MemoryBackend) enter(op Op) error {
	m.calls[op]++
	f, ok := m.faults[op]
	if !ok || f.times <= 0 {
		return nil
	}
	f.times--
	if f.times == 0 {
		delete(m.faults, op)
	}
	return f.err
}

func (m *MemoryBackend) nextVersion() string {
	m.rv++
	return strconv.FormatUint(m.rv, 10)
}

// Get retrieves an object from the memory store.
func (m *MemoryBackend) Get(ctx context.Context, namespace, name string) (*types.SecretObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.enter(OpGet); err != nil {
		return nil, err
	}
	obj, ok := m.objects[namespace][name]
	if !ok {
		return nil, notFound(namespace, name)
	}
	return obj.DeepCopy(), nil
}

// List returns a page of objects ordered by name.
func (m *MemoryBackend) List(ctx context.Context, namespace string, opts ListOptions) (*ListResult, error) {
	m.mu.RLock()
	hook := m.beforeList
	m.mu.RUnlock()
	if hook != nil {
		hook(opts)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.enter(OpList); err != nil {
		return nil, err
	}
	if opts.Continue != "" && m.expiredCursors > 0 {
		m.expiredCursors--
		return nil, fmt.Errorf("%w: continue token is too old", types.ErrCursorExpired)
	}

	sel, err := parseSelector(opts.LabelSelector)
	if err != nil {
		return nil, err
	}

	after := ""
	if opts.Continue != "" {
		if after, err = decodeCursor(opts.Continue); err != nil {
			return nil, err
		}
	}

	names := make([]string, 0, len(m.objects[namespace]))
	for name := range m.objects[namespace] {
		names = append(names, name)
	}
	sort.Strings(names)

	result := &ListResult{}
	for _, name := range names {
		if after != "" && name <= after {
			continue
		}
		obj := m.objects[namespace][name]
		if !sel.Matches(labels.Set(obj.Labels)) {
			continue
		}
		if opts.Limit > 0 && int64(len(result.Items)) == opts.Limit {
			result.Continue = encodeCursor(result.Items[len(result.Items)-1].Name)
			break
		}
		result.Items = append(result.Items, obj.DeepCopy())
	}
	return result, nil
}

// Create stores a new object.
func (m *MemoryBackend) Create(ctx context.Context, obj *types.SecretObject) (*types.SecretObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.enter(OpCreate); err != nil {
		return nil, err
	}
	if _, ok := m.objects[obj.Namespace][obj.Name]; ok {
		return nil, alreadyExists(obj.Namespace, obj.Name)
	}
	if _, ok := m.objects[obj.Namespace]; !ok {
		m.objects[obj.Namespace] = make(map[string]*types.SecretObject)
	}

	stored := obj.DeepCopy()
	stored.ResourceVersion = m.nextVersion()
	m.objects[obj.Namespace][obj.Name] = stored
	return stored.DeepCopy(), nil
}

// Update replaces an existing object.
func (m *MemoryBackend) Update(ctx context.Context, obj *types.SecretObject) (*types.SecretObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.enter(OpUpdate); err != nil {
		return nil, err
	}
	existing, ok := m.objects[obj.Namespace][obj.Name]
	if !ok {
		return nil, notFound(obj.Namespace, obj.Name)
	}
	if obj.ResourceVersion != "" && obj.ResourceVersion != existing.ResourceVersion {
		return nil, fmt.Errorf("secret %s/%s has resource version %s, not %s: %w",
			obj.Namespace, obj.Name, existing.ResourceVersion, obj.ResourceVersion, types.ErrConflict)
	}

	stored := obj.DeepCopy()
	stored.ResourceVersion = m.nextVersion()
	m.objects[obj.Namespace][obj.Name] = stored
	return stored.DeepCopy(), nil
}

// Delete removes an object.
func (m *MemoryBackend) Delete(ctx context.Context, namespace, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.enter(OpDelete); err != nil {
		return err
	}
	if _, ok := m.objects[namespace][name]; !ok {
		return notFound(namespace, name)
	}
	delete(m.objects[namespace], name)
	return nil
}

// PatchMetadata merges labels and annotations into an object.
func (m *MemoryBackend) PatchMetadata(ctx context.Context, namespace, name string, meta types.ObjectMeta) (*types.SecretObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.enter(OpPatch); err != nil {
		return nil, err
	}
	existing, ok := m.objects[namespace][name]
	if !ok {
		return nil, notFound(namespace, name)
	}
	existing.Labels = mergeMeta(existing.Labels, meta.Labels)
	existing.Annotations = mergeMeta(existing.Annotations, meta.Annotations)
	existing.ResourceVersion = m.nextVersion()
	return existing.DeepCopy(), nil
}

// EnsureNamespace records the namespace.
func (m *MemoryBackend) EnsureNamespace(ctx context.Context, namespace string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.namespaces[namespace] = struct{}{}
	return nil
}

// Close is a no-op for the memory backend.
func (m *MemoryBackend) Close() error {
	return nil
}
