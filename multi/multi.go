// Package multi aggregates several pluginloader.Loader instances and
// resolves plugin classes across all of them.
package multi

import (
	"fmt"
	"sync"

	pluginloader "github.com/facontidavide/PluginLoader"
)

// MultiLoader binds more than one runtime library. Class lookups
// without an explicit library iterate the Loaders in the order their
// libraries were registered.
type MultiLoader struct {
	onDemand bool
	opts     []pluginloader.Option

	mu      sync.Mutex
	loaders map[string]*pluginloader.Loader
	order   []string
}

// New constructs a MultiLoader. The onDemand flag and options are
// passed on to every Loader it creates.
func New(onDemand bool, opts ...pluginloader.Option) *MultiLoader {
	return &MultiLoader{
		onDemand: onDemand,
		opts:     opts,
		loaders:  make(map[string]*pluginloader.Loader),
	}
}

// LoadLibrary binds libraryPath to this MultiLoader, creating a Loader
// for it if none exists yet.
func (m *MultiLoader) LoadLibrary(libraryPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.loaders[libraryPath]; ok {
		return nil
	}
	l, err := pluginloader.NewLoader(libraryPath, m.onDemand, m.opts...)
	if err != nil {
		return err
	}
	m.loaders[libraryPath] = l
	m.order = append(m.order, libraryPath)
	return nil
}

// UnloadLibrary unloads libraryPath once; when the Loader's load count
// reaches zero it is removed from the MultiLoader. Returns the
// remaining load count, zero if the path is unknown.
func (m *MultiLoader) UnloadLibrary(libraryPath string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.loaders[libraryPath]
	if !ok {
		return 0
	}
	remaining := l.UnloadLibrary()
	if remaining == 0 {
		m.remove(libraryPath)
	}
	return remaining
}

// RegisteredLibraries lists the bound library paths in registration
// order.
func (m *MultiLoader) RegisteredLibraries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// IsLibraryAvailable reports whether libraryPath is bound to this
// MultiLoader.
func (m *MultiLoader) IsLibraryAvailable(libraryPath string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.loaders[libraryPath]
	return ok
}

// LoaderForLibrary returns the Loader bound to libraryPath, or
// ErrNoLoader if the path was never loaded.
func (m *MultiLoader) LoaderForLibrary(libraryPath string) (*pluginloader.Loader, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.loaders[libraryPath]; ok {
		return l, nil
	}
	return nil, fmt.Errorf("%w %s: call LoadLibrary first", pluginloader.ErrNoLoader, libraryPath)
}

// Close destroys all Loaders. Libraries with live instances stay
// mapped; the refusals are logged by the Loaders.
func (m *MultiLoader) Close() {
	m.mu.Lock()
	loaders := make([]*pluginloader.Loader, 0, len(m.loaders))
	for _, p := range m.order {
		loaders = append(loaders, m.loaders[p])
	}
	m.loaders = make(map[string]*pluginloader.Loader)
	m.order = nil
	m.mu.Unlock()
	for _, l := range loaders {
		l.Close()
	}
}

func (m *MultiLoader) remove(libraryPath string) {
	delete(m.loaders, libraryPath)
	for i, p := range m.order {
		if p == libraryPath {
			m.order = append(m.order[:i], m.order[i+1:]...)
			return
		}
	}
}

// ordered snapshots the Loaders in insertion order.
func (m *MultiLoader) ordered() []*pluginloader.Loader {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*pluginloader.Loader, 0, len(m.order))
	for _, p := range m.order {
		out = append(out, m.loaders[p])
	}
	return out
}

// loaderForClass walks the Loaders in insertion order and returns the
// first that exposes className for Base, force-loading on-demand
// Loaders along the way.
func loaderForClass[Base any](m *MultiLoader, className string) (*pluginloader.Loader, error) {
	for _, l := range m.ordered() {
		if !l.IsLoaded() {
			if err := l.LoadLibrary(); err != nil {
				return nil, err
			}
		}
		if pluginloader.IsClassAvailable[Base](l, className) {
			return l, nil
		}
	}
	return nil, fmt.Errorf("%w of class %s: no factory exists for it in any registered library", pluginloader.ErrCreateClass, className)
}

// AvailableClasses lists every class derived from Base across the bound
// libraries, in library registration order. Libraries are not loaded
// for the listing: an on-demand library that is not currently mapped
// contributes no classes.
func AvailableClasses[Base any](m *MultiLoader) []string {
	var out []string
	for _, l := range m.ordered() {
		out = append(out, pluginloader.AvailableClasses[Base](l)...)
	}
	return out
}

// AvailableClassesForLibrary lists the classes derived from Base
// registered by one bound library.
func AvailableClassesForLibrary[Base any](m *MultiLoader, libraryPath string) ([]string, error) {
	l, err := m.LoaderForLibrary(libraryPath)
	if err != nil {
		return nil, err
	}
	return pluginloader.AvailableClasses[Base](l), nil
}

// IsClassAvailable reports whether className appears in
// AvailableClasses, so on-demand libraries that are not currently
// mapped are not consulted.
func IsClassAvailable[Base any](m *MultiLoader, className string) bool {
	for _, name := range AvailableClasses[Base](m) {
		if name == className {
			return true
		}
	}
	return false
}

// CreateShared instantiates className from the first bound library that
// exposes it.
func CreateShared[Base any](m *MultiLoader, className string) (*pluginloader.Shared[Base], error) {
	l, err := loaderForClass[Base](m, className)
	if err != nil {
		return nil, err
	}
	return pluginloader.CreateShared[Base](l, className)
}

// CreateSharedFrom instantiates className from the named library.
func CreateSharedFrom[Base any](m *MultiLoader, className, libraryPath string) (*pluginloader.Shared[Base], error) {
	l, err := m.LoaderForLibrary(libraryPath)
	if err != nil {
		return nil, err
	}
	return pluginloader.CreateShared[Base](l, className)
}

// CreateUnique instantiates className from the first bound library that
// exposes it.
func CreateUnique[Base any](m *MultiLoader, className string) (*pluginloader.Unique[Base], error) {
	l, err := loaderForClass[Base](m, className)
	if err != nil {
		return nil, err
	}
	return pluginloader.CreateUnique[Base](l, className)
}

// CreateUniqueFrom instantiates className from the named library.
func CreateUniqueFrom[Base any](m *MultiLoader, className, libraryPath string) (*pluginloader.Unique[Base], error) {
	l, err := m.LoaderForLibrary(libraryPath)
	if err != nil {
		return nil, err
	}
	return pluginloader.CreateUnique[Base](l, className)
}

// CreateUnmanaged instantiates className from the first bound library
// that exposes it. The instance is untracked; see
// pluginloader.CreateUnmanaged.
func CreateUnmanaged[Base any](m *MultiLoader, className string) (Base, error) {
	var zero Base
	l, err := loaderForClass[Base](m, className)
	if err != nil {
		return zero, err
	}
	return pluginloader.CreateUnmanaged[Base](l, className)
}

// CreateUnmanagedFrom instantiates className from the named library.
func CreateUnmanagedFrom[Base any](m *MultiLoader, className, libraryPath string) (Base, error) {
	var zero Base
	l, err := m.LoaderForLibrary(libraryPath)
	if err != nil {
		return zero, err
	}
	return pluginloader.CreateUnmanaged[Base](l, className)
}
