package pluginloader

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// unmanagedCreated is process-wide: an unmanaged instance could be held
// anywhere, including by code outside any loader's visibility, so once
// one exists no loader can decide its library is quiescent.
var unmanagedCreated atomic.Bool

// HasUnmanagedInstanceBeenCreated reports whether any Loader in this
// process handed out an unmanaged instance. While true, on-demand
// unloading is disabled everywhere.
func HasUnmanagedInstanceBeenCreated() bool {
	return unmanagedCreated.Load()
}

type (
	// Loader controls the mapping lifecycle of one runtime library and
	// scopes access to the plugin classes it registers. Classes loaded
	// by a Loader are only accessible through that Loader (or through
	// another Loader bound to the same path, which shares its
	// factories).
	Loader struct {
		onDemand bool
		path     string
		shim     SharedLibraryShim
		logger   zerolog.Logger

		loadMu    sync.Mutex
		loadCount int

		instMu    sync.Mutex
		instances int
	}

	// Option configures a Loader.
	Option func(*Loader)
)

// WithShim makes the Loader map its library through s instead of the
// process default shim.
func WithShim(s SharedLibraryShim) Option {
	return func(l *Loader) {
		l.shim = s
	}
}

// WithLogger replaces the Loader's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(l *Loader) {
		l.logger = log
	}
}

// NewLoader constructs a Loader bound to libraryPath. Unless onDemand
// is set the library is mapped immediately; mapping failures wrap
// ErrLibraryLoad and carry the platform error. In on-demand mode the
// library is mapped on first instance creation and unmapped when the
// last managed instance is released.
func NewLoader(libraryPath string, onDemand bool, opts ...Option) (*Loader, error) {
	l := &Loader{
		onDemand: onDemand,
		path:     libraryPath,
		shim:     defaultShim,
		logger:   *logger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger.Debug().Str("library", libraryPath).Bool("on_demand", onDemand).Msg("constructing loader")
	if !onDemand {
		if err := l.LoadLibrary(); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// LibraryPath returns the path of the library this Loader is bound to.
func (l *Loader) LibraryPath() string {
	return l.path
}

// OnDemandLoadUnloadEnabled reports whether the Loader defers mapping
// until first instance creation and unmaps when the last managed
// instance is released.
func (l *Loader) OnDemandLoadUnloadEnabled() bool {
	return l.onDemand
}

// IsLoaded reports whether the library is loaded within this Loader's
// scope. The library may be mapped by another Loader and still not be
// loaded here; see IsLoadedByAnyLoader.
func (l *Loader) IsLoaded() bool {
	return reg.isLoadedBy(l.path, l)
}

// IsLoadedByAnyLoader reports whether the library is mapped in the
// process at all, regardless of which Loader mapped it.
func (l *Loader) IsLoadedByAnyLoader() bool {
	return reg.isLoadedByAnybody(l.path)
}

// LoadLibrary maps the library on behalf of this Loader. If the library
// is already mapped, the Loader gains access to the plugin classes it
// registered. Each successful call increments the local load count; the
// same number of UnloadLibrary calls is required to release the library.
func (l *Loader) LoadLibrary() error {
	l.loadMu.Lock()
	defer l.loadMu.Unlock()
	if err := reg.open(l.path, l, l.shim); err != nil {
		return err
	}
	l.loadCount++
	return nil
}

// UnloadLibrary decrements the local load count. While managed
// instances created by this Loader are live the count is left unchanged
// and a warning is logged. When the count reaches zero the Loader
// relinquishes its claim and, if nobody else holds the library, it is
// unmapped and its factories evicted. Returns the remaining local load
// count.
func (l *Loader) UnloadLibrary() int {
	l.loadMu.Lock()
	defer l.loadMu.Unlock()
	l.instMu.Lock()
	defer l.instMu.Unlock()

	if l.instances > 0 {
		l.logger.Warn().
			Str("library", l.path).
			Int("instances", l.instances).
			Msg("refusing to unload: instances created by this loader are still live; release them first")
		return l.loadCount
	}
	if l.loadCount == 0 {
		return 0
	}
	l.loadCount--
	reg.release(l.path, l, l.loadCount == 0)
	return l.loadCount
}

// Close unloads the library until the local load count reaches zero or
// an unload is refused because instances are still live. Refusals are
// logged, not propagated.
func (l *Loader) Close() {
	l.logger.Debug().Str("library", l.path).Msg("destroying loader")
	prev := -1
	for {
		n := l.UnloadLibrary()
		if n == 0 || n == prev {
			return
		}
		prev = n
	}
}

// onInstanceRelease runs when a managed instance is released. In
// on-demand mode the release of the last instance unmaps the library,
// unless an unmanaged instance was created anywhere in the process.
func (l *Loader) onInstanceRelease() {
	l.instMu.Lock()
	l.instances--
	if l.instances < 0 {
		l.instances = 0
	}
	last := l.instances == 0
	l.instMu.Unlock()

	if !last || !l.onDemand {
		return
	}
	if unmanagedCreated.Load() {
		l.logger.Warn().
			Str("library", l.path).
			Msg("cannot unload library even though the last managed instance was released: " +
				"an unmanaged instance was created within this process")
		return
	}
	l.UnloadLibrary()
}

// OutstandingInstances returns the number of managed instances created
// by this Loader that have not been released.
func (l *Loader) OutstandingInstances() int {
	l.instMu.Lock()
	defer l.instMu.Unlock()
	return l.instances
}
