package pluginloader

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

type (
	// libraryRecord is the process-wide bookkeeping for one mapped
	// library: its path, the shim handle, and the number of logical
	// opens across all Loaders.
	libraryRecord struct {
		path   string
		handle LibraryHandle
		shim   SharedLibraryShim
		opens  int
	}

	// globalRegistry is the process-wide factory catalog. Two mutexes
	// split the state so enumeration never blocks registration in
	// unrelated base capabilities; lock order is always libMu before
	// facMu.
	globalRegistry struct {
		// libMu guards libraries and the load context.
		libMu     sync.Mutex
		libraries []*libraryRecord

		// The load context names the library whose init functions are
		// currently executing under a Loader's control. Written only
		// while libMu is held; read lock-free by register, which always
		// runs either on the goroutine holding libMu (inside the shim's
		// Open call) or at program init before any Loader exists.
		loadingPath   string
		loadingLoader *Loader

		// facMu guards factories and nonPure.
		facMu     sync.Mutex
		factories map[reflect.Type]map[string]*factory
		nonPure   bool
	}
)

var reg = &globalRegistry{factories: make(map[reflect.Type]map[string]*factory)}

// register publishes one factory under the current load context. It is
// invoked from plugin init functions while the platform loader's own
// lock is held, so it takes only facMu and never calls back into a
// shim.
func (r *globalRegistry) register(base reflect.Type, className string, create func() any) {
	owner := r.loadingLoader
	path := r.loadingPath
	f := &factory{
		className:   className,
		base:        base,
		libraryPath: path,
		owners:      make(map[*Loader]struct{}),
		create:      create,
	}
	f.addOwner(owner)

	r.facMu.Lock()
	defer r.facMu.Unlock()
	if owner == nil && !r.nonPure {
		r.nonPure = true
		logger().Warn().
			Str("class", className).
			Str("base", base.String()).
			Msg("a library containing plugins was opened outside any Loader; " +
				"no library can be safely unmapped for the rest of the process")
	}
	m := r.factories[base]
	if m == nil {
		m = make(map[string]*factory)
		r.factories[base] = m
	}
	if old, collision := m[className]; collision {
		logger().Warn().
			Str("class", className).
			Str("base", base.String()).
			Str("existing_library", old.libraryPath).
			Str("new_library", path).
			Msg("namespace collision: new factory overwrites existing one")
	}
	m[className] = f
}

// open gives loader access to the library at path, mapping it through
// shim if no record exists yet. Each call counts as one logical open.
func (r *globalRegistry) open(path string, loader *Loader, shim SharedLibraryShim) error {
	r.libMu.Lock()
	defer r.libMu.Unlock()
	if rec := r.findLibrary(path); rec != nil {
		rec.opens++
		r.claimFactories(path, loader)
		return nil
	}
	r.loadingPath, r.loadingLoader = path, loader
	handle, err := shim.Open(path)
	r.loadingPath, r.loadingLoader = "", nil
	if err != nil {
		return err
	}
	r.libraries = append(r.libraries, &libraryRecord{path: path, handle: handle, shim: shim, opens: 1})
	return nil
}

// release undoes one logical open. When relinquish is set the loader
// gives up ownership of the path's factories; when the last open goes
// away the library is purged, unless a non-pure library was ever
// opened, in which case it stays mapped.
func (r *globalRegistry) release(path string, loader *Loader, relinquish bool) {
	r.libMu.Lock()
	defer r.libMu.Unlock()
	rec := r.findLibrary(path)
	if rec == nil {
		return
	}
	if relinquish {
		r.disownFactories(path, loader)
	}
	rec.opens--
	if rec.opens > 0 {
		return
	}
	rec.opens = 0
	if r.nonPureOpened() {
		logger().Warn().
			Str("library", path).
			Msg("library kept mapped: a non-pure plugin library was opened in this process")
		return
	}
	r.purgeLibrary(rec)
}

// purgeLibrary erases every ownerless factory contributed by the
// record's path, drops the record and releases the handle. Called with
// libMu held; facMu is released before the shim call so a registration
// in flight inside another shim's Open cannot deadlock against it.
func (r *globalRegistry) purgeLibrary(rec *libraryRecord) {
	r.facMu.Lock()
	for base, m := range r.factories {
		for name, f := range m {
			if f.libraryPath == rec.path && len(f.owners) == 0 {
				delete(m, name)
			}
		}
		if len(m) == 0 {
			delete(r.factories, base)
		}
	}
	r.facMu.Unlock()

	for i, candidate := range r.libraries {
		if candidate == rec {
			r.libraries = append(r.libraries[:i], r.libraries[i+1:]...)
			break
		}
	}
	if err := rec.shim.Close(rec.handle); err != nil {
		logger().Warn().Str("library", rec.path).Err(err).Msg("unmap failed; handle leaked")
	}
}

func (r *globalRegistry) findLibrary(path string) *libraryRecord {
	for _, rec := range r.libraries {
		if rec.path == path {
			return rec
		}
	}
	return nil
}

// claimFactories adds loader as an owner of every factory contributed
// by path. Used when a loader opens a path some other loader already
// mapped: the loaders share the library's registered factories.
func (r *globalRegistry) claimFactories(path string, loader *Loader) {
	r.facMu.Lock()
	defer r.facMu.Unlock()
	for _, m := range r.factories {
		for _, f := range m {
			if f.libraryPath == path {
				f.addOwner(loader)
			}
		}
	}
}

func (r *globalRegistry) disownFactories(path string, loader *Loader) {
	r.facMu.Lock()
	defer r.facMu.Unlock()
	for _, m := range r.factories {
		for _, f := range m {
			if f.libraryPath == path {
				f.removeOwner(loader)
			}
		}
	}
}

// availableClasses lists names whose factory is owned by loader,
// followed by names whose factory has no owner at all. Each group is
// sorted, which also makes consecutive calls stable.
func (r *globalRegistry) availableClasses(base reflect.Type, loader *Loader) []string {
	r.facMu.Lock()
	defer r.facMu.Unlock()
	var owned, unowned []string
	for name, f := range r.factories[base] {
		switch {
		case f.ownedBy(loader):
			owned = append(owned, name)
		case f.ownedBy(nil):
			unowned = append(unowned, name)
		}
	}
	sort.Strings(owned)
	sort.Strings(unowned)
	return append(owned, unowned...)
}

// createInstance locates the factory for (base, className) and runs its
// construction thunk. The thunk runs outside facMu; thunks are
// non-blocking from the registry's perspective.
func (r *globalRegistry) createInstance(base reflect.Type, className string, loader *Loader) (any, error) {
	r.facMu.Lock()
	f := r.factories[base][className]
	var owned, ownerless bool
	if f != nil {
		owned = f.ownedBy(loader)
		ownerless = f.ownedBy(nil)
	}
	r.facMu.Unlock()
	if f == nil {
		logger().Error().Str("class", className).Str("base", base.String()).Msg("no factory exists for class")
		return nil, fmt.Errorf("%w of class %s for base %s: no factory registered", ErrCreateClass, className, base)
	}
	if owned {
		return f.create(), nil
	}
	if ownerless {
		logger().Info().
			Str("class", className).
			Str("base", base.String()).
			Msg("factory exists but has no owner: its library was mapped outside any Loader and cannot be unmapped")
		return f.create(), nil
	}
	return nil, fmt.Errorf("%w of class %s for base %s: factory is owned by another loader", ErrCreateClass, className, base)
}

// isLoadedBy reports whether loader owns at least one factory
// contributed by path, i.e. whether path is loaded within loader's
// scope.
func (r *globalRegistry) isLoadedBy(path string, loader *Loader) bool {
	r.facMu.Lock()
	defer r.facMu.Unlock()
	for _, m := range r.factories {
		for _, f := range m {
			if f.libraryPath == path && f.ownedBy(loader) {
				return true
			}
		}
	}
	return false
}

func (r *globalRegistry) isLoadedByAnybody(path string) bool {
	r.libMu.Lock()
	defer r.libMu.Unlock()
	return r.findLibrary(path) != nil
}

func (r *globalRegistry) nonPureOpened() bool {
	r.facMu.Lock()
	defer r.facMu.Unlock()
	return r.nonPure
}

// NonPureLibraryOpened reports whether any plugin library was mapped by
// an agent other than a Loader. Once true it stays true, and no library
// is unmapped for the rest of the process.
func NonPureLibraryOpened() bool {
	return reg.nonPureOpened()
}

// DebugInfoString renders the registry's libraries and factories for
// diagnostics.
func DebugInfoString() string {
	var b strings.Builder
	b.WriteString("*** loaded libraries ***\n")
	reg.libMu.Lock()
	for _, rec := range reg.libraries {
		fmt.Fprintf(&b, "  %s (opens=%d)\n", rec.path, rec.opens)
	}
	reg.libMu.Unlock()

	b.WriteString("*** registered factories ***\n")
	reg.facMu.Lock()
	bases := make([]reflect.Type, 0, len(reg.factories))
	for base := range reg.factories {
		bases = append(bases, base)
	}
	sort.Slice(bases, func(i, j int) bool { return bases[i].String() < bases[j].String() })
	for _, base := range bases {
		fmt.Fprintf(&b, "  base %s:\n", base)
		m := reg.factories[base]
		names := make([]string, 0, len(m))
		for name := range m {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			f := m[name]
			lib := f.libraryPath
			if lib == "" {
				lib = "<outside loader control>"
			}
			fmt.Fprintf(&b, "    %s (library %s, %d owner(s))\n", name, lib, len(f.owners))
		}
	}
	reg.facMu.Unlock()
	return b.String()
}
