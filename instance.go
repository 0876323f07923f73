package pluginloader

import (
	"fmt"
	"sync"
)

type (
	// Shared is a managed handle to a plugin instance. Closing it
	// releases the instance back to its Loader; Close is idempotent.
	Shared[Base any] struct {
		value   Base
		once    sync.Once
		release func()
	}

	// Unique is a managed handle to a plugin instance with
	// single-release semantics.
	Unique[Base any] struct {
		value   Base
		once    sync.Once
		release func()
	}
)

// Get returns the plugin instance.
func (s *Shared[Base]) Get() Base {
	return s.value
}

// Close releases the instance. In on-demand mode releasing the last
// instance of a Loader unmaps its library.
func (s *Shared[Base]) Close() {
	s.once.Do(s.release)
}

// Get returns the plugin instance.
func (u *Unique[Base]) Get() Base {
	return u.value
}

// Close releases the instance.
func (u *Unique[Base]) Close() {
	u.once.Do(u.release)
}

// AvailableClasses lists the classes derived from Base this Loader can
// instantiate: classes owned by the Loader first, then classes whose
// library was mapped outside any Loader's control. Each group is
// sorted.
func AvailableClasses[Base any](l *Loader) []string {
	return reg.availableClasses(baseType[Base](), l)
}

// IsClassAvailable reports whether className can be instantiated
// through this Loader.
func IsClassAvailable[Base any](l *Loader, className string) bool {
	for _, name := range AvailableClasses[Base](l) {
		if name == className {
			return true
		}
	}
	return false
}

// CreateShared instantiates className as a managed Shared handle. The
// library is loaded first if needed, so on-demand Loaders need no
// explicit LoadLibrary call.
func CreateShared[Base any](l *Loader, className string) (*Shared[Base], error) {
	v, err := createRaw[Base](l, className, true)
	if err != nil {
		return nil, err
	}
	return &Shared[Base]{value: v, release: l.onInstanceRelease}, nil
}

// CreateUnique instantiates className as a managed Unique handle.
func CreateUnique[Base any](l *Loader, className string) (*Unique[Base], error) {
	v, err := createRaw[Base](l, className, true)
	if err != nil {
		return nil, err
	}
	return &Unique[Base]{value: v, release: l.onInstanceRelease}, nil
}

// CreateUnmanaged instantiates className and returns the bare value.
// The instance is not tracked, which permanently disables on-demand
// unloading for every Loader in the process.
func CreateUnmanaged[Base any](l *Loader, className string) (Base, error) {
	return createRaw[Base](l, className, false)
}

func createRaw[Base any](l *Loader, className string, managed bool) (Base, error) {
	var zero Base
	if !managed {
		unmanagedCreated.Store(true)
	}
	if managed && unmanagedCreated.Load() && l.onDemand {
		l.logger.Info().
			Str("library", l.path).
			Msg("creating a managed instance after an unmanaged one was created in this process: " +
				"the library will not be unmapped automatically on final instance release")
	}
	if !l.IsLoaded() {
		if err := l.LoadLibrary(); err != nil {
			return zero, err
		}
	}
	obj, err := reg.createInstance(baseType[Base](), className, l)
	if err != nil {
		return zero, err
	}
	v, ok := obj.(Base)
	if !ok {
		return zero, fmt.Errorf("%w of class %s: instance does not satisfy %s", ErrCreateClass, className, baseType[Base]())
	}
	if managed {
		l.instMu.Lock()
		l.instances++
		l.instMu.Unlock()
	}
	return v, nil
}
