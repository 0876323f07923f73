package pluginloader

import "errors"

var (
	// ErrLibraryLoad occurs when the shim cannot map a runtime library.
	ErrLibraryLoad = errors.New("could not load library")
	// ErrLibraryUnload occurs when the shim cannot unmap a library. It is
	// recoverable: the registry logs it, drops its record of the library
	// and leaks the handle.
	ErrLibraryUnload = errors.New("could not unload library")
	// ErrCreateClass occurs when no factory can serve a (base, class)
	// pair within the requesting Loader's scope.
	ErrCreateClass = errors.New("could not create instance")
	// ErrNoLoader occurs when a MultiLoader is asked about a library it
	// has not loaded.
	ErrNoLoader = errors.New("no loader bound to library")
	// ErrNotFound occurs on lookup variants that prefer failure over
	// absence.
	ErrNotFound = errors.New("not found")
)
