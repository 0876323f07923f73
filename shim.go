package pluginloader

import "runtime"

type (
	// LibraryHandle is the opaque token a shim hands back for a mapped
	// library. Its concrete type is owned by the shim that produced it.
	LibraryHandle = any

	// SharedLibraryShim abstracts the platform loader. Implementations
	// must serialize their own calls: some platform loaders are not
	// thread-safe on concurrent open/close of the same path.
	SharedLibraryShim interface {
		// Open maps the library at path. Init functions of the mapped
		// code run before Open returns. Failures wrap ErrLibraryLoad and
		// carry the platform error string.
		Open(path string) (LibraryHandle, error)
		// Close unmaps a handle. Failures wrap ErrLibraryUnload; callers
		// treat them as soft errors.
		Close(handle LibraryHandle) error
		// Lookup resolves a symbol address, for diagnostics only. Plugin
		// entry points are never resolved by symbol; registration runs
		// from init functions during Open.
		Lookup(handle LibraryHandle, symbol string) (uintptr, bool)
		// Prefix returns the conventional file name prefix for libraries
		// handled by this shim.
		Prefix() string
		// Suffix returns the file suffix, with the debug variant when
		// debug is set.
		Suffix(debug bool) string
	}
)

var defaultShim SharedLibraryShim = new(GoPluginShim)

// DefaultShim returns the shim Loaders use when none is injected.
func DefaultShim() SharedLibraryShim {
	return defaultShim
}

func platformPrefix() string {
	if runtime.GOOS == "windows" {
		return ""
	}
	return "lib"
}

func platformSuffix(debug bool) string {
	var s string
	switch runtime.GOOS {
	case "darwin":
		s = ".dylib"
	case "windows":
		s = ".dll"
	default:
		s = ".so"
	}
	if debug {
		return "d" + s
	}
	return s
}
