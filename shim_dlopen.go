//go:build darwin || freebsd || linux

package pluginloader

import (
	"fmt"
	"sync"

	"github.com/ebitengine/purego"
)

// DlopenShim maps native shared objects with dlopen. Libraries open
// with lazy binding and global symbol visibility so inter-plugin symbol
// resolution works; set LocalSymbols for RTLD_LOCAL instead.
type DlopenShim struct {
	mu sync.Mutex
	// LocalSymbols opens libraries with RTLD_LOCAL.
	LocalSymbols bool
}

func (s *DlopenShim) Open(path string) (LibraryHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	flags := purego.RTLD_LAZY | purego.RTLD_GLOBAL
	if s.LocalSymbols {
		flags = purego.RTLD_LAZY | purego.RTLD_LOCAL
	}
	h, err := purego.Dlopen(path, flags)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrLibraryLoad, path, err)
	}
	return h, nil
}

func (s *DlopenShim) Close(handle LibraryHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := handle.(uintptr)
	if !ok {
		return fmt.Errorf("%w: foreign handle %T", ErrLibraryUnload, handle)
	}
	if err := purego.Dlclose(h); err != nil {
		return fmt.Errorf("%w: %v", ErrLibraryUnload, err)
	}
	return nil
}

func (s *DlopenShim) Lookup(handle LibraryHandle, symbol string) (uintptr, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := handle.(uintptr)
	if !ok {
		return 0, false
	}
	addr, err := purego.Dlsym(h, symbol)
	if err != nil || addr == 0 {
		return 0, false
	}
	return addr, true
}

func (s *DlopenShim) Prefix() string {
	return platformPrefix()
}

func (s *DlopenShim) Suffix(debug bool) string {
	return platformSuffix(debug)
}
