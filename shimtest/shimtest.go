// Package shimtest provides an in-memory SharedLibraryShim whose
// libraries are plain registration callbacks. It backs the test suite
// and lets hosts exercise loader behavior without building shared
// objects.
package shimtest

import (
	"fmt"
	"sync"

	pluginloader "github.com/facontidavide/PluginLoader"
)

type (
	// VirtualShim maps virtual libraries defined with Define. Opening a
	// path runs its registration callback, mirroring the init functions
	// of a real library; like the platform loader, the callback runs on
	// every fresh map (a purged library re-registers when reopened).
	VirtualShim struct {
		mu   sync.Mutex
		libs map[string]func()

		opens  int
		closes int
	}
	virtualHandle struct {
		path string
	}
)

// New creates an empty VirtualShim.
func New() *VirtualShim {
	return &VirtualShim{libs: make(map[string]func())}
}

// Define adds a virtual library whose registration callback runs each
// time the path is mapped. The callback typically calls
// pluginloader.Register for each class the library contributes.
func (s *VirtualShim) Define(path string, register func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.libs[path] = register
}

func (s *VirtualShim) Open(path string) (pluginloader.LibraryHandle, error) {
	s.mu.Lock()
	register, ok := s.libs[path]
	if ok {
		s.opens++
	}
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w %s: no such virtual library", pluginloader.ErrLibraryLoad, path)
	}
	if register != nil {
		register()
	}
	return &virtualHandle{path: path}, nil
}

func (s *VirtualShim) Close(handle pluginloader.LibraryHandle) error {
	if _, ok := handle.(*virtualHandle); !ok {
		return fmt.Errorf("%w: foreign handle %T", pluginloader.ErrLibraryUnload, handle)
	}
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	return nil
}

func (s *VirtualShim) Lookup(handle pluginloader.LibraryHandle, symbol string) (uintptr, bool) {
	return 0, false
}

func (s *VirtualShim) Prefix() string {
	return "lib"
}

func (s *VirtualShim) Suffix(debug bool) string {
	if debug {
		return "d.so"
	}
	return ".so"
}

// OpenCount returns how many times libraries were mapped through this
// shim.
func (s *VirtualShim) OpenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens
}

// CloseCount returns how many times handles were unmapped.
func (s *VirtualShim) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}
