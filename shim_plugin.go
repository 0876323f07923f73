package pluginloader

import (
	"fmt"
	"plugin"
	"reflect"
	"sync"
)

// GoPluginShim maps Go-built shared objects through the runtime's
// plugin package. It is the default shim. The Go runtime never unmaps a
// plugin, so Close always reports a soft ErrLibraryUnload; the registry
// logs it and drops its record, while the plugin's code stays mapped in
// the process.
type GoPluginShim struct {
	mu sync.Mutex
}

func (s *GoPluginShim) Open(path string) (LibraryHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrLibraryLoad, path, err)
	}
	return p, nil
}

func (s *GoPluginShim) Close(handle LibraryHandle) error {
	return fmt.Errorf("%w: the Go runtime does not unmap plugins", ErrLibraryUnload)
}

func (s *GoPluginShim) Lookup(handle LibraryHandle, symbol string) (uintptr, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := handle.(*plugin.Plugin)
	if !ok {
		return 0, false
	}
	sym, err := p.Lookup(symbol)
	if err != nil {
		return 0, false
	}
	return reflect.ValueOf(sym).Pointer(), true
}

func (s *GoPluginShim) Prefix() string {
	return platformPrefix()
}

func (s *GoPluginShim) Suffix(debug bool) string {
	return platformSuffix(debug)
}
