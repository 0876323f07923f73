package pluginloader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkujhd/goloader"
)

type (
	// ObjectShim maps relocatable Go object files (.o, or a serialized
	// linker with the .linkable suffix) into executable memory with
	// goloader. Linking runs the object's init tasks, so factory
	// registration works the same way it does for a dlopen'd library.
	// Unlike the plugin runtime, goloader can genuinely unmap a module.
	ObjectShim struct {
		mu sync.Mutex
		// PkgPath is the package path objects were compiled under;
		// defaults to main.
		PkgPath string

		symbols map[string]uintptr
	}
	objectModule struct {
		path   string
		linker *goloader.Linker
		module *goloader.CodeModule
	}
)

// NewObjectShim creates an ObjectShim with the host's runtime symbols
// registered for relocation.
func NewObjectShim() (*ObjectShim, error) {
	s := &ObjectShim{symbols: make(map[string]uintptr)}
	if err := goloader.RegSymbol(s.symbols); err != nil {
		return nil, fmt.Errorf("%w: registering runtime symbols: %v", ErrLibraryLoad, err)
	}
	return s, nil
}

// RegisterTypes makes the host's runtime type information for the given
// values available to loaded modules.
func (s *ObjectShim) RegisterTypes(types ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	goloader.RegTypes(s.symbols, types...)
}

func (s *ObjectShim) Open(path string) (LibraryHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pkg := s.PkgPath
	if pkg == "" {
		pkg = "main"
	}
	var (
		linker *goloader.Linker
		err    error
	)
	if strings.HasSuffix(path, ".linkable") {
		var f *os.File
		if f, err = os.Open(path); err != nil {
			return nil, fmt.Errorf("%w %s: %v", ErrLibraryLoad, path, err)
		}
		linker, err = goloader.UnSerialize(f)
		_ = f.Close()
	} else {
		linker, err = goloader.ReadObj(path, pkg)
	}
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrLibraryLoad, path, err)
	}
	module, err := goloader.Load(linker, s.symbols)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrLibraryLoad, path, err)
	}
	return &objectModule{path: path, linker: linker, module: module}, nil
}

func (s *ObjectShim) Close(handle LibraryHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := handle.(*objectModule)
	if !ok {
		return fmt.Errorf("%w: foreign handle %T", ErrLibraryUnload, handle)
	}
	if m.module != nil {
		_ = os.Stdout.Sync()
		m.module.Unload()
		m.module = nil
		m.linker = nil
	}
	return nil
}

func (s *ObjectShim) Lookup(handle LibraryHandle, symbol string) (uintptr, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := handle.(*objectModule)
	if !ok || m.module == nil {
		return 0, false
	}
	if strings.IndexByte(symbol, '.') < 0 {
		pkg := s.PkgPath
		if pkg == "" {
			pkg = "main"
		}
		symbol = pkg + "." + symbol
	}
	addr, ok := m.module.Syms[symbol]
	return addr, ok
}

func (s *ObjectShim) Prefix() string {
	return ""
}

func (s *ObjectShim) Suffix(debug bool) string {
	return ".o"
}

// MissingSymbols reports symbols an object file at path would fail to
// resolve against the host, without mapping it.
func (s *ObjectShim) MissingSymbols(path string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pkg := s.PkgPath
	if pkg == "" {
		pkg = "main"
	}
	linker, err := goloader.ReadObj(path, pkg)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrLibraryLoad, path, err)
	}
	return goloader.UnresolvedSymbols(linker, s.symbols), nil
}

// InspectObject lists the symbols defined in an object file. An empty
// pkg defaults to the object file's base name without its extension.
func InspectObject(path, pkg string) ([]string, error) {
	if pkg == "" {
		pkg = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return goloader.Parse(path, pkg)
}
