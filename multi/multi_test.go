package multi_test

import (
	"errors"
	"os"
	"testing"

	pluginloader "github.com/facontidavide/PluginLoader"
	"github.com/facontidavide/PluginLoader/multi"
	"github.com/facontidavide/PluginLoader/shimtest"
	"github.com/rs/zerolog"
)

func TestMain(m *testing.M) {
	pluginloader.SetLogger(zerolog.Nop())
	os.Exit(m.Run())
}

type Greeter interface {
	Greet() string
}

type greeter struct {
	from string
}

func (g greeter) Greet() string {
	return g.from
}

// newShim defines libA registering X and Y, and libB registering Y and
// Z, each instance reporting its contributing library.
func newShim() *shimtest.VirtualShim {
	shim := shimtest.New()
	shim.Define("libA.so", func() {
		pluginloader.Register[Greeter]("X", func() Greeter { return greeter{from: "libA"} })
		pluginloader.Register[Greeter]("Y", func() Greeter { return greeter{from: "libA"} })
	})
	shim.Define("libB.so", func() {
		pluginloader.Register[Greeter]("Y", func() Greeter { return greeter{from: "libB"} })
		pluginloader.Register[Greeter]("Z", func() Greeter { return greeter{from: "libB"} })
	})
	return shim
}

func newMulti(t *testing.T, onDemand bool, shim *shimtest.VirtualShim) *multi.MultiLoader {
	t.Helper()
	m := multi.New(onDemand, pluginloader.WithShim(shim))
	for _, lib := range []string{"libA.so", "libB.so"} {
		if err := m.LoadLibrary(lib); err != nil {
			t.Fatalf("load %s: %v", lib, err)
		}
	}
	return m
}

// Scenario: class resolution walks libraries in insertion order, mapping
// on-demand loaders along the way. X and Y resolve to libA before libB
// is ever mapped; Z forces libB in, whose Y registration then overwrites
// libA's (latest wins).
func TestResolutionOrder(t *testing.T) {
	shim := newShim()
	m := newMulti(t, true, shim)
	defer m.Close()

	for _, step := range []struct{ class, want string }{
		{"X", "libA"},
		{"Y", "libA"},
		{"Z", "libB"},
	} {
		h, err := multi.CreateShared[Greeter](m, step.class)
		if err != nil {
			t.Fatalf("create %s: %v", step.class, err)
		}
		if got := h.Get().Greet(); got != step.want {
			t.Fatalf("%s constructed by %s, want %s", step.class, got, step.want)
		}
		h.Close()
	}

	// After libB mapped, its Y registration overwrote libA's.
	h, err := multi.CreateShared[Greeter](m, "Y")
	if err != nil {
		t.Fatalf("create Y after collision: %v", err)
	}
	if got := h.Get().Greet(); got != "libB" {
		t.Fatalf("Y after collision constructed by %s, want libB", got)
	}
	h.Close()

	_, err = multi.CreateShared[Greeter](m, "Q")
	if !errors.Is(err, pluginloader.ErrCreateClass) {
		t.Fatalf("expected ErrCreateClass for Q, got %v", err)
	}
}

func TestCreateFromNamedLibrary(t *testing.T) {
	shim := newShim()
	m := newMulti(t, false, shim)
	defer m.Close()

	h, err := multi.CreateSharedFrom[Greeter](m, "Y", "libB.so")
	if err != nil {
		t.Fatalf("create Y from libB: %v", err)
	}
	if got := h.Get().Greet(); got != "libB" {
		t.Fatalf("Y from libB constructed by %s", got)
	}
	h.Close()

	_, err = multi.CreateSharedFrom[Greeter](m, "Y", "libC.so")
	if !errors.Is(err, pluginloader.ErrNoLoader) {
		t.Fatalf("expected ErrNoLoader for unknown path, got %v", err)
	}
}

func TestRegisteredLibraries(t *testing.T) {
	shim := newShim()
	m := newMulti(t, false, shim)
	defer m.Close()

	libs := m.RegisteredLibraries()
	if len(libs) != 2 || libs[0] != "libA.so" || libs[1] != "libB.so" {
		t.Fatalf("unexpected library order: %v", libs)
	}
	if !m.IsLibraryAvailable("libA.so") || m.IsLibraryAvailable("libC.so") {
		t.Fatal("availability misreported")
	}
}

func TestAvailableClasses(t *testing.T) {
	shim := newShim()
	// Eager loading maps libA then libB, so libB owns the colliding Y.
	m := newMulti(t, false, shim)
	defer m.Close()

	all := multi.AvailableClasses[Greeter](m)
	want := map[string]bool{"X": true, "Y": true, "Z": true}
	for _, name := range all {
		delete(want, name)
	}
	if len(want) != 0 {
		t.Fatalf("missing classes %v in %v", want, all)
	}
	if !multi.IsClassAvailable[Greeter](m, "Z") {
		t.Fatal("Z should be available")
	}
	if multi.IsClassAvailable[Greeter](m, "Q") {
		t.Fatal("Q should not be available")
	}

	forB, err := multi.AvailableClassesForLibrary[Greeter](m, "libB.so")
	if err != nil {
		t.Fatalf("classes for libB: %v", err)
	}
	if len(forB) != 2 || forB[0] != "Y" || forB[1] != "Z" {
		t.Fatalf("libB should expose Y and Z, got %v", forB)
	}

	_, err = multi.AvailableClassesForLibrary[Greeter](m, "libC.so")
	if !errors.Is(err, pluginloader.ErrNoLoader) {
		t.Fatalf("expected ErrNoLoader, got %v", err)
	}
}

func TestUnloadRemovesLoader(t *testing.T) {
	shim := newShim()
	m := newMulti(t, false, shim)
	defer m.Close()

	if n := m.UnloadLibrary("libA.so"); n != 0 {
		t.Fatalf("expected remaining 0, got %d", n)
	}
	if m.IsLibraryAvailable("libA.so") {
		t.Fatal("libA should be removed once fully unloaded")
	}
	if n := m.UnloadLibrary("libC.so"); n != 0 {
		t.Fatalf("unknown library unload should report 0, got %d", n)
	}
}

func TestOnDemandMultiLoader(t *testing.T) {
	shim := shimtest.New()
	shim.Define("libLazy.so", func() {
		pluginloader.Register[Greeter]("L", func() Greeter { return greeter{from: "libLazy"} })
	})
	m := multi.New(true, pluginloader.WithShim(shim))
	defer m.Close()
	if err := m.LoadLibrary("libLazy.so"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if shim.OpenCount() != 0 {
		t.Fatal("on-demand multi loader must not map at registration")
	}
	h, err := multi.CreateShared[Greeter](m, "L")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if h.Get().Greet() != "libLazy" {
		t.Fatalf("unexpected instance %q", h.Get().Greet())
	}
	h.Close()
	if shim.OpenCount() == 0 {
		t.Fatal("create should have mapped the library")
	}
}
