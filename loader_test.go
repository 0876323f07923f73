package pluginloader

import (
	"errors"
	"strings"
	"testing"
)

// Scenario: construct, enumerate, instantiate every class, destroy,
// repeat on a fresh loader.
func TestZooHappyPath(t *testing.T) {
	resetGlobalState()
	shim := newMemShim()
	defineZoo(shim, "./libZoo.so")

	for round := 0; round < 2; round++ {
		l := mustLoader(t, "./libZoo.so", false, WithShim(shim))
		names := AvailableClasses[Animal](l)
		if len(names) != 5 {
			t.Fatalf("round %d: expected 5 classes, got %v", round, names)
		}
		for _, name := range names {
			h, err := CreateShared[Animal](l, name)
			if err != nil {
				t.Fatalf("round %d: create %s: %v", round, name, err)
			}
			if h.Get().Say() != zooClasses[name] {
				t.Fatalf("round %d: %s says %q", round, name, h.Get().Say())
			}
			h.Close()
		}
		l.Close()
		if l.IsLoadedByAnyLoader() {
			t.Fatalf("round %d: library still mapped after Close", round)
		}
	}
}

func TestLoadCountSymmetry(t *testing.T) {
	resetGlobalState()
	shim := newMemShim()
	defineZoo(shim, "libZoo.so")
	l := mustLoader(t, "libZoo.so", true, WithShim(shim))

	for i := 0; i < 3; i++ {
		if err := l.LoadLibrary(); err != nil {
			t.Fatalf("load %d: %v", i, err)
		}
	}
	if !l.IsLoaded() {
		t.Fatal("loader should be loaded")
	}
	if n := l.UnloadLibrary(); n != 2 {
		t.Fatalf("first unload: expected 2 remaining, got %d", n)
	}
	if n := l.UnloadLibrary(); n != 1 {
		t.Fatalf("second unload: expected 1 remaining, got %d", n)
	}
	if !l.IsLoaded() {
		t.Fatal("loader must stay loaded until the counts match")
	}
	if n := l.UnloadLibrary(); n != 0 {
		t.Fatalf("final unload: expected 0 remaining, got %d", n)
	}
	if l.IsLoaded() || l.IsLoadedByAnyLoader() {
		t.Fatal("library should be unmapped after the final unload")
	}
	// Clamped at zero.
	if n := l.UnloadLibrary(); n != 0 {
		t.Fatalf("extra unload: expected 0, got %d", n)
	}
}

func TestLiveInstanceBlocksUnload(t *testing.T) {
	resetGlobalState()
	shim := newMemShim()
	defineZoo(shim, "libZoo.so")
	l := mustLoader(t, "libZoo.so", false, WithShim(shim))

	h, err := CreateShared[Animal](l, "Dog")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if n := l.UnloadLibrary(); n != 1 {
		t.Fatalf("unload with live instance: expected count unchanged at 1, got %d", n)
	}
	if !l.IsLoadedByAnyLoader() {
		t.Fatal("library must stay mapped while instances are live")
	}
	h.Close()
	if n := l.UnloadLibrary(); n != 0 {
		t.Fatalf("unload after release: expected 0, got %d", n)
	}
	if l.IsLoadedByAnyLoader() {
		t.Fatal("library should be unmapped")
	}
}

func TestMissingLibrary(t *testing.T) {
	resetGlobalState()
	shim := newMemShim()
	_, err := NewLoader("./does-not-exist", false, WithShim(shim))
	if !errors.Is(err, ErrLibraryLoad) {
		t.Fatalf("expected ErrLibraryLoad, got %v", err)
	}
	if !strings.Contains(err.Error(), "./does-not-exist") {
		t.Fatalf("error payload should name the path: %v", err)
	}
}

func TestOnDemandLoadUnload(t *testing.T) {
	resetGlobalState()
	shim := newMemShim()
	defineZoo(shim, "libZoo.so")
	l := mustLoader(t, "libZoo.so", true, WithShim(shim))

	if l.IsLoadedByAnyLoader() {
		t.Fatal("on-demand loader must not map at construction")
	}
	h, err := CreateShared[Animal](l, "Cat")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !l.IsLoaded() {
		t.Fatal("first create should have mapped the library")
	}
	h.Close()
	if l.IsLoadedByAnyLoader() {
		t.Fatal("last release should have unmapped the library")
	}
	if shim.closeCount() != 1 {
		t.Fatalf("expected one unmap, got %d", shim.closeCount())
	}
}

func TestUnmanagedFreezesOnDemandUnload(t *testing.T) {
	resetGlobalState()
	shim := newMemShim()
	defineZoo(shim, "libZoo.so")
	l := mustLoader(t, "libZoo.so", true, WithShim(shim))

	cow, err := CreateUnmanaged[Animal](l, "Cow")
	if err != nil {
		t.Fatalf("create unmanaged: %v", err)
	}
	if cow.Say() != "Moooo" {
		t.Fatalf("unexpected noise %q", cow.Say())
	}
	if !HasUnmanagedInstanceBeenCreated() {
		t.Fatal("process-wide unmanaged flag should be set")
	}

	h, err := CreateShared[Animal](l, "Dog")
	if err != nil {
		t.Fatalf("create shared: %v", err)
	}
	h.Close()
	if !l.IsLoadedByAnyLoader() {
		t.Fatal("library must stay mapped once an unmanaged instance exists")
	}
}

func TestSharedCloseIdempotent(t *testing.T) {
	resetGlobalState()
	shim := newMemShim()
	defineZoo(shim, "libZoo.so")
	l := mustLoader(t, "libZoo.so", false, WithShim(shim))
	defer l.Close()

	h, err := CreateShared[Animal](l, "Duck")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	h.Close()
	h.Close()
	if n := l.OutstandingInstances(); n != 0 {
		t.Fatalf("double Close must release once, outstanding=%d", n)
	}
}

func TestUniqueInstance(t *testing.T) {
	resetGlobalState()
	shim := newMemShim()
	defineZoo(shim, "libZoo.so")
	l := mustLoader(t, "libZoo.so", false, WithShim(shim))
	defer l.Close()

	u, err := CreateUnique[Animal](l, "Sheep")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if u.Get().Say() != "Baaah" {
		t.Fatalf("unexpected noise %q", u.Get().Say())
	}
	if n := l.OutstandingInstances(); n != 1 {
		t.Fatalf("expected 1 outstanding instance, got %d", n)
	}
	u.Close()
	if n := l.OutstandingInstances(); n != 0 {
		t.Fatalf("expected 0 outstanding instances, got %d", n)
	}
}

func TestTwoLoadersShareOnePath(t *testing.T) {
	resetGlobalState()
	shim := newMemShim()
	defineZoo(shim, "libZoo.so")

	l1 := mustLoader(t, "libZoo.so", false, WithShim(shim))
	l2 := mustLoader(t, "libZoo.so", false, WithShim(shim))

	// The second loader shares the factories the first one mapped.
	if !l2.IsLoaded() {
		t.Fatal("second loader should own the shared factories")
	}
	h, err := CreateShared[Animal](l2, "Dog")
	if err != nil {
		t.Fatalf("create through second loader: %v", err)
	}
	h.Close()

	if n := l1.UnloadLibrary(); n != 0 {
		t.Fatalf("expected first loader released, got %d", n)
	}
	if l1.IsLoaded() {
		t.Fatal("first loader should no longer own factories")
	}
	if !l2.IsLoaded() || !l2.IsLoadedByAnyLoader() {
		t.Fatal("library must survive while the second loader holds it")
	}
	if n := l2.UnloadLibrary(); n != 0 {
		t.Fatalf("expected second loader released, got %d", n)
	}
	if l2.IsLoadedByAnyLoader() {
		t.Fatal("library should be unmapped after the last holder releases")
	}
	if shim.closeCount() != 1 {
		t.Fatalf("expected exactly one unmap, got %d", shim.closeCount())
	}
}

// Every enumerated class must be instantiable.
func TestAvailableImpliesCreatable(t *testing.T) {
	resetGlobalState()
	shim := newMemShim()
	defineZoo(shim, "libZoo.so")
	l := mustLoader(t, "libZoo.so", false, WithShim(shim))
	defer l.Close()

	for _, name := range AvailableClasses[Animal](l) {
		h, err := CreateShared[Animal](l, name)
		if err != nil {
			t.Fatalf("%s enumerated but not creatable: %v", name, err)
		}
		h.Close()
	}
}

func TestCloseWithLiveInstanceRefuses(t *testing.T) {
	resetGlobalState()
	shim := newMemShim()
	defineZoo(shim, "libZoo.so")
	l := mustLoader(t, "libZoo.so", false, WithShim(shim))

	h, err := CreateShared[Animal](l, "Dog")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	l.Close()
	if !l.IsLoadedByAnyLoader() {
		t.Fatal("Close must not unmap while instances are live")
	}
	h.Close()
	l.Close()
	if l.IsLoadedByAnyLoader() {
		t.Fatal("second Close should unmap once instances are gone")
	}
}
