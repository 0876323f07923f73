package pluginloader

import "testing"

func BenchmarkCreateShared(b *testing.B) {
	resetGlobalState()
	shim := newMemShim()
	defineZoo(shim, "libZoo.so")
	l, err := NewLoader("libZoo.so", false, WithShim(shim))
	if err != nil {
		b.Fatal(err)
	}
	defer l.Close()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h, err := CreateShared[Animal](l, "Dog")
		if err != nil {
			b.Fatal(err)
		}
		h.Close()
	}
}

func BenchmarkAvailableClasses(b *testing.B) {
	resetGlobalState()
	shim := newMemShim()
	defineZoo(shim, "libZoo.so")
	l, err := NewLoader("libZoo.so", false, WithShim(shim))
	if err != nil {
		b.Fatal(err)
	}
	defer l.Close()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if got := AvailableClasses[Animal](l); len(got) != 5 {
			b.Fatalf("unexpected classes %v", got)
		}
	}
}
