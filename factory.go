package pluginloader

import "reflect"

// factory produces instances of one plugin class satisfying one base
// capability. It records which library contributed it and which Loaders
// may use it. Owner references are identity-only: a factory never
// drives a Loader's lifetime, it only answers ownedBy.
type factory struct {
	className   string
	base        reflect.Type
	libraryPath string
	owners      map[*Loader]struct{}
	create      func() any
}

// ownedBy reports whether loader may use this factory. A nil loader
// asks whether the factory has no owner at all.
func (f *factory) ownedBy(loader *Loader) bool {
	if loader == nil {
		return len(f.owners) == 0
	}
	_, ok := f.owners[loader]
	return ok
}

func (f *factory) addOwner(loader *Loader) {
	if loader != nil {
		f.owners[loader] = struct{}{}
	}
}

func (f *factory) removeOwner(loader *Loader) {
	delete(f.owners, loader)
}
