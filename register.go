package pluginloader

import "reflect"

// baseType derives the process-local identity of a base capability.
// Interface types declared in different packages but denoting the same
// type share one reflect.Type, so the identity holds process-wide.
func baseType[Base any]() reflect.Type {
	return reflect.TypeOf((*Base)(nil)).Elem()
}

// Register publishes a factory for the plugin class className producing
// values that satisfy Base. Plugin libraries call it from init
// functions, which run while the library is being mapped; the registry
// attributes the factory to the Loader performing the map. Registering
// the same (Base, className) pair twice overwrites the earlier factory
// with a warning.
//
//	func init() {
//		pluginloader.Register[Animal]("Dog", func() Animal { return &Dog{} })
//	}
func Register[Base any](className string, create func() Base) {
	if className == "" {
		logger().Error().Str("base", baseType[Base]().String()).Msg("ignoring registration with empty class name")
		return
	}
	logger().Debug().
		Str("class", className).
		Str("base", baseType[Base]().String()).
		Str("library", reg.loadingPath).
		Msg("registering plugin factory")
	reg.register(baseType[Base](), className, func() any { return create() })
}
