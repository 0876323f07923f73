/*
Package pluginloader lets a host process discover and instantiate plugin
classes from shared objects opened at runtime, without compile-time
knowledge of those classes.

# Model

A plugin library registers factories for its classes against a base
capability (an interface type) from its init functions via [Register].
The host constructs a [Loader] bound to one library path; mapping the
library runs those init functions, and the process-wide registry
attributes each factory to the Loader that caused the mapping. The host
then enumerates class names with [AvailableClasses] and instantiates
them with [CreateShared], [CreateUnique] or [CreateUnmanaged].

# Underwater

 1. Libraries are mapped through a [SharedLibraryShim]. Backends ship
    for Go plugins ([GoPluginShim]), dlopen via purego ([DlopenShim])
    and relocatable Go object files ([ObjectShim], based on [goloader]).
 2. A library is never unmapped while managed instances created from
    it are live. Once an unmanaged instance exists anywhere in the
    process, on-demand Loaders no longer unmap their library when the
    last managed instance is released; explicit UnloadLibrary calls
    still unmap it.
 3. A library mapped by any means other than a Loader (for example the
    host linking against a plugin package) permanently disables
    unmapping for the whole process.

# Notes

 1. All operations are safe for concurrent use. Loads of different
    paths serialize on the registry; this matches the serialization the
    platform loaders need anyway.
 2. Repeated LoadLibrary calls require the same number of
    UnloadLibrary calls before the library is released.
 3. The multi subpackage aggregates several Loaders and resolves a
    class name across them in insertion order.

# Inspect tool

The inspect tool loads libraries and prints the classes they register,
and can compile plugin sources into object files loadable by
[ObjectShim]. Install it with:

	go install github.com/facontidavide/PluginLoader/inspect@latest

[goloader]: https://github.com/pkujhd/goloader
*/
package pluginloader
