package plugin

import (
	"sort"
	"sync"

	"github.com/geosift/geosift/config"
)

// Factory constructs a plugin from its discovered manifest and settings
// store. Driver packages register one under their driver name.
type Factory func(manifest *Manifest, store *config.Store) (Plugin, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// RegisterFactory binds a driver name to its constructor. Driver packages
// call this from init, so importing a driver package is what compiles it
// in. Registering a nil factory or the same name twice panics.
func RegisterFactory(driver string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()

	if factory == nil {
		panic("plugin: RegisterFactory with nil factory for " + driver)
	}
	if _, dup := factories[driver]; dup {
		panic("plugin: RegisterFactory called twice for " + driver)
	}
	factories[driver] = factory
}

// Drivers returns the sorted names of the compiled-in drivers.
func Drivers() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupFactory(driver string) (Factory, bool) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	factory, ok := factories[driver]
	return factory, ok
}

// resetFactories clears the driver table. Only tests use it.
func resetFactories() {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories = make(map[string]Factory)
}
