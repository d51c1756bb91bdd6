package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/xaionaro-go/pcmdriver/pkg/audio/types"
)

var (
	driverTypeRegistryLocker sync.Mutex
	driverTypeRegistry       = map[string]*types.DriverType{}
	defaultRegistry          *Registry
)

// RegisterDriverType adds a driver type to the process-start registration
// list. It is supposed to be called from init() of backend packages.
func RegisterDriverType(t *types.DriverType) {
	if err := Validate(t); err != nil {
		panic(err)
	}

	driverTypeRegistryLocker.Lock()
	defer driverTypeRegistryLocker.Unlock()
	if _, ok := driverTypeRegistry[t.Name]; ok {
		panic(fmt.Errorf("there is already registered a driver type with name '%s'", t.Name))
	}
	driverTypeRegistry[t.Name] = t
	defaultRegistry = nil
}

// DriverTypes returns the registered driver types, the highest priority first.
func DriverTypes() []*types.DriverType {
	driverTypeRegistryLocker.Lock()
	defer driverTypeRegistryLocker.Unlock()
	return driverTypesLocked()
}

func driverTypesLocked() []*types.DriverType {
	result := make([]*types.DriverType, 0, len(driverTypeRegistry))
	for _, t := range driverTypeRegistry {
		result = append(result, t)
	}
	sortByPriority(result)
	return result
}

func sortByPriority(s []*types.DriverType) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].Priority != s[j].Priority {
			return s[i].Priority > s[j].Priority
		}
		return s[i].Name < s[j].Name
	})
}

// Default returns the registry of all the registered driver types.
func Default() *Registry {
	driverTypeRegistryLocker.Lock()
	defer driverTypeRegistryLocker.Unlock()
	if defaultRegistry == nil {
		// the types were validated by RegisterDriverType
		defaultRegistry = newRegistry(driverTypesLocked())
	}
	return defaultRegistry
}

// Registry is an immutable list of driver types.
type Registry struct {
	types  []*types.DriverType
	byName map[string]*types.DriverType
}

// New builds a registry of the given driver types, keeping their order.
func New(driverTypes ...*types.DriverType) (*Registry, error) {
	seen := map[string]struct{}{}
	for idx, t := range driverTypes {
		if err := Validate(t); err != nil {
			return nil, fmt.Errorf("driver type #%d is invalid: %w", idx, err)
		}
		if _, ok := seen[t.Name]; ok {
			return nil, fmt.Errorf("driver type '%s' is listed twice: %w", t.Name, types.ErrInvalidDriverType)
		}
		seen[t.Name] = struct{}{}
	}
	return newRegistry(driverTypes), nil
}

func newRegistry(driverTypes []*types.DriverType) *Registry {
	r := &Registry{
		types:  make([]*types.DriverType, len(driverTypes)),
		byName: make(map[string]*types.DriverType, len(driverTypes)),
	}
	copy(r.types, driverTypes)
	for _, t := range driverTypes {
		r.byName[t.Name] = t
	}
	return r
}

// ByName returns the driver type with exactly the given name or nil.
func (r *Registry) ByName(name string) *types.DriverType {
	if r == nil {
		return nil
	}
	return r.byName[name]
}

// ByIndex returns the driver type at the given position or nil. Index 0 is
// the default driver type.
func (r *Registry) ByIndex(idx int) *types.DriverType {
	if r == nil || idx < 0 || idx >= len(r.types) {
		return nil
	}
	return r.types[idx]
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.types)
}

func (r *Registry) Types() []*types.DriverType {
	if r == nil {
		return nil
	}
	result := make([]*types.DriverType, len(r.types))
	copy(result, r.types)
	return result
}
