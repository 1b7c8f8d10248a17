//go:build unix

package process

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownSpawner is returned when a spawner requested by name is not
// registered or cannot run on this kernel.
var ErrUnknownSpawner = errors.New("unknown spawner")

// spawner creates the child for a prepared launch. Implementations close
// nothing they did not create, and on failure they return a *LaunchError
// after the child, if one was created, has been reaped.
type spawner interface {
	name() string
	spawn(p *plan) (spawned, error)
}

// spawned describes a child that reached exec or its suspension point.
type spawned struct {
	pid   int
	pidfd int
	// via names the strategy that actually ran when it differs from the
	// spawner's own name.
	via string
}

type spawnerFactory func(Capabilities) spawner

type spawnerEntry struct {
	name      string
	available func(Capabilities) bool
	factory   spawnerFactory
}

var (
	spawnerMu sync.RWMutex
	spawners  []spawnerEntry
)

// registerSpawner adds a spawner in priority order. When the same name is
// registered again the most recent registration wins and keeps its slot.
func registerSpawner(name string, available func(Capabilities) bool, factory spawnerFactory) {
	if name == "" {
		panic("process.registerSpawner: name must not be empty")
	}
	if factory == nil {
		panic("process.registerSpawner: factory must not be nil")
	}
	if available == nil {
		available = func(Capabilities) bool { return true }
	}

	spawnerMu.Lock()
	defer spawnerMu.Unlock()

	for i, entry := range spawners {
		if entry.name == name {
			spawners[i] = spawnerEntry{name: name, available: available, factory: factory}
			return
		}
	}
	spawners = append(spawners, spawnerEntry{name: name, available: available, factory: factory})
}

// Spawners lists the registered spawner names in priority order together
// with whether each can run on this kernel.
func Spawners() []SpawnerInfo {
	caps := ProbeCapabilities()

	spawnerMu.RLock()
	defer spawnerMu.RUnlock()

	out := make([]SpawnerInfo, 0, len(spawners))
	for _, entry := range spawners {
		out = append(out, SpawnerInfo{Name: entry.name, Available: entry.available(caps)})
	}
	return out
}

// SpawnerInfo describes a registered spawner.
type SpawnerInfo struct {
	Name      string `json:"name" msgpack:"name"`
	Available bool   `json:"available" msgpack:"available"`
}

// selectSpawner returns the named spawner, or the first available one when
// name is empty.
func selectSpawner(name string, caps Capabilities) (spawner, error) {
	spawnerMu.RLock()
	defer spawnerMu.RUnlock()

	for _, entry := range spawners {
		if name != "" && entry.name != name {
			continue
		}
		if !entry.available(caps) {
			if name != "" {
				return nil, fmt.Errorf("%w: %s is not supported by this kernel", ErrUnknownSpawner, name)
			}
			continue
		}
		return entry.factory(caps), nil
	}
	if name != "" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSpawner, name)
	}
	return nil, fmt.Errorf("%w: none available", ErrUnknownSpawner)
}
