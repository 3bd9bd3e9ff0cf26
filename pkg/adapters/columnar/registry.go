package columnar

import (
	"fmt"
	"sort"
	"sync"
)

// DefaultClient is the client used when a connection does not name one.
const DefaultClient = "clickhouse"

var (
	registryMu sync.RWMutex
	registry   = make(map[string]ClientFactory)
)

// Register adds a client factory to the registry.
// Called by client implementations in their init() functions.
func Register(name string, factory ClientFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Get retrieves a client factory by name.
func Get(name string) (ClientFactory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	return f, ok
}

// ListClients returns all registered client names (sorted).
func ListClients() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered checks if a client name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[name]
	return ok
}

// UnknownClientError is returned when a connection names an unregistered client.
type UnknownClientError struct {
	Name      string
	Available []string
}

func (e *UnknownClientError) Error() string {
	return fmt.Sprintf("unknown columnar client %q\nAvailable clients: %v\nHint: Check options.client in leapquery.yaml", e.Name, e.Available)
}
