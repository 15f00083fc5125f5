// Package registry resolves controller names to network endpoints, so host
// tools can address a device by name instead of a hard-coded address. A
// lab-wide etcd cluster acts as the phonebook; bridges register the
// controllers they front, hosts discover them.
package registry

// Endpoint describes one way to reach a controller.
type Endpoint struct {
	Addr        string // "host:port" of the controller or its bridge
	Description string // free-form, e.g. the lab bench or crate slot
}

// Registry is the controller phonebook.
type Registry interface {
	// Register announces an endpoint for the named controller with a TTL;
	// the entry disappears automatically if the announcer dies.
	Register(device string, ep Endpoint, ttl int64) error

	// Deregister removes one endpoint of the named controller.
	Deregister(device string, addr string) error

	// Discover returns the currently registered endpoints for a controller.
	Discover(device string) ([]Endpoint, error)

	// Watch emits the updated endpoint list whenever it changes.
	Watch(device string) <-chan []Endpoint
}
