// Package registry tracks the devices a daemon has discovered, so the
// control plane and startup logging can enumerate and look them up by name
// without reaching into pkg/device's discovery path directly.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hpc-fabrics/kfabric-verbs/pkg/device"
)

// Registry is a thread-safe, name-keyed collection of discovered devices.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*device.Device
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		devices: make(map[string]*device.Device),
	}
}

// RegisterDevice adds a discovered device to the registry.
// Returns an error if a device with the same name is already registered.
func (r *Registry) RegisterDevice(d *device.Device) error {
	if d == nil {
		return fmt.Errorf("cannot register nil device")
	}
	if d.Name == "" {
		return fmt.Errorf("cannot register device with empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.devices[d.Name]; exists {
		return fmt.Errorf("device %q already registered", d.Name)
	}

	r.devices[d.Name] = d
	return nil
}

// RegisterAll registers every device in devices, stopping at the first
// name collision. Devices registered before the collision remain
// registered.
func (r *Registry) RegisterAll(devices []*device.Device) error {
	for _, d := range devices {
		if err := r.RegisterDevice(d); err != nil {
			return err
		}
	}
	return nil
}

// UnregisterDevice removes a device from the registry by name.
// It does not close the device; callers that want the underlying fabric
// and domain handles released must call device.Device.Close separately.
// Returns an error if no device with that name is registered.
func (r *Registry) UnregisterDevice(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.devices[name]; !exists {
		return fmt.Errorf("device %q not found", name)
	}
	delete(r.devices, name)
	return nil
}

// GetDevice retrieves a device by name.
func (r *Registry) GetDevice(name string) (*device.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, exists := r.devices[name]
	if !exists {
		return nil, fmt.Errorf("device %q not found", name)
	}
	return d, nil
}

// Devices returns every registered device, sorted by name. The returned
// slice is a copy and safe to modify.
func (r *Registry) Devices() []*device.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*device.Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// DeviceNames returns the names of every registered device, sorted.
func (r *Registry) DeviceNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.devices))
	for name := range r.devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CountDevices returns the number of registered devices.
func (r *Registry) CountDevices() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// DeviceExists reports whether a device with the given name is registered.
func (r *Registry) DeviceExists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.devices[name]
	return exists
}

// CloseAll closes every registered device and removes it from the
// registry, collecting and returning any close errors together. Used by
// the daemon on shutdown.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, d := range r.devices {
		if err := d.Close(); err != nil {
			errs = append(errs, fmt.Errorf("device %q: %w", name, err))
		}
	}
	r.devices = make(map[string]*device.Device)

	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	return fmt.Errorf("%d devices failed to close: %w", len(errs), errs[0])
}
