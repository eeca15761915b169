package device

import (
	"context"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/barolog/barolog/internal/reading"
)

// Palette is the fixed set of series colors, as hex RGB.
var Palette = []string{
	"#4F8EF7", // blue
	"#F25C54", // red
	"#3CB371", // green
	"#F4A259", // orange
	"#9B5DE5", // purple
	"#00BBF9", // cyan
	"#F15BB5", // pink
	"#8D99AE", // slate
}

// Color returns the display color for a device. The color depends only on
// the device id, so it does not shift when other devices appear.
func Color(deviceID string) string {
	return Palette[xxhash.Sum64String(deviceID)%uint64(len(Palette))]
}

// Lister is the store view the registry projects from.
type Lister interface {
	DistinctDevices(ctx context.Context) []reading.Device
}

// Registry is the in-memory projection of known devices plus the user's
// device selection.
//
// Until the user toggles a device the selection is "all devices", including
// devices that first appear later. After the first toggle the selection is
// explicit: new devices start unselected. Devices that vanish from the store
// are dropped from the selection either way.
type Registry struct {
	store Lister

	mu       sync.RWMutex
	devices  []reading.Device
	selected map[string]bool
	explicit bool
}

// NewRegistry creates a registry over store. Call Refresh to populate it.
func NewRegistry(store Lister) *Registry {
	return &Registry{
		store:    store,
		selected: make(map[string]bool),
	}
}

// Refresh recomputes the device list from the store.
func (r *Registry) Refresh(ctx context.Context) {
	devices := r.store.DistinctDevices(ctx)
	sortDevices(devices)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.devices = devices

	present := make(map[string]bool, len(devices))
	for _, d := range devices {
		present[d.ID] = true
	}
	for id := range r.selected {
		if !present[id] {
			delete(r.selected, id)
		}
	}

	if !r.explicit {
		r.defaultSelection()
	}
}

// defaultSelection selects every known device. Callers hold r.mu.
func (r *Registry) defaultSelection() {
	for _, d := range r.devices {
		r.selected[d.ID] = true
	}
}

// List returns the known devices, sorted by name then id.
func (r *Registry) List() []reading.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]reading.Device, len(r.devices))
	copy(out, r.devices)
	return out
}

// Toggle flips the selection of a device and reports whether it is now
// selected. Unknown ids are ignored and report false.
func (r *Registry) Toggle(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	known := false
	for _, d := range r.devices {
		if d.ID == id {
			known = true
			break
		}
	}
	if !known {
		return false
	}

	r.explicit = true
	if r.selected[id] {
		delete(r.selected, id)
		return false
	}
	r.selected[id] = true
	return true
}

// IsSelected reports whether the device is in the current selection.
func (r *Registry) IsSelected(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.selected[id]
}

// Selection returns the selected device ids in list order, ready to be
// used as a Query filter.
func (r *Registry) Selection() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.selected))
	for _, d := range r.devices {
		if r.selected[d.ID] {
			ids = append(ids, d.ID)
		}
	}
	return ids
}

// NothingSelected reports whether devices are known but every one has been
// deselected. An empty Selection means "no filter" to Query, so callers
// check this first to render an empty view instead.
func (r *Registry) NothingSelected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices) > 0 && len(r.selected) == 0
}

// Reset forgets the selection so the next Refresh selects all devices
// again. Used after the local store is cleared.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices = nil
	r.selected = make(map[string]bool)
	r.explicit = false
}

func sortDevices(devices []reading.Device) {
	sort.SliceStable(devices, func(i, j int) bool {
		if devices[i].Name != devices[j].Name {
			return devices[i].Name < devices[j].Name
		}
		return devices[i].ID < devices[j].ID
	})
}
