package bridge

import (
	"strconv"
	"sync"

	"github.com/nerrad567/zigbee-mesh-core/internal/infrastructure/mqtt"
)

// Cache is the in-memory store of devices, groups, per-topic last-seen
// telemetry, and bridge status. Pure data and lookup logic, no I/O.
//
// Mutation happens only from the bridge's single dispatch goroutine; the
// RWMutex exists so command methods and queries running on caller goroutines
// get consistent read-only snapshots. Returned entities are deep copies and
// safe to modify.
type Cache struct {
	topics mqtt.Topics

	mu           sync.RWMutex
	devices      []Device
	groups       []Group
	devicesSet   bool
	groupsSet    bool
	telemetry    map[string]any
	bridgeStatus Status
	bridgeConfig map[string]any
}

// NewCache creates an empty cache addressing entities under the given topics.
func NewCache(topics mqtt.Topics) *Cache {
	return &Cache{
		topics:    topics,
		telemetry: make(map[string]any),
	}
}

// SetDevices replaces the device list wholesale. Transient per-entity fields
// (last payload, derived view) are cleared on replacement; they are
// recomputed lazily on lookup so stale telemetry never sticks to a refreshed
// record.
func (c *Cache) SetDevices(devices []Device) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.devices = make([]Device, len(devices))
	for i := range devices {
		d := devices[i]
		d.LastPayload = nil
		d.View = nil
		c.devices[i] = d
	}
	c.devicesSet = true
}

// SetGroups replaces the group list wholesale, clearing transient fields.
func (c *Cache) SetGroups(groups []Group) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.groups = make([]Group, len(groups))
	for i := range groups {
		g := groups[i]
		g.LastPayload = nil
		g.View = nil
		c.groups[i] = g
	}
	c.groupsSet = true
}

// HasDevices reports whether a device list has been received since startup.
// An empty list still counts: the bridge answered, there are no devices.
func (c *Cache) HasDevices() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.devicesSet
}

// Devices returns a snapshot of the cached device list.
func (c *Cache) Devices() []Device {
	c.mu.RLock()
	defer c.mu.RUnlock()

	devices := make([]Device, len(c.devices))
	for i := range c.devices {
		devices[i] = c.devices[i].deepCopy()
	}
	return devices
}

// Groups returns a snapshot of the cached group list.
func (c *Cache) Groups() []Group {
	c.mu.RLock()
	defer c.mu.RUnlock()

	groups := make([]Group, len(c.groups))
	for i := range c.groups {
		groups[i] = c.groups[i].deepCopy()
	}
	return groups
}

// DeviceByID finds a device by hardware identifier. On a hit the returned
// copy carries the last telemetry payload recorded for the device's
// addressing topic and the presentation view derived from it.
func (c *Cache) DeviceByID(id string) (Device, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := range c.devices {
		if c.devices[i].IeeeAddr != id {
			continue
		}
		d := c.devices[i].deepCopy()
		c.populateDevice(&d)
		return d, true
	}
	return Device{}, false
}

// GroupByID finds a group by numeric identifier, populating transient fields
// on a hit.
func (c *Cache) GroupByID(id int) (Group, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := range c.groups {
		if c.groups[i].ID != id {
			continue
		}
		g := c.groups[i].deepCopy()
		c.populateGroup(&g)
		return g, true
	}
	return Group{}, false
}

// DeviceByTopic matches a telemetry topic against every device, trying both
// the friendly-name-derived and the identifier-derived topic. The bridge may
// address an entity by either name depending on configuration history, so
// both must be tried.
func (c *Cache) DeviceByTopic(topic string) (Device, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := range c.devices {
		d := &c.devices[i]
		if topic == c.topics.Entity(d.FriendlyName) || topic == c.topics.Entity(d.IeeeAddr) {
			return d.deepCopy(), true
		}
	}
	return Device{}, false
}

// GroupByTopic matches a telemetry topic against every group by friendly
// name or numeric identifier.
func (c *Cache) GroupByTopic(topic string) (Group, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := range c.groups {
		g := &c.groups[i]
		if topic == c.topics.Entity(g.FriendlyName) || topic == c.topics.Entity(strconv.Itoa(g.ID)) {
			return g.deepCopy(), true
		}
	}
	return Group{}, false
}

// LastKnownState looks up id as a device, then as a group, and returns an
// explicit empty record when neither matches. Callers display the result
// directly, so this never reports absence.
func (c *Cache) LastKnownState(id string) LastState {
	if d, ok := c.DeviceByID(id); ok {
		return LastState{Device: &d}
	}
	if n, err := strconv.Atoi(id); err == nil {
		if g, ok := c.GroupByID(n); ok {
			return LastState{Group: &g}
		}
	}
	return LastState{}
}

// RecordTelemetry overwrites the last-seen payload for topic. Entries are
// never proactively deleted; the store is bounded by device and group count
// in practice.
func (c *Cache) RecordTelemetry(topic string, payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.telemetry[topic] = payload
}

// Telemetry returns the last-seen payload recorded for topic.
func (c *Cache) Telemetry(topic string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	payload, ok := c.telemetry[topic]
	return payload, ok
}

// SetBridgeStatus records the bridge availability from the state topic.
func (c *Cache) SetBridgeStatus(status Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bridgeStatus = status
}

// BridgeStatus returns the last-known bridge availability.
func (c *Cache) BridgeStatus() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bridgeStatus
}

// SetBridgeConfig caches the bridge configuration snapshot.
func (c *Cache) SetBridgeConfig(cfg map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bridgeConfig = cfg
}

// BridgeConfig returns the cached bridge configuration snapshot, or nil if
// none has been received.
func (c *Cache) BridgeConfig() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return deepCopyMap(c.bridgeConfig)
}

// populateDevice fills the transient payload and view fields from the
// telemetry store. Caller must hold at least a read lock.
func (c *Cache) populateDevice(d *Device) {
	payload, ok := c.telemetry[c.topics.Entity(d.AddressingName())]
	if !ok {
		return
	}
	obj, ok := payload.(map[string]any)
	if !ok {
		return
	}
	d.LastPayload = deepCopyMap(obj)
	d.View = deriveView(obj, d.Meta)
}

// populateGroup fills the transient payload and view fields from the
// telemetry store. Caller must hold at least a read lock.
func (c *Cache) populateGroup(g *Group) {
	payload, ok := c.telemetry[c.topics.Entity(g.AddressingName())]
	if !ok {
		return
	}
	obj, ok := payload.(map[string]any)
	if !ok {
		return
	}
	g.LastPayload = deepCopyMap(obj)
	g.View = deriveView(obj, g.Meta)
}
