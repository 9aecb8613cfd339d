package bridge

import "strconv"

// Device represents a zigbee device as reported by the bridge's device list.
//
// The bridge owns the canonical record; this core replaces devices wholesale
// whenever a fresh list arrives and never mutates individual fields. Meta
// carries the full vendor/model record as received, since the set of fields
// varies by device type and bridge version.
type Device struct {
	// IeeeAddr is the stable hardware identifier (e.g. "0x00158d0001e1a2b3").
	IeeeAddr string `json:"ieeeAddr"`

	// FriendlyName is the user-assigned alias. May be empty, in which case
	// the device is addressed by its hardware identifier.
	FriendlyName string `json:"friendly_name,omitempty"`

	// Meta is the full device record from the bridge (model, vendor,
	// network address, interview state, ...).
	Meta map[string]any `json:"meta,omitempty"`

	// LastPayload is the most recent telemetry for this device. Populated
	// on lookup from the telemetry store; empty until the first message.
	LastPayload map[string]any `json:"lastPayload,omitempty"`

	// View is the derived presentation view computed from LastPayload and
	// Meta. Populated on lookup, never stored long-term.
	View map[string]any `json:"view,omitempty"`
}

// AddressingName returns the name the bridge uses in this device's telemetry
// topic: the friendly name when set, else the hardware identifier.
func (d *Device) AddressingName() string {
	if d.FriendlyName != "" {
		return d.FriendlyName
	}
	return d.IeeeAddr
}

// deepCopy returns an independent copy of the device. Map fields are cloned
// so callers can't mutate the cache through a returned device.
func (d *Device) deepCopy() Device {
	cpy := *d
	cpy.Meta = deepCopyMap(d.Meta)
	cpy.LastPayload = deepCopyMap(d.LastPayload)
	cpy.View = deepCopyMap(d.View)
	return cpy
}

// Group represents a zigbee group as reported by the bridge's group list.
// Same ownership rules as Device: replaced wholesale, never field-mutated.
type Group struct {
	// ID is the numeric group identifier assigned by the bridge.
	ID int `json:"ID"`

	// FriendlyName is the user-assigned alias. May be empty, in which case
	// the group is addressed by its numeric identifier.
	FriendlyName string `json:"friendly_name,omitempty"`

	// Meta is the full group record from the bridge.
	Meta map[string]any `json:"meta,omitempty"`

	// LastPayload is the most recent telemetry for this group.
	LastPayload map[string]any `json:"lastPayload,omitempty"`

	// View is the derived presentation view.
	View map[string]any `json:"view,omitempty"`
}

// AddressingName returns the friendly name when set, else the decimal form
// of the numeric identifier.
func (g *Group) AddressingName() string {
	if g.FriendlyName != "" {
		return g.FriendlyName
	}
	return strconv.Itoa(g.ID)
}

func (g *Group) deepCopy() Group {
	cpy := *g
	cpy.Meta = deepCopyMap(g.Meta)
	cpy.LastPayload = deepCopyMap(g.LastPayload)
	cpy.View = deepCopyMap(g.View)
	return cpy
}

// Status is the last-known availability of the bridge process, set only from
// the bridge state topic.
type Status int

const (
	// StatusUnknown means no state message has been seen yet.
	StatusUnknown Status = iota

	// StatusOnline means the bridge reported "online".
	StatusOnline

	// StatusOffline means the bridge reported anything other than "online".
	StatusOffline
)

func (s Status) String() string {
	switch s {
	case StatusOnline:
		return "online"
	case StatusOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// LastState is the result of a last-known-state lookup: the matching device
// or group, or neither. It is always a value, never absent, because callers
// display it directly.
type LastState struct {
	Device *Device `json:"device,omitempty"`
	Group  *Group  `json:"group,omitempty"`
}

// IsEmpty reports whether the lookup matched neither a device nor a group.
func (s LastState) IsEmpty() bool {
	return s.Device == nil && s.Group == nil
}

// Result is the uniform outcome of every command method. Exactly one of
// Success or Error is set; Description is always human-readable.
type Result struct {
	Success     bool   `json:"success,omitempty"`
	Error       bool   `json:"error,omitempty"`
	Description string `json:"description"`
}

// commandSent is the success result shared by all command methods.
func commandSent() Result {
	return Result{Success: true, Description: "command sent"}
}

// commandError builds a failure result with the given description.
func commandError(description string) Result {
	return Result{Error: true, Description: description}
}

// deviceFromRecord builds a Device from one entry of the bridge's device
// list. Both the legacy "ieeeAddr" key and the newer "ieee_address" key are
// accepted; the full record is retained as Meta.
func deviceFromRecord(rec map[string]any) Device {
	return Device{
		IeeeAddr:     firstString(rec, "ieeeAddr", "ieee_address"),
		FriendlyName: firstString(rec, "friendly_name"),
		Meta:         rec,
	}
}

// groupFromRecord builds a Group from one entry of the bridge's group list.
func groupFromRecord(rec map[string]any) Group {
	id := 0
	for _, key := range []string{"ID", "id"} {
		if n, ok := rec[key].(float64); ok {
			id = int(n)
			break
		}
	}
	return Group{
		ID:           id,
		FriendlyName: firstString(rec, "friendly_name"),
		Meta:         rec,
	}
}

// devicesFromPayload converts a decoded "devices" log message into a device
// list. Entries that are not objects are skipped.
func devicesFromPayload(message any) []Device {
	records, ok := message.([]any)
	if !ok {
		return nil
	}
	devices := make([]Device, 0, len(records))
	for _, entry := range records {
		rec, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		devices = append(devices, deviceFromRecord(rec))
	}
	return devices
}

// groupsFromPayload converts a decoded "groups" log message into a group list.
func groupsFromPayload(message any) []Group {
	records, ok := message.([]any)
	if !ok {
		return nil
	}
	groups := make([]Group, 0, len(records))
	for _, entry := range records {
		rec, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		groups = append(groups, groupFromRecord(rec))
	}
	return groups
}

// firstString returns the first of the given keys holding a non-empty string.
func firstString(rec map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := rec[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// deepCopyMap creates a deep copy of a map[string]any.
// Nested maps and slices are recursively copied.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies a value, handling nested maps and slices.
func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		// Primitives (string, bool, float64, nil) are safe to copy by value
		return v
	}
}
