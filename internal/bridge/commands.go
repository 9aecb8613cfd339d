package bridge

import (
	"encoding/json"
	"fmt"
)

// Permitted bridge log levels. Anything else falls back to "info".
var validLogLevels = map[string]bool{
	"info":  true,
	"debug": true,
	"warn":  true,
	"error": true,
}

// publish sends a command payload at the bridge's configured QoS.
func (b *Bridge) publish(topic string, payload []byte) error {
	if err := b.mqtt.Publish(topic, payload, b.qos, false); err != nil {
		b.logger.Error("command publish failed", "topic", topic, "error", err)
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// publishJSON marshals payload and publishes it.
func (b *Bridge) publishJSON(topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode command payload: %w", err)
	}
	return b.publish(topic, data)
}

// RefreshDevices requests fresh group and device lists from the bridge.
// The lists arrive asynchronously as bridge log events; callers that need
// the result should await them via the bus (see GetDevices).
func (b *Bridge) RefreshDevices() error {
	if err := b.publish(b.topics.ConfigCommand("groups"), nil); err != nil {
		return err
	}
	return b.publish(b.topics.ConfigCommand("devices"), nil)
}

// SetLogLevel changes the bridge's log verbosity. Unknown levels are
// coerced to "info" rather than rejected.
func (b *Bridge) SetLogLevel(level string) Result {
	if !validLogLevels[level] {
		level = "info"
	}
	if err := b.publish(b.topics.ConfigCommand("log_level"), []byte(level)); err != nil {
		return commandError(err.Error())
	}
	return commandSent()
}

// SetPermitJoin opens or closes the network to new devices.
func (b *Bridge) SetPermitJoin(permit bool) Result {
	payload := "false"
	if permit {
		payload = "true"
	}
	if err := b.publish(b.topics.ConfigCommand("permit_join"), []byte(payload)); err != nil {
		return commandError(err.Error())
	}
	return commandSent()
}

// RenameDevice assigns a new friendly name to a known device. The device
// is looked up in the cache first; renaming something the mesh has never
// reported is refused.
func (b *Bridge) RenameDevice(deviceID, newName string) Result {
	device, found := b.cache.DeviceByID(deviceID)
	if !found {
		return commandError("no such device")
	}
	if newName == "" {
		return commandError("can not be empty")
	}
	payload := map[string]string{
		"old": device.AddressingName(),
		"new": newName,
	}
	if err := b.publishJSON(b.topics.ConfigCommand("rename"), payload); err != nil {
		return commandError(err.Error())
	}
	return commandSent()
}

// RemoveDevice force-removes a device from the network.
func (b *Bridge) RemoveDevice(deviceID string) Result {
	device, found := b.cache.DeviceByID(deviceID)
	if !found {
		return commandError("no such device")
	}
	if err := b.publish(b.topics.ConfigCommand("force_remove"), []byte(device.AddressingName())); err != nil {
		return commandError(err.Error())
	}
	return commandSent()
}

// SetDeviceOptions pushes per-device options (retain, debounce, qos) to
// the bridge. The name is used as-is; the bridge ignores unknown devices.
func (b *Bridge) SetDeviceOptions(friendlyName string, options map[string]any) Result {
	payload := map[string]any{
		"friendly_name": friendlyName,
		"options":       options,
	}
	if err := b.publishJSON(b.topics.ConfigCommand("device_options"), payload); err != nil {
		return commandError(err.Error())
	}
	return commandSent()
}

// AddGroup creates a new group with the given name.
func (b *Bridge) AddGroup(name string) Result {
	if name == "" {
		return commandError("can not be empty")
	}
	if err := b.publish(b.topics.ConfigCommand("add_group"), []byte(name)); err != nil {
		return commandError(err.Error())
	}
	return commandSent()
}

// RenameGroup assigns a new friendly name to a known group.
func (b *Bridge) RenameGroup(groupID int, newName string) Result {
	group, found := b.cache.GroupByID(groupID)
	if !found {
		return commandError("no such group")
	}
	if newName == "" {
		return commandError("can not be empty")
	}
	payload := map[string]string{
		"old": group.AddressingName(),
		"new": newName,
	}
	if err := b.publishJSON(b.topics.ConfigCommand("rename"), payload); err != nil {
		return commandError(err.Error())
	}
	return commandSent()
}

// RemoveGroup deletes a group from the bridge.
func (b *Bridge) RemoveGroup(groupID int) Result {
	group, found := b.cache.GroupByID(groupID)
	if !found {
		return commandError("no such group")
	}
	if err := b.publish(b.topics.ConfigCommand("remove_group"), []byte(group.AddressingName())); err != nil {
		return commandError(err.Error())
	}
	return commandSent()
}

// AddDeviceToGroup adds a known device to a known group.
func (b *Bridge) AddDeviceToGroup(deviceID string, groupID int) Result {
	device, found := b.cache.DeviceByID(deviceID)
	if !found {
		return commandError("no such device")
	}
	group, found := b.cache.GroupByID(groupID)
	if !found {
		return commandError("no such group")
	}
	topic := b.topics.GroupCommand(group.AddressingName(), "add")
	if err := b.publish(topic, []byte(device.AddressingName())); err != nil {
		return commandError(err.Error())
	}
	return commandSent()
}

// RemoveDeviceFromGroup removes a device from a known group. The device
// may already be gone from the cache; in that case the raw identifier is
// sent so stale memberships can still be cleared.
func (b *Bridge) RemoveDeviceFromGroup(deviceID string, groupID int) Result {
	name := deviceID
	if device, found := b.cache.DeviceByID(deviceID); found {
		name = device.AddressingName()
	}
	group, found := b.cache.GroupByID(groupID)
	if !found {
		return commandError("no such group")
	}
	topic := b.topics.GroupCommand(group.AddressingName(), "remove")
	if err := b.publish(topic, []byte(name)); err != nil {
		return commandError(err.Error())
	}
	return commandSent()
}
