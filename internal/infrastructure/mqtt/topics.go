package mqtt

import (
	"fmt"
	"strings"
)

// StatusPrefix is the topic prefix for the core's own status messages.
// This deliberately lives outside the zigbee2mqtt base topic so the core's
// availability messages are never mistaken for device telemetry.
const StatusPrefix = "zigbeecore"

// StatusTopic returns the core availability topic used for LWT and
// online/offline status messages.
//
// Example: zigbeecore/status
func StatusTopic() string {
	return StatusPrefix + "/status"
}

// Topics provides builders for the zigbee2mqtt topic hierarchy under a
// configured base topic. Using these helpers keeps the wire contract in one
// place; the strings are bit-exact per the zigbee2mqtt bridge protocol.
//
//	topics := mqtt.Topics{Base: "zigbee2mqtt"}
//	topics.ConfigCommand("rename") // "zigbee2mqtt/bridge/config/rename"
type Topics struct {
	Base string
}

// Wildcard returns the pattern matching every topic under the base topic.
//
// Pattern: <base>/#
func (t Topics) Wildcard() string {
	return t.Base + "/#"
}

// BridgePrefix returns the prefix shared by all bridge-control topics.
//
// Example: zigbee2mqtt/bridge/
func (t Topics) BridgePrefix() string {
	return t.Base + "/bridge/"
}

// BridgeState returns the bridge availability topic.
//
// Example: zigbee2mqtt/bridge/state
func (t Topics) BridgeState() string {
	return t.Base + "/bridge/state"
}

// BridgeConfig returns the bridge configuration snapshot topic.
//
// Example: zigbee2mqtt/bridge/config
func (t Topics) BridgeConfig() string {
	return t.Base + "/bridge/config"
}

// BridgeLog returns the bridge log/event topic.
//
// Example: zigbee2mqtt/bridge/log
func (t Topics) BridgeLog() string {
	return t.Base + "/bridge/log"
}

// NetworkMapRequest returns the topic a network map request is published to.
//
// Example: zigbee2mqtt/bridge/networkmap
func (t Topics) NetworkMapRequest() string {
	return t.Base + "/bridge/networkmap"
}

// NetworkMapGraphviz returns the topic the bridge publishes the graphviz
// network description on.
//
// Example: zigbee2mqtt/bridge/networkmap/graphviz
func (t Topics) NetworkMapGraphviz() string {
	return t.Base + "/bridge/networkmap/graphviz"
}

// ConfigCommand returns a bridge configuration command topic.
//
// Known sub-paths: groups, devices, log_level, permit_join, rename,
// force_remove, device_options, add_group, remove_group.
//
// Example: zigbee2mqtt/bridge/config/rename
func (t Topics) ConfigCommand(sub string) string {
	return fmt.Sprintf("%s/bridge/config/%s", t.Base, sub)
}

// GroupCommand returns a group membership command topic.
// action is "add" or "remove".
//
// Example: zigbee2mqtt/bridge/group/living-room/add
func (t Topics) GroupCommand(groupName, action string) string {
	return fmt.Sprintf("%s/bridge/group/%s/%s", t.Base, groupName, action)
}

// Entity returns the telemetry topic for an entity addressing name
// (friendly name or hardware identifier).
//
// Example: zigbee2mqtt/kitchen-lamp
func (t Topics) Entity(name string) string {
	return t.Base + "/" + name
}

// IsBridgeTopic reports whether topic is a bridge-control topic
// (anything under <base>/bridge/).
func (t Topics) IsBridgeTopic(topic string) bool {
	return strings.HasPrefix(topic, t.BridgePrefix())
}

// IsSetTopic reports whether topic is a command echo: an entity topic whose
// segment after the entity name is the literal "set". These are commands
// reflected back by the broker, not state reports.
func (t Topics) IsSetTopic(topic string) bool {
	rest, ok := strings.CutPrefix(topic, t.Base+"/")
	if !ok {
		return false
	}
	parts := strings.Split(rest, "/")
	return len(parts) >= 2 && parts[len(parts)-1] == "set"
}
