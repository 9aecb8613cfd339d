// Package bridge maintains a live model of a zigbee2mqtt bridge and the
// mesh behind it. It subscribes to the bridge's MQTT topic hierarchy,
// separates bridge-control traffic from entity telemetry, keeps an
// in-memory cache of devices, groups and their last reported state, and
// exposes command operations that publish to the bridge's control topics.
//
// Commands that the bridge answers asynchronously (device list refreshes,
// network map generation) are correlated through an internal event bus:
// the waiter registers before the request is published, then awaits the
// matching reply with a bounded timeout.
package bridge
