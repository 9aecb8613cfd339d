package bridge

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/zigbee-mesh-core/internal/codec"
	"github.com/nerrad567/zigbee-mesh-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/zigbee-mesh-core/internal/render"
)

// Default await bounds, used when Options leaves them zero.
const (
	// defaultRefreshTimeout bounds the device/group list refresh await.
	defaultRefreshTimeout = 10 * time.Second

	// defaultNetworkMapTimeout bounds the network graph await. Walking a
	// large mesh is slow, so this is generous.
	defaultNetworkMapTimeout = 120 * time.Second

	// inboxSize is the dispatch queue depth. Inbound messages beyond this
	// apply backpressure to the MQTT handler goroutines.
	inboxSize = 256
)

// Bridge tracks the live state of the zigbee mesh exposed by a zigbee2mqtt
// bridge process. It subscribes to the full topic hierarchy, demultiplexes
// bridge-control messages from entity telemetry, maintains the entity cache,
// and raises internal events that turn fire-and-forget command publications
// into awaitable operations.
//
// All inbound message handling and all cache mutation happen sequentially on
// one dispatch goroutine; commands and queries run on caller goroutines and
// touch the cache only through its snapshot accessors.
type Bridge struct {
	topics   mqtt.Topics
	qos      byte
	mqtt     MQTTClient
	bus      *Bus
	cache    *Cache
	history  History
	renderer render.Renderer

	refreshTimeout    time.Duration
	networkMapTimeout time.Duration
	renderOpts        render.Options

	// lastMap caches the most recently rendered network map image.
	lastMap []byte
	mapMu   sync.RWMutex

	inbox    chan inboundMessage
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger Logger
}

// inboundMessage is one transport message queued for serial dispatch.
type inboundMessage struct {
	topic   string
	payload []byte
}

// MQTTClient is the transport interface the bridge consumes.
// Satisfied by the infrastructure client via an adapter in main.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// History receives recorded entity telemetry for long-term storage.
// Optional; if nil the bridge runs without telemetry history.
type History interface {
	// WriteTelemetry records the numeric fields of a telemetry payload.
	WriteTelemetry(entity string, payload map[string]any)

	// WritePoint records a custom measurement.
	WritePoint(measurement string, tags map[string]string, fields map[string]interface{})
}

// Logger defines the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options holds configuration for creating a Bridge.
type Options struct {
	// BaseTopic is the zigbee2mqtt base topic (required).
	BaseTopic string

	// QoS is the subscription and publish QoS level.
	QoS byte

	// MQTTClient is the transport (required).
	MQTTClient MQTTClient

	// Renderer renders network map descriptions. Optional; without it
	// RefreshMap fails with render.ErrUnavailable.
	Renderer render.Renderer

	// RenderOptions are the default format/engine for network maps.
	RenderOptions render.Options

	// History receives recorded telemetry. Optional.
	History History

	// Logger is an optional structured logger.
	Logger Logger

	// RefreshTimeout bounds GetDevices awaits. Zero selects the default.
	RefreshTimeout time.Duration

	// NetworkMapTimeout bounds RefreshMap awaits. Zero selects the default.
	NetworkMapTimeout time.Duration
}

// New creates a bridge instance. Call Start to begin operation.
func New(opts Options) (*Bridge, error) {
	if opts.BaseTopic == "" {
		return nil, fmt.Errorf("base topic is required")
	}
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}

	refreshTimeout := opts.RefreshTimeout
	if refreshTimeout <= 0 {
		refreshTimeout = defaultRefreshTimeout
	}
	networkMapTimeout := opts.NetworkMapTimeout
	if networkMapTimeout <= 0 {
		networkMapTimeout = defaultNetworkMapTimeout
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	topics := mqtt.Topics{Base: opts.BaseTopic}

	return &Bridge{
		topics:            topics,
		qos:               opts.QoS,
		mqtt:              opts.MQTTClient,
		bus:               NewBus(),
		cache:             NewCache(topics),
		history:           opts.History,
		renderer:          opts.Renderer,
		renderOpts:        opts.RenderOptions,
		refreshTimeout:    refreshTimeout,
		networkMapTimeout: networkMapTimeout,
		inbox:             make(chan inboundMessage, inboxSize),
		done:              make(chan struct{}),
		logger:            logger,
	}, nil
}

// Start subscribes to the topic hierarchy and starts the dispatch loop.
// It also requests an initial device/group list refresh.
func (b *Bridge) Start() error {
	if err := b.mqtt.Subscribe(b.topics.Wildcard(), b.qos, b.enqueue); err != nil {
		return fmt.Errorf("subscribe to %s: %w", b.topics.Wildcard(), err)
	}

	b.wg.Add(1)
	go b.dispatchLoop()

	b.logger.Info("bridge started", "base_topic", b.topics.Base, "qos", b.qos)

	if err := b.RefreshDevices(); err != nil {
		b.logger.Warn("initial refresh request failed", "error", err)
	}

	return nil
}

// Stop shuts down the dispatch loop. Messages already queued are dropped;
// the transport subscription is left to the MQTT client's own shutdown.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.wg.Wait()
		b.logger.Info("bridge stopped")
	})
}

// Bus exposes the internal event bus for host consumers that want to listen
// for entity or bridge messages.
func (b *Bridge) Bus() *Bus {
	return b.bus
}

// Cache exposes read access to the entity cache.
func (b *Bridge) Cache() *Cache {
	return b.cache
}

// OnConnect is intended to be wired to the MQTT client's connect callback.
// It raises the connect event and requests a list refresh, so the cache
// repopulates after every reconnect.
func (b *Bridge) OnConnect() {
	b.logger.Info("broker connected")
	b.bus.Emit(EventConnect, nil)
	if err := b.RefreshDevices(); err != nil {
		b.logger.Warn("refresh request after connect failed", "error", err)
	}
}

// enqueue is the MQTT message handler: it funnels every inbound message into
// the single dispatch goroutine. Handlers run on paho goroutines; the queue
// hand-off is the only work done there.
func (b *Bridge) enqueue(topic string, payload []byte) error {
	select {
	case b.inbox <- inboundMessage{topic: topic, payload: payload}:
	case <-b.done:
	}
	return nil
}

// dispatchLoop consumes the inbox serially. It is the only goroutine that
// mutates the cache, which is what makes handler logic lock-free.
func (b *Bridge) dispatchLoop() {
	defer b.wg.Done()

	for {
		select {
		case msg := <-b.inbox:
			b.handleMessage(msg.topic, msg.payload)
		case <-b.done:
			return
		}
	}
}

// handleMessage classifies one inbound message as bridge-control or entity
// telemetry and routes it.
func (b *Bridge) handleMessage(topic string, payload []byte) {
	if b.topics.IsBridgeTopic(topic) {
		b.handleBridgeMessage(topic, payload)
		return
	}
	b.handleEntityMessage(topic, payload)
}

// handleBridgeMessage routes messages under <base>/bridge/.
//
// After its specific handling every bridge message also raises the generic
// bridge-message event. This is deliberate: delivery never depends on
// whether a specific-event listener happened to be registered.
func (b *Bridge) handleBridgeMessage(topic string, payload []byte) {
	switch topic {
	case b.topics.BridgeState():
		b.handleBridgeState(topic, payload)
	case b.topics.BridgeConfig():
		b.handleBridgeConfig(payload)
	case b.topics.BridgeLog():
		b.handleBridgeLog(payload)
	case b.topics.NetworkMapGraphviz():
		b.bus.Emit(EventBridgeNetworkGraph, string(payload))
	}

	b.bus.Emit(EventBridgeMessage, BridgeMessageEvent{
		Topic:   topic,
		Payload: string(payload),
	})
}

// handleBridgeState processes the plain-text availability topic.
func (b *Bridge) handleBridgeState(topic string, payload []byte) {
	state := strings.TrimSpace(string(payload))
	online := state == "online"

	if online {
		b.cache.SetBridgeStatus(StatusOnline)
	} else {
		b.cache.SetBridgeStatus(StatusOffline)
		b.logger.Warn("bridge degraded", "state", state)
	}

	b.bus.Emit(EventBridgeState, StateEvent{Topic: topic, Online: online})

	if b.history != nil {
		onlineField := 0
		if online {
			onlineField = 1
		}
		b.history.WritePoint("bridge_state",
			map[string]string{"base_topic": b.topics.Base},
			map[string]interface{}{"online": onlineField})
	}

	// The bridge coming (back) online invalidates whatever we knew about
	// the mesh; request fresh lists.
	if online {
		if err := b.RefreshDevices(); err != nil {
			b.logger.Warn("refresh request after bridge online failed", "error", err)
		}
	}
}

// handleBridgeConfig caches the bridge configuration snapshot.
func (b *Bridge) handleBridgeConfig(payload []byte) {
	obj, ok := codec.TryDecodeObject(payload)
	if !ok {
		b.logger.Warn("undecodable bridge config payload")
		return
	}
	b.cache.SetBridgeConfig(obj)
}

// handleBridgeLog dispatches bridge log events on their type field.
func (b *Bridge) handleBridgeLog(payload []byte) {
	obj, ok := codec.TryDecodeObject(payload)
	if !ok {
		b.logger.Warn("undecodable bridge log payload")
		return
	}

	logType, ok := obj["type"].(string)
	if !ok {
		return
	}

	switch logType {
	case "device_renamed", "device_announced", "device_removed",
		"group_renamed", "group_removed":
		// The entity lists changed; re-request both. The replies arrive
		// asynchronously as devices/groups log events.
		if err := b.RefreshDevices(); err != nil {
			b.logger.Warn("refresh request failed", "type", logType, "error", err)
		}

	case "group_added":
		if name, ok := obj["message"].(string); ok && name != "" {
			b.SetDeviceOptions(name, map[string]any{"retain": true})
		}
		if err := b.RefreshDevices(); err != nil {
			b.logger.Warn("refresh request failed", "type", logType, "error", err)
		}

	case "groups":
		groups := groupsFromPayload(obj["message"])
		b.cache.SetGroups(groups)
		b.logger.Info("group list updated", "count", len(groups))
		b.bus.Emit(EventBridgeGroups, groups)

	case "devices":
		devices := devicesFromPayload(obj["message"])
		b.cache.SetDevices(devices)
		b.logger.Info("device list updated", "count", len(devices))
		b.bus.Emit(EventBridgeDevices, devices)

	case "pairing":
		if obj["message"] != "interview_successful" {
			return
		}
		meta, ok := obj["meta"].(map[string]any)
		if !ok {
			return
		}
		if name, ok := meta["friendly_name"].(string); ok && name != "" {
			// Newly interviewed devices get retained state so their last
			// payload survives broker restarts.
			b.SetDeviceOptions(name, map[string]any{"retain": true})
		}
	}
}

// handleEntityMessage processes per-entity telemetry. Messages whose topic
// ends in the literal "set" segment are commands echoed back by the
// transport and are suppressed entirely.
func (b *Bridge) handleEntityMessage(topic string, payload []byte) {
	value, ok := codec.TryDecode(payload)
	if !ok {
		b.logger.Warn("dropping undecodable telemetry", "topic", topic)
		return
	}

	if b.topics.IsSetTopic(topic) {
		return
	}

	b.cache.RecordTelemetry(topic, value)

	var devicePtr *Device
	var groupPtr *Group
	if device, found := b.cache.DeviceByTopic(topic); found {
		devicePtr = &device
	}
	if group, found := b.cache.GroupByTopic(topic); found {
		groupPtr = &group
	}

	if b.history != nil {
		if obj, isObject := value.(map[string]any); isObject {
			entity := strings.TrimPrefix(topic, b.topics.Base+"/")
			b.history.WriteTelemetry(entity, obj)
		}
	}

	b.bus.Emit(EventEntityMessage, EntityMessageEvent{
		Topic:   topic,
		Payload: value,
		Device:  devicePtr,
		Group:   groupPtr,
	})
}
