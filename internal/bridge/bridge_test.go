package bridge

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"
)

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu            sync.Mutex
	published     []mockPublish
	subscriptions []mockSubscription
	connected     bool
	handlers      map[string]func(topic string, payload []byte) error
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

type mockSubscription struct {
	Topic string
	QoS   byte
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		connected: true,
		handlers:  make(map[string]func(topic string, payload []byte) error),
	}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, mockPublish{
		Topic:    topic,
		Payload:  payload,
		QoS:      qos,
		Retained: retained,
	})
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = append(m.subscriptions, mockSubscription{Topic: topic, QoS: qos})
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mockPublish, len(m.published))
	copy(out, m.published)
	return out
}

func (m *MockMQTTClient) GetSubscriptions() []mockSubscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscriptions
}

func (m *MockMQTTClient) ClearPublished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = nil
}

// SimulateMessage simulates receiving an MQTT message. The bridge holds a
// single wildcard subscription, so every handler receives every message.
func (m *MockMQTTClient) SimulateMessage(topic string, payload []byte) {
	m.mu.Lock()
	handlers := make([]func(string, []byte) error, 0, len(m.handlers))
	for _, h := range m.handlers {
		handlers = append(handlers, h)
	}
	m.mu.Unlock()
	for _, h := range handlers {
		h(topic, payload) //nolint:errcheck
	}
}

// newTestBridge starts a bridge wired to a mock client with the initial
// refresh publications cleared, so tests count only their own traffic.
func newTestBridge(t *testing.T) (*Bridge, *MockMQTTClient) {
	t.Helper()

	mock := NewMockMQTTClient()
	b, err := New(Options{
		BaseTopic:         "zigbee2mqtt",
		QoS:               2,
		MQTTClient:        mock,
		RefreshTimeout:    time.Second,
		NetworkMapTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(b.Stop)
	mock.ClearPublished()
	return b, mock
}

// awaitEvent waits for one emission of the named event.
func awaitEvent(t *testing.T, b *Bridge, name string) any {
	t.Helper()
	ctx := context.Background()
	value, err := b.Bus().Await(ctx, name, 2*time.Second)
	if err != nil {
		t.Fatalf("awaiting %s: %v", name, err)
	}
	return value
}

// barrier flushes the dispatch queue by sending a bridge-state message and
// waiting for its generic event. Dispatch is serial, so once the barrier
// message has been handled every earlier message has been too.
func barrier(t *testing.T, b *Bridge, mock *MockMQTTClient, online bool) {
	t.Helper()
	pending := b.Bus().Expect(EventBridgeMessage)
	state := "offline"
	if online {
		state = "online"
	}
	mock.SimulateMessage("zigbee2mqtt/bridge/state", []byte(state))
	if _, err := pending.Wait(context.Background(), 2*time.Second); err != nil {
		t.Fatalf("barrier: %v", err)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Options{MQTTClient: NewMockMQTTClient()}); err == nil {
		t.Error("expected error for missing base topic")
	}
	if _, err := New(Options{BaseTopic: "zigbee2mqtt"}); err == nil {
		t.Error("expected error for missing MQTT client")
	}
}

func TestStartSubscribesWildcardAndRequestsRefresh(t *testing.T) {
	mock := NewMockMQTTClient()
	b, err := New(Options{BaseTopic: "zigbee2mqtt", QoS: 2, MQTTClient: mock})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer b.Stop()

	subs := mock.GetSubscriptions()
	if len(subs) != 1 || subs[0].Topic != "zigbee2mqtt/#" || subs[0].QoS != 2 {
		t.Fatalf("unexpected subscriptions: %+v", subs)
	}

	published := mock.GetPublished()
	if len(published) != 2 {
		t.Fatalf("expected 2 initial refresh publishes, got %d", len(published))
	}
	if published[0].Topic != "zigbee2mqtt/bridge/config/groups" {
		t.Errorf("first refresh topic = %s", published[0].Topic)
	}
	if published[1].Topic != "zigbee2mqtt/bridge/config/devices" {
		t.Errorf("second refresh topic = %s", published[1].Topic)
	}
}

func TestBridgeStateOnline(t *testing.T) {
	b, mock := newTestBridge(t)

	pending := b.Bus().Expect(EventBridgeState, EventBridgeMessage)
	mock.SimulateMessage("zigbee2mqtt/bridge/state", []byte("online"))
	values, err := pending.Wait(context.Background(), 2*time.Second)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}

	event, ok := values[0].(StateEvent)
	if !ok || !event.Online {
		t.Fatalf("unexpected state event: %#v", values[0])
	}
	if got := b.Cache().BridgeStatus(); got != StatusOnline {
		t.Errorf("bridge status = %s, want online", got)
	}

	// Coming online triggers a list refresh.
	published := mock.GetPublished()
	if len(published) != 2 {
		t.Fatalf("expected 2 refresh publishes after online, got %d", len(published))
	}
}

func TestBridgeStateOffline(t *testing.T) {
	b, mock := newTestBridge(t)

	pending := b.Bus().Expect(EventBridgeState)
	mock.SimulateMessage("zigbee2mqtt/bridge/state", []byte("offline"))
	values, err := pending.Wait(context.Background(), 2*time.Second)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}

	if event := values[0].(StateEvent); event.Online {
		t.Error("expected offline state event")
	}
	if got := b.Cache().BridgeStatus(); got != StatusOffline {
		t.Errorf("bridge status = %s, want offline", got)
	}
	if published := mock.GetPublished(); len(published) != 0 {
		t.Errorf("offline must not trigger a refresh, got %d publishes", len(published))
	}
}

func TestBridgeConfigCached(t *testing.T) {
	b, mock := newTestBridge(t)

	payload := []byte(`{"version":"1.18.1","log_level":"info","permit_join":false}`)
	pending := b.Bus().Expect(EventBridgeMessage)
	mock.SimulateMessage("zigbee2mqtt/bridge/config", payload)
	if _, err := pending.Wait(context.Background(), 2*time.Second); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	cfg := b.Cache().BridgeConfig()
	if cfg["version"] != "1.18.1" {
		t.Errorf("config version = %v", cfg["version"])
	}
}

func TestBridgeLogDeviceListUpdatesCache(t *testing.T) {
	b, mock := newTestBridge(t)

	payload := []byte(`{"type":"devices","message":[` +
		`{"ieeeAddr":"0x1","friendly_name":"lamp","model":"LED1545G12"},` +
		`{"ieeeAddr":"0x2"}]}`)

	pending := b.Bus().Expect(EventBridgeDevices)
	mock.SimulateMessage("zigbee2mqtt/bridge/log", payload)
	values, err := pending.Wait(context.Background(), 2*time.Second)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}

	devices, ok := values[0].([]Device)
	if !ok || len(devices) != 2 {
		t.Fatalf("unexpected devices event: %#v", values[0])
	}
	if devices[0].FriendlyName != "lamp" || devices[0].IeeeAddr != "0x1" {
		t.Errorf("unexpected first device: %+v", devices[0])
	}

	cached, found := b.Cache().DeviceByID("0x1")
	if !found {
		t.Fatal("device 0x1 not in cache")
	}
	if cached.Meta["model"] != "LED1545G12" {
		t.Errorf("device meta not retained: %+v", cached.Meta)
	}
}

func TestBridgeLogGroupListUpdatesCache(t *testing.T) {
	b, mock := newTestBridge(t)

	payload := []byte(`{"type":"groups","message":[{"ID":5,"friendly_name":"hallway"}]}`)
	pending := b.Bus().Expect(EventBridgeGroups)
	mock.SimulateMessage("zigbee2mqtt/bridge/log", payload)
	if _, err := pending.Wait(context.Background(), 2*time.Second); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	group, found := b.Cache().GroupByID(5)
	if !found {
		t.Fatal("group 5 not in cache")
	}
	if group.FriendlyName != "hallway" {
		t.Errorf("group name = %s", group.FriendlyName)
	}
}

func TestBridgeLogRefreshTypesTriggerListRequest(t *testing.T) {
	refreshTypes := []string{
		"device_renamed", "device_announced", "device_removed",
		"group_renamed", "group_removed",
	}

	for _, logType := range refreshTypes {
		t.Run(logType, func(t *testing.T) {
			b, mock := newTestBridge(t)

			pending := b.Bus().Expect(EventBridgeMessage)
			mock.SimulateMessage("zigbee2mqtt/bridge/log",
				[]byte(`{"type":"`+logType+`","message":"whatever"}`))
			if _, err := pending.Wait(context.Background(), 2*time.Second); err != nil {
				t.Fatalf("Wait: %v", err)
			}

			published := mock.GetPublished()
			if len(published) != 2 {
				t.Fatalf("expected exactly 2 publishes, got %d", len(published))
			}
			if published[0].Topic != "zigbee2mqtt/bridge/config/groups" ||
				published[1].Topic != "zigbee2mqtt/bridge/config/devices" {
				t.Errorf("unexpected refresh topics: %+v", published)
			}

			// Bridge log traffic must never land in the telemetry store.
			if _, found := b.Cache().Telemetry("zigbee2mqtt/bridge/log"); found {
				t.Error("bridge log recorded as telemetry")
			}
		})
	}
}

func TestBridgeLogGroupAddedSetsRetain(t *testing.T) {
	b, mock := newTestBridge(t)

	pending := b.Bus().Expect(EventBridgeMessage)
	mock.SimulateMessage("zigbee2mqtt/bridge/log",
		[]byte(`{"type":"group_added","message":"kitchen"}`))
	if _, err := pending.Wait(context.Background(), 2*time.Second); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	published := mock.GetPublished()
	if len(published) != 3 {
		t.Fatalf("expected device_options + 2 refresh publishes, got %d", len(published))
	}
	if published[0].Topic != "zigbee2mqtt/bridge/config/device_options" {
		t.Fatalf("first publish topic = %s", published[0].Topic)
	}

	var opts map[string]any
	if err := json.Unmarshal(published[0].Payload, &opts); err != nil {
		t.Fatalf("decode device_options payload: %v", err)
	}
	if opts["friendly_name"] != "kitchen" {
		t.Errorf("friendly_name = %v", opts["friendly_name"])
	}
	if inner, ok := opts["options"].(map[string]any); !ok || inner["retain"] != true {
		t.Errorf("options = %v", opts["options"])
	}
}

func TestBridgeLogPairingSuccessSetsRetain(t *testing.T) {
	b, mock := newTestBridge(t)

	pending := b.Bus().Expect(EventBridgeMessage)
	mock.SimulateMessage("zigbee2mqtt/bridge/log",
		[]byte(`{"type":"pairing","message":"interview_successful",`+
			`"meta":{"friendly_name":"0x00158d0001e1a2b3"}}`))
	if _, err := pending.Wait(context.Background(), 2*time.Second); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	published := mock.GetPublished()
	if len(published) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(published))
	}
	if published[0].Topic != "zigbee2mqtt/bridge/config/device_options" {
		t.Errorf("publish topic = %s", published[0].Topic)
	}
	if !strings.Contains(string(published[0].Payload), "0x00158d0001e1a2b3") {
		t.Errorf("payload missing device name: %s", published[0].Payload)
	}
}

func TestBridgeLogPairingInProgressIgnored(t *testing.T) {
	b, mock := newTestBridge(t)

	pending := b.Bus().Expect(EventBridgeMessage)
	mock.SimulateMessage("zigbee2mqtt/bridge/log",
		[]byte(`{"type":"pairing","message":"interview_started"}`))
	if _, err := pending.Wait(context.Background(), 2*time.Second); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	if published := mock.GetPublished(); len(published) != 0 {
		t.Errorf("expected no publishes, got %d", len(published))
	}
}

func TestEveryBridgeMessageRaisesGenericEvent(t *testing.T) {
	b, mock := newTestBridge(t)

	sub := b.Bus().Subscribe(EventBridgeMessage, 8)
	defer sub.Close()

	topics := []string{
		"zigbee2mqtt/bridge/state",
		"zigbee2mqtt/bridge/config",
		"zigbee2mqtt/bridge/log",
		"zigbee2mqtt/bridge/unknown_subtopic",
	}
	mock.SimulateMessage(topics[0], []byte("offline"))
	mock.SimulateMessage(topics[1], []byte(`{"log_level":"info"}`))
	mock.SimulateMessage(topics[2], []byte(`{"type":"zigbee_publish_error"}`))
	mock.SimulateMessage(topics[3], []byte("anything"))

	for _, want := range topics {
		select {
		case event := <-sub.C:
			msg := event.Value.(BridgeMessageEvent)
			if msg.Topic != want {
				t.Errorf("generic event topic = %s, want %s", msg.Topic, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("no generic event for %s", want)
		}
	}
}

func TestEntityTelemetryRecordedAndEmitted(t *testing.T) {
	b, mock := newTestBridge(t)

	// Known device so the event carries a resolved entity.
	seedDevices(t, b, mock, `[{"ieeeAddr":"0x1","friendly_name":"lamp"}]`)

	pending := b.Bus().Expect(EventEntityMessage)
	mock.SimulateMessage("zigbee2mqtt/lamp", []byte(`{"state":"ON","brightness":127}`))
	values, err := pending.Wait(context.Background(), 2*time.Second)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}

	event := values[0].(EntityMessageEvent)
	if event.Device == nil || event.Device.FriendlyName != "lamp" {
		t.Fatalf("event device not resolved: %#v", event.Device)
	}
	payload, ok := event.Payload.(map[string]any)
	if !ok || payload["state"] != "ON" {
		t.Errorf("unexpected event payload: %#v", event.Payload)
	}

	stored, found := b.Cache().Telemetry("zigbee2mqtt/lamp")
	if !found {
		t.Fatal("telemetry not recorded")
	}
	if stored.(map[string]any)["brightness"] != float64(127) {
		t.Errorf("stored brightness = %v", stored.(map[string]any)["brightness"])
	}
}

func TestEntityTelemetryUnknownEntityStillEmitted(t *testing.T) {
	b, mock := newTestBridge(t)

	pending := b.Bus().Expect(EventEntityMessage)
	mock.SimulateMessage("zigbee2mqtt/mystery", []byte(`{"state":"ON"}`))
	values, err := pending.Wait(context.Background(), 2*time.Second)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}

	event := values[0].(EntityMessageEvent)
	if event.Device != nil || event.Group != nil {
		t.Errorf("unknown entity resolved to %#v / %#v", event.Device, event.Group)
	}
}

func TestSetTopicSuppressed(t *testing.T) {
	b, mock := newTestBridge(t)

	sub := b.Bus().Subscribe(EventEntityMessage, 4)
	defer sub.Close()

	mock.SimulateMessage("zigbee2mqtt/lamp/set", []byte(`{"state":"ON"}`))
	barrier(t, b, mock, false)

	select {
	case event := <-sub.C:
		t.Fatalf("command echo emitted as telemetry: %#v", event.Value)
	default:
	}
	if _, found := b.Cache().Telemetry("zigbee2mqtt/lamp/set"); found {
		t.Error("command echo recorded as telemetry")
	}
}

func TestEntityNamedSetIsNotSuppressed(t *testing.T) {
	b, mock := newTestBridge(t)

	pending := b.Bus().Expect(EventEntityMessage)
	mock.SimulateMessage("zigbee2mqtt/set", []byte(`{"state":"ON"}`))
	if _, err := pending.Wait(context.Background(), 2*time.Second); err != nil {
		t.Fatalf("entity literally named set was suppressed: %v", err)
	}
}

func TestUndecodableTelemetryDropped(t *testing.T) {
	b, mock := newTestBridge(t)

	sub := b.Bus().Subscribe(EventEntityMessage, 4)
	defer sub.Close()

	mock.SimulateMessage("zigbee2mqtt/lamp", []byte("\xff\xfe not json"))
	barrier(t, b, mock, false)

	select {
	case event := <-sub.C:
		t.Fatalf("undecodable payload emitted: %#v", event.Value)
	default:
	}
	if _, found := b.Cache().Telemetry("zigbee2mqtt/lamp"); found {
		t.Error("undecodable payload recorded")
	}
}

func TestBareTextTelemetryDropped(t *testing.T) {
	// Bare text is not structured; it gets the same warn-and-drop
	// treatment as binary junk. Only decodable JSON reaches the cache.
	b, mock := newTestBridge(t)

	sub := b.Bus().Subscribe(EventEntityMessage, 4)
	defer sub.Close()

	mock.SimulateMessage("zigbee2mqtt/doorbell", []byte("pressed"))
	barrier(t, b, mock, false)

	select {
	case event := <-sub.C:
		t.Fatalf("bare-text payload emitted: %#v", event.Value)
	default:
	}
	if _, found := b.Cache().Telemetry("zigbee2mqtt/doorbell"); found {
		t.Error("bare-text payload recorded")
	}
}

func TestJSONScalarTelemetryAccepted(t *testing.T) {
	b, mock := newTestBridge(t)

	pending := b.Bus().Expect(EventEntityMessage)
	mock.SimulateMessage("zigbee2mqtt/doorbell", []byte(`"pressed"`))
	values, err := pending.Wait(context.Background(), 2*time.Second)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if event := values[0].(EntityMessageEvent); event.Payload != "pressed" {
		t.Errorf("payload = %#v", event.Payload)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	b, _ := newTestBridge(t)
	b.Stop()
	b.Stop()
}

func TestTelemetryForwardedToHistory(t *testing.T) {
	mock := NewMockMQTTClient()
	history := &mockHistory{}
	b, err := New(Options{
		BaseTopic:  "zigbee2mqtt",
		MQTTClient: mock,
		History:    history,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer b.Stop()

	pending := b.Bus().Expect(EventEntityMessage)
	mock.SimulateMessage("zigbee2mqtt/sensor", []byte(`{"temperature":21.5}`))
	if _, err := pending.Wait(context.Background(), 2*time.Second); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	writes := history.telemetryWrites()
	if len(writes) != 1 {
		t.Fatalf("expected 1 history write, got %d", len(writes))
	}
	if writes[0].entity != "sensor" {
		t.Errorf("history entity = %s", writes[0].entity)
	}
	if writes[0].payload["temperature"] != 21.5 {
		t.Errorf("history payload = %v", writes[0].payload)
	}
}

// seedDevices pushes a devices log message and waits for the cache update.
func seedDevices(t *testing.T, b *Bridge, mock *MockMQTTClient, records string) {
	t.Helper()
	pending := b.Bus().Expect(EventBridgeDevices)
	mock.SimulateMessage("zigbee2mqtt/bridge/log",
		[]byte(`{"type":"devices","message":`+records+`}`))
	if _, err := pending.Wait(context.Background(), 2*time.Second); err != nil {
		t.Fatalf("seeding devices: %v", err)
	}
	mock.ClearPublished()
}

// seedGroups pushes a groups log message and waits for the cache update.
func seedGroups(t *testing.T, b *Bridge, mock *MockMQTTClient, records string) {
	t.Helper()
	pending := b.Bus().Expect(EventBridgeGroups)
	mock.SimulateMessage("zigbee2mqtt/bridge/log",
		[]byte(`{"type":"groups","message":`+records+`}`))
	if _, err := pending.Wait(context.Background(), 2*time.Second); err != nil {
		t.Fatalf("seeding groups: %v", err)
	}
	mock.ClearPublished()
}

// mockHistory implements History for testing.
type mockHistory struct {
	mu     sync.Mutex
	writes []telemetryWrite
	points []pointWrite
}

type telemetryWrite struct {
	entity  string
	payload map[string]any
}

type pointWrite struct {
	measurement string
	tags        map[string]string
	fields      map[string]interface{}
}

func (h *mockHistory) WriteTelemetry(entity string, payload map[string]any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.writes = append(h.writes, telemetryWrite{entity: entity, payload: payload})
}

func (h *mockHistory) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.points = append(h.points, pointWrite{measurement: measurement, tags: tags, fields: fields})
}

func (h *mockHistory) telemetryWrites() []telemetryWrite {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]telemetryWrite, len(h.writes))
	copy(out, h.writes)
	return out
}
