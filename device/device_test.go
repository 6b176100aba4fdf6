package device_test

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxrs-io/oxrs-go/device"
	"github.com/oxrs-io/oxrs-go/device/mqtt"
)

type fakeNetwork struct {
	connected bool
	recorder  *[]string
}

func (n *fakeNetwork) Connect(ctx context.Context) (device.Connection, error) {
	if n.recorder != nil {
		*n.recorder = append(*n.recorder, "network.connect")
	}
	n.connected = true
	return device.Connection{
		IP:  net.IPv4(192, 168, 1, 57),
		MAC: net.HardwareAddr{0xDE, 0xAD, 0xBE, 0xEF, 0xFE, 0xED},
	}, nil
}

func (n *fakeNetwork) IsConnected() bool { return n.connected }

type fakeTransport struct {
	clientID       string
	onConnected    func()
	onDisconnected func(mqtt.DisconnectReason)
	onConfig       mqtt.MessageHandler
	onCommand      mqtt.MessageHandler
	statuses       []map[string]interface{}
	telemetry      []map[string]interface{}
	adoptions      []map[string]interface{}
	loops          int
	recorder       *[]string
}

func (f *fakeTransport) SetClientID(clientID string) {
	if f.recorder != nil {
		*f.recorder = append(*f.recorder, "transport.clientID")
	}
	f.clientID = clientID
}

func (f *fakeTransport) OnConnected(callback func()) { f.onConnected = callback }
func (f *fakeTransport) OnDisconnected(callback func(mqtt.DisconnectReason)) {
	f.onDisconnected = callback
}

func (f *fakeTransport) OnConfig(handler mqtt.MessageHandler) {
	if f.recorder != nil {
		*f.recorder = append(*f.recorder, "transport.onConfig")
	}
	f.onConfig = handler
}

func (f *fakeTransport) OnCommand(handler mqtt.MessageHandler) { f.onCommand = handler }

func (f *fakeTransport) PublishStatus(doc map[string]interface{}) bool {
	f.statuses = append(f.statuses, doc)
	return true
}

func (f *fakeTransport) PublishTelemetry(doc map[string]interface{}) bool {
	f.telemetry = append(f.telemetry, doc)
	return true
}

func (f *fakeTransport) PublishAdopt(doc map[string]interface{}) bool {
	f.adoptions = append(f.adoptions, doc)
	return true
}

func (f *fakeTransport) PublishLog(payload []byte) bool { return true }
func (f *fakeTransport) Loop()                          { f.loops++ }

type fakeAPI struct {
	onAdopt   func() map[string]interface{}
	onRestart func()
	began     bool
	loops     int
	recorder  *[]string
}

func (f *fakeAPI) OnAdopt(callback func() map[string]interface{}) { f.onAdopt = callback }
func (f *fakeAPI) OnRestart(callback func())                      { f.onRestart = callback }

func (f *fakeAPI) Begin() error {
	if f.recorder != nil {
		*f.recorder = append(*f.recorder, "api.begin")
	}
	f.began = true
	return nil
}

func (f *fakeAPI) Loop() { f.loops++ }

type fakeMonitor struct{}

func (fakeMonitor) Stats() device.SystemStats {
	return device.SystemStats{
		HeapUsedBytes:        1024,
		HeapFreeBytes:        2048,
		HeapMaxAllocBytes:    4096,
		FlashChipSizeBytes:   4194304,
		FileSystemUsedBytes:  100,
		FileSystemTotalBytes: 1000,
	}
}

type harness struct {
	device    *device.Device
	network   *fakeNetwork
	transport *fakeTransport
	api       *fakeAPI
	restarted *bool
	recorder  *[]string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	recorder := &[]string{}
	restarted := false
	h := &harness{
		network:   &fakeNetwork{recorder: recorder},
		transport: &fakeTransport{recorder: recorder},
		api:       &fakeAPI{recorder: recorder},
		restarted: &restarted,
		recorder:  recorder,
	}
	h.device = device.New(&device.Builder{
		Firmware: device.Firmware{
			Name:      "Generic Device Core",
			ShortName: "GDC",
			Maker:     "OXRS",
			Version:   "1.2.3",
			GitHubURL: "https://github.com/oxrs-io/oxrs-go",
		},
		Transport:     h.transport,
		API:           h.api,
		Network:       h.network,
		SystemMonitor: fakeMonitor{},
		Restart:       func() { restarted = true },
	})
	return h
}

func (h *harness) begin(t *testing.T, onConfig, onCommand device.Handler) {
	t.Helper()
	require.NoError(t, h.device.Begin(context.Background(), onConfig, onCommand))
}

func TestBeginOrdering(t *testing.T) {
	h := newHarness(t)
	h.begin(t, nil, nil)

	// network first, then the default client id, then the transport
	// callbacks, and the API only after all of that
	assert.Equal(t,
		[]string{"network.connect", "transport.clientID", "transport.onConfig", "api.begin"},
		*h.recorder)

	// client id is the low 3 MAC bytes as lowercase hex
	assert.Equal(t, "effeed", h.transport.clientID)

	require.NotNil(t, h.transport.onConnected)
	require.NotNil(t, h.transport.onDisconnected)
	require.NotNil(t, h.transport.onConfig)
	require.NotNil(t, h.transport.onCommand)
	require.NotNil(t, h.api.onAdopt)
	require.NotNil(t, h.api.onRestart)
	assert.True(t, h.api.began)
}

func TestAdoptionReportSections(t *testing.T) {
	h := newHarness(t)
	h.begin(t, nil, nil)

	report := h.device.Adoption()
	require.Len(t, report, 5)
	for _, section := range []string{"firmware", "system", "network", "configSchema", "commandSchema"} {
		assert.Contains(t, report, section)
	}

	firmware := report["firmware"].(map[string]interface{})
	assert.Equal(t, "Generic Device Core", firmware["name"])
	assert.Equal(t, "GDC", firmware["shortName"])
	assert.Equal(t, "OXRS", firmware["maker"])
	assert.Equal(t, "1.2.3", firmware["version"])
	assert.Equal(t, "https://github.com/oxrs-io/oxrs-go", firmware["githubUrl"])

	system := report["system"].(map[string]interface{})
	assert.Equal(t, uint64(1024), system["heapUsedBytes"])
	assert.Equal(t, uint64(1000), system["fileSystemTotalBytes"])

	network := report["network"].(map[string]interface{})
	assert.Equal(t, "wifi", network["mode"])
	assert.Equal(t, "192.168.1.57", network["ip"])
	assert.Equal(t, "DE:AD:BE:EF:FE:ED", network["mac"])
}

func TestAdoptionReportSchemas(t *testing.T) {
	h := newHarness(t)
	h.device.SetConfigSchema(map[string]interface{}{
		"brightness": map[string]interface{}{"title": "Brightness", "type": "integer"},
	})
	h.begin(t, nil, nil)

	report := h.device.Adoption()

	configSchema := report["configSchema"].(map[string]interface{})
	assert.Equal(t, "GDC", configSchema["title"])
	assert.Equal(t, "object", configSchema["type"])
	properties := configSchema["properties"].(map[string]interface{})
	require.Len(t, properties, 1)
	assert.Equal(t,
		map[string]interface{}{"title": "Brightness", "type": "integer"},
		properties["brightness"])

	commandSchema := report["commandSchema"].(map[string]interface{})
	commandProperties := commandSchema["properties"].(map[string]interface{})
	require.Len(t, commandProperties, 1)
	assert.Equal(t,
		map[string]interface{}{"title": "Restart", "type": "boolean"},
		commandProperties["restart"])
}

func TestAdoptionReportWithoutSchemas(t *testing.T) {
	h := newHarness(t)
	h.begin(t, nil, nil)

	report := h.device.Adoption()
	properties := report["configSchema"].(map[string]interface{})["properties"].(map[string]interface{})
	assert.Empty(t, properties)

	// the reserved restart command is present even without a fragment
	commandProperties := report["commandSchema"].(map[string]interface{})["properties"].(map[string]interface{})
	assert.Contains(t, commandProperties, "restart")
}

func TestFirmwareCannotRemoveRestart(t *testing.T) {
	h := newHarness(t)
	h.device.SetCommandSchema(map[string]interface{}{
		"restart": map[string]interface{}{"title": "Mine now", "type": "string"},
		"blink":   map[string]interface{}{"title": "Blink", "type": "boolean"},
	})
	h.begin(t, nil, nil)

	properties := h.device.Adoption()["commandSchema"].(map[string]interface{})["properties"].(map[string]interface{})
	assert.Equal(t,
		map[string]interface{}{"title": "Restart", "type": "boolean"},
		properties["restart"])
	assert.Contains(t, properties, "blink")
}

func TestAdoptionDoesNotMutateRegistry(t *testing.T) {
	h := newHarness(t)
	h.device.SetCommandSchema(map[string]interface{}{
		"blink": map[string]interface{}{"title": "Blink", "type": "boolean"},
	})
	h.begin(t, nil, nil)

	first := h.device.Adoption()
	first["commandSchema"].(map[string]interface{})["properties"].(map[string]interface{})["blink"] = "mutated"

	second := h.device.Adoption()
	properties := second["commandSchema"].(map[string]interface{})["properties"].(map[string]interface{})
	assert.Equal(t,
		map[string]interface{}{"title": "Blink", "type": "boolean"},
		properties["blink"])
}

func TestDispatchCommandRestart(t *testing.T) {
	h := newHarness(t)
	var received map[string]interface{}
	h.begin(t, nil, func(doc map[string]interface{}) { received = doc })

	// restart triggers the restarter and still forwards the document
	h.transport.onCommand(map[string]interface{}{"restart": true})
	assert.True(t, *h.restarted)
	require.NotNil(t, received)
	assert.Equal(t, true, received["restart"])

	// restart false forwards only
	*h.restarted = false
	h.transport.onCommand(map[string]interface{}{"restart": false})
	assert.False(t, *h.restarted)
	assert.Equal(t, false, received["restart"])
}

func TestDispatchCommandWithoutHandler(t *testing.T) {
	h := newHarness(t)
	h.begin(t, nil, nil)

	// silent no-op, the reserved key is still acted upon
	h.transport.onCommand(map[string]interface{}{"restart": true})
	assert.True(t, *h.restarted)
}

func TestDispatchConfigForwardsUnchanged(t *testing.T) {
	h := newHarness(t)
	h.device.SetConfigSchema(map[string]interface{}{
		"brightness": map[string]interface{}{"title": "Brightness", "type": "integer"},
	})
	var received map[string]interface{}
	h.begin(t, func(doc map[string]interface{}) { received = doc }, nil)

	doc := map[string]interface{}{"brightness": float64(50), "restart": true}
	h.transport.onConfig(doc)
	assert.Equal(t, doc, received)

	// a document that fails schema validation is still forwarded
	h.transport.onConfig(map[string]interface{}{"brightness": "very"})
	assert.Equal(t, "very", received["brightness"])
	assert.False(t, *h.restarted)
}

func TestConnectedPublishesAdoption(t *testing.T) {
	h := newHarness(t)
	h.begin(t, nil, nil)

	require.NotNil(t, h.transport.onConnected)
	h.transport.onConnected()
	require.Len(t, h.transport.adoptions, 1)
	assert.Contains(t, h.transport.adoptions[0], "commandSchema")
}

func TestPublishRequiresNetwork(t *testing.T) {
	h := newHarness(t)
	h.begin(t, nil, nil)

	h.network.connected = false
	assert.False(t, h.device.PublishStatus(map[string]interface{}{"a": 1}))
	assert.False(t, h.device.PublishTelemetry(map[string]interface{}{"a": 1}))
	assert.Empty(t, h.transport.statuses)
	assert.Empty(t, h.transport.telemetry)

	h.network.connected = true
	assert.True(t, h.device.PublishStatus(map[string]interface{}{"a": 1}))
	assert.True(t, h.device.PublishTelemetry(map[string]interface{}{"a": 1}))
	require.Len(t, h.transport.statuses, 1)
	require.Len(t, h.transport.telemetry, 1)
}

func TestLoopSkipsCollaboratorsWithoutNetwork(t *testing.T) {
	h := newHarness(t)
	h.begin(t, nil, nil)

	h.network.connected = false
	h.device.Loop()
	assert.Equal(t, 0, h.transport.loops)
	assert.Equal(t, 0, h.api.loops)

	h.network.connected = true
	h.device.Loop()
	assert.Equal(t, 1, h.transport.loops)
	assert.Equal(t, 1, h.api.loops)
}
