package device

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/oxrs-io/oxrs-go/core/logger"
	"github.com/oxrs-io/oxrs-go/core/schema"
	"github.com/oxrs-io/oxrs-go/device/mqtt"
)

// Handler receives a JSON document from the device, either a configuration
// or a command. Handlers run on the polling goroutine.
type Handler func(doc map[string]interface{})

// Firmware identifies the firmware build in the adoption report.
type Firmware struct {
	Name      string
	ShortName string
	Maker     string
	Version   string
	// GitHubURL is the optional source repository, included in the
	// adoption report when set.
	GitHubURL string
}

// Builder is a builder helper for the Device
type Builder struct {
	// Firmware is the firmware identity. Name and ShortName are mandatory.
	Firmware Firmware
	// Transport is the MQTT transport. This is mandatory.
	Transport Transport
	// API is the REST adoption API. This is optional, a device can run
	// headless without it.
	API API
	// Network brings up device connectivity. Defaults to a LANNetwork.
	Network Network
	// SystemMonitor supplies the resource snapshot for the adoption
	// report. Defaults to a RuntimeMonitor without a data directory.
	SystemMonitor SystemMonitor
	// Restart overrides how the device-reserved restart command is
	// executed. The default exits the process and relies on the service
	// supervisor to bring it back up.
	Restart func()
	// LogHook, when set, is attached to the transport on the first
	// successful connection so log entries are mirrored to the log topic.
	LogHook *logger.Hook
}

// Device is the core of an adoptable IoT device. Construct it with New, set
// the schemas, then call Begin once and Loop from the run loop.
type Device struct {
	firmware  Firmware
	transport Transport
	api       API
	network   Network
	monitor   SystemMonitor
	restart   func()
	logHook   *logger.Hook

	registry *schema.Registry

	onConfig  Handler
	onCommand Handler

	connection Connection
}

// New realizes the device core. It does not touch the network yet, that
// happens in Begin().
func New(b *Builder) *Device {

	if b.Transport == nil {
		panic("Transport is missing")
	}

	if b.Firmware.Name == "" || b.Firmware.ShortName == "" {
		panic("Firmware identity is missing")
	}

	network := b.Network
	if network == nil {
		network = &LANNetwork{}
	}

	monitor := b.SystemMonitor
	if monitor == nil {
		monitor = NewRuntimeMonitor("")
	}

	restart := b.Restart
	if restart == nil {
		restart = func() {
			logger.Default().Warnln("restarting")
			os.Exit(0)
		}
	}

	return &Device{
		firmware:  b.Firmware,
		transport: b.Transport,
		api:       b.API,
		network:   network,
		monitor:   monitor,
		restart:   restart,
		logHook:   b.LogHook,
		registry:  schema.NewRegistry(),
	}
}

// SetConfigSchema registers the firmware's configuration schema fragment.
// Each call fully replaces the previous fragment.
func (d *Device) SetConfigSchema(fragment map[string]interface{}) {
	d.registry.SetConfigSchema(fragment)
}

// SetCommandSchema registers the firmware's command schema fragment. Each
// call fully replaces the previous fragment.
func (d *Device) SetCommandSchema(fragment map[string]interface{}) {
	d.registry.SetCommandSchema(fragment)
}

// Begin brings the device up: it blocks until the network is connected,
// derives the default transport client id from the hardware address, wires
// the transport callbacks and finally starts the REST API.
//
// The API must be started after the transport defaults are set, because it
// loads persisted transport settings which take precedence over the
// MAC-derived client id.
func (d *Device) Begin(ctx context.Context, onConfig, onCommand Handler) error {
	d.onConfig = onConfig
	d.onCommand = onCommand

	logger.Default().Infof("%s %s by %s", d.firmware.Name, d.firmware.Version, d.firmware.Maker)

	connection, err := d.network.Connect(ctx)
	if err != nil {
		return fmt.Errorf("cannot bring up network: %w", err)
	}
	if connection.Mode == "" {
		connection.Mode = "wifi"
	}
	d.connection = connection

	logger.Default().Infof("mac address: %s", formatMAC(connection.MAC))
	logger.Default().Infof("ip address: %s", connection.IP)

	clientID, err := defaultClientID(connection.MAC)
	if err != nil {
		return err
	}
	d.transport.SetClientID(clientID)

	d.transport.OnConnected(d.transportConnected)
	d.transport.OnDisconnected(d.transportDisconnected)
	d.transport.OnConfig(d.dispatchConfig)
	d.transport.OnCommand(d.dispatchCommand)

	if d.api != nil {
		d.api.OnAdopt(d.Adoption)
		d.api.OnRestart(d.restart)
		if err := d.api.Begin(); err != nil {
			return fmt.Errorf("cannot start api: %w", err)
		}
	}
	return nil
}

// Loop runs one poll cycle. With no connectivity both collaborators are
// skipped; no work queues up in the core, the network's own reconnect logic
// gets its chance on the next cycle.
func (d *Device) Loop() {
	if !d.network.IsConnected() {
		return
	}
	d.transport.Loop()
	if d.api != nil {
		d.api.Loop()
	}
}

// PublishStatus publishes a status document. It returns false without
// touching the transport when the network is down.
func (d *Device) PublishStatus(doc map[string]interface{}) bool {
	if !d.network.IsConnected() {
		return false
	}
	return d.transport.PublishStatus(doc)
}

// PublishTelemetry publishes a telemetry document. It returns false without
// touching the transport when the network is down.
func (d *Device) PublishTelemetry(doc map[string]interface{}) bool {
	if !d.network.IsConnected() {
		return false
	}
	return d.transport.PublishTelemetry(doc)
}

func (d *Device) transportConnected() {
	if d.logHook != nil {
		d.logHook.SetPublisher(d.transport)
	}
	d.transport.PublishAdopt(d.Adoption())
	logger.Default().Infoln("mqtt connected")
}

func (d *Device) transportDisconnected(reason mqtt.DisconnectReason) {
	logger.Default().Warnf("mqtt %s", reason)
}

// dispatchConfig forwards a configuration document to the firmware handler.
// The document is checked against the merged config schema first; a mismatch
// is logged but the document is still forwarded unchanged.
func (d *Device) dispatchConfig(doc map[string]interface{}) {
	envelope := schema.Envelope(d.firmware.ShortName, d.registry.ConfigSchema())
	if err := schema.Validate(doc, envelope); err != nil {
		logger.Default().WithError(err).Warnln("config does not match schema")
	}
	if d.onConfig != nil {
		d.onConfig(doc)
	}
}

// dispatchCommand checks a command document for the device-reserved restart
// key, then forwards the unmodified document to the firmware handler.
func (d *Device) dispatchCommand(doc map[string]interface{}) {
	if restart, ok := doc["restart"].(bool); ok && restart {
		d.restart()
	}
	if d.onCommand != nil {
		d.onCommand(doc)
	}
}

// defaultClientID derives the default transport client id from the low 3
// bytes of the hardware address.
func defaultClientID(mac net.HardwareAddr) (string, error) {
	if len(mac) < 6 {
		return "", fmt.Errorf("invalid hardware address '%s'", mac)
	}
	return fmt.Sprintf("%02x%02x%02x", mac[3], mac[4], mac[5]), nil
}

// formatMAC renders a hardware address as six uppercase hex byte pairs
// separated by colons.
func formatMAC(mac net.HardwareAddr) string {
	return strings.ToUpper(mac.String())
}
