package device

import (
	"context"
	"net"

	"github.com/oxrs-io/oxrs-go/device/mqtt"
)

// Connection describes established device connectivity.
type Connection struct {
	// Mode is the connection mode label, e.g. "wifi" or "ethernet".
	// An empty mode defaults to "wifi".
	Mode string
	// IP is the current local address.
	IP net.IP
	// MAC is the hardware address.
	MAC net.HardwareAddr
}

// Network brings up and reports device connectivity.
type Network interface {
	// Connect blocks until the device has connectivity or the context is
	// cancelled. It is called exactly once, during Begin().
	Connect(ctx context.Context) (Connection, error)
	// IsConnected reports current connectivity. It is cheap and called on
	// every poll cycle.
	IsConnected() bool
}

// Transport is the pub/sub collaborator of the device. The MQTT client in
// package device/mqtt satisfies this interface.
type Transport interface {
	SetClientID(clientID string)
	OnConnected(callback func())
	OnDisconnected(callback func(mqtt.DisconnectReason))
	OnConfig(handler mqtt.MessageHandler)
	OnCommand(handler mqtt.MessageHandler)
	PublishStatus(doc map[string]interface{}) bool
	PublishTelemetry(doc map[string]interface{}) bool
	PublishAdopt(doc map[string]interface{}) bool
	PublishLog(payload []byte) bool
	Loop()
}

// API is the REST collaborator of the device. The service in package
// device/api satisfies this interface.
type API interface {
	OnAdopt(callback func() map[string]interface{})
	OnRestart(callback func())
	Begin() error
	Loop()
}

// SystemStats is a point-in-time snapshot of device resources, reported in
// the adoption report.
type SystemStats struct {
	HeapUsedBytes         uint64 `json:"heapUsedBytes"`
	HeapFreeBytes         uint64 `json:"heapFreeBytes"`
	HeapMaxAllocBytes     uint64 `json:"heapMaxAllocBytes"`
	FlashChipSizeBytes    uint64 `json:"flashChipSizeBytes"`
	SketchSpaceUsedBytes  uint64 `json:"sketchSpaceUsedBytes"`
	SketchSpaceTotalBytes uint64 `json:"sketchSpaceTotalBytes"`
	FileSystemUsedBytes   uint64 `json:"fileSystemUsedBytes"`
	FileSystemTotalBytes  uint64 `json:"fileSystemTotalBytes"`
}

// SystemMonitor reads live resource statistics from the host platform.
type SystemMonitor interface {
	Stats() SystemStats
}
