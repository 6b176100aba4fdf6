package device

import (
	"github.com/oxrs-io/oxrs-go/core/merge"
	"github.com/oxrs-io/oxrs-go/core/schema"
)

// Adoption builds the adoption report: firmware identity, a system resource
// snapshot, the network identity and the merged configuration and command
// schemas. The report is built fresh on every call and never persisted; the
// registry fragments are copied, never mutated.
func (d *Device) Adoption() map[string]interface{} {
	report := map[string]interface{}{}
	d.firmwareJSON(report)
	d.systemJSON(report)
	d.networkJSON(report)
	d.configSchemaJSON(report)
	d.commandSchemaJSON(report)
	return report
}

func (d *Device) firmwareJSON(report map[string]interface{}) {
	firmware := map[string]interface{}{
		"name":      d.firmware.Name,
		"shortName": d.firmware.ShortName,
		"maker":     d.firmware.Maker,
		"version":   d.firmware.Version,
	}
	if d.firmware.GitHubURL != "" {
		firmware["githubUrl"] = d.firmware.GitHubURL
	}
	report["firmware"] = firmware
}

func (d *Device) systemJSON(report map[string]interface{}) {
	stats := d.monitor.Stats()
	report["system"] = map[string]interface{}{
		"heapUsedBytes":         stats.HeapUsedBytes,
		"heapFreeBytes":         stats.HeapFreeBytes,
		"heapMaxAllocBytes":     stats.HeapMaxAllocBytes,
		"flashChipSizeBytes":    stats.FlashChipSizeBytes,
		"sketchSpaceUsedBytes":  stats.SketchSpaceUsedBytes,
		"sketchSpaceTotalBytes": stats.SketchSpaceTotalBytes,
		"fileSystemUsedBytes":   stats.FileSystemUsedBytes,
		"fileSystemTotalBytes":  stats.FileSystemTotalBytes,
	}
}

func (d *Device) networkJSON(report map[string]interface{}) {
	report["network"] = map[string]interface{}{
		"mode": d.connection.Mode,
		"ip":   d.connection.IP.String(),
		"mac":  formatMAC(d.connection.MAC),
	}
}

func (d *Device) configSchemaJSON(report map[string]interface{}) {
	properties := map[string]interface{}{}
	merge.Merge(properties, d.registry.ConfigSchema())
	report["configSchema"] = schema.Envelope(d.firmware.ShortName, properties)
}

func (d *Device) commandSchemaJSON(report map[string]interface{}) {
	properties := map[string]interface{}{}
	merge.Merge(properties, d.registry.CommandSchema())

	// the device-reserved restart command is injected after the firmware
	// fragment, a plain assignment so it always wins a name collision
	properties["restart"] = map[string]interface{}{
		"title": "Restart",
		"type":  "boolean",
	}

	report["commandSchema"] = schema.Envelope(d.firmware.ShortName, properties)
}
