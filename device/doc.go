/*Package device provides the core of an adoptable IoT device.

A Device ties together network bring-up, the MQTT transport, the REST
adoption API and the firmware-supplied configuration and command schemas.
Firmware constructs a Device once at startup via the Builder, registers its
schema fragments and handlers with Begin(), and then drives the device from
its run loop:

	d := device.New(&device.Builder{...})
	d.SetConfigSchema(configSchema)
	d.SetCommandSchema(commandSchema)
	if err := d.Begin(ctx, onConfig, onCommand); err != nil {
		...
	}
	for {
		d.Loop()
	}

On the first successful transport connection the device publishes an
adoption report, a self-describing JSON document with its firmware identity,
a system resource snapshot, its network identity and the merged
configuration and command schemas. The same report is served by the REST API
under /adopt. A device-management system uses the report to discover the
device and render a configuration UI from the schemas.

The device intercepts one reserved command before forwarding command
documents to firmware: a boolean "restart" triggers a device restart. The
restart property is always present in the published command schema and
firmware cannot remove it.
*/
package device
