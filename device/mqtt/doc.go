/*Package mqtt provides the MQTT transport for the device core.

The transport publishes device status, telemetry, log and adoption messages
and receives configuration and command documents on the conventional topic
scheme

	[prefix/]conf/<clientid>[/suffix]
	[prefix/]cmnd/<clientid>[/suffix]
	[prefix/]stat/<clientid>[/suffix]
	[prefix/]tele/<clientid>[/suffix]
	[prefix/]log/<clientid>[/suffix]

The adoption report is published to the status topic with an "/adopt"
segment appended.

The underlying paho client delivers messages and connection events on its
own goroutines. The transport funnels them through a buffered channel and
dispatches callbacks only from Loop(), so all firmware-facing callbacks run
on the single poll goroutine.
*/
package mqtt
