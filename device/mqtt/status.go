package mqtt

import (
	"errors"
	"net"

	"github.com/eclipse/paho.mqtt.golang/packets"
)

// DisconnectReason classifies why the transport lost (or could not
// establish) its broker connection. Reasons are reported via the registered
// disconnect callback and logged; reconnection is handled by the transport
// itself.
type DisconnectReason int

// Disconnect reasons
const (
	Disconnected DisconnectReason = iota
	ConnectionTimeout
	ConnectionLost
	ConnectFailed
	BadProtocol
	BadClientID
	Unavailable
	BadCredentials
	Unauthorized
)

func (r DisconnectReason) String() string {
	switch r {
	case ConnectionTimeout:
		return "connection timeout"
	case ConnectionLost:
		return "connection lost"
	case ConnectFailed:
		return "connect failed"
	case BadProtocol:
		return "bad protocol"
	case BadClientID:
		return "bad client id"
	case Unavailable:
		return "unavailable"
	case BadCredentials:
		return "bad credentials"
	case Unauthorized:
		return "unauthorised"
	}
	return "disconnected"
}

// ReceiveStatus is the result of processing one incoming message.
type ReceiveStatus int

// Receive statuses
const (
	ReceiveOK ReceiveStatus = iota
	ReceiveZeroLength
	ReceiveJSONError
	ReceiveNoConfigHandler
	ReceiveNoCommandHandler
	ReceiveUnknownTopic
)

func (s ReceiveStatus) String() string {
	switch s {
	case ReceiveOK:
		return "ok"
	case ReceiveZeroLength:
		return "empty payload received"
	case ReceiveJSONError:
		return "failed to deserialise json payload"
	case ReceiveNoConfigHandler:
		return "no config handler"
	case ReceiveNoCommandHandler:
		return "no command handler"
	}
	return "unknown topic"
}

// classifyDisconnect maps a connection error onto a DisconnectReason. The
// refused codes come straight out of the broker's CONNACK.
func classifyDisconnect(err error) DisconnectReason {
	switch {
	case err == nil:
		return Disconnected
	case errors.Is(err, packets.ErrorRefusedBadProtocolVersion):
		return BadProtocol
	case errors.Is(err, packets.ErrorRefusedIDRejected):
		return BadClientID
	case errors.Is(err, packets.ErrorRefusedServerUnavailable):
		return Unavailable
	case errors.Is(err, packets.ErrorRefusedBadUsernameOrPassword):
		return BadCredentials
	case errors.Is(err, packets.ErrorRefusedNotAuthorised):
		return Unauthorized
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ConnectionTimeout
	}
	return ConnectionLost
}
