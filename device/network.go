package device

import (
	"context"
	"errors"
	"net"
	"time"
)

// LANNetwork is the default Network. It reports connectivity from the
// host's network interfaces: the device counts as connected when an
// interface is up with both a hardware address and a global unicast IPv4
// address.
type LANNetwork struct {
	// Interface restricts discovery to a named interface. Optional.
	Interface string
	// Mode overrides the connection mode label in the adoption report.
	// Defaults to "wifi".
	Mode string
}

// Connect blocks until a connected interface is found or the context is
// cancelled. This is the one-time startup phase; steady-state polling uses
// IsConnected.
func (n *LANNetwork) Connect(ctx context.Context) (Connection, error) {
	for {
		if connection, err := n.current(); err == nil {
			return connection, nil
		}
		select {
		case <-ctx.Done():
			return Connection{}, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

// IsConnected implements the Network interface.
func (n *LANNetwork) IsConnected() bool {
	_, err := n.current()
	return err == nil
}

func (n *LANNetwork) current() (Connection, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return Connection{}, err
	}
	for _, iface := range interfaces {
		if n.Interface != "" && iface.Name != n.Interface {
			continue
		}
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if len(iface.HardwareAddr) < 6 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip := ipNet.IP.To4()
			if ip == nil || !ip.IsGlobalUnicast() {
				continue
			}
			mode := n.Mode
			if mode == "" {
				mode = "wifi"
			}
			return Connection{Mode: mode, IP: ip, MAC: iface.HardwareAddr}, nil
		}
	}
	return Connection{}, errors.New("no connected interface")
}
