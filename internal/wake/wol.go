package wake

import (
	"encoding/hex"
	"fmt"
	"net"
	"strings"
)

// Signaller emits Wake-on-LAN magic packets for one machine. There is no
// delivery confirmation at this layer; the health probe confirms the wake.
type Signaller struct {
	mac       net.HardwareAddr
	broadcast string
	port      int
}

// NewSignaller parses the MAC address and binds the broadcast target.
func NewSignaller(mac, broadcast string, port int) (*Signaller, error) {
	hw, err := parseMAC(mac)
	if err != nil {
		return nil, err
	}
	if broadcast == "" {
		broadcast = "255.255.255.255"
	}
	if port == 0 {
		port = 9
	}
	return &Signaller{mac: hw, broadcast: broadcast, port: port}, nil
}

// Signal sends one magic packet: 6x 0xFF followed by 16 repetitions of the
// MAC address, as a UDP broadcast.
func (s *Signaller) Signal() error {
	packet := make([]byte, 0, 102)
	for i := 0; i < 6; i++ {
		packet = append(packet, 0xFF)
	}
	for i := 0; i < 16; i++ {
		packet = append(packet, s.mac...)
	}

	addr := fmt.Sprintf("%s:%d", s.broadcast, s.port)
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return fmt.Errorf("dial wake broadcast %s: %w", addr, err)
	}
	defer conn.Close()

	if _, err := conn.Write(packet); err != nil {
		return fmt.Errorf("send wake packet: %w", err)
	}
	return nil
}

func parseMAC(mac string) (net.HardwareAddr, error) {
	cleaned := strings.NewReplacer(":", "", "-", "").Replace(mac)
	if len(cleaned) != 12 {
		return nil, fmt.Errorf("invalid MAC address: %q", mac)
	}
	raw, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("invalid MAC address %q: %w", mac, err)
	}
	return net.HardwareAddr(raw), nil
}
