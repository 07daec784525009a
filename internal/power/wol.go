package power

import (
	"fmt"
	"net"
	"strconv"
)

const (
	DefaultWolPort          = 9
	DefaultBroadcastAddress = "255.255.255.255"

	magicPacketLen = 6 + 16*6
)

// UDPWolSender broadcasts magic packets over UDP. There is no acknowledgement
// at the protocol level, so a nil error only means the packet left this host.
type UDPWolSender struct {
	DefaultPort             int
	DefaultBroadcastAddress string
}

func (w *UDPWolSender) Wake(macAddress string, port int, broadcastAddress string) error {
	packet, err := MagicPacket(macAddress)
	if err != nil {
		return err
	}

	if broadcastAddress == "" {
		broadcastAddress = w.DefaultBroadcastAddress
	}
	if broadcastAddress == "" {
		broadcastAddress = DefaultBroadcastAddress
	}
	if port == 0 {
		port = w.DefaultPort
	}
	if port == 0 {
		port = DefaultWolPort
	}

	conn, err := net.Dial("udp", net.JoinHostPort(broadcastAddress, strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("failed to dial UDP broadcast: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Write(packet); err != nil {
		return fmt.Errorf("failed to send magic packet: %w", err)
	}

	return nil
}

// MagicPacket returns six 0xFF bytes followed by the MAC repeated 16 times.
func MagicPacket(macAddress string) ([]byte, error) {
	mac, err := net.ParseMAC(macAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid MAC address %q: %w", macAddress, err)
	}
	if len(mac) != 6 {
		return nil, fmt.Errorf("invalid MAC address %q: wake-on-LAN needs a 48-bit address", macAddress)
	}

	packet := make([]byte, magicPacketLen)
	for i := 0; i < 6; i++ {
		packet[i] = 0xFF
	}
	for i := 0; i < 16; i++ {
		copy(packet[6+(i*6):], mac)
	}
	return packet, nil
}
