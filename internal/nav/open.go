package nav

import (
	"fmt"
	"strings"
)

// Протоколы навигационного приёмника.
const (
	ProtocolNMEA = "nmea"
	ProtocolUBX  = "ubx"
)

// Open открывает источник по имени протокола.
func Open(protocol, device string, baud int) (Source, error) {
	switch strings.ToLower(protocol) {
	case "", ProtocolNMEA:
		return OpenNMEA(device, baud)
	case ProtocolUBX, "gnss":
		return OpenUBX(device, baud)
	}
	return nil, fmt.Errorf("unknown navigation protocol %q", protocol)
}
