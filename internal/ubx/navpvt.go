package ubx

import (
	"encoding/binary"
	"fmt"
	"time"
)

// NAVPVTSize — длина payload NAV-PVT (протокол 15+).
const NAVPVTSize = 92

// Смещения полей в payload NAV-PVT.
const (
	navPvtYear    = 4  // uint16
	navPvtMonth   = 6  // uint8
	navPvtDay     = 7  // uint8
	navPvtHour    = 8  // uint8
	navPvtMin     = 9  // uint8
	navPvtSec     = 10 // uint8
	navPvtValid   = 11 // uint8: bit0 validDate, bit1 validTime, bit2 fullyResolved
	navPvtNano    = 16 // int32
	navPvtFixType = 20 // uint8: 0 нет, 2 2D, 3 3D, 5 только время
	navPvtFlags   = 21 // uint8: bit0 gnssFixOK
	navPvtLon     = 24 // int32, 1e-7 градуса
	navPvtLat     = 28 // int32, 1e-7 градуса
)

const (
	NavPVTValidDate          = 1 << 0
	NavPVTValidTime          = 1 << 1
	NavPVTValidFullyResolved = 1 << 2

	NavPVTGnssFixOK = 1 << 0
)

// Типы решения.
const (
	FixNone     = 0
	Fix2D       = 2
	Fix3D       = 3
	FixGNSSDR   = 4
	FixTimeOnly = 5
)

// PVT — разобранный NAV-PVT.
type PVT struct {
	Valid   uint8
	Time    time.Time // UTC, с наносекундами
	FixType uint8
	Flags   uint8
	Lat     float64
	Lon     float64
}

// TimeValid — приёмник подтвердил и дату, и время.
func (p PVT) TimeValid() bool {
	return p.Valid&NavPVTValidDate != 0 && p.Valid&NavPVTValidTime != 0
}

// LocationValid — есть 2D/3D решение с gnssFixOK.
func (p PVT) LocationValid() bool {
	if p.Flags&NavPVTGnssFixOK == 0 {
		return false
	}
	return p.FixType >= Fix2D && p.FixType <= FixGNSSDR
}

// ParseNAVPVT разбирает payload NAV-PVT.
func ParseNAVPVT(payload []byte) (PVT, error) {
	if len(payload) < NAVPVTSize {
		return PVT{}, fmt.Errorf("nav-pvt: payload %d bytes, want %d: %w", len(payload), NAVPVTSize, ErrShort)
	}
	p := PVT{
		Valid:   payload[navPvtValid],
		FixType: payload[navPvtFixType],
		Flags:   payload[navPvtFlags],
		Lon:     float64(int32(binary.LittleEndian.Uint32(payload[navPvtLon:]))) * 1e-7,
		Lat:     float64(int32(binary.LittleEndian.Uint32(payload[navPvtLat:]))) * 1e-7,
	}
	nano := int32(binary.LittleEndian.Uint32(payload[navPvtNano:]))
	switch {
	case nano < 0:
		nano = 0
	case nano > 999_999_999:
		nano = 999_999_999
	}
	p.Time = time.Date(
		int(binary.LittleEndian.Uint16(payload[navPvtYear:])),
		time.Month(payload[navPvtMonth]),
		int(payload[navPvtDay]),
		int(payload[navPvtHour]),
		int(payload[navPvtMin]),
		int(payload[navPvtSec]),
		int(nano), time.UTC)
	return p, nil
}
