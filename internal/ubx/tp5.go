package ubx

import "encoding/binary"

// TP5PayloadSize — длина payload CFG-TP5 (версия 0).
const TP5PayloadSize = 32

// Биты флагов CFG-TP5.
const (
	TP5Active         = 0x01
	TP5LockGnssFreq   = 0x02
	TP5LockedOtherSet = 0x04
	TP5IsFreq         = 0x08
	TP5IsLength       = 0x10
	TP5AlignToTow     = 0x20
	TP5Polarity       = 0x40 // фронт импульса — нарастающий
)

// TP5Config — параметры time pulse. Период в мкс (IsFreq=false), длительность в нс (IsLength=true).
type TP5Config struct {
	TPIdx             uint8
	AntCableDelayNs   int16
	RfGroupDelayNs    int16
	PeriodUs          uint32
	PeriodLockUs      uint32
	PulseLenNs        uint32
	PulseLenLockNs    uint32
	UserConfigDelayNs int32
	Flags             uint32
}

// DefaultTP5 — 1 PPS, импульс 5 мс, нарастающий фронт на границе секунды:
// именно этот фронт захватывает таймер.
func DefaultTP5() TP5Config {
	return TP5Config{
		PeriodUs:       1_000_000,
		PeriodLockUs:   1_000_000,
		PulseLenNs:     5_000_000,
		PulseLenLockNs: 5_000_000,
		Flags:          TP5Active | TP5LockGnssFreq | TP5LockedOtherSet | TP5IsLength | TP5AlignToTow | TP5Polarity,
	}
}

// Marshal сериализует payload.
func (c TP5Config) Marshal() []byte {
	p := make([]byte, TP5PayloadSize)
	p[0] = c.TPIdx
	binary.LittleEndian.PutUint16(p[4:], uint16(c.AntCableDelayNs))
	binary.LittleEndian.PutUint16(p[6:], uint16(c.RfGroupDelayNs))
	binary.LittleEndian.PutUint32(p[8:], c.PeriodUs)
	binary.LittleEndian.PutUint32(p[12:], c.PeriodLockUs)
	binary.LittleEndian.PutUint32(p[16:], c.PulseLenNs)
	binary.LittleEndian.PutUint32(p[20:], c.PulseLenLockNs)
	binary.LittleEndian.PutUint32(p[24:], uint32(c.UserConfigDelayNs))
	binary.LittleEndian.PutUint32(p[28:], c.Flags)
	return p
}

// Packet оборачивает конфигурацию в CFG-TP5.
func (c TP5Config) Packet() Packet {
	return Packet{Class: ClassCFG, ID: IDTP5, Payload: c.Marshal()}
}
