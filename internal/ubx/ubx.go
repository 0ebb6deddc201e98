// Package ubx — минимальный протокол u-blox UBX: кадрирование, NAV-PVT (время и позиция)
// и CFG-TP5 (настройка опорного секундного импульса приёмника).
package ubx

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	Sync1 = 0xB5
	Sync2 = 0x62

	// HeaderSize — sync(2) + class + id + length(2).
	HeaderSize = 6
	// MaxPayload ограничивает длину, чтобы мусор на линии не заставил читать килобайты.
	MaxPayload = 1024
)

// Классы и ID сообщений.
const (
	ClassNAV = 0x01
	ClassACK = 0x05
	ClassCFG = 0x06

	IDNAVPVT = 0x07
	IDAckNak = 0x00
	IDAckAck = 0x01
	IDTP5    = 0x31
)

var (
	ErrSync     = errors.New("ubx: bad sync")
	ErrShort    = errors.New("ubx: short packet")
	ErrChecksum = errors.New("ubx: checksum mismatch")
	ErrTooLong  = errors.New("ubx: payload too long")
)

// Packet — одно UBX сообщение.
type Packet struct {
	Class   uint8
	ID      uint8
	Payload []byte
}

// Is проверяет класс и ID.
func (p Packet) Is(class, id uint8) bool {
	return p.Class == class && p.ID == id
}

func (p Packet) String() string {
	return fmt.Sprintf("ubx %02x-%02x len=%d", p.Class, p.ID, len(p.Payload))
}

// Checksum — 8-битный Флетчер по class..payload.
func Checksum(data []byte) (ckA, ckB uint8) {
	for _, b := range data {
		ckA += b
		ckB += ckA
	}
	return ckA, ckB
}

// Marshal собирает пакет: заголовок, payload, контрольная сумма.
func (p Packet) Marshal() []byte {
	buf := make([]byte, 0, HeaderSize+len(p.Payload)+2)
	buf = append(buf, Sync1, Sync2, p.Class, p.ID)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(p.Payload)))
	buf = append(buf, p.Payload...)
	ckA, ckB := Checksum(buf[2:])
	return append(buf, ckA, ckB)
}

// Parse разбирает один полный пакет из buf.
func Parse(buf []byte) (Packet, error) {
	if len(buf) < HeaderSize+2 {
		return Packet{}, ErrShort
	}
	if buf[0] != Sync1 || buf[1] != Sync2 {
		return Packet{}, ErrSync
	}
	n := int(binary.LittleEndian.Uint16(buf[4:6]))
	if n > MaxPayload {
		return Packet{}, ErrTooLong
	}
	if len(buf) < HeaderSize+n+2 {
		return Packet{}, ErrShort
	}
	end := HeaderSize + n
	ckA, ckB := Checksum(buf[2:end])
	if buf[end] != ckA || buf[end+1] != ckB {
		return Packet{}, ErrChecksum
	}
	payload := make([]byte, n)
	copy(payload, buf[HeaderSize:end])
	return Packet{Class: buf[2], ID: buf[3], Payload: payload}, nil
}
