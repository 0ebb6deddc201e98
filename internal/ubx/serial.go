package ubx

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// ErrTimeout — за отведённое время пакет не пришёл.
var ErrTimeout = errors.New("ubx: read timeout")

// readTimeouter — порт go.bug.st/serial: Read возвращает (0, nil) по таймауту.
type readTimeouter interface {
	SetReadTimeout(t time.Duration) error
}

// Port — UBX поверх последовательного порта.
type Port struct {
	rw   io.ReadWriteCloser
	name string
}

// Open открывает последовательный порт приёмника.
func Open(device string, baud int) (*Port, error) {
	if baud == 0 {
		baud = 9600
	}
	p, err := serial.Open(device, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("serial open %s: %w", device, err)
	}
	return &Port{rw: p, name: device}, nil
}

// NewPort оборачивает готовый поток (pipe, файл записи).
func NewPort(rw io.ReadWriteCloser) *Port {
	return &Port{rw: rw, name: "stream"}
}

func (p *Port) String() string {
	return p.name
}

// WritePacket отправляет пакет.
func (p *Port) WritePacket(pkt Packet) error {
	_, err := p.rw.Write(pkt.Marshal())
	return err
}

// ReadPacket ждёт sync, затем читает заголовок, payload и контрольную сумму.
// Пакеты с битой суммой пропускаются.
func (p *Port) ReadPacket(timeout time.Duration) (Packet, error) {
	deadline := time.Now().Add(timeout)
	if rt, ok := p.rw.(readTimeouter); ok {
		if err := rt.SetReadTimeout(timeout); err != nil {
			return Packet{}, err
		}
	}
	for time.Now().Before(deadline) {
		if err := p.syncUp(deadline); err != nil {
			return Packet{}, err
		}
		head := make([]byte, HeaderSize-2)
		if err := p.readFull(head, deadline); err != nil {
			return Packet{}, err
		}
		n := int(head[2]) | int(head[3])<<8
		if n > MaxPayload {
			continue
		}
		buf := make([]byte, HeaderSize+n+2)
		buf[0], buf[1] = Sync1, Sync2
		copy(buf[2:], head)
		if err := p.readFull(buf[HeaderSize:], deadline); err != nil {
			return Packet{}, err
		}
		pkt, err := Parse(buf)
		if errors.Is(err, ErrChecksum) {
			continue
		}
		return pkt, err
	}
	return Packet{}, ErrTimeout
}

func (p *Port) syncUp(deadline time.Time) error {
	var prev byte
	b := make([]byte, 1)
	for {
		if err := p.readFull(b, deadline); err != nil {
			return err
		}
		if prev == Sync1 && b[0] == Sync2 {
			return nil
		}
		prev = b[0]
	}
}

// readFull как io.ReadFull, но пустое чтение считается таймаутом порта.
func (p *Port) readFull(buf []byte, deadline time.Time) error {
	for off := 0; off < len(buf); {
		n, err := p.rw.Read(buf[off:])
		off += n
		if err != nil {
			return err
		}
		if n == 0 && !time.Now().Before(deadline) {
			return ErrTimeout
		}
	}
	return nil
}

// ConfigureTimePulse отправляет CFG-TP5 и ждёт ACK-ACK.
func (p *Port) ConfigureTimePulse(c TP5Config, timeout time.Duration) error {
	if err := p.WritePacket(c.Packet()); err != nil {
		return fmt.Errorf("write cfg-tp5: %w", err)
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		pkt, err := p.ReadPacket(time.Until(deadline))
		if err != nil {
			return fmt.Errorf("wait ack: %w", err)
		}
		if pkt.Class != ClassACK || len(pkt.Payload) < 2 {
			continue
		}
		if pkt.Payload[0] != ClassCFG || pkt.Payload[1] != IDTP5 {
			continue
		}
		if pkt.ID == IDAckNak {
			return errors.New("cfg-tp5 rejected (ACK-NAK)")
		}
		return nil
	}
	return ErrTimeout
}

// Close закрывает порт.
func (p *Port) Close() error {
	if p.rw == nil {
		return nil
	}
	return p.rw.Close()
}
