package nav

import (
	"errors"
	"sync"
	"time"

	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/calendar"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/ubx"
)

// pvtReadTimeout — NAV-PVT приходит раз в секунду.
const pvtReadTimeout = 1500 * time.Millisecond

// UBX — навигационный источник по UBX-NAV-PVT.
type UBX struct {
	Latest

	port *ubx.Port
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// OpenUBX открывает порт приёмника u-blox.
func OpenUBX(device string, baud int) (*UBX, error) {
	port, err := ubx.Open(device, baud)
	if err != nil {
		return nil, err
	}
	return NewUBX(port), nil
}

// NewUBX запускает чтение NAV-PVT из порта.
func NewUBX(port *ubx.Port) *UBX {
	u := &UBX{port: port, stop: make(chan struct{}), done: make(chan struct{})}
	go u.loop()
	return u
}

func (u *UBX) loop() {
	defer close(u.done)
	for {
		select {
		case <-u.stop:
			return
		default:
		}
		pkt, err := u.port.ReadPacket(pvtReadTimeout)
		if errors.Is(err, ubx.ErrTimeout) {
			continue
		}
		if err != nil {
			return
		}
		if !pkt.Is(ubx.ClassNAV, ubx.IDNAVPVT) {
			continue
		}
		pvt, err := ubx.ParseNAVPVT(pkt.Payload)
		if err != nil {
			continue
		}
		u.Publish(FixFromPVT(pvt))
	}
}

// FixFromPVT переводит NAV-PVT в Fix.
func FixFromPVT(p ubx.PVT) Fix {
	f := Fix{TimeValid: p.TimeValid()}
	if f.TimeValid {
		f.Time = calendar.FromTime(p.Time)
		f.TimeValid = f.Time.Valid()
	}
	if p.LocationValid() {
		f.LocationValid = true
		f.Latitude, f.Longitude = p.Lat, p.Lon
	}
	return f
}

// Done закрывается, когда чтение остановилось.
func (u *UBX) Done() <-chan struct{} {
	return u.done
}

func (u *UBX) String() string {
	return "ubx:" + u.port.String()
}

// Close останавливает чтение и закрывает порт.
func (u *UBX) Close() error {
	var err error
	u.once.Do(func() {
		close(u.stop)
		err = u.port.Close()
	})
	return err
}
